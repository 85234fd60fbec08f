package deal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func valueDeal(couponPrice, redemptionValue int64) *Deal {
	return &Deal{
		ID:              "d1",
		CouponType:      TypeValueCoupon,
		CouponPrice:     decimal.NewFromInt(couponPrice),
		RedemptionValue: decimal.NewFromInt(redemptionValue),
	}
}

func percentageDeal(original, discounted int64) *Deal {
	return &Deal{
		ID:              "d2",
		CouponType:      TypePercentageDiscount,
		OriginalPrice:   decimal.NewFromInt(original),
		DiscountedPrice: decimal.NewFromInt(discounted),
	}
}

func TestResolvePrice_ValueCoupon(t *testing.T) {
	q := ResolvePrice(valueDeal(50, 80))

	assert.True(t, q.AmountPayable.Equal(decimal.NewFromInt(50)))
	assert.True(t, q.RedemptionValue.Equal(decimal.NewFromInt(80)))
}

func TestResolvePrice_PercentageDiscount(t *testing.T) {
	q := ResolvePrice(percentageDeal(100, 75))

	// A discount voucher is worth exactly what was paid.
	assert.True(t, q.AmountPayable.Equal(decimal.NewFromInt(75)))
	assert.True(t, q.RedemptionValue.Equal(decimal.NewFromInt(75)))
}

func TestResolvePrice_ZeroFieldsQuoteZero(t *testing.T) {
	q := ResolvePrice(&Deal{CouponType: TypeValueCoupon})

	assert.True(t, q.AmountPayable.IsZero())
	assert.True(t, q.RedemptionValue.IsZero())
}

func TestSavings(t *testing.T) {
	assert.True(t, valueDeal(50, 80).Savings().Equal(decimal.NewFromInt(30)))
	assert.True(t, percentageDeal(100, 75).Savings().Equal(decimal.NewFromInt(25)))
}

func TestValuePercentage(t *testing.T) {
	vp, ok := valueDeal(50, 80).ValuePercentage()
	assert.True(t, ok)
	assert.Equal(t, int64(60), vp)

	// Rounded to the nearest whole percent.
	d := valueDeal(30, 40)
	vp, ok = d.ValuePercentage()
	assert.True(t, ok)
	assert.Equal(t, int64(33), vp)

	_, ok = percentageDeal(100, 75).ValuePercentage()
	assert.False(t, ok)

	_, ok = valueDeal(0, 80).ValuePercentage()
	assert.False(t, ok)
}

func TestCashbackEstimate(t *testing.T) {
	assert.True(t, CashbackEstimate(decimal.NewFromInt(75)).Equal(decimal.NewFromInt(2)))
	assert.True(t, CashbackEstimate(decimal.NewFromInt(100)).Equal(decimal.NewFromInt(2)))
	assert.True(t, CashbackEstimate(decimal.NewFromInt(125)).Equal(decimal.NewFromInt(3)))
}

func TestDeal_Expired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d := &Deal{ExpiryDate: now.Add(time.Hour)}
	assert.False(t, d.Expired(now))

	// The expiry instant itself counts as expired.
	d = &Deal{ExpiryDate: now}
	assert.True(t, d.Expired(now))

	d = &Deal{}
	assert.False(t, d.Expired(now))
}

func TestDeal_SoldOutAndRemainingUses(t *testing.T) {
	d := &Deal{MaxUses: 2, CurrentUses: 1}
	assert.False(t, d.SoldOut())
	left, capped := d.RemainingUses()
	assert.True(t, capped)
	assert.Equal(t, 1, left)

	d.CurrentUses = 2
	assert.True(t, d.SoldOut())

	unlimited := &Deal{MaxUses: 0, CurrentUses: 500}
	assert.False(t, unlimited.SoldOut())
	_, capped = unlimited.RemainingUses()
	assert.False(t, capped)
}
