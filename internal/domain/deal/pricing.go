package deal

import "github.com/shopspring/decimal"

// cashbackRate is the flat loyalty cashback estimate shown before purchase.
// It is informational only and distinct from the points earned at settlement.
var cashbackRate = decimal.NewFromFloat(0.02)

var hundred = decimal.NewFromInt(100)

// Quote holds the resolved purchase pricing for a deal: what the buyer pays
// and what the issued coupon will be worth at the business.
type Quote struct {
	AmountPayable   decimal.Decimal
	RedemptionValue decimal.Decimal
}

// ResolvePrice computes the purchase quote for a deal. Value coupons charge
// the coupon price and unlock the redemption value; percentage deals charge
// the discounted price and the coupon is worth exactly what was paid (it is
// a discount voucher, not a value-add voucher). Zero-valued fields quote as
// zero; pricing never fails.
func ResolvePrice(d *Deal) Quote {
	if d.CouponType == TypeValueCoupon {
		return Quote{
			AmountPayable:   d.CouponPrice,
			RedemptionValue: d.RedemptionValue,
		}
	}
	return Quote{
		AmountPayable:   d.DiscountedPrice,
		RedemptionValue: d.DiscountedPrice,
	}
}

// Savings returns the buyer-facing savings for the deal's variant: the value
// unlocked beyond the price paid for value coupons, or the markdown from the
// original price for percentage deals.
func (d *Deal) Savings() decimal.Decimal {
	q := ResolvePrice(d)
	if d.CouponType == TypeValueCoupon {
		return q.RedemptionValue.Sub(q.AmountPayable)
	}
	return d.OriginalPrice.Sub(q.AmountPayable)
}

// ValuePercentage returns the extra-value percentage of a value coupon,
// rounded to the nearest whole percent. The second return is false for
// percentage deals and for value coupons without a positive coupon price,
// where the quantity is undefined.
func (d *Deal) ValuePercentage() (int64, bool) {
	if d.CouponType != TypeValueCoupon || !d.CouponPrice.IsPositive() {
		return 0, false
	}
	pct := d.RedemptionValue.Sub(d.CouponPrice).Div(d.CouponPrice).Mul(hundred)
	return pct.Round(0).IntPart(), true
}

// CashbackEstimate returns the rounded flat-rate cashback shown to the buyer
// before purchase for the given payable amount.
func CashbackEstimate(amountPayable decimal.Decimal) decimal.Decimal {
	return amountPayable.Mul(cashbackRate).Round(0)
}
