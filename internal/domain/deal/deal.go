package deal

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested deal does not exist.
var ErrNotFound = errors.New("deal not found")

// CouponType enumerates the two mutually exclusive pricing variants a deal
// can carry. Exactly one variant's numeric fields are meaningful per deal;
// the other variant's fields are zero and ignored.
type CouponType string

const (
	// TypePercentageDiscount sells goods at a reduced price: the buyer pays
	// the discounted price and the coupon is worth exactly what was paid.
	TypePercentageDiscount CouponType = "percentage_discount"
	// TypeValueCoupon sells a larger redeemable value for a smaller price:
	// the buyer pays the coupon price and may redeem the redemption value.
	TypeValueCoupon CouponType = "value_coupon"
)

// Deal represents a sellable offer from a business. The settlement engine
// mutates a deal only by incrementing its use counter; everything else is
// managed by the listing side of the platform.
type Deal struct {
	ID            string
	Title         string
	BusinessOwner string
	CouponType    CouponType

	// percentage_discount variant.
	OriginalPrice   decimal.Decimal
	DiscountedPrice decimal.Decimal
	// DiscountPercentage is display-only and never authoritative for pricing.
	DiscountPercentage int

	// value_coupon variant.
	CouponPrice     decimal.Decimal
	RedemptionValue decimal.Decimal

	ExpiryDate  time.Time
	MaxUses     int // 0 means unlimited
	CurrentUses int
	Active      bool
	CreatedAt   time.Time
}

// SoldOut reports whether the deal's usage cap has been reached.
func (d *Deal) SoldOut() bool {
	return d.MaxUses > 0 && d.CurrentUses >= d.MaxUses
}

// Expired reports whether the deal can no longer be purchased at now.
// The expiry instant itself counts as expired.
func (d *Deal) Expired(now time.Time) bool {
	return !d.ExpiryDate.IsZero() && !now.Before(d.ExpiryDate)
}

// RemainingUses returns how many purchases are left under the usage cap,
// and whether a cap exists at all.
func (d *Deal) RemainingUses() (int, bool) {
	if d.MaxUses <= 0 {
		return 0, false
	}
	left := d.MaxUses - d.CurrentUses
	if left < 0 {
		left = 0
	}
	return left, true
}

// Repository defines persistence operations for deals.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Deal, error)
	ListActive(ctx context.Context) ([]Deal, error)
	// IncrementUses atomically adds one to the deal's use counter. It must
	// not be implemented as read-then-overwrite: concurrent purchases of
	// the same deal may not lose updates.
	IncrementUses(ctx context.Context, id string) error
}
