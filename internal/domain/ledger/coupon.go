package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrCouponNotFound is returned when no coupon exists for a code.
var ErrCouponNotFound = errors.New("coupon not found")

// UserCoupon is the redeemable artifact issued to a buyer, 1:1 with the
// transaction that created it. The expiry is copied from the deal at
// issuance and is not live-linked to later deal edits.
type UserCoupon struct {
	ID              string
	UserEmail       string
	DealID          string
	TransactionID   string
	CouponCode      string
	AmountPaid      decimal.Decimal
	RedemptionValue decimal.Decimal
	PurchaseDate    time.Time
	ExpiryDate      time.Time
	PointsEarned    int64
	IsRedeemed      bool
	RedemptionDate  *time.Time
}

// Redeemable reports whether the coupon can still be redeemed at now.
// Expiry is exclusive of redemption: a coupon expiring exactly at now is
// no longer redeemable.
func (c *UserCoupon) Redeemable(now time.Time) bool {
	return !c.IsRedeemed && now.Before(c.ExpiryDate)
}

// CouponRepository defines persistence operations for issued coupons.
type CouponRepository interface {
	// Create issues a new coupon. Returns ErrCodeConflict when the coupon
	// code is already taken.
	Create(ctx context.Context, c *UserCoupon) error
	FindByCode(ctx context.Context, code string) (*UserCoupon, error)
	// ListByUser returns the user's coupons, newest purchase first.
	ListByUser(ctx context.Context, email string) ([]UserCoupon, error)
}

// RedemptionStore applies the coupon and transaction redemption transition
// as one atomic claim. Two concurrent redemption attempts on the same
// coupon must resolve to exactly one winner.
type RedemptionStore interface {
	// MarkRedeemed conditionally flips the coupon to redeemed and moves its
	// transaction to the redeemed status, both together. It returns false
	// without error when the coupon was already claimed.
	MarkRedeemed(ctx context.Context, couponID, transactionID string, at time.Time) (bool, error)
}
