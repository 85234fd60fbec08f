// Package ledger holds the append-only purchase records: the transaction
// entry written at settlement and the user coupon issued alongside it.
package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrTransactionNotFound is returned when a transaction lookup misses.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrCodeConflict signals a coupon-code uniqueness violation on insert.
	// Codes are advisory-unique; callers regenerate the code and retry
	// rather than failing the purchase.
	ErrCodeConflict = errors.New("coupon code already exists")
)

// RedemptionStatus tracks whether a purchase has been redeemed at the
// business. The only permitted transition is pending -> redeemed, once.
type RedemptionStatus string

const (
	StatusPending  RedemptionStatus = "pending"
	StatusRedeemed RedemptionStatus = "redeemed"
)

// Transaction is an immutable ledger entry for one purchase event. Monetary
// fields never change after creation; only the redemption status and date
// may transition, exactly once. The amounts satisfy
// CommissionAmount + BusinessEarnings == AmountPaid at 2-decimal precision.
type Transaction struct {
	ID               string
	DealID           string
	UserEmail        string
	BusinessOwner    string
	AmountPaid       decimal.Decimal
	CommissionRate   decimal.Decimal
	CommissionAmount decimal.Decimal
	BusinessEarnings decimal.Decimal
	PointsEarned     int64
	PaymentMethod    string
	CouponCode       string
	RedemptionStatus RedemptionStatus
	TransactionDate  time.Time
	RedemptionDate   *time.Time
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	// Create appends a new transaction. Returns ErrCodeConflict when the
	// coupon code is already taken.
	Create(ctx context.Context, t *Transaction) error
	FindByID(ctx context.Context, id string) (*Transaction, error)
	// ListByBusinessOwner returns the owner's most recent transactions,
	// newest first, at most limit entries.
	ListByBusinessOwner(ctx context.Context, owner string, limit int) ([]Transaction, error)
}
