// Package balance tracks the running earnings aggregate kept per business
// owner, updated on every settlement.
package balance

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a business has no balance row yet.
var ErrNotFound = errors.New("business balance not found")

// BusinessBalance is the cumulative earnings aggregate for one business
// owner. TotalEarnings equals the sum of business earnings across all of the
// owner's transactions; PendingBalance is the part not yet paid out.
type BusinessBalance struct {
	ID                  string
	BusinessOwner       string
	TotalEarnings       decimal.Decimal
	TotalCommissionPaid decimal.Decimal
	TotalTransactions   int64
	PendingBalance      decimal.Decimal
}

// Delta is one settlement's contribution to a business balance.
type Delta struct {
	Earnings   decimal.Decimal
	Commission decimal.Decimal
}

// Repository defines persistence operations for business balances.
type Repository interface {
	FindByOwner(ctx context.Context, owner string) (*BusinessBalance, error)
	// Apply adds the delta to the owner's aggregates and increments the
	// transaction count, creating the row lazily on the first settlement.
	// The update must be an atomic increment, never read-then-overwrite.
	Apply(ctx context.Context, owner string, d Delta) error
}
