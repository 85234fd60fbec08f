// Package user exposes the loyalty aggregates kept on the buyer profile.
// Account management itself belongs to the surrounding platform; settlement
// only ever adds to these counters.
package user

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no profile exists for an e-mail address.
var ErrNotFound = errors.New("user profile not found")

// Profile carries the buyer-facing incentive aggregates mutated by
// settlement: 1 loyalty point per whole currency unit paid, plus the
// cumulative monetary savings across purchases.
type Profile struct {
	Email        string
	TotalPoints  int64
	TotalSavings decimal.Decimal
}

// Repository defines the loyalty operations settlement needs.
type Repository interface {
	Get(ctx context.Context, email string) (*Profile, error)
	// AddLoyalty adds points and savings to the profile's aggregates,
	// creating the profile row if absent. Updates are additive and atomic;
	// settlement never decreases either counter.
	AddLoyalty(ctx context.Context, email string, points int64, savings decimal.Decimal) error
}
