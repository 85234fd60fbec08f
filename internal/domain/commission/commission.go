// Package commission resolves the platform commission rate applied to a
// purchase: a business-specific override when configured, else the global
// default row, else a hardcoded fallback.
package commission

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FallbackRate applies when no commission configuration exists at all.
var FallbackRate = decimal.NewFromFloat(0.15)

// ErrNotFound is returned by a Repository when no setting row exists for the
// requested scope. It is expected during resolution and falls through to the
// next lookup step.
var ErrNotFound = errors.New("commission setting not found")

// Setting is one externally managed commission-rate configuration row.
// An empty BusinessOwner denotes the global default row.
type Setting struct {
	ID            string
	BusinessOwner string
	Rate          decimal.Decimal // fraction in [0,1)
}

// Repository provides read-only lookup of commission settings.
type Repository interface {
	// FindByBusinessOwner returns the setting scoped to the given owner;
	// an empty owner selects the global default row. Returns ErrNotFound
	// when no row exists for that scope.
	FindByBusinessOwner(ctx context.Context, owner string) (*Setting, error)
}

// Resolver resolves the effective commission rate for a business owner.
type Resolver struct {
	settings Repository
}

// NewResolver creates a Resolver backed by the given settings repository.
func NewResolver(settings Repository) *Resolver {
	return &Resolver{settings: settings}
}

// Rate looks up the business-specific override, then the global default,
// and finally falls back to FallbackRate. Absent configuration is not an
// error; only repository failures propagate.
func (r *Resolver) Rate(ctx context.Context, businessOwner string) (decimal.Decimal, error) {
	s, err := r.settings.FindByBusinessOwner(ctx, businessOwner)
	if err == nil {
		return s.Rate, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return decimal.Zero, errors.Wrap(err, "lookup business commission")
	}

	s, err = r.settings.FindByBusinessOwner(ctx, "")
	if err == nil {
		return s.Rate, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return decimal.Zero, errors.Wrap(err, "lookup global commission")
	}

	zctx.From(ctx).Info("no commission configuration, using fallback rate",
		zap.String("business_owner", businessOwner),
		zap.String("rate", FallbackRate.String()),
	)
	return FallbackRate, nil
}
