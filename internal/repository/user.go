package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dealpass/settlement-service/internal/domain/user"
)

const (
	getUserProfileSQL = `SELECT email, total_points, total_savings
		FROM user_profiles WHERE email = $1`

	addLoyaltySQL = `INSERT INTO user_profiles (email, total_points, total_savings, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (email) DO UPDATE SET
			total_points  = user_profiles.total_points + EXCLUDED.total_points,
			total_savings = user_profiles.total_savings + EXCLUDED.total_savings,
			updated_at    = now()`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	db DBTX
}

// NewUserRepository returns a UserRepository using the given connection.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Get looks up the loyalty profile for the given email. Returns
// user.ErrNotFound when the user has no profile yet.
func (r *UserRepository) Get(ctx context.Context, email string) (*user.Profile, error) {
	rows, err := r.db.Query(ctx, getUserProfileSQL, email)
	if err != nil {
		return nil, fmt.Errorf("finding user profile %q: %w", email, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanUserProfile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("finding user profile %q: %w", email, err)
	}
	return &p, nil
}

// AddLoyalty atomically adds points and savings to the user's running totals,
// creating the profile on first purchase.
func (r *UserRepository) AddLoyalty(ctx context.Context, email string, points int64, savings decimal.Decimal) error {
	_, err := r.db.Exec(ctx, addLoyaltySQL, email, points, savings)
	if err != nil {
		return fmt.Errorf("adding loyalty for %q: %w", email, err)
	}
	return nil
}

func scanUserProfile(row pgx.CollectableRow) (user.Profile, error) {
	var p user.Profile
	err := row.Scan(&p.Email, &p.TotalPoints, &p.TotalSavings)
	return p, err
}
