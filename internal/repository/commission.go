package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/dealpass/settlement-service/internal/domain/commission"
)

const (
	getBusinessCommissionSQL = `SELECT id, business_owner, commission_rate
		FROM commission_settings WHERE business_owner = $1`

	getGlobalCommissionSQL = `SELECT id, business_owner, commission_rate
		FROM commission_settings WHERE business_owner IS NULL`
)

var _ commission.Repository = (*CommissionRepository)(nil)

// CommissionRepository implements commission.Repository backed by PostgreSQL.
type CommissionRepository struct {
	db DBTX
}

// NewCommissionRepository returns a CommissionRepository using the given
// connection.
func NewCommissionRepository(db DBTX) *CommissionRepository {
	return &CommissionRepository{db: db}
}

// FindByBusinessOwner looks up the commission setting for the given business
// owner; an empty owner selects the global setting. Returns
// commission.ErrNotFound when no matching row exists.
func (r *CommissionRepository) FindByBusinessOwner(ctx context.Context, owner string) (*commission.Setting, error) {
	query, args := getBusinessCommissionSQL, []any{owner}
	if owner == "" {
		query, args = getGlobalCommissionSQL, nil
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding commission setting for %q: %w", owner, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanCommissionSetting)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, commission.ErrNotFound
		}
		return nil, fmt.Errorf("finding commission setting for %q: %w", owner, err)
	}
	return &s, nil
}

func scanCommissionSetting(row pgx.CollectableRow) (commission.Setting, error) {
	var (
		s     commission.Setting
		owner *string
	)
	err := row.Scan(&s.ID, &owner, &s.Rate)
	if owner != nil {
		s.BusinessOwner = *owner
	}
	return s, err
}
