package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dealpass/settlement-service/internal/domain/balance"
)

const (
	getBalanceByOwnerSQL = `SELECT id, business_owner, total_earnings,
		total_commission_paid, total_transactions, pending_balance
		FROM business_balances WHERE business_owner = $1`

	applyBalanceDeltaSQL = `INSERT INTO business_balances (
		id, business_owner, total_earnings, total_commission_paid,
		total_transactions, pending_balance, updated_at)
		VALUES ($1, $2, $3, $4, 1, $3, now())
		ON CONFLICT (business_owner) DO UPDATE SET
			total_earnings        = business_balances.total_earnings + EXCLUDED.total_earnings,
			total_commission_paid = business_balances.total_commission_paid + EXCLUDED.total_commission_paid,
			total_transactions    = business_balances.total_transactions + 1,
			pending_balance       = business_balances.pending_balance + EXCLUDED.pending_balance,
			updated_at            = now()`
)

var _ balance.Repository = (*BalanceRepository)(nil)

// BalanceRepository implements balance.Repository backed by PostgreSQL.
type BalanceRepository struct {
	db DBTX
}

// NewBalanceRepository returns a BalanceRepository using the given connection.
func NewBalanceRepository(db DBTX) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// FindByOwner looks up the aggregate balance for the given business owner.
// Returns balance.ErrNotFound when the owner has no settled transactions yet.
func (r *BalanceRepository) FindByOwner(ctx context.Context, owner string) (*balance.BusinessBalance, error) {
	rows, err := r.db.Query(ctx, getBalanceByOwnerSQL, owner)
	if err != nil {
		return nil, fmt.Errorf("finding balance for %q: %w", owner, err)
	}

	b, err := pgx.CollectExactlyOneRow(rows, scanBusinessBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, balance.ErrNotFound
		}
		return nil, fmt.Errorf("finding balance for %q: %w", owner, err)
	}
	return &b, nil
}

// Apply atomically adds one settlement's earnings and commission to the
// owner's aggregates, creating the balance row on first settlement. The
// increments happen inside the database so concurrent settlements for the
// same owner never lose updates.
func (r *BalanceRepository) Apply(ctx context.Context, owner string, d balance.Delta) error {
	_, err := r.db.Exec(ctx, applyBalanceDeltaSQL,
		uuid.New().String(), owner, d.Earnings, d.Commission,
	)
	if err != nil {
		return fmt.Errorf("applying balance delta for %q: %w", owner, err)
	}
	return nil
}

func scanBusinessBalance(row pgx.CollectableRow) (balance.BusinessBalance, error) {
	var b balance.BusinessBalance
	err := row.Scan(
		&b.ID, &b.BusinessOwner, &b.TotalEarnings,
		&b.TotalCommissionPaid, &b.TotalTransactions, &b.PendingBalance,
	)
	return b, err
}
