package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/dealpass/settlement-service/internal/domain/ledger"
)

const (
	insertTransactionSQL = `INSERT INTO transactions (
		id, deal_id, user_email, business_owner,
		amount_paid, commission_rate, commission_amount, business_earnings,
		points_earned, payment_method, coupon_code, redemption_status,
		transaction_date, redemption_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	getTransactionByIDSQL = `SELECT id, deal_id, user_email, business_owner,
		amount_paid, commission_rate, commission_amount, business_earnings,
		points_earned, payment_method, coupon_code, redemption_status,
		transaction_date, redemption_date
		FROM transactions WHERE id = $1`

	listTransactionsByOwnerSQL = `SELECT id, deal_id, user_email, business_owner,
		amount_paid, commission_rate, commission_amount, business_earnings,
		points_earned, payment_method, coupon_code, redemption_status,
		transaction_date, redemption_date
		FROM transactions
		WHERE business_owner = $1
		ORDER BY transaction_date DESC
		LIMIT $2`
)

var _ ledger.TransactionRepository = (*TransactionRepository)(nil)

// TransactionRepository implements ledger.TransactionRepository backed by
// PostgreSQL.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository returns a TransactionRepository using the given
// connection.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create persists a new transaction. Returns ledger.ErrCodeConflict when the
// coupon code is already taken by an earlier transaction.
func (r *TransactionRepository) Create(ctx context.Context, t *ledger.Transaction) error {
	_, err := r.db.Exec(ctx, insertTransactionSQL,
		t.ID, t.DealID, t.UserEmail, t.BusinessOwner,
		t.AmountPaid, t.CommissionRate, t.CommissionAmount, t.BusinessEarnings,
		t.PointsEarned, t.PaymentMethod, t.CouponCode, string(t.RedemptionStatus),
		t.TransactionDate, t.RedemptionDate,
	)
	if err != nil {
		if isUniqueViolation(err, "transactions_coupon_code_key") {
			return ledger.ErrCodeConflict
		}
		return fmt.Errorf("creating transaction %q: %w", t.ID, err)
	}
	return nil
}

// FindByID looks up a transaction by its identifier. Returns
// ledger.ErrTransactionNotFound when no such transaction exists.
func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*ledger.Transaction, error) {
	rows, err := r.db.Query(ctx, getTransactionByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding transaction %q: %w", id, err)
	}

	t, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("finding transaction %q: %w", id, err)
	}
	return &t, nil
}

// ListByBusinessOwner returns the owner's most recent transactions, newest
// first, capped at limit.
func (r *TransactionRepository) ListByBusinessOwner(ctx context.Context, owner string, limit int) ([]ledger.Transaction, error) {
	rows, err := r.db.Query(ctx, listTransactionsByOwnerSQL, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for %q: %w", owner, err)
	}

	txns, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for %q: %w", owner, err)
	}
	return txns, nil
}

func scanTransaction(row pgx.CollectableRow) (ledger.Transaction, error) {
	var (
		t      ledger.Transaction
		status string
	)
	err := row.Scan(
		&t.ID, &t.DealID, &t.UserEmail, &t.BusinessOwner,
		&t.AmountPaid, &t.CommissionRate, &t.CommissionAmount, &t.BusinessEarnings,
		&t.PointsEarned, &t.PaymentMethod, &t.CouponCode, &status,
		&t.TransactionDate, &t.RedemptionDate,
	)
	t.RedemptionStatus = ledger.RedemptionStatus(status)
	return t, err
}
