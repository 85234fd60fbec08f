package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealpass/settlement-service/internal/domain/ledger"
	"github.com/dealpass/settlement-service/internal/domain/settlement"
)

const (
	claimCouponSQL = `UPDATE user_coupons
		SET is_redeemed = TRUE, redemption_date = $2
		WHERE id = $1 AND is_redeemed = FALSE`

	markTransactionRedeemedSQL = `UPDATE transactions
		SET redemption_status = 'redeemed', redemption_date = $2
		WHERE id = $1`
)

var _ settlement.TxRunner = (*SettlementTx)(nil)

// SettlementTx runs settlement write sets inside a single database
// transaction, so either the whole settlement commits or none of it does.
type SettlementTx struct {
	pool *pgxpool.Pool
}

// NewSettlementTx returns a SettlementTx using the given pool.
func NewSettlementTx(pool *pgxpool.Pool) *SettlementTx {
	return &SettlementTx{pool: pool}
}

// InTx begins a transaction, builds transaction-scoped stores over it, and
// runs fn. Any error from fn rolls everything back and is returned as-is so
// callers can still match sentinel errors like ledger.ErrCodeConflict.
func (t *SettlementTx) InTx(ctx context.Context, fn func(settlement.Stores) error) error {
	return pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(settlement.Stores{
			Deals:        NewDealRepository(tx),
			Transactions: NewTransactionRepository(tx),
			Coupons:      NewCouponRepository(tx),
			Balances:     NewBalanceRepository(tx),
			Users:        NewUserRepository(tx),
		})
	})
}

var _ ledger.RedemptionStore = (*RedemptionStore)(nil)

// RedemptionStore performs the atomic one-time claim of a coupon. The claim
// is a conditional update on the unredeemed row, so of any number of
// concurrent attempts exactly one observes claimed = true.
type RedemptionStore struct {
	pool *pgxpool.Pool
}

// NewRedemptionStore returns a RedemptionStore using the given pool.
func NewRedemptionStore(pool *pgxpool.Pool) *RedemptionStore {
	return &RedemptionStore{pool: pool}
}

// MarkRedeemed flips the coupon to redeemed and mirrors the status onto its
// transaction, both inside one database transaction. Returns false without
// error when the coupon was already redeemed.
func (s *RedemptionStore) MarkRedeemed(ctx context.Context, couponID, transactionID string, at time.Time) (bool, error) {
	claimed := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, claimCouponSQL, couponID, at)
		if err != nil {
			return fmt.Errorf("claiming coupon %q: %w", couponID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, markTransactionRedeemedSQL, transactionID, at); err != nil {
			return fmt.Errorf("marking transaction %q redeemed: %w", transactionID, err)
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}
