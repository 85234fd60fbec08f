package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/dealpass/settlement-service/internal/domain/ledger"
)

const (
	insertCouponSQL = `INSERT INTO user_coupons (
		id, user_email, deal_id, transaction_id, coupon_code,
		amount_paid, redemption_value, purchase_date, expiry_date,
		points_earned, is_redeemed, redemption_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getCouponByCodeSQL = `SELECT id, user_email, deal_id, transaction_id, coupon_code,
		amount_paid, redemption_value, purchase_date, expiry_date,
		points_earned, is_redeemed, redemption_date
		FROM user_coupons WHERE coupon_code = $1`

	listCouponsByUserSQL = `SELECT id, user_email, deal_id, transaction_id, coupon_code,
		amount_paid, redemption_value, purchase_date, expiry_date,
		points_earned, is_redeemed, redemption_date
		FROM user_coupons
		WHERE user_email = $1
		ORDER BY purchase_date DESC`
)

var _ ledger.CouponRepository = (*CouponRepository)(nil)

// CouponRepository implements ledger.CouponRepository backed by PostgreSQL.
type CouponRepository struct {
	db DBTX
}

// NewCouponRepository returns a CouponRepository using the given connection.
func NewCouponRepository(db DBTX) *CouponRepository {
	return &CouponRepository{db: db}
}

// Create persists a newly issued coupon. Returns ledger.ErrCodeConflict when
// the coupon code is already taken.
func (r *CouponRepository) Create(ctx context.Context, c *ledger.UserCoupon) error {
	_, err := r.db.Exec(ctx, insertCouponSQL,
		c.ID, c.UserEmail, c.DealID, c.TransactionID, c.CouponCode,
		c.AmountPaid, c.RedemptionValue, c.PurchaseDate, c.ExpiryDate,
		c.PointsEarned, c.IsRedeemed, c.RedemptionDate,
	)
	if err != nil {
		if isUniqueViolation(err, "user_coupons_coupon_code_key") {
			return ledger.ErrCodeConflict
		}
		return fmt.Errorf("creating coupon %q: %w", c.CouponCode, err)
	}
	return nil
}

// FindByCode looks up a coupon by its code. Returns ledger.ErrCouponNotFound
// when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*ledger.UserCoupon, error) {
	rows, err := r.db.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanUserCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// ListByUser returns all coupons purchased by the given user, newest first.
func (r *CouponRepository) ListByUser(ctx context.Context, userEmail string) ([]ledger.UserCoupon, error) {
	rows, err := r.db.Query(ctx, listCouponsByUserSQL, userEmail)
	if err != nil {
		return nil, fmt.Errorf("listing coupons for %q: %w", userEmail, err)
	}

	coupons, err := pgx.CollectRows(rows, scanUserCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons for %q: %w", userEmail, err)
	}
	return coupons, nil
}

func scanUserCoupon(row pgx.CollectableRow) (ledger.UserCoupon, error) {
	var c ledger.UserCoupon
	err := row.Scan(
		&c.ID, &c.UserEmail, &c.DealID, &c.TransactionID, &c.CouponCode,
		&c.AmountPaid, &c.RedemptionValue, &c.PurchaseDate, &c.ExpiryDate,
		&c.PointsEarned, &c.IsRedeemed, &c.RedemptionDate,
	)
	return c, err
}
