package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/dealpass/settlement-service/internal/domain/deal"
)

const (
	getDealByIDSQL = `SELECT id, title, business_owner, coupon_type,
		original_price, discounted_price, discount_percentage,
		coupon_price, redemption_value,
		expiry_date, max_uses, current_uses, active, created_at
		FROM deals WHERE id = $1`

	listActiveDealsSQL = `SELECT id, title, business_owner, coupon_type,
		original_price, discounted_price, discount_percentage,
		coupon_price, redemption_value,
		expiry_date, max_uses, current_uses, active, created_at
		FROM deals
		WHERE active = TRUE AND expiry_date > now()
		ORDER BY created_at DESC`

	incrementDealUsesSQL = `UPDATE deals SET current_uses = current_uses + 1 WHERE id = $1`
)

var _ deal.Repository = (*DealRepository)(nil)

// DealRepository implements deal.Repository backed by PostgreSQL.
type DealRepository struct {
	db DBTX
}

// NewDealRepository returns a DealRepository using the given connection.
func NewDealRepository(db DBTX) *DealRepository {
	return &DealRepository{db: db}
}

// GetByID looks up a deal by its identifier. Returns deal.ErrNotFound when
// no such deal exists.
func (r *DealRepository) GetByID(ctx context.Context, id string) (*deal.Deal, error) {
	rows, err := r.db.Query(ctx, getDealByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding deal %q: %w", id, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDeal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, deal.ErrNotFound
		}
		return nil, fmt.Errorf("finding deal %q: %w", id, err)
	}
	return &d, nil
}

// ListActive returns all active, unexpired deals, newest first.
func (r *DealRepository) ListActive(ctx context.Context) ([]deal.Deal, error) {
	rows, err := r.db.Query(ctx, listActiveDealsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active deals: %w", err)
	}

	deals, err := pgx.CollectRows(rows, scanDeal)
	if err != nil {
		return nil, fmt.Errorf("listing active deals: %w", err)
	}
	return deals, nil
}

// IncrementUses atomically increments the use counter for the given deal.
func (r *DealRepository) IncrementUses(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, incrementDealUsesSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing uses for deal %q: %w", id, err)
	}
	return nil
}

func scanDeal(row pgx.CollectableRow) (deal.Deal, error) {
	var (
		d          deal.Deal
		couponType string
		maxUses    int32
		current    int32
	)
	err := row.Scan(
		&d.ID, &d.Title, &d.BusinessOwner, &couponType,
		&d.OriginalPrice, &d.DiscountedPrice, &d.DiscountPercentage,
		&d.CouponPrice, &d.RedemptionValue,
		&d.ExpiryDate, &maxUses, &current, &d.Active, &d.CreatedAt,
	)
	d.CouponType = deal.CouponType(couponType)
	d.MaxUses = int(maxUses)
	d.CurrentUses = int(current)
	return d, err
}
