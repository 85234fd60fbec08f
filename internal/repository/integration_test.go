//go:build integration

package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/dealpass/settlement-service/internal/domain/balance"
	"github.com/dealpass/settlement-service/internal/domain/deal"
	"github.com/dealpass/settlement-service/internal/domain/ledger"
	"github.com/dealpass/settlement-service/internal/domain/settlement"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "settlement_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test:test@%s:%s/settlement_test?sslmode=disable", host, port.Port())
}

func insertDeal(t *testing.T, db DBTX, d *deal.Deal) {
	t.Helper()
	_, err := db.Exec(context.Background(), `INSERT INTO deals (
		id, title, business_owner, coupon_type,
		original_price, discounted_price, discount_percentage,
		coupon_price, redemption_value, expiry_date, max_uses, current_uses, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.Title, d.BusinessOwner, string(d.CouponType),
		d.OriginalPrice, d.DiscountedPrice, d.DiscountPercentage,
		d.CouponPrice, d.RedemptionValue, d.ExpiryDate, d.MaxUses, d.CurrentUses, d.Active,
	)
	require.NoError(t, err)
}

func testTransaction(dealID, code string) *ledger.Transaction {
	return &ledger.Transaction{
		ID:               uuid.New().String(),
		DealID:           dealID,
		UserEmail:        "buyer@example.com",
		BusinessOwner:    "pizza@example.com",
		AmountPaid:       decimal.NewFromInt(75),
		CommissionRate:   decimal.NewFromFloat(0.15),
		CommissionAmount: decimal.RequireFromString("11.25"),
		BusinessEarnings: decimal.RequireFromString("63.75"),
		PointsEarned:     75,
		PaymentMethod:    "credit_card",
		CouponCode:       code,
		RedemptionStatus: ledger.StatusPending,
		TransactionDate:  time.Now().UTC(),
	}
}

func testCoupon(t *ledger.Transaction) *ledger.UserCoupon {
	return &ledger.UserCoupon{
		ID:              uuid.New().String(),
		UserEmail:       t.UserEmail,
		DealID:          t.DealID,
		TransactionID:   t.ID,
		CouponCode:      t.CouponCode,
		AmountPaid:      t.AmountPaid,
		RedemptionValue: t.AmountPaid,
		PurchaseDate:    t.TransactionDate,
		ExpiryDate:      time.Now().Add(24 * time.Hour).UTC(),
		PointsEarned:    t.PointsEarned,
	}
}

func TestRepositories(t *testing.T) {
	ctx := context.Background()

	pool, err := NewPool(ctx, startPostgres(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))

	deals := NewDealRepository(pool)
	transactions := NewTransactionRepository(pool)
	coupons := NewCouponRepository(pool)
	balances := NewBalanceRepository(pool)

	t.Run("deal round trip and atomic increment", func(t *testing.T) {
		insertDeal(t, pool, &deal.Deal{
			ID:              "deal-int-1",
			Title:           "25% off",
			BusinessOwner:   "pizza@example.com",
			CouponType:      deal.TypePercentageDiscount,
			OriginalPrice:   decimal.NewFromInt(100),
			DiscountedPrice: decimal.NewFromInt(75),
			ExpiryDate:      time.Now().Add(24 * time.Hour).UTC(),
			MaxUses:         10,
			Active:          true,
		})

		got, err := deals.GetByID(ctx, "deal-int-1")
		require.NoError(t, err)
		assert.True(t, got.DiscountedPrice.Equal(decimal.NewFromInt(75)))

		listed, err := deals.ListActive(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, listed)

		g := new(errgroup.Group)
		for range 5 {
			g.Go(func() error { return deals.IncrementUses(ctx, "deal-int-1") })
		}
		require.NoError(t, g.Wait())

		got, err = deals.GetByID(ctx, "deal-int-1")
		require.NoError(t, err)
		assert.Equal(t, 5, got.CurrentUses)

		_, err = deals.GetByID(ctx, "missing")
		require.ErrorIs(t, err, deal.ErrNotFound)
	})

	t.Run("transaction create and coupon code conflict", func(t *testing.T) {
		txn := testTransaction("deal-int-1", "DPCONFLICT01")
		require.NoError(t, transactions.Create(ctx, txn))

		dup := testTransaction("deal-int-1", "DPCONFLICT01")
		require.ErrorIs(t, transactions.Create(ctx, dup), ledger.ErrCodeConflict)

		got, err := transactions.FindByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.True(t, got.CommissionAmount.Equal(decimal.RequireFromString("11.25")))
		assert.Equal(t, ledger.StatusPending, got.RedemptionStatus)
	})

	t.Run("balance apply is additive", func(t *testing.T) {
		owner := "balances@example.com"
		delta := balance.Delta{
			Earnings:   decimal.RequireFromString("63.75"),
			Commission: decimal.RequireFromString("11.25"),
		}
		require.NoError(t, balances.Apply(ctx, owner, delta))
		require.NoError(t, balances.Apply(ctx, owner, delta))

		got, err := balances.FindByOwner(ctx, owner)
		require.NoError(t, err)
		assert.True(t, got.TotalEarnings.Equal(decimal.RequireFromString("127.50")))
		assert.True(t, got.TotalCommissionPaid.Equal(decimal.RequireFromString("22.50")))
		assert.Equal(t, int64(2), got.TotalTransactions)
	})

	t.Run("redemption claim has exactly one winner", func(t *testing.T) {
		txn := testTransaction("deal-int-1", "DPCLAIMME01")
		require.NoError(t, transactions.Create(ctx, txn))
		cpn := testCoupon(txn)
		require.NoError(t, coupons.Create(ctx, cpn))

		claims := NewRedemptionStore(pool)
		var winners atomic.Int32
		g := new(errgroup.Group)
		for range 4 {
			g.Go(func() error {
				claimed, err := claims.MarkRedeemed(ctx, cpn.ID, txn.ID, time.Now().UTC())
				if err != nil {
					return err
				}
				if claimed {
					winners.Add(1)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.EqualValues(t, 1, winners.Load())

		got, err := transactions.FindByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusRedeemed, got.RedemptionStatus)
		require.NotNil(t, got.RedemptionDate)
	})

	t.Run("settlement tx rolls back on failure", func(t *testing.T) {
		runner := NewSettlementTx(pool)
		txn := testTransaction("deal-int-1", "DPROLLBACK01")

		err := runner.InTx(ctx, func(s settlement.Stores) error {
			if err := s.Transactions.Create(ctx, txn); err != nil {
				return err
			}
			return fmt.Errorf("boom")
		})
		require.Error(t, err)

		_, err = transactions.FindByID(ctx, txn.ID)
		require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	})
}
