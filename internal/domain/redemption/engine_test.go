package redemption

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dealpass/settlement-service/internal/domain/ledger"
)

// --- Mock implementations ---

type mockCouponRepo struct {
	mu     sync.Mutex
	byCode map[string]*ledger.UserCoupon
}

func (m *mockCouponRepo) Create(_ context.Context, _ *ledger.UserCoupon) error { return nil }

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*ledger.UserCoupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byCode[code]
	if !ok {
		return nil, ledger.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCouponRepo) ListByUser(_ context.Context, _ string) ([]ledger.UserCoupon, error) {
	return nil, nil
}

type mockTransactionRepo struct {
	byID map[string]*ledger.Transaction
}

func (m *mockTransactionRepo) Create(_ context.Context, _ *ledger.Transaction) error { return nil }

func (m *mockTransactionRepo) FindByID(_ context.Context, id string) (*ledger.Transaction, error) {
	t, ok := m.byID[id]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	return t, nil
}

func (m *mockTransactionRepo) ListByBusinessOwner(_ context.Context, _ string, _ int) ([]ledger.Transaction, error) {
	return nil, nil
}

// mockClaims implements the atomic one-winner claim over the coupon map.
type mockClaims struct {
	coupons *mockCouponRepo
	err     error
}

func (m *mockClaims) MarkRedeemed(_ context.Context, couponID, _ string, at time.Time) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.coupons.mu.Lock()
	defer m.coupons.mu.Unlock()
	for _, c := range m.coupons.byCode {
		if c.ID != couponID {
			continue
		}
		if c.IsRedeemed {
			return false, nil
		}
		c.IsRedeemed = true
		redeemedAt := at
		c.RedemptionDate = &redeemedAt
		return true, nil
	}
	return false, nil
}

// --- Helpers ---

const (
	ownerEmail = "pizza@example.com"
	otherOwner = "burger@example.com"
)

func newFixture(expiry time.Time) (*Engine, *mockCouponRepo) {
	coupons := &mockCouponRepo{byCode: map[string]*ledger.UserCoupon{
		"DPABC123XYZ999": {
			ID:            "cpn-1",
			UserEmail:     "buyer@example.com",
			DealID:        "deal-1",
			TransactionID: "txn-1",
			CouponCode:    "DPABC123XYZ999",
			ExpiryDate:    expiry,
		},
	}}
	transactions := &mockTransactionRepo{byID: map[string]*ledger.Transaction{
		"txn-1": {ID: "txn-1", BusinessOwner: ownerEmail},
	}}
	e := NewEngine(Config{
		Coupons:      coupons,
		Transactions: transactions,
		Claims:       &mockClaims{coupons: coupons},
	})
	return e, coupons
}

// --- Tests ---

func TestRedeem_Success(t *testing.T) {
	e, coupons := newFixture(time.Now().Add(24 * time.Hour))

	cpn, err := e.Redeem(context.Background(), "DPABC123XYZ999", ownerEmail)
	require.NoError(t, err)
	assert.True(t, cpn.IsRedeemed)
	require.NotNil(t, cpn.RedemptionDate)

	// The store observed the claim.
	stored := coupons.byCode["DPABC123XYZ999"]
	assert.True(t, stored.IsRedeemed)
}

func TestRedeem_TrimsWhitespace(t *testing.T) {
	e, _ := newFixture(time.Now().Add(24 * time.Hour))

	_, err := e.Redeem(context.Background(), "  DPABC123XYZ999  ", ownerEmail)
	require.NoError(t, err)
}

func TestRedeem_UnknownCode(t *testing.T) {
	e, _ := newFixture(time.Now().Add(24 * time.Hour))

	_, err := e.Redeem(context.Background(), "DPNOPE", ownerEmail)
	require.ErrorIs(t, err, ledger.ErrCouponNotFound)
}

func TestRedeem_WrongBusiness(t *testing.T) {
	e, coupons := newFixture(time.Now().Add(24 * time.Hour))

	_, err := e.Redeem(context.Background(), "DPABC123XYZ999", otherOwner)
	require.ErrorIs(t, err, ErrForbidden)
	assert.False(t, coupons.byCode["DPABC123XYZ999"].IsRedeemed)
}

func TestRedeem_SecondAttemptConflicts(t *testing.T) {
	e, _ := newFixture(time.Now().Add(24 * time.Hour))

	_, err := e.Redeem(context.Background(), "DPABC123XYZ999", ownerEmail)
	require.NoError(t, err)

	_, err = e.Redeem(context.Background(), "DPABC123XYZ999", ownerEmail)
	var already *AlreadyRedeemedError
	require.ErrorAs(t, err, &already)
	assert.False(t, already.RedeemedAt.IsZero())
	assert.Contains(t, already.Error(), "already redeemed on")
}

func TestRedeem_ExpiredCoupon(t *testing.T) {
	e, _ := newFixture(time.Now().Add(-time.Minute))

	_, err := e.Redeem(context.Background(), "DPABC123XYZ999", ownerEmail)
	require.ErrorIs(t, err, ErrExpired)
}

func TestRedeem_ExpiryInstantIsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e, _ := newFixture(now)
	e.now = func() time.Time { return now }

	_, err := e.Redeem(context.Background(), "DPABC123XYZ999", ownerEmail)
	require.ErrorIs(t, err, ErrExpired)
}

func TestRedeem_ConcurrentAttemptsOneWinner(t *testing.T) {
	e, _ := newFixture(time.Now().Add(24 * time.Hour))

	var (
		mu      sync.Mutex
		wins    int
		already int
	)
	g := new(errgroup.Group)
	for range 2 {
		g.Go(func() error {
			_, err := e.Redeem(context.Background(), "DPABC123XYZ999", ownerEmail)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			default:
				var a *AlreadyRedeemedError
				if assert.ErrorAs(t, err, &a) {
					already++
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, already)
}
