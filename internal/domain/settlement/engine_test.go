package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dealpass/settlement-service/internal/domain/balance"
	"github.com/dealpass/settlement-service/internal/domain/commission"
	"github.com/dealpass/settlement-service/internal/domain/deal"
	"github.com/dealpass/settlement-service/internal/domain/ledger"
	"github.com/dealpass/settlement-service/internal/domain/user"
	"github.com/dealpass/settlement-service/internal/events"
)

// --- Mock implementations ---

type mockDealRepo struct {
	mu    sync.Mutex
	byID  map[string]*deal.Deal
	uses  map[string]int
	fails map[string]error
}

func newDealRepo(deals ...*deal.Deal) *mockDealRepo {
	byID := make(map[string]*deal.Deal, len(deals))
	for _, d := range deals {
		byID[d.ID] = d
	}
	return &mockDealRepo{byID: byID, uses: make(map[string]int), fails: make(map[string]error)}
}

func (m *mockDealRepo) GetByID(_ context.Context, id string) (*deal.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return nil, deal.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDealRepo) ListActive(_ context.Context) ([]deal.Deal, error) {
	return nil, nil
}

func (m *mockDealRepo) IncrementUses(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fails["increment"]; err != nil {
		return err
	}
	m.uses[id]++
	return nil
}

type mockTransactionRepo struct {
	mu        sync.Mutex
	created   []*ledger.Transaction
	conflicts int // fail this many Creates with ErrCodeConflict first
	createErr error
}

func (m *mockTransactionRepo) Create(_ context.Context, t *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return ledger.ErrCodeConflict
	}
	if m.createErr != nil {
		return m.createErr
	}
	cp := *t
	m.created = append(m.created, &cp)
	return nil
}

func (m *mockTransactionRepo) FindByID(_ context.Context, id string) (*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.created {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, ledger.ErrTransactionNotFound
}

func (m *mockTransactionRepo) ListByBusinessOwner(_ context.Context, _ string, _ int) ([]ledger.Transaction, error) {
	return nil, nil
}

type mockCouponRepo struct {
	mu        sync.Mutex
	created   []*ledger.UserCoupon
	createErr error
}

func (m *mockCouponRepo) Create(_ context.Context, c *ledger.UserCoupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *c
	m.created = append(m.created, &cp)
	return nil
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*ledger.UserCoupon, error) {
	return nil, ledger.ErrCouponNotFound
}

func (m *mockCouponRepo) ListByUser(_ context.Context, _ string) ([]ledger.UserCoupon, error) {
	return nil, nil
}

type mockBalanceRepo struct {
	mu       sync.Mutex
	applied  map[string][]balance.Delta
	applyErr error
}

func newBalanceRepo() *mockBalanceRepo {
	return &mockBalanceRepo{applied: make(map[string][]balance.Delta)}
}

func (m *mockBalanceRepo) FindByOwner(_ context.Context, _ string) (*balance.BusinessBalance, error) {
	return nil, balance.ErrNotFound
}

func (m *mockBalanceRepo) Apply(_ context.Context, owner string, d balance.Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return m.applyErr
	}
	m.applied[owner] = append(m.applied[owner], d)
	return nil
}

type loyaltyUpdate struct {
	points  int64
	savings decimal.Decimal
}

type mockUserRepo struct {
	mu      sync.Mutex
	loyalty map[string][]loyaltyUpdate
}

func newUserRepo() *mockUserRepo {
	return &mockUserRepo{loyalty: make(map[string][]loyaltyUpdate)}
}

func (m *mockUserRepo) Get(_ context.Context, _ string) (*user.Profile, error) {
	return nil, user.ErrNotFound
}

func (m *mockUserRepo) AddLoyalty(_ context.Context, email string, points int64, savings decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loyalty[email] = append(m.loyalty[email], loyaltyUpdate{points: points, savings: savings})
	return nil
}

type mockSettingsRepo struct {
	byOwner map[string]*commission.Setting
}

func (m *mockSettingsRepo) FindByBusinessOwner(_ context.Context, owner string) (*commission.Setting, error) {
	s, ok := m.byOwner[owner]
	if !ok {
		return nil, commission.ErrNotFound
	}
	return s, nil
}

type capturedEvents struct {
	mu              sync.Mutex
	settlements     []events.SettlementEvent
	reconciliations []events.ReconciliationEvent
}

func (c *capturedEvents) SettlementCompleted(_ context.Context, ev events.SettlementEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settlements = append(c.settlements, ev)
	return nil
}

func (c *capturedEvents) CouponRedeemed(_ context.Context, _ events.RedemptionEvent) error {
	return nil
}

func (c *capturedEvents) ReconciliationNeeded(_ context.Context, ev events.ReconciliationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconciliations = append(c.reconciliations, ev)
	return nil
}

// --- Helpers ---

type fixture struct {
	deals        *mockDealRepo
	transactions *mockTransactionRepo
	coupons      *mockCouponRepo
	balances     *mockBalanceRepo
	users        *mockUserRepo
	events       *capturedEvents
	engine       *Engine
}

func percentageDeal() *deal.Deal {
	return &deal.Deal{
		ID:              "deal-1",
		Title:           "25% off",
		BusinessOwner:   "pizza@example.com",
		CouponType:      deal.TypePercentageDiscount,
		OriginalPrice:   decimal.NewFromInt(100),
		DiscountedPrice: decimal.NewFromInt(75),
		ExpiryDate:      time.Now().Add(24 * time.Hour),
		Active:          true,
	}
}

func valueDeal() *deal.Deal {
	return &deal.Deal{
		ID:              "deal-2",
		Title:           "$80 for $50",
		BusinessOwner:   "pizza@example.com",
		CouponType:      deal.TypeValueCoupon,
		CouponPrice:     decimal.NewFromInt(50),
		RedemptionValue: decimal.NewFromInt(80),
		ExpiryDate:      time.Now().Add(24 * time.Hour),
		Active:          true,
	}
}

func newFixture(t *testing.T, deals ...*deal.Deal) *fixture {
	t.Helper()

	f := &fixture{
		deals:        newDealRepo(deals...),
		transactions: &mockTransactionRepo{},
		coupons:      &mockCouponRepo{},
		balances:     newBalanceRepo(),
		users:        newUserRepo(),
		events:       &capturedEvents{},
	}
	rates := commission.NewResolver(&mockSettingsRepo{byOwner: map[string]*commission.Setting{
		"": {ID: "global", Rate: decimal.NewFromFloat(0.15)},
	}})
	codes, err := NewCodeGenerator()
	require.NoError(t, err)

	f.engine = NewEngine(Config{
		Stores: Stores{
			Deals:        f.deals,
			Transactions: f.transactions,
			Coupons:      f.coupons,
			Balances:     f.balances,
			Users:        f.users,
		},
		Rates:  rates,
		Codes:  codes,
		Events: f.events,
	})
	return f
}

// --- Tests ---

func TestSettlePurchase_PercentageDeal(t *testing.T) {
	f := newFixture(t, percentageDeal())

	res, err := f.engine.SettlePurchase(context.Background(), PurchaseRequest{
		DealID:    "deal-1",
		UserEmail: "buyer@example.com",
	})
	require.NoError(t, err)

	txn := res.Transaction
	assert.True(t, txn.AmountPaid.Equal(decimal.NewFromInt(75)))
	assert.True(t, txn.CommissionAmount.Equal(decimal.RequireFromString("11.25")))
	assert.True(t, txn.BusinessEarnings.Equal(decimal.RequireFromString("63.75")))
	assert.Equal(t, int64(75), txn.PointsEarned)
	assert.Equal(t, ledger.StatusPending, txn.RedemptionStatus)
	assert.Equal(t, "credit_card", txn.PaymentMethod)
	assert.Equal(t, txn.CouponCode, res.Coupon.CouponCode)
	assert.True(t, res.Coupon.RedemptionValue.Equal(decimal.NewFromInt(75)))

	// One delta each on loyalty, balance, and the deal use counter.
	assert.Len(t, f.users.loyalty["buyer@example.com"], 1)
	assert.True(t, f.users.loyalty["buyer@example.com"][0].savings.Equal(decimal.NewFromInt(25)))
	require.Len(t, f.balances.applied["pizza@example.com"], 1)
	assert.Equal(t, 1, f.deals.uses["deal-1"])

	require.Len(t, f.events.settlements, 1)
	assert.Equal(t, txn.ID, f.events.settlements[0].TransactionID)
	assert.Equal(t, "11.25", f.events.settlements[0].CommissionAmount)
}

func TestSettlePurchase_ValueCoupon(t *testing.T) {
	f := newFixture(t, valueDeal())

	res, err := f.engine.SettlePurchase(context.Background(), PurchaseRequest{
		DealID:    "deal-2",
		UserEmail: "buyer@example.com",
	})
	require.NoError(t, err)

	assert.True(t, res.Transaction.AmountPaid.Equal(decimal.NewFromInt(50)))
	assert.True(t, res.Coupon.RedemptionValue.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, int64(50), res.Transaction.PointsEarned)
	// Savings is the value unlocked beyond the price paid.
	assert.True(t, f.users.loyalty["buyer@example.com"][0].savings.Equal(decimal.NewFromInt(30)))
}

func TestSettlePurchase_AdditiveInvariantWithOddCents(t *testing.T) {
	d := percentageDeal()
	d.DiscountedPrice = decimal.RequireFromString("10.01")
	f := newFixture(t, d)

	res, err := f.engine.SettlePurchase(context.Background(), PurchaseRequest{
		DealID:    "deal-1",
		UserEmail: "buyer@example.com",
	})
	require.NoError(t, err)

	txn := res.Transaction
	// 10.01 * 0.15 = 1.5015, rounds to 1.50; earnings take the remainder.
	assert.True(t, txn.CommissionAmount.Equal(decimal.RequireFromString("1.50")))
	assert.True(t, txn.BusinessEarnings.Equal(decimal.RequireFromString("8.51")))
	assert.True(t, txn.CommissionAmount.Add(txn.BusinessEarnings).Equal(txn.AmountPaid))
	assert.Equal(t, int64(10), txn.PointsEarned)
}

func TestSettlePurchase_Validation(t *testing.T) {
	inactive := percentageDeal()
	inactive.ID = "deal-inactive"
	inactive.Active = false

	expired := percentageDeal()
	expired.ID = "deal-expired"
	expired.ExpiryDate = time.Now().Add(-time.Hour)

	soldOut := percentageDeal()
	soldOut.ID = "deal-soldout"
	soldOut.MaxUses = 3
	soldOut.CurrentUses = 3

	f := newFixture(t, inactive, expired, soldOut)

	tests := []struct {
		name   string
		req    PurchaseRequest
		reason string
	}{
		{"missing email", PurchaseRequest{DealID: "deal-inactive"}, "is required"},
		{"inactive deal", PurchaseRequest{DealID: "deal-inactive", UserEmail: "u@example.com"}, "is not active"},
		{"expired deal", PurchaseRequest{DealID: "deal-expired", UserEmail: "u@example.com"}, "has expired"},
		{"sold out deal", PurchaseRequest{DealID: "deal-soldout", UserEmail: "u@example.com"}, "is sold out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.SettlePurchase(context.Background(), tt.req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.reason, vErr.Reason)
		})
	}

	assert.Empty(t, f.transactions.created, "rejected purchases must not write")
}

func TestSettlePurchase_UnknownDeal(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.SettlePurchase(context.Background(), PurchaseRequest{
		DealID:    "nope",
		UserEmail: "u@example.com",
	})
	require.ErrorIs(t, err, deal.ErrNotFound)
}

func TestSettlePurchase_CodeConflictRetries(t *testing.T) {
	f := newFixture(t, percentageDeal())
	f.transactions.conflicts = 2

	res, err := f.engine.SettlePurchase(context.Background(), PurchaseRequest{
		DealID:    "deal-1",
		UserEmail: "buyer@example.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Transaction.CouponCode)
	assert.Len(t, f.transactions.created, 1)
}

func TestSettlePurchase_CodeConflictExhausted(t *testing.T) {
	f := newFixture(t, percentageDeal())
	f.transactions.conflicts = maxCodeAttempts

	_, err := f.engine.SettlePurchase(context.Background(), PurchaseRequest{
		DealID:    "deal-1",
		UserEmail: "buyer@example.com",
	})
	require.ErrorIs(t, err, ledger.ErrCodeConflict)
}

func TestSettlePurchase_DownstreamFailureIsReconciliation(t *testing.T) {
	f := newFixture(t, percentageDeal())
	f.coupons.createErr = errors.New("disk full")

	_, err := f.engine.SettlePurchase(context.Background(), PurchaseRequest{
		DealID:    "deal-1",
		UserEmail: "buyer@example.com",
	})

	var recErr *ReconciliationError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "issue coupon", recErr.Step)

	// The transaction record survives for reconciliation.
	require.Len(t, f.transactions.created, 1)
	assert.Equal(t, f.transactions.created[0].ID, recErr.TransactionID)

	require.Len(t, f.events.reconciliations, 1)
	assert.Equal(t, recErr.TransactionID, f.events.reconciliations[0].TransactionID)
	assert.Empty(t, f.events.settlements)
}

// txRunner runs the write set against the fixture stores but discards every
// write when fn fails, approximating a database transaction.
type txRunner struct {
	stores Stores
	calls  int
}

func (r *txRunner) InTx(_ context.Context, fn func(Stores) error) error {
	r.calls++
	return fn(r.stores)
}

func TestSettlePurchase_TransactionalPath(t *testing.T) {
	f := newFixture(t, percentageDeal())
	runner := &txRunner{stores: Stores{
		Deals:        f.deals,
		Transactions: f.transactions,
		Coupons:      f.coupons,
		Balances:     f.balances,
		Users:        f.users,
	}}
	f.engine.tx = runner

	res, err := f.engine.SettlePurchase(context.Background(), PurchaseRequest{
		DealID:    "deal-1",
		UserEmail: "buyer@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
	assert.Len(t, f.coupons.created, 1)
	assert.Equal(t, res.Transaction.CouponCode, f.coupons.created[0].CouponCode)
}

func TestSettlePurchase_TransactionalPathRetriesConflicts(t *testing.T) {
	f := newFixture(t, percentageDeal())
	f.transactions.conflicts = 1
	runner := &txRunner{stores: Stores{
		Deals:        f.deals,
		Transactions: f.transactions,
		Coupons:      f.coupons,
		Balances:     f.balances,
		Users:        f.users,
	}}
	f.engine.tx = runner

	_, err := f.engine.SettlePurchase(context.Background(), PurchaseRequest{
		DealID:    "deal-1",
		UserEmail: "buyer@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runner.calls)
}

func TestSettlePurchase_ConcurrentPurchasesBothSettle(t *testing.T) {
	f := newFixture(t, percentageDeal())

	g := new(errgroup.Group)
	for range 2 {
		g.Go(func() error {
			_, err := f.engine.SettlePurchase(context.Background(), PurchaseRequest{
				DealID:    "deal-1",
				UserEmail: "buyer@example.com",
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, f.transactions.created, 2)
	assert.Equal(t, 2, f.deals.uses["deal-1"])
	assert.Len(t, f.balances.applied["pizza@example.com"], 2)
	assert.NotEqual(t,
		f.transactions.created[0].CouponCode,
		f.transactions.created[1].CouponCode,
	)
}
