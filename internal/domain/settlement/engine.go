// Package settlement converts a paid-for deal into its derived records: the
// transaction ledger entry, the issued user coupon, the buyer's loyalty
// aggregates, the business balance, and the deal's use counter.
package settlement

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dealpass/settlement-service/internal/domain/balance"
	"github.com/dealpass/settlement-service/internal/domain/commission"
	"github.com/dealpass/settlement-service/internal/domain/deal"
	"github.com/dealpass/settlement-service/internal/domain/ledger"
	"github.com/dealpass/settlement-service/internal/domain/user"
	"github.com/dealpass/settlement-service/internal/events"
	"github.com/dealpass/settlement-service/internal/metrics"
)

// maxCodeAttempts bounds regeneration retries on coupon-code collisions.
const maxCodeAttempts = 3

// defaultPaymentMethod is recorded when the request does not name one.
const defaultPaymentMethod = "credit_card"

// Stores groups the persistence collaborators the engine writes to.
type Stores struct {
	Deals        deal.Repository
	Transactions ledger.TransactionRepository
	Coupons      ledger.CouponRepository
	Balances     balance.Repository
	Users        user.Repository
}

// TxRunner executes a settlement write set against transaction-scoped
// stores, committing all writes or none. When available it makes the whole
// settlement atomic; without it the transaction record is the durability
// boundary and later failures surface as *ReconciliationError.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Stores) error) error
}

// PurchaseRequest is the input to SettlePurchase. Payment capture has
// already succeeded by the time the engine runs.
type PurchaseRequest struct {
	DealID        string
	UserEmail     string
	PaymentMethod string
}

// Result holds the records produced by one settlement.
type Result struct {
	Transaction *ledger.Transaction
	Coupon      *ledger.UserCoupon
}

// Config wires an Engine. Stores, Rates, and Codes are required; Tx, Events,
// and Metrics are optional.
type Config struct {
	Stores  Stores
	Rates   *commission.Resolver
	Codes   *CodeGenerator
	Tx      TxRunner
	Events  events.Publisher
	Metrics *metrics.Set
}

// Engine performs purchase settlement.
type Engine struct {
	stores  Stores
	rates   *commission.Resolver
	codes   *CodeGenerator
	tx      TxRunner
	events  events.Publisher
	metrics *metrics.Set
	now     func() time.Time
}

// NewEngine creates a settlement Engine from the given configuration.
func NewEngine(cfg Config) *Engine {
	ev := cfg.Events
	if ev == nil {
		ev = events.Nop{}
	}
	return &Engine{
		stores:  cfg.Stores,
		rates:   cfg.Rates,
		codes:   cfg.Codes,
		tx:      cfg.Tx,
		events:  ev,
		metrics: cfg.Metrics,
		now:     time.Now,
	}
}

// SettlePurchase derives and persists all records for one paid purchase:
// the pending transaction, the issued coupon, the buyer's loyalty update,
// the business balance delta, and the deal use counter. With a TxRunner the
// writes commit together; otherwise a failure after the transaction was
// created returns *ReconciliationError so the recorded payment is never
// silently lost.
func (e *Engine) SettlePurchase(ctx context.Context, req PurchaseRequest) (*Result, error) {
	if req.UserEmail == "" {
		return nil, &ValidationError{Field: "user_email", Reason: "is required"}
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = defaultPaymentMethod
	}

	d, err := e.stores.Deals.GetByID(ctx, req.DealID)
	if err != nil {
		return nil, errors.Wrap(err, "load deal")
	}

	now := e.now()
	switch {
	case !d.Active:
		return nil, &ValidationError{Field: "deal", Reason: "is not active"}
	case d.Expired(now):
		return nil, &ValidationError{Field: "deal", Reason: "has expired"}
	case d.SoldOut():
		return nil, &ValidationError{Field: "deal", Reason: "is sold out"}
	}

	quote := deal.ResolvePrice(d)
	rate, err := e.rates.Rate(ctx, d.BusinessOwner)
	if err != nil {
		return nil, errors.Wrap(err, "resolve commission rate")
	}

	// Earnings are derived subtractively from the rounded commission so the
	// additive invariant commission + earnings == amount holds exactly.
	commissionAmount := quote.AmountPayable.Mul(rate).Round(2)
	businessEarnings := quote.AmountPayable.Sub(commissionAmount).Round(2)
	pointsEarned := quote.AmountPayable.Floor().IntPart()
	savings := d.Savings()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := e.codes.Generate()

		txn := &ledger.Transaction{
			ID:               uuid.New().String(),
			DealID:           d.ID,
			UserEmail:        req.UserEmail,
			BusinessOwner:    d.BusinessOwner,
			AmountPaid:       quote.AmountPayable,
			CommissionRate:   rate,
			CommissionAmount: commissionAmount,
			BusinessEarnings: businessEarnings,
			PointsEarned:     pointsEarned,
			PaymentMethod:    req.PaymentMethod,
			CouponCode:       code,
			RedemptionStatus: ledger.StatusPending,
			TransactionDate:  now,
		}
		cpn := &ledger.UserCoupon{
			ID:              uuid.New().String(),
			UserEmail:       req.UserEmail,
			DealID:          d.ID,
			TransactionID:   txn.ID,
			CouponCode:      code,
			AmountPaid:      quote.AmountPayable,
			RedemptionValue: quote.RedemptionValue,
			PurchaseDate:    now,
			ExpiryDate:      d.ExpiryDate,
			PointsEarned:    pointsEarned,
		}

		err := e.write(ctx, txn, cpn, savings)
		if errors.Is(err, ledger.ErrCodeConflict) {
			zctx.From(ctx).Warn("coupon code collision, regenerating",
				zap.String("coupon_code", code),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		e.metrics.ObserveSettlement(string(d.CouponType),
			quote.AmountPayable.InexactFloat64(), commissionAmount.InexactFloat64())
		e.publishSettled(ctx, txn)

		return &Result{Transaction: txn, Coupon: cpn}, nil
	}

	return nil, errors.Wrap(ledger.ErrCodeConflict, "generate coupon code")
}

// write persists the full settlement write set. The transactional path
// commits everything or nothing; the sequential path treats the transaction
// insert as the durability boundary.
func (e *Engine) write(ctx context.Context, txn *ledger.Transaction, cpn *ledger.UserCoupon, savings decimal.Decimal) error {
	if e.tx != nil {
		err := e.tx.InTx(ctx, func(s Stores) error {
			if err := s.Transactions.Create(ctx, txn); err != nil {
				return err
			}
			step, err := applyDownstream(ctx, s, txn, cpn, savings)
			if err != nil {
				return errors.Wrap(err, step)
			}
			return nil
		})
		if err != nil && !errors.Is(err, ledger.ErrCodeConflict) {
			return errors.Wrap(err, "settle purchase")
		}
		return err
	}

	if err := e.stores.Transactions.Create(ctx, txn); err != nil {
		if errors.Is(err, ledger.ErrCodeConflict) {
			return err
		}
		return errors.Wrap(err, "create transaction")
	}

	if step, err := applyDownstream(ctx, e.stores, txn, cpn, savings); err != nil {
		recErr := &ReconciliationError{TransactionID: txn.ID, Step: step, Err: err}
		e.metrics.ObserveReconciliationFailure()
		if pubErr := e.events.ReconciliationNeeded(ctx, events.ReconciliationEvent{
			TransactionID: txn.ID,
			Step:          step,
			Reason:        err.Error(),
			OccurredAt:    e.now(),
		}); pubErr != nil {
			zctx.From(ctx).Error("publish reconciliation event",
				zap.String("transaction_id", txn.ID), zap.Error(pubErr))
		}
		return recErr
	}
	return nil
}

// applyDownstream runs settlement steps 7-10: coupon issuance, loyalty
// update, balance delta, and the deal use counter. Returns the failing step
// name for reconciliation reporting.
func applyDownstream(ctx context.Context, s Stores, txn *ledger.Transaction, cpn *ledger.UserCoupon, savings decimal.Decimal) (string, error) {
	if err := s.Coupons.Create(ctx, cpn); err != nil {
		return "issue coupon", err
	}
	if err := s.Users.AddLoyalty(ctx, txn.UserEmail, txn.PointsEarned, savings); err != nil {
		return "update loyalty", err
	}
	if err := s.Balances.Apply(ctx, txn.BusinessOwner, balance.Delta{
		Earnings:   txn.BusinessEarnings,
		Commission: txn.CommissionAmount,
	}); err != nil {
		return "update business balance", err
	}
	if err := s.Deals.IncrementUses(ctx, txn.DealID); err != nil {
		return "increment deal uses", err
	}
	return "", nil
}

func (e *Engine) publishSettled(ctx context.Context, txn *ledger.Transaction) {
	ev := events.SettlementEvent{
		TransactionID:    txn.ID,
		DealID:           txn.DealID,
		UserEmail:        txn.UserEmail,
		BusinessOwner:    txn.BusinessOwner,
		CouponCode:       txn.CouponCode,
		AmountPaid:       txn.AmountPaid.StringFixed(2),
		CommissionAmount: txn.CommissionAmount.StringFixed(2),
		BusinessEarnings: txn.BusinessEarnings.StringFixed(2),
		OccurredAt:       txn.TransactionDate,
	}
	if err := e.events.SettlementCompleted(ctx, ev); err != nil {
		zctx.From(ctx).Warn("publish settlement event",
			zap.String("transaction_id", txn.ID), zap.Error(err))
	}
}
