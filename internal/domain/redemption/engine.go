// Package redemption performs the one-time transition of an issued coupon
// to its redeemed state. It moves no money; it only validates and flips
// status, atomically, on the coupon and its transaction together.
package redemption

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dealpass/settlement-service/internal/domain/ledger"
	"github.com/dealpass/settlement-service/internal/events"
	"github.com/dealpass/settlement-service/internal/metrics"
)

var (
	// ErrForbidden is returned when the redeeming business does not own the
	// coupon's transaction.
	ErrForbidden = errors.New("coupon belongs to a different business")
	// ErrExpired is returned when the coupon's expiry has passed. Expiry is
	// exclusive of redemption: a coupon expiring exactly now is expired.
	ErrExpired = errors.New("coupon has expired")
)

// AlreadyRedeemedError reports a coupon that was already used, including the
// original redemption time for the receipt message.
type AlreadyRedeemedError struct {
	RedeemedAt time.Time
}

func (e *AlreadyRedeemedError) Error() string {
	return fmt.Sprintf("coupon already redeemed on %s", e.RedeemedAt.Format("02/01/2006"))
}

// Config wires an Engine. Coupons, Transactions, and Claims are required;
// Events and Metrics are optional.
type Config struct {
	Coupons      ledger.CouponRepository
	Transactions ledger.TransactionRepository
	Claims       ledger.RedemptionStore
	Events       events.Publisher
	Metrics      *metrics.Set
}

// Engine validates and applies coupon redemptions.
type Engine struct {
	coupons      ledger.CouponRepository
	transactions ledger.TransactionRepository
	claims       ledger.RedemptionStore
	events       events.Publisher
	metrics      *metrics.Set
	now          func() time.Time
}

// NewEngine creates a redemption Engine from the given configuration.
func NewEngine(cfg Config) *Engine {
	ev := cfg.Events
	if ev == nil {
		ev = events.Nop{}
	}
	return &Engine{
		coupons:      cfg.Coupons,
		transactions: cfg.Transactions,
		claims:       cfg.Claims,
		events:       ev,
		metrics:      cfg.Metrics,
		now:          time.Now,
	}
}

// Redeem validates ownership, redemption state, and expiry for the coupon
// code, then claims it atomically. Exactly one of two concurrent attempts
// on the same code succeeds; the loser observes *AlreadyRedeemedError.
// On success the updated coupon is returned for receipt display.
func (e *Engine) Redeem(ctx context.Context, couponCode, businessOwner string) (*ledger.UserCoupon, error) {
	code := strings.TrimSpace(couponCode)

	cpn, err := e.coupons.FindByCode(ctx, code)
	if err != nil {
		e.observe(err)
		return nil, errors.Wrap(err, "find coupon")
	}

	txn, err := e.transactions.FindByID(ctx, cpn.TransactionID)
	if err != nil {
		e.observe(err)
		return nil, errors.Wrap(err, "find transaction")
	}
	if txn.BusinessOwner != businessOwner {
		e.observe(ErrForbidden)
		return nil, ErrForbidden
	}

	if cpn.IsRedeemed {
		err := &AlreadyRedeemedError{RedeemedAt: redeemedAt(cpn)}
		e.observe(err)
		return nil, err
	}

	now := e.now()
	if !now.Before(cpn.ExpiryDate) {
		e.observe(ErrExpired)
		return nil, ErrExpired
	}

	claimed, err := e.claims.MarkRedeemed(ctx, cpn.ID, txn.ID, now)
	if err != nil {
		e.observe(err)
		return nil, errors.Wrap(err, "mark redeemed")
	}
	if !claimed {
		// Lost the race to a concurrent redemption. Re-read the coupon so
		// the error carries the winner's timestamp.
		if fresh, ferr := e.coupons.FindByCode(ctx, code); ferr == nil {
			cpn = fresh
		}
		err := &AlreadyRedeemedError{RedeemedAt: redeemedAt(cpn)}
		e.observe(err)
		return nil, err
	}

	cpn.IsRedeemed = true
	cpn.RedemptionDate = &now

	e.metrics.ObserveRedemption("redeemed")
	if err := e.events.CouponRedeemed(ctx, events.RedemptionEvent{
		CouponCode:    cpn.CouponCode,
		TransactionID: txn.ID,
		BusinessOwner: businessOwner,
		RedeemedAt:    now,
	}); err != nil {
		zctx.From(ctx).Warn("publish redemption event",
			zap.String("coupon_code", cpn.CouponCode), zap.Error(err))
	}

	return cpn, nil
}

func redeemedAt(c *ledger.UserCoupon) time.Time {
	if c.RedemptionDate != nil {
		return *c.RedemptionDate
	}
	return time.Time{}
}

// observe maps an error to its redemption outcome label.
func (e *Engine) observe(err error) {
	var already *AlreadyRedeemedError
	switch {
	case errors.Is(err, ledger.ErrCouponNotFound), errors.Is(err, ledger.ErrTransactionNotFound):
		e.metrics.ObserveRedemption("not_found")
	case errors.Is(err, ErrForbidden):
		e.metrics.ObserveRedemption("forbidden")
	case errors.As(err, &already):
		e.metrics.ObserveRedemption("already_redeemed")
	case errors.Is(err, ErrExpired):
		e.metrics.ObserveRedemption("expired")
	default:
		e.metrics.ObserveRedemption("error")
	}
}
