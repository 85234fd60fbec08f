// Package events publishes settlement lifecycle notifications for downstream
// consumers (payout processing, analytics, reconciliation alerting).
// Publishing is best effort: the engines log failures and continue.
package events

import (
	"context"
	"time"
)

// SettlementEvent describes one completed purchase settlement.
type SettlementEvent struct {
	TransactionID    string    `json:"transaction_id"`
	DealID           string    `json:"deal_id"`
	UserEmail        string    `json:"user_email"`
	BusinessOwner    string    `json:"business_owner"`
	CouponCode       string    `json:"coupon_code"`
	AmountPaid       string    `json:"amount_paid"`
	CommissionAmount string    `json:"commission_amount"`
	BusinessEarnings string    `json:"business_earnings"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// RedemptionEvent describes one coupon redemption.
type RedemptionEvent struct {
	CouponCode    string    `json:"coupon_code"`
	TransactionID string    `json:"transaction_id"`
	BusinessOwner string    `json:"business_owner"`
	RedeemedAt    time.Time `json:"redeemed_at"`
}

// ReconciliationEvent flags a settlement whose transaction was recorded but
// whose downstream writes failed. These require manual or automated repair.
type ReconciliationEvent struct {
	TransactionID string    `json:"transaction_id"`
	Step          string    `json:"step"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher emits settlement lifecycle events.
type Publisher interface {
	SettlementCompleted(ctx context.Context, ev SettlementEvent) error
	CouponRedeemed(ctx context.Context, ev RedemptionEvent) error
	ReconciliationNeeded(ctx context.Context, ev ReconciliationEvent) error
}

// Nop discards all events. Used when no broker is configured.
type Nop struct{}

func (Nop) SettlementCompleted(context.Context, SettlementEvent) error { return nil }
func (Nop) CouponRedeemed(context.Context, RedemptionEvent) error { return nil }
func (Nop) ReconciliationNeeded(context.Context, ReconciliationEvent) error { return nil }
