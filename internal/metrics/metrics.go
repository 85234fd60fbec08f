// Package metrics defines the Prometheus instrumentation for the settlement
// and redemption engines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set holds the engine-level metric collectors. A nil *Set is valid and
// records nothing, so engines can run uninstrumented in tests.
type Set struct {
	settlementsTotal       *prometheus.CounterVec
	settlementAmountTotal  *prometheus.CounterVec
	commissionAmountTotal  prometheus.Counter
	redemptionsTotal       *prometheus.CounterVec
	reconciliationFailures prometheus.Counter
}

// New registers the engine metrics with the given registerer.
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		settlementsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Completed purchase settlements by deal coupon type.",
		}, []string{"coupon_type"}),
		settlementAmountTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_amount_total",
			Help: "Total amount paid across settlements by deal coupon type.",
		}, []string{"coupon_type"}),
		commissionAmountTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "commission_amount_total",
			Help: "Total platform commission collected.",
		}),
		redemptionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "redemptions_total",
			Help: "Coupon redemption attempts by outcome.",
		}, []string{"result"}),
		reconciliationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_reconciliation_failures_total",
			Help: "Settlements that recorded a transaction but failed a downstream write.",
		}),
	}
}

// ObserveSettlement records one completed settlement.
func (s *Set) ObserveSettlement(couponType string, amountPaid, commission float64) {
	if s == nil {
		return
	}
	s.settlementsTotal.WithLabelValues(couponType).Inc()
	s.settlementAmountTotal.WithLabelValues(couponType).Add(amountPaid)
	s.commissionAmountTotal.Add(commission)
}

// ObserveRedemption records one redemption attempt outcome
// (redeemed, not_found, forbidden, already_redeemed, expired, error).
func (s *Set) ObserveRedemption(result string) {
	if s == nil {
		return
	}
	s.redemptionsTotal.WithLabelValues(result).Inc()
}

// ObserveReconciliationFailure records a partial settlement.
func (s *Set) ObserveReconciliationFailure() {
	if s == nil {
		return
	}
	s.reconciliationFailures.Inc()
}
