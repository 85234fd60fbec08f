package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dealpass/settlement-service/internal/domain/balance"
	"github.com/dealpass/settlement-service/internal/domain/ledger"
)

// recentTransactionLimit caps the dashboard's recent-activity list.
const recentTransactionLimit = 10

type transactionSummary struct {
	TransactionID    string
	DealID           string
	UserEmail        string
	AmountPaid       string
	CommissionAmount string
	BusinessEarnings string
	CouponCode       string
	RedemptionStatus string
	TransactionDate  time.Time
}

func (p transactionSummary) encodeJSON(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("transaction_id")
	e.Str(p.TransactionID)
	e.FieldStart("deal_id")
	e.Str(p.DealID)
	e.FieldStart("user_email")
	e.Str(p.UserEmail)
	e.FieldStart("amount_paid")
	e.Str(p.AmountPaid)
	e.FieldStart("commission_amount")
	e.Str(p.CommissionAmount)
	e.FieldStart("business_earnings")
	e.Str(p.BusinessEarnings)
	e.FieldStart("coupon_code")
	e.Str(p.CouponCode)
	e.FieldStart("redemption_status")
	e.Str(p.RedemptionStatus)
	e.FieldStart("transaction_date")
	e.Str(p.TransactionDate.Format(time.RFC3339))
	e.ObjEnd()
}

type businessSummaryResponse struct {
	BusinessOwner       string
	TotalEarnings       string
	TotalCommissionPaid string
	TotalTransactions   int64
	PendingBalance      string
	Recent              []transactionSummary
}

func (p businessSummaryResponse) encodeJSON(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("business_owner")
	e.Str(p.BusinessOwner)
	e.FieldStart("total_earnings")
	e.Str(p.TotalEarnings)
	e.FieldStart("total_commission_paid")
	e.Str(p.TotalCommissionPaid)
	e.FieldStart("total_transactions")
	e.Int64(p.TotalTransactions)
	e.FieldStart("pending_balance")
	e.Str(p.PendingBalance)
	e.FieldStart("recent_transactions")
	e.ArrStart()
	for _, t := range p.Recent {
		t.encodeJSON(e)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// BusinessSummary returns the authenticated business's aggregate balance and
// its most recent transactions. A business with no settlements yet gets a
// zero-valued summary, not an error.
func (h *Handler) BusinessSummary(w http.ResponseWriter, r *http.Request) {
	info, ok := KeyFromContext(r.Context())
	if !ok || info.OwnerEmail == "" {
		writeError(w, http.StatusForbidden, "api key is not bound to a business")
		return
	}
	owner := info.OwnerEmail

	bal, err := h.balances.FindByOwner(r.Context(), owner)
	if err != nil {
		if !errors.Is(err, balance.ErrNotFound) {
			zctx.From(r.Context()).Error("load balance",
				zap.String("business_owner", owner), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "loading summary failed")
			return
		}
		bal = &balance.BusinessBalance{BusinessOwner: owner}
	}

	txns, err := h.transactions.ListByBusinessOwner(r.Context(), owner, recentTransactionLimit)
	if err != nil {
		zctx.From(r.Context()).Error("list recent transactions",
			zap.String("business_owner", owner), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "loading summary failed")
		return
	}

	recent := make([]transactionSummary, 0, len(txns))
	for i := range txns {
		recent = append(recent, toTransactionSummary(&txns[i]))
	}

	writeJSON(w, http.StatusOK, businessSummaryResponse{
		BusinessOwner:       owner,
		TotalEarnings:       bal.TotalEarnings.StringFixed(2),
		TotalCommissionPaid: bal.TotalCommissionPaid.StringFixed(2),
		TotalTransactions:   bal.TotalTransactions,
		PendingBalance:      bal.PendingBalance.StringFixed(2),
		Recent:              recent,
	})
}

func toTransactionSummary(t *ledger.Transaction) transactionSummary {
	return transactionSummary{
		TransactionID:    t.ID,
		DealID:           t.DealID,
		UserEmail:        t.UserEmail,
		AmountPaid:       t.AmountPaid.StringFixed(2),
		CommissionAmount: t.CommissionAmount.StringFixed(2),
		BusinessEarnings: t.BusinessEarnings.StringFixed(2),
		CouponCode:       t.CouponCode,
		RedemptionStatus: string(t.RedemptionStatus),
		TransactionDate:  t.TransactionDate,
	}
}
