package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dealpass/settlement-service/internal/domain/deal"
	"github.com/dealpass/settlement-service/internal/domain/settlement"
)

type purchaseRequest struct {
	DealID        string `json:"deal_id"`
	UserEmail     string `json:"user_email"`
	PaymentMethod string `json:"payment_method"`
}

type purchaseResponse struct {
	TransactionID    string
	CouponCode       string
	AmountPaid       string
	CommissionAmount string
	BusinessEarnings string
	PointsEarned     int64
	RedemptionValue  string
	ExpiryDate       time.Time
	PaymentMethod    string
	RedemptionStatus string
}

func (p purchaseResponse) encodeJSON(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("transaction_id")
	e.Str(p.TransactionID)
	e.FieldStart("coupon_code")
	e.Str(p.CouponCode)
	e.FieldStart("amount_paid")
	e.Str(p.AmountPaid)
	e.FieldStart("commission_amount")
	e.Str(p.CommissionAmount)
	e.FieldStart("business_earnings")
	e.Str(p.BusinessEarnings)
	e.FieldStart("points_earned")
	e.Int64(p.PointsEarned)
	e.FieldStart("redemption_value")
	e.Str(p.RedemptionValue)
	e.FieldStart("expiry_date")
	e.Str(p.ExpiryDate.Format(time.RFC3339))
	e.FieldStart("payment_method")
	e.Str(p.PaymentMethod)
	e.FieldStart("redemption_status")
	e.Str(p.RedemptionStatus)
	e.ObjEnd()
}

// CreatePurchase settles a paid purchase: it records the transaction, issues
// the coupon, and updates the loyalty and balance aggregates.
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DealID == "" {
		writeError(w, http.StatusBadRequest, "deal_id is required")
		return
	}

	res, err := h.settlements.SettlePurchase(r.Context(), settlement.PurchaseRequest{
		DealID:        req.DealID,
		UserEmail:     req.UserEmail,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.writePurchaseError(w, r, err)
		return
	}

	txn, cpn := res.Transaction, res.Coupon
	writeJSON(w, http.StatusCreated, purchaseResponse{
		TransactionID:    txn.ID,
		CouponCode:       txn.CouponCode,
		AmountPaid:       txn.AmountPaid.StringFixed(2),
		CommissionAmount: txn.CommissionAmount.StringFixed(2),
		BusinessEarnings: txn.BusinessEarnings.StringFixed(2),
		PointsEarned:     txn.PointsEarned,
		RedemptionValue:  cpn.RedemptionValue.StringFixed(2),
		ExpiryDate:       cpn.ExpiryDate,
		PaymentMethod:    txn.PaymentMethod,
		RedemptionStatus: string(txn.RedemptionStatus),
	})
}

type reconciliationResponse struct {
	Message       string
	TransactionID string
}

func (p reconciliationResponse) encodeJSON(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("error")
	e.Str(p.Message)
	e.FieldStart("transaction_id")
	e.Str(p.TransactionID)
	e.ObjEnd()
}

// writePurchaseError maps settlement failures to status codes. A recorded
// but incomplete settlement is reported distinctly from a rejected purchase
// so clients never retry a captured payment.
func (h *Handler) writePurchaseError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *settlement.ValidationError
		incomplete *settlement.ReconciliationError
	)
	switch {
	case errors.Is(err, deal.ErrNotFound):
		writeError(w, http.StatusNotFound, "deal not found")
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, validation.Error())
	case errors.As(err, &incomplete):
		zctx.From(r.Context()).Error("settlement incomplete",
			zap.String("transaction_id", incomplete.TransactionID),
			zap.String("step", incomplete.Step),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, reconciliationResponse{
			Message:       "purchase recorded but settlement is incomplete, contact support",
			TransactionID: incomplete.TransactionID,
		})
	default:
		zctx.From(r.Context()).Error("settle purchase", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "purchase failed")
	}
}
