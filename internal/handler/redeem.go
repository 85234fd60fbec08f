package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dealpass/settlement-service/internal/domain/ledger"
	"github.com/dealpass/settlement-service/internal/domain/redemption"
)

type redeemRequest struct {
	CouponCode string `json:"coupon_code"`
}

type redeemResponse struct {
	CouponCode      string
	RedemptionValue string
	RedeemedAt      time.Time
}

func (p redeemResponse) encodeJSON(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("coupon_code")
	e.Str(p.CouponCode)
	e.FieldStart("redemption_value")
	e.Str(p.RedemptionValue)
	e.FieldStart("redeemed_at")
	e.Str(p.RedeemedAt.Format(time.RFC3339))
	e.ObjEnd()
}

// RedeemCoupon marks a coupon as used at the business counter. The redeeming
// business identity comes from the API key, never from the request body.
func (h *Handler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	info, ok := KeyFromContext(r.Context())
	if !ok || info.OwnerEmail == "" {
		writeError(w, http.StatusForbidden, "api key is not bound to a business")
		return
	}

	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CouponCode == "" {
		writeError(w, http.StatusBadRequest, "coupon_code is required")
		return
	}

	cpn, err := h.redemptions.Redeem(r.Context(), req.CouponCode, info.OwnerEmail)
	if err != nil {
		h.writeRedeemError(w, r, err)
		return
	}

	redeemedAt := time.Now()
	if cpn.RedemptionDate != nil {
		redeemedAt = *cpn.RedemptionDate
	}
	writeJSON(w, http.StatusOK, redeemResponse{
		CouponCode:      cpn.CouponCode,
		RedemptionValue: cpn.RedemptionValue.StringFixed(2),
		RedeemedAt:      redeemedAt,
	})
}

func (h *Handler) writeRedeemError(w http.ResponseWriter, r *http.Request, err error) {
	var already *redemption.AlreadyRedeemedError
	switch {
	case errors.Is(err, ledger.ErrCouponNotFound), errors.Is(err, ledger.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, redemption.ErrForbidden):
		writeError(w, http.StatusForbidden, "coupon belongs to a different business")
	case errors.As(err, &already):
		writeError(w, http.StatusConflict, already.Error())
	case errors.Is(err, redemption.ErrExpired):
		writeError(w, http.StatusGone, "coupon has expired")
	default:
		zctx.From(r.Context()).Error("redeem coupon", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "redemption failed")
	}
}
