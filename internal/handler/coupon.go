package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

type couponResponse struct {
	CouponCode      string
	DealID          string
	AmountPaid      string
	RedemptionValue string
	PurchaseDate    time.Time
	ExpiryDate      time.Time
	PointsEarned    int64
	IsRedeemed      bool
	RedemptionDate  *time.Time
	Redeemable      bool
}

func (p couponResponse) encodeJSON(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("coupon_code")
	e.Str(p.CouponCode)
	e.FieldStart("deal_id")
	e.Str(p.DealID)
	e.FieldStart("amount_paid")
	e.Str(p.AmountPaid)
	e.FieldStart("redemption_value")
	e.Str(p.RedemptionValue)
	e.FieldStart("purchase_date")
	e.Str(p.PurchaseDate.Format(time.RFC3339))
	e.FieldStart("expiry_date")
	e.Str(p.ExpiryDate.Format(time.RFC3339))
	e.FieldStart("points_earned")
	e.Int64(p.PointsEarned)
	e.FieldStart("is_redeemed")
	e.Bool(p.IsRedeemed)
	if p.RedemptionDate != nil {
		e.FieldStart("redemption_date")
		e.Str(p.RedemptionDate.Format(time.RFC3339))
	}
	e.FieldStart("redeemable")
	e.Bool(p.Redeemable)
	e.ObjEnd()
}

type couponListResponse []couponResponse

func (p couponListResponse) encodeJSON(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("coupons")
	e.ArrStart()
	for _, c := range p {
		c.encodeJSON(e)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// ListCoupons returns all coupons purchased by the user named in the query.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	userEmail := r.URL.Query().Get("user")
	if userEmail == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	coupons, err := h.coupons.ListByUser(r.Context(), userEmail)
	if err != nil {
		zctx.From(r.Context()).Error("list coupons",
			zap.String("user_email", userEmail), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "listing coupons failed")
		return
	}

	now := time.Now()
	resp := make(couponListResponse, 0, len(coupons))
	for i := range coupons {
		c := &coupons[i]
		resp = append(resp, couponResponse{
			CouponCode:      c.CouponCode,
			DealID:          c.DealID,
			AmountPaid:      c.AmountPaid.StringFixed(2),
			RedemptionValue: c.RedemptionValue.StringFixed(2),
			PurchaseDate:    c.PurchaseDate,
			ExpiryDate:      c.ExpiryDate,
			PointsEarned:    c.PointsEarned,
			IsRedeemed:      c.IsRedeemed,
			RedemptionDate:  c.RedemptionDate,
			Redeemable:      c.Redeemable(now),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
