package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dealpass/settlement-service/internal/domain/deal"
)

type dealResponse struct {
	ID               string
	Title            string
	BusinessOwner    string
	CouponType       string
	FinalPrice       string
	Savings          string
	ValuePercentage  int64
	HasValuePct      bool
	CashbackEstimate string
	ExpiryDate       time.Time
	RemainingUses    int
	HasRemaining     bool
	SoldOut          bool
}

func (p dealResponse) encodeJSON(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("title")
	e.Str(p.Title)
	e.FieldStart("business_owner")
	e.Str(p.BusinessOwner)
	e.FieldStart("coupon_type")
	e.Str(p.CouponType)
	e.FieldStart("final_price")
	e.Str(p.FinalPrice)
	e.FieldStart("savings")
	e.Str(p.Savings)
	if p.HasValuePct {
		e.FieldStart("value_percentage")
		e.Int64(p.ValuePercentage)
	}
	e.FieldStart("cashback_estimate")
	e.Str(p.CashbackEstimate)
	e.FieldStart("expiry_date")
	e.Str(p.ExpiryDate.Format(time.RFC3339))
	if p.HasRemaining {
		e.FieldStart("remaining_uses")
		e.Int(p.RemainingUses)
	}
	e.FieldStart("sold_out")
	e.Bool(p.SoldOut)
	e.ObjEnd()
}

type dealListResponse []dealResponse

func (p dealListResponse) encodeJSON(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("deals")
	e.ArrStart()
	for _, d := range p {
		d.encodeJSON(e)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func toDealResponse(d *deal.Deal) dealResponse {
	quote := deal.ResolvePrice(d)
	vp, hasVP := d.ValuePercentage()
	remaining, hasRemaining := d.RemainingUses()
	return dealResponse{
		ID:               d.ID,
		Title:            d.Title,
		BusinessOwner:    d.BusinessOwner,
		CouponType:       string(d.CouponType),
		FinalPrice:       quote.AmountPayable.StringFixed(2),
		Savings:          d.Savings().StringFixed(2),
		ValuePercentage:  vp,
		HasValuePct:      hasVP,
		CashbackEstimate: deal.CashbackEstimate(quote.AmountPayable).StringFixed(2),
		ExpiryDate:       d.ExpiryDate,
		RemainingUses:    remaining,
		HasRemaining:     hasRemaining,
		SoldOut:          d.SoldOut(),
	}
}

// ListDeals returns all active, unexpired deals with their display pricing.
func (h *Handler) ListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.deals.ListActive(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("list deals", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "listing deals failed")
		return
	}

	resp := make(dealListResponse, 0, len(deals))
	for i := range deals {
		resp = append(resp, toDealResponse(&deals[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDeal returns one deal with its display pricing.
func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := h.deals.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, deal.ErrNotFound) {
			writeError(w, http.StatusNotFound, "deal not found")
			return
		}
		zctx.From(r.Context()).Error("get deal", zap.String("deal_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "loading deal failed")
		return
	}
	writeJSON(w, http.StatusOK, toDealResponse(d))
}
