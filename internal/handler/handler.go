// Package handler exposes the settlement service over HTTP. It maps domain
// errors to status codes and keeps all business logic in the injected
// engines and repositories.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/dealpass/settlement-service/internal/domain/balance"
	"github.com/dealpass/settlement-service/internal/domain/deal"
	"github.com/dealpass/settlement-service/internal/domain/ledger"
	"github.com/dealpass/settlement-service/internal/domain/redemption"
	"github.com/dealpass/settlement-service/internal/domain/settlement"
)

// Handler serves the settlement API, delegating to the settlement and
// redemption engines and the read-side repositories.
type Handler struct {
	deals        deal.Repository
	coupons      ledger.CouponRepository
	transactions ledger.TransactionRepository
	balances     balance.Repository
	settlements  *settlement.Engine
	redemptions  *redemption.Engine
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	deals deal.Repository,
	coupons ledger.CouponRepository,
	transactions ledger.TransactionRepository,
	balances balance.Repository,
	settlements *settlement.Engine,
	redemptions *redemption.Engine,
) *Handler {
	return &Handler{
		deals:        deals,
		coupons:      coupons,
		transactions: transactions,
		balances:     balances,
		settlements:  settlements,
		redemptions:  redemptions,
	}
}

// Routes returns the API router. Browsing endpoints are public; purchase,
// redemption, and business endpoints require an API key.
func (h *Handler) Routes(sec *Security) chi.Router {
	r := chi.NewRouter()

	r.Get("/deals", h.ListDeals)
	r.Get("/deals/{id}", h.GetDeal)
	r.Get("/coupons", h.ListCoupons)

	r.Group(func(r chi.Router) {
		r.Use(sec.RequireAPIKey)
		r.Post("/purchases", h.CreatePurchase)
		r.Post("/redemptions", h.RedeemCoupon)
		r.Get("/business/summary", h.BusinessSummary)
	})

	return r
}
