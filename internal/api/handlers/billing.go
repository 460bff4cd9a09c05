package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/api/request"
	"github.com/companionchat/backend/internal/api/response"
	"github.com/companionchat/backend/internal/auth"
	"github.com/companionchat/backend/internal/billing"
	"github.com/companionchat/backend/internal/repository"
)

// BillingHandler handles checkout and subscription HTTP requests
type BillingHandler struct {
	billing *billing.Service
	subs    *repository.SubscriptionRepository
	logger  zerolog.Logger
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(svc *billing.Service, subs *repository.SubscriptionRepository, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: svc,
		subs:    subs,
		logger:  logger.With().Str("handler", "billing").Logger(),
	}
}

type xpCheckoutRequest struct {
	XPAmount   int   `json:"xpAmount" validate:"required,min=100,max=100000"`
	PriceCents int64 `json:"priceCents" validate:"required,min=50"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// CreateXPCheckout handles POST /api/v1/billing/checkout/xp
func (h *BillingHandler) CreateXPCheckout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())

	var req xpCheckoutRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	url, err := h.billing.CreateXPCheckout(r.Context(), claims.UserID, claims.Email, req.XPAmount, req.PriceCents)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create xp checkout session")
		response.InternalError(w, "Could not start checkout")
		return
	}
	response.Success(w, checkoutResponse{URL: url})
}

type subscriptionCheckoutRequest struct {
	Tier string `json:"tier" validate:"required,oneof=starter pro ultimate"`
}

// CreateSubscriptionCheckout handles POST /api/v1/billing/checkout/subscription
func (h *BillingHandler) CreateSubscriptionCheckout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())

	var req subscriptionCheckoutRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	url, err := h.billing.CreateSubscriptionCheckout(r.Context(), claims.UserID, claims.Email, req.Tier)
	if err != nil {
		if errors.Is(err, billing.ErrUnknownTier) {
			response.BadRequest(w, "Unknown subscription tier")
			return
		}
		h.logger.Error().Err(err).Msg("failed to create subscription checkout session")
		response.InternalError(w, "Could not start checkout")
		return
	}
	response.Success(w, checkoutResponse{URL: url})
}

// CreatePortalSession handles POST /api/v1/billing/portal
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	url, err := h.billing.CreatePortalSession(r.Context(), userID)
	if err != nil {
		if errors.Is(err, billing.ErrNoSubscription) {
			response.NotFound(w, "No billing account found")
			return
		}
		h.logger.Error().Err(err).Msg("failed to create portal session")
		response.InternalError(w, "Could not open billing portal")
		return
	}
	response.Success(w, checkoutResponse{URL: url})
}

type changeSubscriptionRequest struct {
	Tier string `json:"tier" validate:"required,oneof=starter pro ultimate"`
}

// ChangeSubscription handles POST /api/v1/billing/subscription/change
func (h *BillingHandler) ChangeSubscription(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req changeSubscriptionRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	result, err := h.billing.ChangeSubscription(r.Context(), userID, req.Tier)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrNoSubscription):
			response.NotFound(w, "No active subscription")
		case errors.Is(err, billing.ErrSamePlan):
			response.BadRequest(w, "Already subscribed to this plan")
		case errors.Is(err, billing.ErrUnknownTier):
			response.BadRequest(w, "Unknown subscription tier")
		default:
			h.logger.Error().Err(err).Msg("failed to change subscription")
			response.InternalError(w, "Could not change subscription")
		}
		return
	}
	response.Success(w, result)
}

// Subscription handles GET /api/v1/billing/subscription
func (h *BillingHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	sub, err := h.subs.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			response.NotFound(w, "No subscription found")
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load subscription")
		response.InternalError(w, "")
		return
	}
	response.Success(w, sub)
}
