package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/api/response"
	"github.com/companionchat/backend/internal/auth"
	"github.com/companionchat/backend/internal/billing"
	"github.com/companionchat/backend/internal/repository"
)

// maxWebhookBody caps webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// WebhookHandler receives events from Stripe and the identity provider.
type WebhookHandler struct {
	billing  *billing.Service
	verifier *auth.WebhookVerifier
	usage    *repository.UsageRepository
	logger   zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(svc *billing.Service, verifier *auth.WebhookVerifier, usage *repository.UsageRepository, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:  svc,
		verifier: verifier,
		usage:    usage,
		logger:   logger.With().Str("handler", "webhooks").Logger(),
	}
}

// Stripe handles POST /webhooks/stripe
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "Could not read request body")
		return
	}

	event, err := h.billing.VerifyEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn().Err(err).Msg("rejected stripe webhook")
		response.BadRequest(w, "Invalid signature")
		return
	}

	if err := h.billing.HandleEvent(r.Context(), event); err != nil {
		h.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to process stripe event")
		response.InternalError(w, "")
		return
	}
	response.Success(w, map[string]bool{"received": true})
}

type identityEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

// Identity handles POST /webhooks/identity. Signatures follow the svix
// scheme used by the identity provider.
func (h *WebhookHandler) Identity(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "Could not read request body")
		return
	}

	if err := h.verifier.Verify(r.Header, body); err != nil {
		h.logger.Warn().Err(err).Msg("rejected identity webhook")
		response.BadRequest(w, "Invalid signature")
		return
	}

	var event identityEvent
	if err := json.Unmarshal(body, &event); err != nil {
		response.BadRequest(w, "Invalid payload")
		return
	}

	switch event.Type {
	case "user.created", "user.updated":
		if event.Data.ID == "" {
			response.BadRequest(w, "Missing user id")
			return
		}
		email := ""
		if len(event.Data.EmailAddresses) > 0 {
			email = event.Data.EmailAddresses[0].EmailAddress
		}
		if _, err := h.usage.EnsureAccount(r.Context(), event.Data.ID, email); err != nil {
			h.logger.Error().Err(err).Str("user_id", event.Data.ID).Msg("failed to provision account")
			response.InternalError(w, "")
			return
		}
	default:
		// Other event types are acknowledged without action.
	}

	response.Success(w, map[string]bool{"received": true})
}
