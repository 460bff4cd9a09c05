package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/api/request"
	"github.com/companionchat/backend/internal/api/response"
	"github.com/companionchat/backend/internal/auth"
	"github.com/companionchat/backend/internal/economy"
	"github.com/companionchat/backend/internal/models"
	"github.com/companionchat/backend/internal/ratelimit"
)

// quotaStatus is the wire shape of a daily quota check. Unlimited tiers
// report unlimited true with null limit fields.
type quotaStatus struct {
	Unlimited bool      `json:"unlimited"`
	Limit     *int      `json:"limit"`
	Remaining *int      `json:"remaining"`
	Used      int       `json:"used"`
	ResetAt   time.Time `json:"resetAt"`
}

func newQuotaStatus(r *ratelimit.Result) *quotaStatus {
	if r == nil {
		return nil
	}
	if r.Limit == ratelimit.Unlimited {
		return &quotaStatus{Unlimited: true, ResetAt: r.ResetAt}
	}
	limit, remaining := r.Limit, r.Remaining
	return &quotaStatus{
		Limit:     &limit,
		Remaining: &remaining,
		Used:      r.Used,
		ResetAt:   r.ResetAt,
	}
}

type accountReader interface {
	Account(ctx context.Context, userID string) (*models.UsageAccount, error)
	Transactions(ctx context.Context, userID string, limit int) ([]models.UsageTransaction, error)
}

type quotaReader interface {
	Status(ctx context.Context, userID string) (*ratelimit.Result, error)
}

// UserHandler serves the signed-in user's progress and quota endpoints
type UserHandler struct {
	usage   accountReader
	limiter quotaReader
	logger  zerolog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(usage accountReader, limiter quotaReader, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		usage:   usage,
		limiter: limiter,
		logger:  logger.With().Str("handler", "user").Logger(),
	}
}

type progressResponse struct {
	Level            int `json:"level"`
	TotalSpent       int `json:"totalSpent"`
	AvailableCredits int `json:"availableCredits"`
	CurrentThreshold int `json:"currentThreshold"`
	NextThreshold    int `json:"nextThreshold"`
	IntoLevel        int `json:"intoLevel"`
	NeededForNext    int `json:"neededForNext"`
}

// Progress handles GET /api/v1/user/progress. Level is derived from the
// lifetime counter on every read, never cached, so a debit or purchase in the
// same session is visible immediately.
func (h *UserHandler) Progress(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	account, err := h.usage.Account(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load usage account")
		response.InternalError(w, "")
		return
	}

	level := economy.Level(account.TotalSpent)
	into, needed := economy.ProgressToNextLevel(account.TotalSpent)
	response.Success(w, progressResponse{
		Level:            level,
		TotalSpent:       account.TotalSpent,
		AvailableCredits: account.AvailableCredits,
		CurrentThreshold: economy.ThresholdForLevel(level),
		NextThreshold:    economy.ThresholdForLevel(level + 1),
		IntoLevel:        into,
		NeededForNext:    needed,
	})
}

// Limit handles GET /api/v1/user/limit
func (h *UserHandler) Limit(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	status, err := h.limiter.Status(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to read quota status")
		response.InternalError(w, "")
		return
	}
	response.Success(w, newQuotaStatus(status))
}

// Account handles GET /api/v1/user/account
func (h *UserHandler) Account(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	account, err := h.usage.Account(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load usage account")
		response.InternalError(w, "")
		return
	}
	response.Success(w, account)
}

// Transactions handles GET /api/v1/user/transactions
func (h *UserHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	limit := request.GetQueryIntWithRange(r, "limit", 50, 1, 200)

	txs, err := h.usage.Transactions(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list transactions")
		response.InternalError(w, "")
		return
	}
	response.Success(w, txs)
}
