package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/ai"
	"github.com/companionchat/backend/internal/api/request"
	"github.com/companionchat/backend/internal/api/response"
	"github.com/companionchat/backend/internal/auth"
	"github.com/companionchat/backend/internal/cache"
	"github.com/companionchat/backend/internal/chat"
	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/economy"
	"github.com/companionchat/backend/internal/models"
	"github.com/companionchat/backend/internal/repository"
)

// CompanionHandler handles companion HTTP requests
type CompanionHandler struct {
	db         *database.DB
	companions *repository.CompanionRepository
	usage      *repository.UsageRepository
	cache      *cache.Redis
	llm        chat.Completions
	modelChat  string
	cacheTTL   time.Duration
	logger     zerolog.Logger
}

// NewCompanionHandler creates a new companion handler
func NewCompanionHandler(db *database.DB, companions *repository.CompanionRepository, usage *repository.UsageRepository, redisCache *cache.Redis, llm chat.Completions, modelChat string, cacheTTL time.Duration, logger zerolog.Logger) *CompanionHandler {
	return &CompanionHandler{
		db:         db,
		companions: companions,
		usage:      usage,
		cache:      redisCache,
		llm:        llm,
		modelChat:  modelChat,
		cacheTTL:   cacheTTL,
		logger:     logger.With().Str("handler", "companion").Logger(),
	}
}

type companionRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Description  string `json:"description" validate:"required,max=500"`
	Instructions string `json:"instructions" validate:"required,min=20"`
	Seed         string `json:"seed" validate:"required,min=20"`
	Src          string `json:"src" validate:"omitempty,url"`
	CategoryID   string `json:"categoryId" validate:"omitempty,uuid"`
	MessageDelay int    `json:"messageDelay" validate:"min=0,max=60"`
	SendMultiple bool   `json:"sendMultipleMessages"`
}

// Create handles POST /api/v1/companion. The creation fee and the companion
// row are one transaction.
func (h *CompanionHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())

	var req companionRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	companion := &models.Companion{
		UserID:               claims.UserID,
		UserName:             claims.Name,
		CategoryID:           req.CategoryID,
		Src:                  req.Src,
		Name:                 req.Name,
		Description:          req.Description,
		Instructions:         req.Instructions,
		Seed:                 req.Seed,
		MessageDelay:         req.MessageDelay,
		SendMultipleMessages: req.SendMultiple,
	}

	err := h.db.WithTx(r.Context(), func(tx pgx.Tx) error {
		if _, err := h.usage.DebitTx(r.Context(), tx, claims.UserID, economy.CostCompanionCreation); err != nil {
			return err
		}
		return h.companions.CreateTx(r.Context(), tx, companion)
	})
	if err != nil {
		if errors.Is(err, economy.ErrInsufficientCredits) {
			response.PaymentRequired(w, "Not enough XP to create a companion")
			return
		}
		h.logger.Error().Err(err).Msg("failed to create companion")
		response.InternalError(w, "")
		return
	}

	response.Created(w, companion)
}

// List handles GET /api/v1/companion
// Query params: categoryId, name, mine, limit, offset
func (h *CompanionHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := repository.CompanionListOptions{
		CategoryID: request.GetQueryString(r, "categoryId", ""),
		Name:       request.GetQueryString(r, "name", ""),
		Limit:      request.GetQueryIntWithRange(r, "limit", 100, 1, 200),
		Offset:     request.GetQueryInt(r, "offset", 0),
	}
	if request.GetQueryString(r, "mine", "") == "true" {
		opts.UserID = auth.GetUserID(r.Context())
	}

	companions, err := h.companions.List(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list companions")
		response.InternalError(w, "")
		return
	}
	if companions == nil {
		companions = []models.Companion{}
	}
	response.Success(w, companions)
}

// Get handles GET /api/v1/companion/{companionId}
func (h *CompanionHandler) Get(w http.ResponseWriter, r *http.Request) {
	companionID := request.GetURLParam(r, "companionId")
	key := cache.Key(cache.KeyCompanion, companionID)

	var cached models.Companion
	if h.cache.GetJSON(r.Context(), key, &cached) {
		response.Success(w, cached)
		return
	}

	companion, err := h.companions.GetByID(r.Context(), companionID)
	if err != nil {
		if errors.Is(err, repository.ErrCompanionNotFound) {
			response.NotFound(w, "Companion not found")
			return
		}
		h.logger.Error().Err(err).Msg("failed to load companion")
		response.InternalError(w, "")
		return
	}

	if err := h.cache.SetJSON(r.Context(), key, companion, h.cacheTTL); err != nil {
		h.logger.Warn().Err(err).Msg("failed to cache companion")
	}
	response.Success(w, companion)
}

// Update handles PUT /api/v1/companion/{companionId}
func (h *CompanionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	companionID := request.GetURLParam(r, "companionId")

	var req companionRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	companion := &models.Companion{
		ID:                   companionID,
		UserID:               userID,
		CategoryID:           req.CategoryID,
		Src:                  req.Src,
		Name:                 req.Name,
		Description:          req.Description,
		Instructions:         req.Instructions,
		Seed:                 req.Seed,
		MessageDelay:         req.MessageDelay,
		SendMultipleMessages: req.SendMultiple,
	}

	if err := h.companions.Update(r.Context(), companion); err != nil {
		if errors.Is(err, repository.ErrCompanionNotFound) {
			response.NotFound(w, "Companion not found")
			return
		}
		h.logger.Error().Err(err).Msg("failed to update companion")
		response.InternalError(w, "")
		return
	}

	h.invalidate(r, companionID)
	response.Success(w, companion)
}

// Delete handles DELETE /api/v1/companion/{companionId}
func (h *CompanionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	companionID := request.GetURLParam(r, "companionId")

	if err := h.companions.Delete(r.Context(), companionID, userID); err != nil {
		if errors.Is(err, repository.ErrCompanionNotFound) {
			response.NotFound(w, "Companion not found")
			return
		}
		h.logger.Error().Err(err).Msg("failed to delete companion")
		response.InternalError(w, "")
		return
	}

	h.invalidate(r, companionID)
	response.NoContent(w)
}

type behaviorRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Instructions string `json:"instructions" validate:"omitempty,max=1000"`
}

// GenerateBehavior handles POST /api/v1/companion/behavior: drafts the
// instructions and seed dialogue for a new companion. Debited after a
// successful generation so a failed upstream call costs nothing.
func (h *CompanionHandler) GenerateBehavior(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req behaviorRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	account, err := h.usage.Account(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load account")
		response.InternalError(w, "")
		return
	}
	if account.AvailableCredits < economy.CostBehaviorGenerate {
		response.PaymentRequired(w, "Not enough XP to generate a behavior")
		return
	}

	resp, err := h.llm.Chat(r.Context(), &ai.ChatRequest{
		Model: h.modelChat,
		Messages: []ai.ChatMessage{
			{Role: "system", Content: ai.BehaviorSystemPrompt},
			{Role: "user", Content: ai.BehaviorPrompt(req.Name, req.Instructions)},
		},
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("behavior generation failed")
		response.InternalError(w, "Generation is unavailable right now")
		return
	}
	content := strings.TrimSpace(resp.GetMessageContent())
	if content == "" {
		response.InternalError(w, "Generation is unavailable right now")
		return
	}

	if _, err := h.usage.Debit(r.Context(), userID, economy.CostBehaviorGenerate); err != nil {
		if errors.Is(err, economy.ErrInsufficientCredits) {
			response.PaymentRequired(w, "Not enough XP to generate a behavior")
			return
		}
		h.logger.Error().Err(err).Msg("failed to debit behavior generation")
		response.InternalError(w, "")
		return
	}

	response.Success(w, map[string]string{"behavior": content})
}

// Categories handles GET /api/v1/categories
func (h *CompanionHandler) Categories(w http.ResponseWriter, r *http.Request) {
	key := cache.Key(cache.KeyCategories, "all")

	var cached []models.Category
	if h.cache.GetJSON(r.Context(), key, &cached) {
		response.Success(w, cached)
		return
	}

	categories, err := h.companions.ListCategories(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list categories")
		response.InternalError(w, "")
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}

	if err := h.cache.SetJSON(r.Context(), key, categories, h.cacheTTL); err != nil {
		h.logger.Warn().Err(err).Msg("failed to cache categories")
	}
	response.Success(w, categories)
}

// invalidate drops cached copies touched by a companion write.
func (h *CompanionHandler) invalidate(r *http.Request, companionID string) {
	if err := h.cache.Delete(r.Context(), cache.Key(cache.KeyCompanion, companionID)); err != nil {
		h.logger.Warn().Err(err).Str("companion_id", companionID).Msg("failed to invalidate companion cache")
	}
}
