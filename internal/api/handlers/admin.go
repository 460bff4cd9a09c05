package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/api/request"
	"github.com/companionchat/backend/internal/api/response"
	"github.com/companionchat/backend/internal/cache"
	"github.com/companionchat/backend/internal/economy"
	"github.com/companionchat/backend/internal/models"
	"github.com/companionchat/backend/internal/repository"
)

// AdminHandler handles admin HTTP requests
type AdminHandler struct {
	usage      *repository.UsageRepository
	companions *repository.CompanionRepository
	cache      *cache.Redis
	logger     zerolog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(usage *repository.UsageRepository, companions *repository.CompanionRepository, cacheClient *cache.Redis, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		usage:      usage,
		companions: companions,
		cache:      cacheClient,
		logger:     logger.With().Str("handler", "admin").Logger(),
	}
}

type adminUser struct {
	models.UsageAccount
	Level int `json:"level"`
}

// ListUsers handles GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := request.GetQueryIntWithRange(r, "limit", 50, 1, 200)
	offset := request.GetQueryInt(r, "offset", 0)

	accounts, err := h.usage.ListAccounts(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list accounts")
		response.InternalError(w, "")
		return
	}

	total, err := h.usage.CountAccounts(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to count accounts")
		response.InternalError(w, "")
		return
	}

	users := make([]adminUser, 0, len(accounts))
	for _, acc := range accounts {
		users = append(users, adminUser{UsageAccount: acc, Level: economy.Level(acc.TotalSpent)})
	}

	response.JSON(w, http.StatusOK, response.APIResponse{
		Data:       users,
		Pagination: response.NewPagination(total, limit, offset),
	})
}

// ListCompanions handles GET /api/v1/admin/companions
func (h *AdminHandler) ListCompanions(w http.ResponseWriter, r *http.Request) {
	opts := repository.CompanionListOptions{
		UserID: request.GetQueryString(r, "userId", ""),
		Limit:  request.GetQueryIntWithRange(r, "limit", 100, 1, 500),
		Offset: request.GetQueryInt(r, "offset", 0),
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

type pacingRequest struct {
	MessageDelay         int  `json:"messageDelay" validate:"min=0,max=60"`
	SendMultipleMessages bool `json:"sendMultipleMessages"`
}

// UpdateCompanionPacing handles PATCH /api/v1/admin/companions/{companionId}/pacing
func (h *AdminHandler) UpdateCompanionPacing(w http.ResponseWriter, r *http.Request) {
	companionID := request.GetURLParam(r, "companionId")

	var req pacingRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	updated, err := h.companions.UpdatePacing(r.Context(), companionID, req.MessageDelay, req.SendMultipleMessages)
	if err != nil {
		if errors.Is(err, repository.ErrCompanionNotFound) {
			response.NotFound(w, "Companion not found")
			return
		}
		h.logger.Error().Err(err).Str("companion_id", companionID).Msg("failed to update pacing")
		response.InternalError(w, "")
		return
	}

	h.invalidateCompanion(r, companionID)
	response.Success(w, updated)
}

// DeleteCompanion handles DELETE /api/v1/admin/companions/{companionId}
func (h *AdminHandler) DeleteCompanion(w http.ResponseWriter, r *http.Request) {
	companionID := request.GetURLParam(r, "companionId")

	if err := h.companions.DeleteAny(r.Context(), companionID); err != nil {
		if errors.Is(err, repository.ErrCompanionNotFound) {
			response.NotFound(w, "Companion not found")
			return
		}
		h.logger.Error().Err(err).Str("companion_id", companionID).Msg("failed to delete companion")
		response.InternalError(w, "")
		return
	}

	h.invalidateCompanion(r, companionID)
	response.NoContent(w)
}

func (h *AdminHandler) invalidateCompanion(r *http.Request, companionID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(r.Context(), cache.Key(cache.KeyCompanion, companionID)); err != nil {
		h.logger.Warn().Err(err).Str("companion_id", companionID).Msg("failed to invalidate companion cache")
	}
}
