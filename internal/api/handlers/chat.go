package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/api/request"
	"github.com/companionchat/backend/internal/api/response"
	"github.com/companionchat/backend/internal/auth"
	"github.com/companionchat/backend/internal/chat"
	"github.com/companionchat/backend/internal/economy"
	"github.com/companionchat/backend/internal/models"
	"github.com/companionchat/backend/internal/repository"
)

// ChatHandler handles direct-chat HTTP requests
type ChatHandler struct {
	chatService *chat.Service
	messages    *repository.MessageRepository
	companions  *repository.CompanionRepository
	logger      zerolog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *chat.Service, messages *repository.MessageRepository, companions *repository.CompanionRepository, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		messages:    messages,
		companions:  companions,
		logger:      logger.With().Str("handler", "chat").Logger(),
	}
}

// sendMessageRequest is the POST body for a direct-chat turn.
type sendMessageRequest struct {
	Prompt     string `json:"prompt" validate:"required,max=4000"`
	IsFollowUp bool   `json:"isFollowUp"`
}

// sendMessageResponse carries the primary reply; chained replies land in the
// history and ride along in Replies for clients that render them directly.
type sendMessageResponse struct {
	Reply   models.Message   `json:"reply"`
	Replies []models.Message `json:"replies"`
	Quota   *quotaStatus     `json:"quota,omitempty"`
}

// SendMessage handles POST /api/v1/chat/{companionId}
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	companionID := request.GetURLParam(r, "companionId")

	var req sendMessageRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	result, err := h.chatService.SendMessage(r.Context(), userID, companionID, req.Prompt, req.IsFollowUp)
	if err != nil {
		h.writeChatError(w, r, err)
		return
	}

	response.Success(w, sendMessageResponse{
		Reply:   result.Replies[0],
		Replies: result.Replies,
		Quota:   newQuotaStatus(result.Quota),
	})
}

// History handles GET /api/v1/chat/{companionId}/messages
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	companionID := request.GetURLParam(r, "companionId")
	limit := request.GetQueryIntWithRange(r, "limit", 100, 1, 500)

	if _, err := h.companions.GetByID(r.Context(), companionID); err != nil {
		if errors.Is(err, repository.ErrCompanionNotFound) {
			response.NotFound(w, "Companion not found")
			return
		}
		h.logger.Error().Err(err).Msg("failed to load companion")
		response.InternalError(w, "")
		return
	}

	messages, err := h.messages.History(r.Context(), companionID, userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("companion_id", companionID).Msg("failed to load history")
		response.InternalError(w, "")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	response.Success(w, messages)
}

// Clear handles DELETE /api/v1/chat/{companionId}
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	companionID := request.GetURLParam(r, "companionId")

	deleted, err := h.messages.Clear(r.Context(), companionID, userID)
	if err != nil {
		h.logger.Error().Err(err).Str("companion_id", companionID).Msg("failed to clear history")
		response.InternalError(w, "")
		return
	}
	response.Success(w, map[string]int64{"deleted": deleted})
}

// ClearAll handles DELETE /api/v1/chat
func (h *ChatHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	deleted, err := h.messages.ClearAll(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to clear all history")
		response.InternalError(w, "")
		return
	}
	response.Success(w, map[string]int64{"deleted": deleted})
}

// writeChatError maps chat flow errors to status codes.
func (h *ChatHandler) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	var quotaErr *chat.QuotaExceededError
	var upstreamErr *chat.UpstreamError

	switch {
	case errors.Is(err, economy.ErrInsufficientCredits):
		response.PaymentRequired(w, "Please purchase more XP to continue chatting")
	case errors.Is(err, economy.ErrAccountNotFound):
		response.NotFound(w, "Usage account not found")
	case errors.Is(err, repository.ErrCompanionNotFound):
		response.NotFound(w, "Companion not found")
	case errors.Is(err, repository.ErrGroupNotFound):
		response.NotFound(w, "Group chat not found")
	case errors.As(err, &quotaErr):
		response.JSON(w, http.StatusTooManyRequests, response.APIResponse{
			Error: "Daily message limit reached",
			Data:  newQuotaStatus(quotaErr.Result),
		})
	case errors.As(err, &upstreamErr):
		h.logger.Error().Err(err).Msg("completion upstream failed")
		response.InternalError(w, "Companion is unavailable right now")
	default:
		h.logger.Error().Err(err).Msg("chat turn failed")
		response.InternalError(w, "")
	}
}
