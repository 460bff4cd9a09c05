package handlers

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/api/request"
	"github.com/companionchat/backend/internal/api/response"
	"github.com/companionchat/backend/internal/auth"
	"github.com/companionchat/backend/internal/chat"
	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/economy"
	"github.com/companionchat/backend/internal/models"
	"github.com/companionchat/backend/internal/repository"
)

// GroupChatHandler handles group chat HTTP requests
type GroupChatHandler struct {
	db          *database.DB
	groups      *repository.GroupRepository
	usage       *repository.UsageRepository
	chatService *chat.Service
	chatErrors  *ChatHandler
	logger      zerolog.Logger
}

// NewGroupChatHandler creates a new group chat handler
func NewGroupChatHandler(db *database.DB, groups *repository.GroupRepository, usage *repository.UsageRepository, chatService *chat.Service, chatErrors *ChatHandler, logger zerolog.Logger) *GroupChatHandler {
	return &GroupChatHandler{
		db:          db,
		groups:      groups,
		usage:       usage,
		chatService: chatService,
		chatErrors:  chatErrors,
		logger:      logger.With().Str("handler", "group_chat").Logger(),
	}
}

type createGroupRequest struct {
	Name      string   `json:"name" validate:"required,max=100"`
	MemberIDs []string `json:"memberIds" validate:"required,min=1,dive,uuid"`
}

// Create handles POST /api/v1/group-chat. The creation fee and the group are
// one transaction.
func (h *GroupChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req createGroupRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	group := &models.GroupChat{CreatorID: userID, Name: req.Name}
	err := h.db.WithTx(r.Context(), func(tx pgx.Tx) error {
		if _, err := h.usage.DebitTx(r.Context(), tx, userID, economy.CostGroupChatCreation); err != nil {
			return err
		}
		return h.groups.CreateTx(r.Context(), tx, group, req.MemberIDs)
	})
	if err != nil {
		if errors.Is(err, economy.ErrInsufficientCredits) {
			response.PaymentRequired(w, "Not enough XP to create a group chat")
			return
		}
		h.logger.Error().Err(err).Msg("failed to create group chat")
		response.InternalError(w, "")
		return
	}

	created, err := h.groups.GetByID(r.Context(), group.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("group_id", group.ID).Msg("failed to load created group")
		response.InternalError(w, "")
		return
	}
	response.Created(w, created)
}

// List handles GET /api/v1/group-chat
func (h *GroupChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	groups, err := h.groups.ListByCreator(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list group chats")
		response.InternalError(w, "")
		return
	}
	if groups == nil {
		groups = []models.GroupChat{}
	}
	response.Success(w, groups)
}

// Get handles GET /api/v1/group-chat/{groupId}
func (h *GroupChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	group, ok := h.ownedGroup(w, r)
	if !ok {
		return
	}
	response.Success(w, group)
}

// Delete handles DELETE /api/v1/group-chat/{groupId}
func (h *GroupChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	groupID := request.GetURLParam(r, "groupId")

	if err := h.groups.Delete(r.Context(), groupID, userID); err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			response.NotFound(w, "Group chat not found")
			return
		}
		h.logger.Error().Err(err).Str("group_id", groupID).Msg("failed to delete group chat")
		response.InternalError(w, "")
		return
	}
	response.NoContent(w)
}

type addMemberRequest struct {
	CompanionID string `json:"companionId" validate:"required,uuid"`
}

// AddMember handles POST /api/v1/group-chat/{groupId}/members
func (h *GroupChatHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	groupID := request.GetURLParam(r, "groupId")

	var req addMemberRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.groups.AddMember(r.Context(), groupID, userID, req.CompanionID); err != nil {
		switch {
		case errors.Is(err, repository.ErrGroupNotFound):
			response.NotFound(w, "Group chat not found")
		case errors.Is(err, repository.ErrMemberExists):
			response.BadRequest(w, "Companion is already a member")
		default:
			h.logger.Error().Err(err).Str("group_id", groupID).Msg("failed to add member")
			response.InternalError(w, "")
		}
		return
	}

	members, err := h.groups.Members(r.Context(), groupID)
	if err != nil {
		h.logger.Error().Err(err).Str("group_id", groupID).Msg("failed to load members")
		response.InternalError(w, "")
		return
	}
	response.Success(w, members)
}

// RemoveMember handles DELETE /api/v1/group-chat/{groupId}/members/{companionId}
func (h *GroupChatHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	groupID := request.GetURLParam(r, "groupId")
	companionID := request.GetURLParam(r, "companionId")

	if err := h.groups.RemoveMember(r.Context(), groupID, userID, companionID); err != nil {
		switch {
		case errors.Is(err, repository.ErrGroupNotFound):
			response.NotFound(w, "Group chat not found")
		case errors.Is(err, repository.ErrMemberNotFound):
			response.NotFound(w, "Companion is not a member")
		default:
			h.logger.Error().Err(err).Str("group_id", groupID).Msg("failed to remove member")
			response.InternalError(w, "")
		}
		return
	}
	response.NoContent(w)
}

type groupChatRequest struct {
	Prompt         string `json:"prompt" validate:"required,max=4000"`
	MentionedBotID string `json:"mentionedBotId" validate:"omitempty,uuid"`
}

// Chat handles POST /api/v1/group-chat/{groupId}/chat
func (h *GroupChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownedGroup(w, r); !ok {
		return
	}
	userID := auth.GetUserID(r.Context())
	groupID := request.GetURLParam(r, "groupId")

	var req groupChatRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	result, err := h.chatService.RespondToGroup(r.Context(), userID, groupID, req.Prompt, req.MentionedBotID)
	if err != nil {
		h.chatErrors.writeChatError(w, r, err)
		return
	}
	response.Success(w, result)
}

// Messages handles GET /api/v1/group-chat/{groupId}/messages
func (h *GroupChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownedGroup(w, r); !ok {
		return
	}
	groupID := request.GetURLParam(r, "groupId")
	limit := request.GetQueryIntWithRange(r, "limit", 100, 1, 500)

	messages, err := h.groups.Messages(r.Context(), groupID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("group_id", groupID).Msg("failed to load group messages")
		response.InternalError(w, "")
		return
	}
	if messages == nil {
		messages = []models.GroupMessage{}
	}
	response.Success(w, messages)
}

// LatestMessages handles GET /api/v1/group-chat/{groupId}/messages/latest.
// With ?after=<messageId> it returns only what arrived since, so clients can
// poll for paced bot replies.
func (h *GroupChatHandler) LatestMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownedGroup(w, r); !ok {
		return
	}
	groupID := request.GetURLParam(r, "groupId")
	afterID := request.GetQueryString(r, "after", "")

	var (
		messages []models.GroupMessage
		err      error
	)
	if afterID != "" {
		messages, err = h.groups.MessagesSince(r.Context(), groupID, afterID)
	} else {
		messages, err = h.groups.Messages(r.Context(), groupID, 20)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("group_id", groupID).Msg("failed to load latest group messages")
		response.InternalError(w, "")
		return
	}
	if messages == nil {
		messages = []models.GroupMessage{}
	}
	response.Success(w, messages)
}

// ClearMessages handles DELETE /api/v1/group-chat/{groupId}/messages
func (h *GroupChatHandler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	groupID := request.GetURLParam(r, "groupId")

	deleted, err := h.groups.ClearMessages(r.Context(), groupID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			response.NotFound(w, "Group chat not found")
			return
		}
		h.logger.Error().Err(err).Str("group_id", groupID).Msg("failed to clear group messages")
		response.InternalError(w, "")
		return
	}
	response.Success(w, map[string]int64{"deleted": deleted})
}

// ownedGroup loads the group and enforces creator access.
func (h *GroupChatHandler) ownedGroup(w http.ResponseWriter, r *http.Request) (*models.GroupChat, bool) {
	userID := auth.GetUserID(r.Context())
	groupID := request.GetURLParam(r, "groupId")

	group, err := h.groups.GetByID(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			response.NotFound(w, "Group chat not found")
			return nil, false
		}
		h.logger.Error().Err(err).Str("group_id", groupID).Msg("failed to load group chat")
		response.InternalError(w, "")
		return nil, false
	}
	if group.CreatorID != userID {
		response.Forbidden(w, "")
		return nil, false
	}
	return group, true
}
