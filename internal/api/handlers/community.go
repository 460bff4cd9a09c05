package handlers

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/api/request"
	"github.com/companionchat/backend/internal/api/response"
	"github.com/companionchat/backend/internal/auth"
	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/economy"
	"github.com/companionchat/backend/internal/models"
	"github.com/companionchat/backend/internal/repository"
)

// CommunityHandler handles community idea HTTP requests
type CommunityHandler struct {
	db     *database.DB
	ideas  *repository.CommunityRepository
	usage  *repository.UsageRepository
	logger zerolog.Logger
}

// NewCommunityHandler creates a new community handler
func NewCommunityHandler(db *database.DB, ideas *repository.CommunityRepository, usage *repository.UsageRepository, logger zerolog.Logger) *CommunityHandler {
	return &CommunityHandler{
		db:     db,
		ideas:  ideas,
		usage:  usage,
		logger: logger.With().Str("handler", "community").Logger(),
	}
}

// List handles GET /api/v1/community
func (h *CommunityHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := request.GetQueryIntWithRange(r, "limit", 50, 1, 100)
	offset := request.GetQueryInt(r, "offset", 0)

	ideas, err := h.ideas.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list ideas")
		response.InternalError(w, "")
		return
	}
	if ideas == nil {
		ideas = []models.CommunityIdea{}
	}
	response.Success(w, ideas)
}

type createIdeaRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"omitempty,max=2000"`
}

// Create handles POST /api/v1/community. The submission fee and the idea row
// are one transaction; an under-balance submission is rejected outright.
func (h *CommunityHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req createIdeaRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	idea := &models.CommunityIdea{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
	}
	err := h.db.WithTx(r.Context(), func(tx pgx.Tx) error {
		if _, err := h.usage.DebitTx(r.Context(), tx, userID, economy.CostIdeaSubmission); err != nil {
			return err
		}
		return h.ideas.CreateTx(r.Context(), tx, idea)
	})
	if err != nil {
		if errors.Is(err, economy.ErrInsufficientCredits) {
			response.Forbidden(w, "Not enough XP to submit an idea")
			return
		}
		h.logger.Error().Err(err).Msg("failed to create idea")
		response.InternalError(w, "")
		return
	}

	response.Created(w, idea)
}

type voteRequest struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

// Vote handles PATCH /api/v1/community/{ideaId}/vote. The vote fee and the
// tally update are one transaction.
func (h *CommunityHandler) Vote(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	ideaID := request.GetURLParam(r, "ideaId")

	var req voteRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	var updated *models.CommunityIdea
	err := h.db.WithTx(r.Context(), func(tx pgx.Tx) error {
		if _, err := h.usage.DebitTx(r.Context(), tx, userID, economy.CostVote); err != nil {
			return err
		}
		var err error
		updated, err = h.ideas.VoteTx(r.Context(), tx, ideaID, req.Direction)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, economy.ErrInsufficientCredits):
			response.Forbidden(w, "Not enough XP to vote")
		case errors.Is(err, repository.ErrIdeaNotFound):
			response.NotFound(w, "Idea not found")
		default:
			h.logger.Error().Err(err).Str("idea_id", ideaID).Msg("failed to vote")
			response.InternalError(w, "")
		}
		return
	}

	response.Success(w, updated)
}
