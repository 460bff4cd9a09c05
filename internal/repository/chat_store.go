package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/companionchat/backend/internal/chat"
	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/economy"
	"github.com/companionchat/backend/internal/models"
)

// ChatStore is the persistence surface behind the chat service. Multi-write
// methods run in one transaction: replies, XP and the debit commit together
// or not at all.
type ChatStore struct {
	db         *database.DB
	usage      *UsageRepository
	companions *CompanionRepository
	messages   *MessageRepository
	groups     *GroupRepository
}

// NewChatStore creates a new chat store
func NewChatStore(db *database.DB, usage *UsageRepository, companions *CompanionRepository, messages *MessageRepository, groups *GroupRepository) *ChatStore {
	return &ChatStore{
		db:         db,
		usage:      usage,
		companions: companions,
		messages:   messages,
		groups:     groups,
	}
}

// Companion returns a companion by ID.
func (s *ChatStore) Companion(ctx context.Context, id string) (*models.Companion, error) {
	return s.companions.GetByID(ctx, id)
}

// Account returns the user's usage account.
func (s *ChatStore) Account(ctx context.Context, userID string) (*models.UsageAccount, error) {
	return s.usage.Account(ctx, userID)
}

// RecordExchange commits one direct-chat unit: the optional user turn, the
// reply, the debit and the companion XP in a single transaction. The debit is
// conditional, so a concurrent spend that empties the balance rolls the whole
// exchange back.
func (s *ChatStore) RecordExchange(ctx context.Context, p chat.ExchangeParams) (*models.Message, error) {
	reply := &models.Message{
		CompanionID: p.Companion.ID,
		UserID:      p.UserID,
		Role:        models.RoleCompanion,
		Content:     p.Reply,
	}

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.usage.DebitTx(ctx, tx, p.UserID, p.Cost); err != nil {
			return err
		}
		if p.PersistPrompt {
			prompt := &models.Message{
				CompanionID: p.Companion.ID,
				UserID:      p.UserID,
				Role:        models.RoleUser,
				Content:     p.Prompt,
			}
			if err := s.messages.CreateTx(ctx, tx, prompt); err != nil {
				return err
			}
		}
		if err := s.messages.CreateTx(ctx, tx, reply); err != nil {
			return err
		}
		return s.companions.AddXPTx(ctx, tx, p.Companion.ID, p.XP)
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// Group returns a group chat with members loaded.
func (s *ChatStore) Group(ctx context.Context, id string) (*models.GroupChat, error) {
	return s.groups.GetByID(ctx, id)
}

// RecordUserGroupMessage persists one user turn in a group chat.
func (s *ChatStore) RecordUserGroupMessage(ctx context.Context, groupID, userID, content string) (*models.GroupMessage, error) {
	msg := &models.GroupMessage{
		GroupChatID: groupID,
		SenderID:    userID,
		Content:     content,
	}
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return s.groups.CreateMessageTx(ctx, tx, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// RecordGroupReplies commits a group turn's bot replies, each companion's XP
// and the aggregate user debit in one transaction.
func (s *ChatStore) RecordGroupReplies(ctx context.Context, groupID, userID string, replies []chat.BotReply, costPerReply, xpPerReply int) ([]models.GroupMessage, error) {
	if len(replies) == 0 {
		return []models.GroupMessage{}, nil
	}

	messages := make([]models.GroupMessage, 0, len(replies))
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.usage.DebitTx(ctx, tx, userID, costPerReply*len(replies)); err != nil {
			return err
		}
		for _, r := range replies {
			msg := &models.GroupMessage{
				GroupChatID: groupID,
				SenderID:    r.Companion.ID,
				IsBot:       true,
				Content:     r.Content,
			}
			if err := s.groups.CreateMessageTx(ctx, tx, msg); err != nil {
				return err
			}
			if err := s.companions.AddXPTx(ctx, tx, r.Companion.ID, xpPerReply); err != nil {
				return err
			}
			messages = append(messages, *msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

var _ chat.Store = (*ChatStore)(nil)
var _ economy.Ledger = (*UsageRepository)(nil)
