// Package chat implements the reply decision logic: the multi-message roll,
// the group response selector, and the orchestration that turns a user
// message into persisted, credit-debited companion replies.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/ai"
	"github.com/companionchat/backend/internal/economy"
	"github.com/companionchat/backend/internal/models"
	"github.com/companionchat/backend/internal/ratelimit"
)

// maxTypingJitter bounds the random pacing added on top of a companion's
// configured message delay.
const maxTypingJitter = 3 * time.Second

// ErrEmptyCompletion is returned when the completion API produced no text.
var ErrEmptyCompletion = errors.New("empty completion")

// QuotaExceededError carries the limiter result for a denied message.
type QuotaExceededError struct {
	Result *ratelimit.Result
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily message quota exhausted (limit %d)", e.Result.Limit)
}

// UpstreamError wraps a completion API failure.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "completion failed: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// ExchangeParams describes one atomic direct-chat write: the debit, the
// message rows and the companion XP increment are applied together or not
// at all.
type ExchangeParams struct {
	UserID        string
	Companion     *models.Companion
	Prompt        string
	Reply         string
	PersistPrompt bool
	Cost          int
	XP            int
}

// BotReply is one generated group-chat reply awaiting persistence.
type BotReply struct {
	Companion *models.Companion
	Content   string
}

// Store is the persistence surface the chat flows need. Multi-write methods
// are transactional.
type Store interface {
	Companion(ctx context.Context, id string) (*models.Companion, error)
	Account(ctx context.Context, userID string) (*models.UsageAccount, error)
	RecordExchange(ctx context.Context, p ExchangeParams) (*models.Message, error)
	Group(ctx context.Context, id string) (*models.GroupChat, error)
	RecordUserGroupMessage(ctx context.Context, groupID, userID, content string) (*models.GroupMessage, error)
	// RecordGroupReplies persists every reply, increments each companion's
	// XP, and debits the user costPerReply per reply in one transaction.
	RecordGroupReplies(ctx context.Context, groupID, userID string, replies []BotReply, costPerReply, xpPerReply int) ([]models.GroupMessage, error)
}

// Quota consumes from the user's daily message allowance.
type Quota interface {
	CheckAndIncrement(ctx context.Context, userID string) (*ratelimit.Result, error)
}

// Completions is the chat-completion client.
type Completions interface {
	Chat(ctx context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error)
}

// Service orchestrates direct and group chat replies.
type Service struct {
	store           Store
	quota           Quota
	llm             Completions
	roller          Roller
	modelChat       string
	modelClassifier string
	logger          zerolog.Logger
}

// NewService creates the chat service.
func NewService(store Store, quota Quota, llm Completions, roller Roller, modelChat, modelClassifier string, logger zerolog.Logger) *Service {
	return &Service{
		store:           store,
		quota:           quota,
		llm:             llm,
		roller:          roller,
		modelChat:       modelChat,
		modelClassifier: modelClassifier,
		logger:          logger.With().Str("service", "chat").Logger(),
	}
}

// SendResult is the outcome of a direct-chat turn. Replies holds 1 to 3
// persisted companion messages; the first is the primary reply.
type SendResult struct {
	Replies []models.Message
	Quota   *ratelimit.Result
}

// SendMessage produces a companion's reply chain for one user message. Each
// reply is an independent credit- and quota-bearing unit: if either runs out
// partway through the chain, the chain stops and already-committed replies
// stay committed. A follow-up request produces exactly one unit and does not
// persist the prompt as a fresh user turn.
func (s *Service) SendMessage(ctx context.Context, userID, companionID, prompt string, isFollowUp bool) (*SendResult, error) {
	companion, err := s.store.Companion(ctx, companionID)
	if err != nil {
		return nil, err
	}

	result := &SendResult{}
	currentPrompt := prompt
	persistPrompt := !isFollowUp

	for {
		quota, err := s.quota.CheckAndIncrement(ctx, userID)
		if err != nil {
			return nil, err
		}
		result.Quota = quota
		if !quota.Allowed {
			if len(result.Replies) == 0 {
				return nil, &QuotaExceededError{Result: quota}
			}
			break
		}

		// Balance precheck before spending a completion call. The
		// authoritative check is the conditional debit inside
		// RecordExchange.
		account, err := s.store.Account(ctx, userID)
		if err != nil {
			return nil, err
		}
		if account.AvailableCredits < economy.CostMessage {
			if len(result.Replies) == 0 {
				return nil, economy.ErrInsufficientCredits
			}
			break
		}

		req := &ai.ChatRequest{
			Model: s.modelChat,
			Messages: []ai.ChatMessage{
				{Role: "system", Content: ai.PersonaSystemPrompt(companion)},
				{Role: "user", Content: currentPrompt},
			},
		}

		// Chained replies are paced like typing; the primary reply is not.
		reply, err := s.generate(ctx, companion, req, len(result.Replies) > 0)
		if err != nil {
			if len(result.Replies) == 0 {
				return nil, &UpstreamError{Err: err}
			}
			s.logger.Warn().Err(err).Str("companion_id", companion.ID).Msg("chained reply failed, stopping chain")
			break
		}

		msg, err := s.store.RecordExchange(ctx, ExchangeParams{
			UserID:        userID,
			Companion:     companion,
			Prompt:        currentPrompt,
			Reply:         reply,
			PersistPrompt: persistPrompt,
			Cost:          economy.CostMessage,
			XP:            economy.XPPerBotMessage,
		})
		if err != nil {
			if errors.Is(err, economy.ErrInsufficientCredits) && len(result.Replies) > 0 {
				break
			}
			return nil, err
		}
		result.Replies = append(result.Replies, *msg)

		if isFollowUp || !companion.SendMultipleMessages {
			break
		}
		if !RollNextReply(s.roller, len(result.Replies)) {
			break
		}

		// The next prompt continues from what was already said.
		switch len(result.Replies) {
		case 1:
			currentPrompt = result.Replies[0].Content
		case 2:
			currentPrompt = result.Replies[0].Content + "\n\n" + result.Replies[1].Content
		}
		persistPrompt = false
	}

	return result, nil
}

// Responder identifies a companion that replied in a group turn.
type Responder struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MessageDelay int    `json:"message_delay"`
}

// GroupResult is the outcome of a group-chat turn.
type GroupResult struct {
	BotMessages    []models.GroupMessage `json:"botMessages"`
	RespondingBots []Responder           `json:"respondingBots"`
}

// RespondToGroup handles one user message to a group chat: selects up to
// MaxResponders candidates, generates the main reply plus probabilistic
// follow-ups, and commits all replies, companion XP, and the aggregate user
// debit in one transaction.
func (s *Service) RespondToGroup(ctx context.Context, userID, groupID, prompt, mentionedID string) (*GroupResult, error) {
	group, err := s.store.Group(ctx, groupID)
	if err != nil {
		return nil, err
	}

	account, err := s.store.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account.AvailableCredits < economy.CostMessage {
		return nil, economy.ErrInsufficientCredits
	}

	quota, err := s.quota.CheckAndIncrement(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !quota.Allowed {
		return nil, &QuotaExceededError{Result: quota}
	}

	// The user's message is persisted before any reply is attempted, like a
	// real chat room: an upstream failure later leaves it in the history.
	if _, err := s.store.RecordUserGroupMessage(ctx, groupID, userID, prompt); err != nil {
		return nil, err
	}

	candidates := SelectCandidates(group.Members, mentionedID, s.roller)
	if len(candidates) == 0 {
		return &GroupResult{BotMessages: []models.GroupMessage{}, RespondingBots: []Responder{}}, nil
	}

	main := s.pickMainResponder(ctx, candidates, prompt, mentionedID)

	mainContent, err := s.generate(ctx, &main, &ai.ChatRequest{
		Model: s.modelChat,
		Messages: []ai.ChatMessage{
			{Role: "system", Content: ai.GroupMainPrompt(&main)},
			{Role: "user", Content: prompt},
		},
	}, true)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	replies := []BotReply{{Companion: &main, Content: mainContent}}

	// The balance caps how many replies this turn can produce.
	maxAffordable := account.AvailableCredits / economy.CostMessage

	for i := range candidates {
		if candidates[i].ID == main.ID {
			continue
		}
		if len(replies) >= maxAffordable {
			break
		}
		if !s.roller.Bool(FollowUpChance) {
			continue
		}

		c := candidates[i]
		content, err := s.generate(ctx, &c, &ai.ChatRequest{
			Model: s.modelChat,
			Messages: []ai.ChatMessage{
				{Role: "system", Content: ai.GroupFollowUpPrompt(&c)},
				{Role: "user", Content: prompt},
				{Role: "assistant", Content: mainContent},
			},
		}, true)
		if err != nil {
			s.logger.Warn().Err(err).Str("companion_id", c.ID).Msg("follow-up reply failed, skipping responder")
			continue
		}
		replies = append(replies, BotReply{Companion: &c, Content: content})
	}

	messages, err := s.store.RecordGroupReplies(ctx, groupID, userID, replies, economy.CostMessage, economy.XPPerBotMessage)
	if err != nil {
		return nil, err
	}

	result := &GroupResult{BotMessages: messages, RespondingBots: make([]Responder, 0, len(replies))}
	for _, r := range replies {
		result.RespondingBots = append(result.RespondingBots, Responder{
			ID:           r.Companion.ID,
			Name:         r.Companion.Name,
			MessageDelay: r.Companion.MessageDelay,
		})
	}
	return result, nil
}

// pickMainResponder chooses the primary replier. A mention always wins;
// otherwise a classification call ranks the candidates. Classifier failure
// falls back to the first candidate: explicit policy, not a silent bug.
func (s *Service) pickMainResponder(ctx context.Context, candidates []models.Companion, prompt, mentionedID string) models.Companion {
	if mentionedID != "" {
		for _, c := range candidates {
			if c.ID == mentionedID {
				return c
			}
		}
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	resp, err := s.llm.Chat(ctx, &ai.ChatRequest{
		Model:       s.modelClassifier,
		Temperature: 0.1,
		Messages: []ai.ChatMessage{
			{Role: "system", Content: ai.ClassifierSystemPrompt},
			{Role: "user", Content: ai.ClassifierUserPrompt(prompt, candidates)},
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("main responder classification failed, falling back to first candidate")
		return candidates[0]
	}

	idx, err := ai.ParseResponderIndex(resp.GetMessageContent(), len(candidates))
	if err != nil {
		s.logger.Warn().Err(err).Str("content", resp.GetMessageContent()).Msg("unparseable responder index, falling back to first candidate")
		return candidates[0]
	}
	return candidates[idx]
}

// generate runs the completion call. When paced, the companion's typing
// delay (base plus jitter) runs concurrently with the network call; both
// must complete before the reply is surfaced.
func (s *Service) generate(ctx context.Context, companion *models.Companion, req *ai.ChatRequest, paced bool) (string, error) {
	var timer <-chan time.Time
	if paced {
		delay := time.Duration(companion.MessageDelay)*time.Second + s.roller.Jitter(maxTypingJitter)
		if delay > 0 {
			timer = time.After(delay)
		}
	}

	resp, err := s.llm.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.GetMessageContent())
	if content == "" {
		return "", ErrEmptyCompletion
	}

	if timer != nil {
		select {
		case <-timer:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return content, nil
}
