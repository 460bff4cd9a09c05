package chat

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/ai"
	"github.com/companionchat/backend/internal/economy"
	"github.com/companionchat/backend/internal/models"
	"github.com/companionchat/backend/internal/ratelimit"
)

// fakeStore is an in-memory Store sharing debit semantics with the real one
// via economy.ApplyDebit.
type fakeStore struct {
	mu         sync.Mutex
	account    models.UsageAccount
	companions map[string]models.Companion
	group      *models.GroupChat

	exchanges  []ExchangeParams
	messages   []models.Message
	groupMsgs  []models.GroupMessage
	xpByBot    map[string]int
}

func newFakeStore(balance int) *fakeStore {
	return &fakeStore{
		account:    models.UsageAccount{UserID: "u1", AvailableCredits: balance},
		companions: make(map[string]models.Companion),
		xpByBot:    make(map[string]int),
	}
}

var errNotFound = errors.New("not found")

func (f *fakeStore) Companion(_ context.Context, id string) (*models.Companion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.companions[id]
	if !ok {
		return nil, errNotFound
	}
	return &c, nil
}

func (f *fakeStore) Account(_ context.Context, userID string) (*models.UsageAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := f.account
	return &acc, nil
}

func (f *fakeStore) RecordExchange(_ context.Context, p ExchangeParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := economy.ApplyDebit(&f.account, p.Cost); err != nil {
		return nil, err
	}
	if p.PersistPrompt {
		f.messages = append(f.messages, models.Message{
			ID: uuid.New().String(), CompanionID: p.Companion.ID, UserID: p.UserID,
			Role: models.RoleUser, Content: p.Prompt,
		})
	}
	reply := models.Message{
		ID: uuid.New().String(), CompanionID: p.Companion.ID, UserID: p.UserID,
		Role: models.RoleCompanion, Content: p.Reply,
	}
	f.messages = append(f.messages, reply)
	f.xpByBot[p.Companion.ID] += p.XP
	f.exchanges = append(f.exchanges, p)
	return &reply, nil
}

func (f *fakeStore) Group(_ context.Context, id string) (*models.GroupChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.group == nil || f.group.ID != id {
		return nil, errNotFound
	}
	g := *f.group
	return &g, nil
}

func (f *fakeStore) RecordUserGroupMessage(_ context.Context, groupID, userID, content string) (*models.GroupMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := models.GroupMessage{ID: uuid.New().String(), GroupChatID: groupID, SenderID: userID, Content: content}
	f.groupMsgs = append(f.groupMsgs, msg)
	return &msg, nil
}

func (f *fakeStore) RecordGroupReplies(_ context.Context, groupID, userID string, replies []BotReply, costPerReply, xpPerReply int) ([]models.GroupMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := economy.ApplyDebit(&f.account, costPerReply*len(replies)); err != nil {
		return nil, err
	}
	out := make([]models.GroupMessage, 0, len(replies))
	for _, r := range replies {
		msg := models.GroupMessage{
			ID: uuid.New().String(), GroupChatID: groupID,
			SenderID: r.Companion.ID, IsBot: true, Content: r.Content,
		}
		f.groupMsgs = append(f.groupMsgs, msg)
		f.xpByBot[r.Companion.ID] += xpPerReply
		out = append(out, msg)
	}
	return out, nil
}

// fakeQuota admits the first remaining checks.
type fakeQuota struct {
	mu        sync.Mutex
	remaining int
	limit     int
	checks    int
}

func (q *fakeQuota) CheckAndIncrement(context.Context, string) (*ratelimit.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.checks++
	if q.remaining <= 0 {
		return &ratelimit.Result{Allowed: false, Limit: q.limit, ResetAt: time.Now().Add(time.Hour)}, nil
	}
	q.remaining--
	return &ratelimit.Result{Allowed: true, Limit: q.limit, Remaining: q.remaining}, nil
}

// fakeLLM answers from a script; classifier requests are detected by their
// system prompt.
type fakeLLM struct {
	mu             sync.Mutex
	replies        []string
	classification string
	classifyErr    error
	err            error
	requests       []*ai.ChatRequest
}

func (l *fakeLLM) Chat(_ context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)

	content := ""
	if len(req.Messages) > 0 && req.Messages[0].Content == ai.ClassifierSystemPrompt {
		if l.classifyErr != nil {
			return nil, l.classifyErr
		}
		content = l.classification
	} else {
		if l.err != nil {
			return nil, l.err
		}
		if len(l.replies) == 0 {
			content = "reply"
		} else {
			content = l.replies[0]
			l.replies = l.replies[1:]
		}
	}

	resp := &ai.ChatResponse{}
	resp.Choices = append(resp.Choices, struct {
		Index        int            `json:"index"`
		Message      ai.ChatMessage `json:"message"`
		FinishReason string         `json:"finish_reason"`
	}{Message: ai.ChatMessage{Role: "assistant", Content: content}})
	return resp, nil
}

// scriptedRoller replays fixed draws.
type scriptedRoller struct {
	percent float64
	bools   []bool
}

func (r *scriptedRoller) Percent() float64 { return r.percent }
func (r *scriptedRoller) Bool(float64) bool {
	if len(r.bools) == 0 {
		return false
	}
	b := r.bools[0]
	r.bools = r.bools[1:]
	return b
}
func (r *scriptedRoller) Shuffle(int, func(i, j int))      {}
func (r *scriptedRoller) Jitter(time.Duration) time.Duration { return 0 }

func testService(store *fakeStore, quota *fakeQuota, llm *fakeLLM, roller Roller) *Service {
	return NewService(store, quota, llm, roller, "chat-model", "classifier-model", zerolog.Nop())
}

func TestSendMessageFullChain(t *testing.T) {
	store := newFakeStore(100)
	store.companions["c1"] = models.Companion{ID: "c1", Name: "Ada", SendMultipleMessages: true}
	quota := &fakeQuota{remaining: 10, limit: 15}
	llm := &fakeLLM{replies: []string{"first", "second", "third"}}

	svc := testService(store, quota, llm, &scriptedRoller{percent: 0})
	res, err := svc.SendMessage(context.Background(), "u1", "c1", "hello", false)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if len(res.Replies) != 3 {
		t.Fatalf("expected 3 chained replies at draw 0, got %d", len(res.Replies))
	}
	if store.account.AvailableCredits != 100-3*economy.CostMessage {
		t.Errorf("balance = %d, want %d", store.account.AvailableCredits, 100-3*economy.CostMessage)
	}
	if store.account.TotalSpent != 3*economy.CostMessage {
		t.Errorf("total spent = %d, want %d", store.account.TotalSpent, 3*economy.CostMessage)
	}
	if quota.checks != 3 {
		t.Errorf("quota checked %d times, want one per reply", quota.checks)
	}

	// The second prompt continues from the first reply, the third from both.
	if store.exchanges[1].Prompt != "first" {
		t.Errorf("second prompt = %q, want first reply", store.exchanges[1].Prompt)
	}
	if store.exchanges[2].Prompt != "first\n\nsecond" {
		t.Errorf("third prompt = %q, want concatenated replies", store.exchanges[2].Prompt)
	}

	// Only the original user turn is persisted as a prompt.
	if !store.exchanges[0].PersistPrompt || store.exchanges[1].PersistPrompt || store.exchanges[2].PersistPrompt {
		t.Error("only the first exchange should persist the user prompt")
	}
}

func TestSendMessageSingleReplyOnHighDraw(t *testing.T) {
	store := newFakeStore(100)
	store.companions["c1"] = models.Companion{ID: "c1", SendMultipleMessages: true}
	quota := &fakeQuota{remaining: 10, limit: 15}

	svc := testService(store, quota, &fakeLLM{}, &scriptedRoller{percent: 99})
	res, err := svc.SendMessage(context.Background(), "u1", "c1", "hello", false)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(res.Replies) != 1 {
		t.Fatalf("expected exactly 1 reply at draw 99, got %d", len(res.Replies))
	}
}

func TestSendMessageMultiDisabled(t *testing.T) {
	store := newFakeStore(100)
	store.companions["c1"] = models.Companion{ID: "c1", SendMultipleMessages: false}
	quota := &fakeQuota{remaining: 10, limit: 15}

	svc := testService(store, quota, &fakeLLM{}, &scriptedRoller{percent: 0})
	res, err := svc.SendMessage(context.Background(), "u1", "c1", "hello", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Replies) != 1 {
		t.Fatalf("expected 1 reply with multi-message disabled, got %d", len(res.Replies))
	}
}

func TestSendMessageFollowUpIsSingleUnit(t *testing.T) {
	store := newFakeStore(100)
	store.companions["c1"] = models.Companion{ID: "c1", SendMultipleMessages: true}
	quota := &fakeQuota{remaining: 10, limit: 15}

	svc := testService(store, quota, &fakeLLM{}, &scriptedRoller{percent: 0})
	res, err := svc.SendMessage(context.Background(), "u1", "c1", "continue", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Replies) != 1 {
		t.Fatalf("follow-up produced %d replies, want 1", len(res.Replies))
	}
	if store.exchanges[0].PersistPrompt {
		t.Error("follow-up prompt must not be persisted as a user turn")
	}
}

func TestSendMessageInsufficientCredits(t *testing.T) {
	store := newFakeStore(1) // message costs 2
	store.companions["c1"] = models.Companion{ID: "c1"}
	quota := &fakeQuota{remaining: 10, limit: 15}
	llm := &fakeLLM{}

	svc := testService(store, quota, llm, &scriptedRoller{percent: 99})
	_, err := svc.SendMessage(context.Background(), "u1", "c1", "hello", false)
	if !errors.Is(err, economy.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	if store.account.AvailableCredits != 1 || store.account.TotalSpent != 0 {
		t.Errorf("ledger mutated on failure: balance=%d spent=%d", store.account.AvailableCredits, store.account.TotalSpent)
	}
	if len(store.messages) != 0 {
		t.Error("message persisted despite insufficient credits")
	}
	if len(llm.requests) != 0 {
		t.Error("completion call made despite insufficient credits")
	}
}

func TestSendMessageQuotaExhausted(t *testing.T) {
	store := newFakeStore(100)
	store.companions["c1"] = models.Companion{ID: "c1"}
	quota := &fakeQuota{remaining: 0, limit: 15}

	svc := testService(store, quota, &fakeLLM{}, &scriptedRoller{percent: 99})
	_, err := svc.SendMessage(context.Background(), "u1", "c1", "hello", false)

	var qErr *QuotaExceededError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}
	if qErr.Result.Limit != 15 {
		t.Errorf("error carries limit %d, want 15", qErr.Result.Limit)
	}
	if len(store.messages) != 0 {
		t.Error("message persisted despite exhausted quota")
	}
}

func TestSendMessageChainStopsWhenCreditsRunOut(t *testing.T) {
	// Balance covers two replies; the chain stops at 2 and keeps both.
	store := newFakeStore(2*economy.CostMessage + 1)
	store.companions["c1"] = models.Companion{ID: "c1", SendMultipleMessages: true}
	quota := &fakeQuota{remaining: 10, limit: 15}

	svc := testService(store, quota, &fakeLLM{replies: []string{"one", "two", "three"}}, &scriptedRoller{percent: 0})
	res, err := svc.SendMessage(context.Background(), "u1", "c1", "hello", false)
	if err != nil {
		t.Fatalf("chain returned error instead of partial result: %v", err)
	}
	if len(res.Replies) != 2 {
		t.Fatalf("expected chain to stop at 2 replies, got %d", len(res.Replies))
	}
	if store.account.TotalSpent != 2*economy.CostMessage {
		t.Errorf("total spent = %d, want %d", store.account.TotalSpent, 2*economy.CostMessage)
	}
}

func TestSendMessageChainStopsWhenQuotaRunsOut(t *testing.T) {
	store := newFakeStore(100)
	store.companions["c1"] = models.Companion{ID: "c1", SendMultipleMessages: true}
	quota := &fakeQuota{remaining: 2, limit: 15}

	svc := testService(store, quota, &fakeLLM{}, &scriptedRoller{percent: 0})
	res, err := svc.SendMessage(context.Background(), "u1", "c1", "hello", false)
	if err != nil {
		t.Fatalf("chain returned error instead of partial result: %v", err)
	}
	if len(res.Replies) != 2 {
		t.Fatalf("expected chain to stop at quota, got %d replies", len(res.Replies))
	}
}

func TestSendMessageUpstreamFailure(t *testing.T) {
	store := newFakeStore(100)
	store.companions["c1"] = models.Companion{ID: "c1"}
	quota := &fakeQuota{remaining: 10, limit: 15}
	llm := &fakeLLM{err: errors.New("boom")}

	svc := testService(store, quota, llm, &scriptedRoller{percent: 99})
	_, err := svc.SendMessage(context.Background(), "u1", "c1", "hello", false)

	var uErr *UpstreamError
	if !errors.As(err, &uErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if store.account.TotalSpent != 0 {
		t.Error("debit applied despite upstream failure")
	}
}

func groupStore(balance int, memberIDs ...string) *fakeStore {
	store := newFakeStore(balance)
	members := make([]models.Companion, 0, len(memberIDs))
	for _, id := range memberIDs {
		c := models.Companion{ID: id, Name: "bot-" + id}
		store.companions[id] = c
		members = append(members, c)
	}
	store.group = &models.GroupChat{ID: "g1", CreatorID: "u1", Members: members}
	return store
}

func TestGroupOutOfRangeClassifierFallsBack(t *testing.T) {
	store := groupStore(100, "a", "b", "c", "d", "e")
	quota := &fakeQuota{remaining: 10, limit: 15}
	llm := &fakeLLM{classification: "9", replies: []string{"main reply"}}

	svc := testService(store, quota, llm, &scriptedRoller{percent: 50})
	res, err := svc.RespondToGroup(context.Background(), "u1", "g1", "hi all", "")
	if err != nil {
		t.Fatalf("out-of-range classification must not fail the turn: %v", err)
	}
	if len(res.BotMessages) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(res.BotMessages))
	}
	// scriptedRoller does not shuffle, so the first candidate is "a".
	if res.RespondingBots[0].ID != "a" {
		t.Errorf("main responder = %q, want fallback to first candidate", res.RespondingBots[0].ID)
	}
}

func TestGroupMentionIsMainResponder(t *testing.T) {
	store := groupStore(100, "a", "b", "c", "d")
	quota := &fakeQuota{remaining: 10, limit: 15}
	llm := &fakeLLM{classifyErr: errors.New("must not be called")}

	svc := testService(store, quota, llm, &scriptedRoller{percent: 50})
	res, err := svc.RespondToGroup(context.Background(), "u1", "g1", "hey @c", "c")
	if err != nil {
		t.Fatal(err)
	}
	if res.RespondingBots[0].ID != "c" {
		t.Errorf("main responder = %q, want mentioned companion", res.RespondingBots[0].ID)
	}
}

func TestGroupFollowUpsDebitPerReply(t *testing.T) {
	store := groupStore(100, "a", "b", "c")
	quota := &fakeQuota{remaining: 10, limit: 15}
	llm := &fakeLLM{classification: "0", replies: []string{"main", "f1", "f2"}}

	// Both non-main candidates roll true.
	svc := testService(store, quota, llm, &scriptedRoller{percent: 50, bools: []bool{true, true}})
	res, err := svc.RespondToGroup(context.Background(), "u1", "g1", "hello", "")
	if err != nil {
		t.Fatal(err)
	}

	if len(res.BotMessages) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(res.BotMessages))
	}
	wantDebit := 3 * economy.CostMessage
	if store.account.TotalSpent != wantDebit {
		t.Errorf("aggregate debit = %d, want %d", store.account.TotalSpent, wantDebit)
	}
	for _, id := range []string{"a", "b", "c"} {
		if store.xpByBot[id] != economy.XPPerBotMessage {
			t.Errorf("bot %s xp = %d, want %d", id, store.xpByBot[id], economy.XPPerBotMessage)
		}
	}
}

func TestGroupFiftyPercentRollSkipsBots(t *testing.T) {
	store := groupStore(100, "a", "b", "c")
	quota := &fakeQuota{remaining: 10, limit: 15}
	llm := &fakeLLM{classification: "0", replies: []string{"main", "follow"}}

	svc := testService(store, quota, llm, &scriptedRoller{percent: 50, bools: []bool{false, true}})
	res, err := svc.RespondToGroup(context.Background(), "u1", "g1", "hello", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.BotMessages) != 2 {
		t.Fatalf("expected main + one follow-up, got %d replies", len(res.BotMessages))
	}
}

func TestGroupInsufficientCreditsBeforeAnyWrite(t *testing.T) {
	store := groupStore(1, "a", "b")
	quota := &fakeQuota{remaining: 10, limit: 15}

	svc := testService(store, quota, &fakeLLM{}, &scriptedRoller{percent: 50})
	_, err := svc.RespondToGroup(context.Background(), "u1", "g1", "hello", "")
	if !errors.Is(err, economy.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if len(store.groupMsgs) != 0 {
		t.Error("message persisted despite insufficient credits")
	}
}

func TestGroupBalanceCapsReplyCount(t *testing.T) {
	// Balance affords exactly one reply: follow-ups are skipped even though
	// every candidate rolls true.
	store := groupStore(economy.CostMessage, "a", "b", "c")
	quota := &fakeQuota{remaining: 10, limit: 15}
	llm := &fakeLLM{classification: "0"}

	svc := testService(store, quota, llm, &scriptedRoller{percent: 50, bools: []bool{true, true}})
	res, err := svc.RespondToGroup(context.Background(), "u1", "g1", "hello", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.BotMessages) != 1 {
		t.Fatalf("expected balance to cap replies at 1, got %d", len(res.BotMessages))
	}
	if store.account.AvailableCredits != 0 {
		t.Errorf("balance = %d, want 0", store.account.AvailableCredits)
	}
}

func TestGroupManyTurnsConsistentLedger(t *testing.T) {
	store := groupStore(1000, "a", "b", "c", "d", "e")
	quota := &fakeQuota{remaining: 100, limit: 100}
	llm := &fakeLLM{classification: "1"}

	svc := testService(store, quota, llm, &scriptedRoller{percent: 50, bools: []bool{true, false, true, false, true, false}})
	for i := 0; i < 5; i++ {
		if _, err := svc.RespondToGroup(context.Background(), "u1", "g1", "turn "+strconv.Itoa(i), ""); err != nil {
			t.Fatalf("turn %d failed: %v", i, err)
		}
	}

	// Balance plus lifetime spend always equals the opening balance.
	if store.account.AvailableCredits+store.account.TotalSpent != 1000 {
		t.Fatalf("ledger drifted: balance=%d spent=%d", store.account.AvailableCredits, store.account.TotalSpent)
	}
}
