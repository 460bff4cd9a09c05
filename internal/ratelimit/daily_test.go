package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/models"
)

// memCounters implements CounterStore with the same conditional-increment
// semantics as the Postgres store.
type memCounters struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemCounters() *memCounters {
	return &memCounters{counts: make(map[string]int)}
}

func key(userID string, day time.Time) string {
	return userID + "|" + day.Format("2006-01-02")
}

func (m *memCounters) IncrementIfBelow(_ context.Context, userID string, day time.Time, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(userID, day)
	if m.counts[k] >= limit {
		return m.counts[k], false, nil
	}
	m.counts[k]++
	return m.counts[k], true, nil
}

func (m *memCounters) Count(_ context.Context, userID string, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key(userID, day)], nil
}

func (m *memCounters) DeleteBefore(_ context.Context, userID string, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := day.Format("2006-01-02")
	for k := range m.counts {
		if len(k) > len(userID) && k[:len(userID)] == userID && k[len(userID)+1:] < cutoff {
			delete(m.counts, k)
		}
	}
	return nil
}

type fixedSubs struct{ price int }

func (f fixedSubs) SubscriptionPrice(context.Context, string) (int, error) {
	return f.price, nil
}

func testLimiter(price int, now time.Time) (*DailyLimiter, *memCounters) {
	counters := newMemCounters()
	l := NewDailyLimiterAt(counters, fixedSubs{price: price}, zerolog.Nop(), func() time.Time { return now })
	return l, counters
}

func TestLimitForPrice(t *testing.T) {
	cases := []struct {
		price int
		want  int
	}{
		{models.PriceFree, LimitFree},
		{models.PriceStarter, LimitStarter},
		{models.PricePro, LimitPro},
		{models.PriceUltimate, Unlimited},
		{12345, LimitFree}, // unknown price never grants a higher quota
	}
	for _, c := range cases {
		if got := LimitForPrice(c.price); got != c.want {
			t.Errorf("LimitForPrice(%d) = %d, want %d", c.price, got, c.want)
		}
	}
}

func TestExactlyLimitAllowed(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	l, _ := testLimiter(models.PriceFree, now)
	ctx := context.Background()

	for i := 1; i <= LimitFree; i++ {
		res, err := l.CheckAndIncrement(ctx, "u1")
		if err != nil {
			t.Fatalf("check %d failed: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("check %d denied, expected %d allowed", i, LimitFree)
		}
		if res.Remaining != LimitFree-i {
			t.Errorf("check %d: remaining = %d, want %d", i, res.Remaining, LimitFree-i)
		}
	}

	res, err := l.CheckAndIncrement(ctx, "u1")
	if err != nil {
		t.Fatalf("overflow check failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("call past the limit was allowed")
	}
	if res.Remaining != 0 {
		t.Errorf("exhausted remaining = %d, want 0", res.Remaining)
	}
	wantReset := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if !res.ResetAt.Equal(wantReset) {
		t.Errorf("reset at %v, want %v", res.ResetAt, wantReset)
	}
}

func TestNewDayResetsCount(t *testing.T) {
	day1 := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	counters := newMemCounters()
	now := day1
	l := NewDailyLimiterAt(counters, fixedSubs{price: models.PriceFree}, zerolog.Nop(), func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < LimitFree; i++ {
		if res, _ := l.CheckAndIncrement(ctx, "u1"); !res.Allowed {
			t.Fatal("denied before limit")
		}
	}
	if res, _ := l.CheckAndIncrement(ctx, "u1"); res.Allowed {
		t.Fatal("allowed past limit")
	}

	// Next calendar day starts a fresh counter.
	now = day1.Add(2 * time.Minute)
	res, err := l.CheckAndIncrement(ctx, "u1")
	if err != nil {
		t.Fatalf("check on new day failed: %v", err)
	}
	if !res.Allowed {
		t.Fatal("first message of the new day denied")
	}
	if res.Remaining != LimitFree-1 {
		t.Errorf("new day remaining = %d, want %d", res.Remaining, LimitFree-1)
	}

	// Yesterday's row was cleaned up.
	yesterday := Midnight(day1)
	if count, _ := counters.Count(ctx, "u1", yesterday); count != 0 {
		t.Errorf("stale counter survived cleanup: %d", count)
	}
}

func TestUltimateTierBypassesCounting(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l, counters := testLimiter(models.PriceUltimate, now)
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		res, err := l.CheckAndIncrement(ctx, "u1")
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if !res.Allowed {
			t.Fatal("ultimate tier denied")
		}
		if res.Limit != Unlimited {
			t.Fatalf("limit = %d, want Unlimited", res.Limit)
		}
	}

	if count, _ := counters.Count(ctx, "u1", Midnight(now)); count != 0 {
		t.Errorf("ultimate tier wrote counter rows: %d", count)
	}
}

func TestConcurrentChecksNeverOverAdmit(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l, _ := testLimiter(models.PriceFree, now)
	ctx := context.Background()

	// Burn the quota down to 5 remaining.
	remaining := 5
	for i := 0; i < LimitFree-remaining; i++ {
		if res, _ := l.CheckAndIncrement(ctx, "u1"); !res.Allowed {
			t.Fatal("denied during warmup")
		}
	}

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.CheckAndIncrement(ctx, "u1")
			if err != nil {
				t.Errorf("concurrent check failed: %v", err)
				return
			}
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != remaining {
		t.Fatalf("%d of %d concurrent checks allowed, want exactly %d", allowed, n, remaining)
	}
}

func TestStatusDoesNotConsume(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l, _ := testLimiter(models.PriceStarter, now)
	ctx := context.Background()

	if _, err := l.CheckAndIncrement(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		res, err := l.Status(ctx, "u1")
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if res.Used != 1 || res.Remaining != LimitStarter-1 {
			t.Fatalf("status = used %d remaining %d, want 1/%d", res.Used, res.Remaining, LimitStarter-1)
		}
	}
}

func TestMidnightNormalization(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	at := time.Date(2025, 6, 1, 23, 45, 12, 999, loc)
	mid := Midnight(at)
	if mid.Hour() != 0 || mid.Minute() != 0 || mid.Second() != 0 || mid.Nanosecond() != 0 {
		t.Fatalf("Midnight(%v) = %v", at, mid)
	}
	if mid.Day() != 1 || mid.Location() != loc {
		t.Fatalf("Midnight moved day or location: %v", mid)
	}
}
