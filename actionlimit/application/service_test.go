package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"action-limiter/actionlimit/domain"
	"action-limiter/actionlimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

// fakeStore é um HistoryStore não atômico com falhas controláveis.
type fakeStore struct {
	mu       sync.Mutex
	data     map[string]domain.History
	failLoad bool
	failSave bool
	saves    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]domain.History)}
}

func (s *fakeStore) Load(_ context.Context, key string) (domain.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad {
		return nil, domain.ErrHistoryRead
	}
	return s.data[key].Clone(), nil
}

func (s *fakeStore) Save(_ context.Context, key string, h domain.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return domain.ErrHistoryWrite
	}
	s.saves++
	s.data[key] = h.Clone()
	return nil
}

type captureStats struct {
	events []domain.StatsEvent
	err    error
}

func (c *captureStats) Record(_ context.Context, ev domain.StatsEvent) error {
	c.events = append(c.events, ev)
	return c.err
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newService(clock *fakeClock, store domain.HistoryStore, opts ...Option) *Service {
	base := []Option{WithClock(clock.Now), WithStore(store), WithLogger(quietLogger())}
	return New(append(base, opts...)...)
}

func TestService_WindowBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	svc := newService(clock, newFakeStore(), WithPolicies(domain.PolicyTable{
		"uploads": {Limit: 3, Window: time.Hour},
	}))

	for i := 0; i < 3; i++ {
		if !svc.RecordAction(ctx, "uploads") {
			t.Fatalf("expected action %d to be recorded", i+1)
		}
		clock.Advance(time.Second)
	}

	st := svc.Inspect(ctx, "uploads")
	if st.Remaining != 0 || st.CanPerform {
		t.Fatalf("expected exhausted state, got remaining=%d canPerform=%v", st.Remaining, st.CanPerform)
	}
	if svc.RecordAction(ctx, "uploads") {
		t.Fatalf("expected 4th action to be rejected")
	}
	if got := svc.Inspect(ctx, "uploads").Used; got != 3 {
		t.Fatalf("expected history to stay at 3, got %d", got)
	}
}

func TestService_ExpiryRestoresCapacity(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	svc := newService(clock, newFakeStore())

	require.True(t, svc.RecordAction(ctx, domain.ProfileUpdates))
	clock.Advance(10 * time.Minute)
	require.True(t, svc.RecordAction(ctx, domain.ProfileUpdates))
	assert.Equal(t, 3, svc.Inspect(ctx, domain.ProfileUpdates).Remaining)

	// primeira entrada expira exatamente em t0+1h (now-ts < window deixa de valer)
	clock.Advance(50 * time.Minute)
	st := svc.Inspect(ctx, domain.ProfileUpdates)
	assert.Equal(t, 4, st.Remaining)
	assert.True(t, st.HasReset)
	assert.WithinDuration(t, clock.Now().Add(10*time.Minute), st.ResetTime, 0)

	clock.Advance(10 * time.Minute)
	st = svc.Inspect(ctx, domain.ProfileUpdates)
	assert.Equal(t, 5, st.Remaining)
	assert.False(t, st.HasReset)
}

func TestService_ResetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newService(newClock(), newFakeStore())

	for i := 0; i < 2; i++ {
		svc.Reset(ctx, domain.CommentActions)
		st := svc.Inspect(ctx, domain.CommentActions)
		if st.Remaining != 20 || !st.CanPerform {
			t.Fatalf("reset %d: expected full capacity, got %+v", i+1, st)
		}
	}
}

func TestService_UnknownCategoryIsUnlimited(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	stats := &captureStats{}
	svc := newService(newClock(), store, WithStats(stats))

	st := svc.Inspect(ctx, "nonexistent")
	assert.True(t, st.Unlimited)
	assert.True(t, st.CanPerform)
	assert.Equal(t, math.MaxInt, st.Remaining)

	for i := 0; i < 100; i++ {
		require.True(t, svc.RecordAction(ctx, "nonexistent"))
	}
	svc.Reset(ctx, "nonexistent")

	assert.Empty(t, store.data)
	require.Len(t, stats.events, 100)
	assert.True(t, stats.events[0].Unlimited)
}

func TestService_PersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := newFakeStore()

	first := newService(clock, store)
	for i := 0; i < 7; i++ {
		require.True(t, first.RecordAction(ctx, domain.LikeActions))
	}
	before := first.Inspect(ctx, domain.LikeActions).Remaining

	// "reinício": novo serviço sobre o mesmo store
	clock.Advance(5 * time.Second)
	second := newService(clock, store)
	after := second.Inspect(ctx, domain.LikeActions).Remaining

	assert.Equal(t, 23, before)
	assert.Equal(t, before, after)
	assert.Contains(t, store.data, "rateLimit_likeActions")
}

func TestService_LikeActionsScenario(t *testing.T) {
	ctx := context.Background()
	svc := newService(newClock(), newFakeStore())

	st := svc.Inspect(ctx, domain.LikeActions)
	if st.Remaining != 30 || !st.CanPerform {
		t.Fatalf("expected fresh state 30/true, got %d/%v", st.Remaining, st.CanPerform)
	}

	svc.RecordAction(ctx, domain.LikeActions)
	if got := svc.Inspect(ctx, domain.LikeActions).Remaining; got != 29 {
		t.Fatalf("expected remaining=29, got %d", got)
	}

	for i := 0; i < 29; i++ {
		svc.RecordAction(ctx, domain.LikeActions)
	}
	st = svc.Inspect(ctx, domain.LikeActions)
	if st.Remaining != 0 || st.CanPerform {
		t.Fatalf("expected 0/false after 30 actions, got %d/%v", st.Remaining, st.CanPerform)
	}
	if svc.RecordAction(ctx, domain.LikeActions) {
		t.Fatalf("expected 31st action to be rejected")
	}
}

func TestService_ProfileUpdatesScenario(t *testing.T) {
	ctx := context.Background()
	svc := newService(newClock(), newFakeStore())

	for i := 0; i < 5; i++ {
		require.True(t, svc.RecordAction(ctx, domain.ProfileUpdates))
	}
	require.False(t, svc.Inspect(ctx, domain.ProfileUpdates).CanPerform)

	svc.Reset(ctx, domain.ProfileUpdates)

	st := svc.Inspect(ctx, domain.ProfileUpdates)
	assert.Equal(t, 5, st.Remaining)
	assert.True(t, st.CanPerform)
}

func TestService_ReadFailureTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.data["rateLimit_followActions"] = domain.History{1, 2, 3}
	store.failLoad = true

	svc := newService(newClock(), store)
	assert.Equal(t, 20, svc.Inspect(ctx, domain.FollowActions).Remaining)
	assert.True(t, svc.RecordAction(ctx, domain.FollowActions))
}

func TestService_WriteFailureKeepsInMemoryEffect(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := newFakeStore()
	store.failSave = true

	svc := newService(clock, store, WithPolicies(domain.PolicyTable{
		"posts": {Limit: 2, Window: time.Hour},
	}))

	assert.True(t, svc.RecordAction(ctx, "posts"))
	assert.True(t, svc.RecordAction(ctx, "posts"))
	assert.False(t, svc.RecordAction(ctx, "posts"), "limit must hold within the session")
	assert.Empty(t, store.data)

	// storage volta: a próxima escrita leva o estado em memória junto
	store.failSave = false
	svc.Inspect(ctx, "posts")
	clock.Advance(2 * time.Hour)
	assert.True(t, svc.RecordAction(ctx, "posts"))
	assert.Len(t, store.data["rateLimit_posts"], 1)
}

func TestService_ClockMovingBackwardsKeepsEntries(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	svc := newService(clock, newFakeStore())

	require.True(t, svc.RecordAction(ctx, domain.LikeActions))
	clock.Advance(-10 * time.Minute)

	assert.Equal(t, 29, svc.Inspect(ctx, domain.LikeActions).Remaining)
}

func TestService_InspectPersistsPrunedHistory(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := newFakeStore()
	svc := newService(clock, store)

	svc.RecordAction(ctx, domain.LikeActions)
	clock.Advance(time.Minute)
	svc.Inspect(ctx, domain.LikeActions)

	assert.Empty(t, store.data["rateLimit_likeActions"])
}

func TestService_KeyPrefix(t *testing.T) {
	store := newFakeStore()
	svc := newService(newClock(), store, WithKeyPrefix("device42:"))

	svc.RecordAction(context.Background(), domain.Messages)
	assert.Contains(t, store.data, "device42:messages")
}

func TestService_StatsFailureDoesNotAffectDecision(t *testing.T) {
	stats := &captureStats{err: errors.New("down")}
	svc := newService(newClock(), newFakeStore(), WithStats(stats), WithPolicies(domain.PolicyTable{
		"x": {Limit: 1, Window: time.Minute},
	}))

	assert.True(t, svc.RecordAction(context.Background(), "x"))
	assert.False(t, svc.RecordAction(context.Background(), "x"))
	require.Len(t, stats.events, 2)
	assert.True(t, stats.events[0].Allowed)
	assert.False(t, stats.events[1].Allowed)
}

func TestService_AtomicStoreSharedBetweenServices(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := infra.NewMemoryStore()
	policies := WithPolicies(domain.PolicyTable{"msg": {Limit: 4, Window: time.Hour}})

	a := newService(clock, store, policies)
	b := newService(clock, store, policies)

	allowed := 0
	for i := 0; i < 4; i++ {
		if a.RecordAction(ctx, "msg") {
			allowed++
		}
		if b.RecordAction(ctx, "msg") {
			allowed++
		}
	}

	assert.Equal(t, 4, allowed)
	assert.Equal(t, 0, a.Inspect(ctx, "msg").Remaining)
	assert.Equal(t, 0, b.Inspect(ctx, "msg").Remaining)
}

func TestService_ConcurrentRecordNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	svc := newService(newClock(), infra.NewMemoryStore(), WithPolicies(domain.PolicyTable{
		"c": {Limit: 10, Window: time.Hour},
	}))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.RecordAction(ctx, "c") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestService_SnapshotCoversAllPolicies(t *testing.T) {
	svc := newService(newClock(), newFakeStore())

	states := svc.Snapshot(context.Background())
	require.Len(t, states, len(domain.DefaultPolicies()))
	for _, st := range states {
		assert.Equal(t, st.Limit, st.Remaining, "category %s", st.Category)
	}
}

func TestService_EveryWriteFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failSave = true

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := newService(newClock(), store, WithLogger(logger))

	for i := 0; i < 20; i++ {
		require.True(t, svc.RecordAction(ctx, domain.LikeActions))
	}

	var records, warns int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, "action history storage failed") {
			continue
		}
		records++
		if strings.Contains(line, "level=WARN") {
			warns++
		}
	}
	assert.Equal(t, 20, records, "every failed save must produce a log record")
	assert.Equal(t, 5, warns, "only the first failures escalate to WARN")
	assert.Contains(t, buf.String(), "failures=20")
}

// conflictStore simula um store atômico que sempre perde a disputa do CAS.
type conflictStore struct {
	*infra.MemoryStore
	saves int
}

func (s *conflictStore) Save(ctx context.Context, key string, h domain.History) error {
	s.saves++
	return s.MemoryStore.Save(ctx, key, h)
}

func (s *conflictStore) Update(ctx context.Context, key string, fn domain.UpdateFunc) (domain.History, error) {
	current, err := s.MemoryStore.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, err := fn(current); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w: %s", domain.ErrHistoryWrite, domain.ErrConflict, key)
}

func TestService_ConflictDoesNotFallBackToBlindWrite(t *testing.T) {
	ctx := context.Background()
	store := &conflictStore{MemoryStore: infra.NewMemoryStore()}
	svc := newService(newClock(), store)

	require.True(t, svc.RecordAction(ctx, domain.ProfileUpdates))
	assert.Zero(t, store.saves, "a lost compare-and-swap must not be retried as a plain save")

	persisted, err := store.Load(ctx, "rateLimit_profileUpdates")
	require.NoError(t, err)
	assert.Empty(t, persisted)

	st := svc.Inspect(ctx, domain.ProfileUpdates)
	assert.Equal(t, 1, st.Used, "the decision made under contention stays in memory")
	assert.Equal(t, 4, st.Remaining)
}
