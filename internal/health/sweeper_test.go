package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
	"github.com/sunil55999/Zorox/internal/senderpool"
	"github.com/sunil55999/Zorox/internal/store"
)

// kickRecorder records kick/unban calls.
type kickRecorder struct {
	mu      sync.Mutex
	kicked  []kickCall
	unbans  []kickCall
	kickErr error
}

type kickCall struct {
	chat int64
	user int64
}

func (k *kickRecorder) ID() int64 { return 1 }
func (k *kickRecorder) SendText(context.Context, int64, string, []models.Entity, int, bool) (int, error) {
	return 1, nil
}
func (k *kickRecorder) SendMedia(context.Context, int64, models.MediaTag, []byte, string, []models.Entity, int) (int, error) {
	return 1, nil
}
func (k *kickRecorder) EditText(context.Context, int64, int, string, []models.Entity) error {
	return nil
}
func (k *kickRecorder) DeleteMessage(context.Context, int64, int) error { return nil }
func (k *kickRecorder) Ping(context.Context) error                      { return nil }

func (k *kickRecorder) KickUser(_ context.Context, chat, user int64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.kickErr != nil {
		return k.kickErr
	}
	k.kicked = append(k.kicked, kickCall{chat: chat, user: user})
	return nil
}

func (k *kickRecorder) UnbanUser(_ context.Context, chat, user int64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.unbans = append(k.unbans, kickCall{chat: chat, user: user})
	return nil
}

func testSweeper(t *testing.T) (*Sweeper, *store.Store, *kickRecorder) {
	t.Helper()
	log, err := logger.New("error", "")
	require.NoError(t, err)

	st, err := store.Open(t.TempDir()+"/sweep.db", log)
	require.NoError(t, err)

	rec := &kickRecorder{}
	pool := senderpool.New(100, 10, log)
	pool.Register(rec, "kicker", true)

	return NewSweeper(st, pool, log), st, rec
}

func addActivePair(t *testing.T, st *store.Store, src, dst int64) {
	t.Helper()
	require.NoError(t, st.UpsertPair(&models.Pair{
		SourceChat:      src,
		DestinationChat: dst,
		Name:            "p",
		Status:          models.PairStatusActive,
		Filters:         models.DefaultFilterPolicy(),
	}))
}

func TestSweepEvictsExpired(t *testing.T) {
	sw, st, rec := testSweeper(t)
	addActivePair(t, st, 100, 200)
	addActivePair(t, st, 101, 201)

	require.NoError(t, st.UpsertSubscription(&models.Subscription{
		UserID:    42,
		ExpiresAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, st.UpsertSubscription(&models.Subscription{
		UserID:    43,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	sw.SweepOnce(context.Background())

	rec.mu.Lock()
	kicked := append([]kickCall(nil), rec.kicked...)
	rec.mu.Unlock()

	// expired user kicked from both destination chats
	require.Len(t, kicked, 2)
	for _, call := range kicked {
		assert.Equal(t, int64(42), call.user)
	}

	// record removed only for the expired user
	subs, err := st.ListSubscriptions()
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(43), subs[0].UserID)
}

func TestSweepKeepsRecordOnFailure(t *testing.T) {
	sw, st, rec := testSweeper(t)
	addActivePair(t, st, 100, 200)
	rec.kickErr = context.DeadlineExceeded

	require.NoError(t, st.UpsertSubscription(&models.Subscription{
		UserID:    42,
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	sw.SweepOnce(context.Background())

	subs, err := st.ListSubscriptions()
	require.NoError(t, err)
	assert.Len(t, subs, 1, "failed eviction must keep the record for the next sweep")
}

func TestKickAndUnbanEverywhere(t *testing.T) {
	sw, st, rec := testSweeper(t)
	addActivePair(t, st, 100, 200)
	addActivePair(t, st, 101, 201)

	n, err := sw.KickEverywhere(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = sw.UnbanEverywhere(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.kicked, 2)
	assert.Len(t, rec.unbans, 2)
}
