package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunil55999/Zorox/internal/dispatch"
	"github.com/sunil55999/Zorox/internal/filter"
	"github.com/sunil55999/Zorox/internal/imageguard"
	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
	"github.com/sunil55999/Zorox/internal/senderpool"
	"github.com/sunil55999/Zorox/internal/store"
)

// recordingSender captures every platform call.
type recordingSender struct {
	id int64

	mu      sync.Mutex
	sent    []sentCall
	edits   []editCall
	deletes []int
	nextID  int
}

type sentCall struct {
	chat    int64
	text    string
	replyTo int
}

type editCall struct {
	msgID int
	text  string
}

func (r *recordingSender) ID() int64 { return r.id }

func (r *recordingSender) SendText(_ context.Context, chat int64, text string, _ []models.Entity, replyTo int, _ bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.sent = append(r.sent, sentCall{chat: chat, text: text, replyTo: replyTo})
	return 1000 + r.nextID, nil
}

func (r *recordingSender) SendMedia(_ context.Context, chat int64, _ models.MediaTag, _ []byte, caption string, _ []models.Entity, replyTo int) (int, error) {
	return r.SendText(context.Background(), chat, caption, nil, replyTo, false)
}

func (r *recordingSender) EditText(_ context.Context, _ int64, msgID int, text string, _ []models.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits = append(r.edits, editCall{msgID: msgID, text: text})
	return nil
}

func (r *recordingSender) DeleteMessage(_ context.Context, _ int64, msgID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, msgID)
	return nil
}

func (r *recordingSender) KickUser(context.Context, int64, int64) error  { return nil }
func (r *recordingSender) UnbanUser(context.Context, int64, int64) error { return nil }
func (r *recordingSender) Ping(context.Context) error                    { return nil }

func (r *recordingSender) sentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingSender) editCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.edits)
}

type fixture struct {
	store  *store.Store
	pipe   *Pipeline
	sender *recordingSender
	cancel context.CancelFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := logger.New("error", "")
	require.NoError(t, err)

	st, err := store.Open(t.TempDir()+"/pipe.db", log)
	require.NoError(t, err)

	sender := &recordingSender{id: 7}
	pool := senderpool.New(10000, 10000, log)
	pool.SetPerSenderRate(10000)
	pool.Register(sender, "fake", true)

	disp := dispatch.New(dispatch.Config{
		Workers:      4,
		Capacity:     1000,
		MaxAttempts:  3,
		RetryBase:    5 * time.Millisecond,
		RetryCap:     50 * time.Millisecond,
		DrainTimeout: 100 * time.Millisecond,
	}, pool, log)

	guard := imageguard.New(st, 5, log)
	engine := filter.New(st, log)
	pipe := New(st, engine, guard, disp, nil, 4, log)

	ctx, cancel := context.WithCancel(context.Background())
	go disp.Run(ctx)
	go pipe.Run(ctx)
	t.Cleanup(cancel)

	return &fixture{store: st, pipe: pipe, sender: sender, cancel: cancel}
}

func (f *fixture) addPair(t *testing.T, mutate func(*models.Pair)) *models.Pair {
	t.Helper()
	p := &models.Pair{
		SourceChat:      100,
		DestinationChat: 200,
		Name:            "relay",
		Status:          models.PairStatusActive,
		Filters:         models.DefaultFilterPolicy(),
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, f.store.UpsertPair(p))
	return p
}

func newMsg(id int, text string) *models.Message {
	return &models.Message{ID: id, ChatID: 100, Text: text, Timestamp: time.Now()}
}

func TestSimpleRelay(t *testing.T) {
	f := newFixture(t)
	p := f.addPair(t, nil)

	f.pipe.OnNew(newMsg(1, "hello"))

	require.Eventually(t, func() bool {
		_, err := f.store.GetMapping(1, p.ID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, f.sender.sentCount())
	assert.Equal(t, sentCall{chat: 200, text: "hello"}, f.sender.sent[0])

	m, err := f.store.GetMapping(1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.SenderID)
	assert.NotZero(t, m.DestMsgID)
}

func TestWordBlockScenario(t *testing.T) {
	f := newFixture(t)
	p := f.addPair(t, func(p *models.Pair) {
		p.Filters.BlockedWords = []string{"spam"}
	})

	f.pipe.OnNew(newMsg(1, "buy spam now"))
	f.pipe.OnNew(newMsg(2, "spammer"))

	// only the boundary-clean message goes through
	require.Eventually(t, func() bool {
		_, err := f.store.GetMapping(2, p.ID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, f.sender.sentCount())
	_, err := f.store.GetMapping(1, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := f.store.GetPairByID(p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Stats.WordsBlocked)
	assert.Equal(t, int64(1), got.Stats.MessagesFiltered)
}

func TestDuplicateDeliveryAtMostOnce(t *testing.T) {
	f := newFixture(t)
	p := f.addPair(t, nil)

	f.pipe.OnNew(newMsg(1, "hello"))
	require.Eventually(t, func() bool {
		_, err := f.store.GetMapping(1, p.ID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	// redelivery of the same source message must not send again
	f.pipe.OnNew(newMsg(1, "hello"))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, f.sender.sentCount())
}

func TestEditSync(t *testing.T) {
	f := newFixture(t)
	p := f.addPair(t, nil)

	f.pipe.OnNew(newMsg(1, "hello"))
	require.Eventually(t, func() bool {
		_, err := f.store.GetMapping(1, p.ID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	m, err := f.store.GetMapping(1, p.ID)
	require.NoError(t, err)

	f.pipe.OnEdit(newMsg(1, "hello world"))
	require.Eventually(t, func() bool {
		return f.sender.editCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, editCall{msgID: m.DestMsgID, text: "hello world"}, f.sender.edits[0])

	// edit idempotence: the second identical edit issues one more call with
	// the same destination state
	f.pipe.OnEdit(newMsg(1, "hello world"))
	require.Eventually(t, func() bool {
		return f.sender.editCount() == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, f.sender.edits[0], f.sender.edits[1])
}

func TestEditDisabled(t *testing.T) {
	f := newFixture(t)
	p := f.addPair(t, func(p *models.Pair) {
		p.Filters.SyncEdits = false
	})

	f.pipe.OnNew(newMsg(1, "hello"))
	require.Eventually(t, func() bool {
		_, err := f.store.GetMapping(1, p.ID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	f.pipe.OnEdit(newMsg(1, "changed"))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, f.sender.editCount())
}

func TestDeleteSync(t *testing.T) {
	f := newFixture(t)
	p := f.addPair(t, func(p *models.Pair) {
		p.Filters.SyncDeletes = true
	})

	f.pipe.OnNew(newMsg(1, "hello"))
	require.Eventually(t, func() bool {
		_, err := f.store.GetMapping(1, p.ID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	m, err := f.store.GetMapping(1, p.ID)
	require.NoError(t, err)

	f.pipe.OnDelete(100, []int{1})
	require.Eventually(t, func() bool {
		f.sender.mu.Lock()
		defer f.sender.mu.Unlock()
		return len(f.sender.deletes) == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, m.DestMsgID, f.sender.deletes[0])

	// the mapping goes away with the destination copy
	require.Eventually(t, func() bool {
		_, err := f.store.GetMapping(1, p.ID)
		return err == store.ErrNotFound
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReplyPreserved(t *testing.T) {
	f := newFixture(t)
	p := f.addPair(t, nil)

	f.pipe.OnNew(newMsg(1, "first"))
	require.Eventually(t, func() bool {
		_, err := f.store.GetMapping(1, p.ID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	first, err := f.store.GetMapping(1, p.ID)
	require.NoError(t, err)

	reply := newMsg(2, "second")
	reply.ReplyToID = 1
	f.pipe.OnNew(reply)

	require.Eventually(t, func() bool {
		_, err := f.store.GetMapping(2, p.ID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, 2, f.sender.sentCount())
	assert.Equal(t, first.DestMsgID, f.sender.sent[1].replyTo)
}

func TestReplyToDroppedAncestor(t *testing.T) {
	f := newFixture(t)
	p := f.addPair(t, nil)

	// ancestor was never replicated; the reply goes out without a link
	reply := newMsg(5, "orphan reply")
	reply.ReplyToID = 4
	f.pipe.OnNew(reply)

	require.Eventually(t, func() bool {
		_, err := f.store.GetMapping(5, p.ID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	assert.Zero(t, f.sender.sent[0].replyTo)
}

func TestPauseDropsEvents(t *testing.T) {
	f := newFixture(t)
	f.addPair(t, nil)

	f.pipe.Pause()
	f.pipe.OnNew(newMsg(1, "while paused"))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, f.sender.sentCount())
	assert.Equal(t, uint64(1), f.pipe.Counters().PausedDrops)

	f.pipe.Resume()
	f.pipe.OnNew(newMsg(2, "after resume"))
	require.Eventually(t, func() bool {
		return f.sender.sentCount() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInactivePairSkipped(t *testing.T) {
	f := newFixture(t)
	f.addPair(t, func(p *models.Pair) {
		p.Status = models.PairStatusInactive
	})

	f.pipe.OnNew(newMsg(1, "hello"))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, f.sender.sentCount())
}

func TestTestFilter(t *testing.T) {
	f := newFixture(t)
	p := f.addPair(t, func(p *models.Pair) {
		p.Filters.BlockedWords = []string{"spam"}
	})

	res, err := f.pipe.TestFilter(p.ID, "clean text")
	require.NoError(t, err)
	assert.False(t, res.Drop)
	assert.Equal(t, "clean text", res.Text)

	res, err = f.pipe.TestFilter(p.ID, "buy spam now")
	require.NoError(t, err)
	assert.True(t, res.Drop)
}
