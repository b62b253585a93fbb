package senderpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
)

// fakeSender is a no-op platform sender.
type fakeSender struct {
	id      int64
	pingErr error
}

func (f *fakeSender) ID() int64 { return f.id }
func (f *fakeSender) SendText(context.Context, int64, string, []models.Entity, int, bool) (int, error) {
	return 1, nil
}
func (f *fakeSender) SendMedia(context.Context, int64, models.MediaTag, []byte, string, []models.Entity, int) (int, error) {
	return 1, nil
}
func (f *fakeSender) EditText(context.Context, int64, int, string, []models.Entity) error { return nil }
func (f *fakeSender) DeleteMessage(context.Context, int64, int) error                     { return nil }
func (f *fakeSender) KickUser(context.Context, int64, int64) error                        { return nil }
func (f *fakeSender) UnbanUser(context.Context, int64, int64) error                       { return nil }
func (f *fakeSender) Ping(context.Context) error                                          { return f.pingErr }

func testPool(t *testing.T) *Pool {
	t.Helper()
	log, err := logger.New("error", "")
	require.NoError(t, err)
	p := New(1000, 1000, log)
	p.SetPerSenderRate(1000)
	return p
}

func TestPickLeastLoaded(t *testing.T) {
	p := testPool(t)
	p.Register(&fakeSender{id: 1}, "a", true)
	p.Register(&fakeSender{id: 2}, "b", true)

	// load sender 1
	e1, err := p.Pick(ptr(int64(1)))
	require.NoError(t, err)
	e1.OnDispatch()

	picked, err := p.Pick(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), picked.Sender.ID())
}

func TestPickPreferred(t *testing.T) {
	p := testPool(t)
	p.Register(&fakeSender{id: 1}, "a", true)
	p.Register(&fakeSender{id: 2}, "b", true)

	picked, err := p.Pick(ptr(int64(2)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), picked.Sender.ID())

	// a disabled preferred sender falls back to the pool
	p.SetEnabled(2, false)
	picked, err = p.Pick(ptr(int64(2)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), picked.Sender.ID())
}

func TestNoEligibleSender(t *testing.T) {
	p := testPool(t)
	_, err := p.Pick(nil)
	assert.ErrorIs(t, err, ErrNoEligibleSender)

	p.Register(&fakeSender{id: 1}, "a", false)
	_, err = p.Pick(nil)
	assert.ErrorIs(t, err, ErrNoEligibleSender)
}

func TestRateLimitHonored(t *testing.T) {
	p := testPool(t)
	p.Register(&fakeSender{id: 1}, "a", true)

	e, err := p.Pick(nil)
	require.NoError(t, err)

	e.OnDispatch()
	e.OnComplete(time.Millisecond, RateLimited(errors.New("FLOOD_WAIT_30"), 30*time.Second))

	// no task may be assigned before the retry-after passes
	_, err = p.Pick(nil)
	assert.ErrorIs(t, err, ErrNoEligibleSender)

	next := p.NextEligibleAt()
	require.False(t, next.IsZero())
	assert.InDelta(t, 30, time.Until(next).Seconds(), 1.0)

	// rate limiting does not count toward consecutive failures
	stats := p.Stats()
	require.Len(t, stats, 1)
	assert.Zero(t, stats[0].ConsecutiveFailures)
}

func TestConsecutiveFailuresExclude(t *testing.T) {
	p := testPool(t)
	p.Register(&fakeSender{id: 1}, "a", true)

	e, _ := p.Pick(nil)
	for i := 0; i < FMaxDefault; i++ {
		e.OnDispatch()
		e.OnComplete(time.Millisecond, Transient(errors.New("boom")))
	}

	_, err := p.Pick(nil)
	assert.ErrorIs(t, err, ErrNoEligibleSender)

	// a successful probe readmits the sender
	p.probeOnce(context.Background())
	_, err = p.Pick(nil)
	assert.NoError(t, err)
}

func TestEMAUpdates(t *testing.T) {
	p := testPool(t)
	p.Register(&fakeSender{id: 1}, "a", true)

	e, _ := p.Pick(nil)
	e.OnDispatch()
	e.OnComplete(100*time.Millisecond, nil)

	stats := p.Stats()[0]
	assert.InDelta(t, 1.0, stats.SuccessRate, 1e-9)
	assert.Equal(t, 100*time.Millisecond, stats.AvgLatency)

	e.OnDispatch()
	e.OnComplete(200*time.Millisecond, Transient(errors.New("boom")))

	stats = p.Stats()[0]
	// 0.8*1.0 + 0.2*0.0
	assert.InDelta(t, 0.8, stats.SuccessRate, 1e-9)
	assert.Equal(t, 1, stats.ConsecutiveFailures)
	// 0.8*100ms + 0.2*200ms
	assert.Equal(t, 120*time.Millisecond, stats.AvgLatency)
}

func TestAcquirePaces(t *testing.T) {
	log, err := logger.New("error", "")
	require.NoError(t, err)
	p := New(1000, 1000, log)
	p.SetPerSenderRate(50)
	p.Register(&fakeSender{id: 1}, "a", true)

	e, err := p.Pick(nil)
	require.NoError(t, err)

	// burst 1: the second acquire waits roughly one pacing interval
	start := time.Now()
	require.NoError(t, e.Acquire(context.Background()))
	require.NoError(t, e.Acquire(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	// cancellation interrupts the wait
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, e.Acquire(ctx))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindTransient, Classify(errors.New("plain")).Kind)
	assert.Equal(t, KindPermanent, Classify(Permanent(errors.New("x"), "CODE")).Kind)

	se := Classify(RateLimited(errors.New("x"), 5*time.Second))
	assert.Equal(t, KindRateLimited, se.Kind)
	assert.Equal(t, 5*time.Second, se.RetryAfter)
}

func ptr[T any](v T) *T { return &v }
