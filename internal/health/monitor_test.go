package health

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunil55999/Zorox/internal/dispatch"
	"github.com/sunil55999/Zorox/internal/filter"
	"github.com/sunil55999/Zorox/internal/imageguard"
	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/pipeline"
	"github.com/sunil55999/Zorox/internal/senderpool"
	"github.com/sunil55999/Zorox/internal/store"
)

func testMonitor(t *testing.T) (*Monitor, *senderpool.Pool) {
	t.Helper()
	log, err := logger.New("error", "")
	require.NoError(t, err)

	st, err := store.Open(t.TempDir()+"/health.db", log)
	require.NoError(t, err)

	pool := senderpool.New(100, 10, log)
	disp := dispatch.New(dispatch.Config{Workers: 1, Capacity: 10}, pool, log)
	guard := imageguard.New(st, 5, log)
	pipe := pipeline.New(st, filter.New(st, log), guard, disp, nil, 1, log)

	return NewMonitor(disp, pool, pipe, prometheus.NewRegistry(), log), pool
}

func TestNoEligibleSenderAlert(t *testing.T) {
	m, _ := testMonitor(t)

	m.lastSample = time.Now()
	m.sample()

	snap := m.Snapshot()
	require.NotEmpty(t, snap.Alerts)
	assert.Equal(t, LevelCritical, snap.Alerts[0].Level)
	assert.Contains(t, snap.Alerts[0].Message, "no eligible sender")
	assert.Zero(t, snap.EligibleSenders)
}

func TestAlertDeduplication(t *testing.T) {
	m, _ := testMonitor(t)

	m.lastSample = time.Now()
	m.sample()
	m.sample()
	m.sample()

	// the same condition within the sustain window raises one alert
	snap := m.Snapshot()
	assert.Len(t, snap.Alerts, 1)
}

func TestErrorRateSustain(t *testing.T) {
	m, pool := testMonitor(t)
	// an eligible sender keeps the no-sender alert out of the count
	pool.Register(&kickRecorder{}, "probe", true)

	m.mu.Lock()
	m.errorEMA = 0.6
	m.evaluateLocked(time.Now())
	first := len(m.alerts)
	m.mu.Unlock()

	// a bad rate must persist for the sustain window before alerting
	assert.Zero(t, first)

	m.mu.Lock()
	m.critSince = time.Now().Add(-2 * sustainWindow)
	m.badSince = m.critSince
	m.evaluateLocked(time.Now())
	m.mu.Unlock()

	snap := m.Snapshot()
	require.NotEmpty(t, snap.Alerts)
	assert.Equal(t, LevelCritical, snap.Alerts[0].Level)
}

func TestSnapshotShape(t *testing.T) {
	m, _ := testMonitor(t)

	snap := m.Snapshot()
	assert.Equal(t, 10, snap.QueueCapacity)
	assert.Zero(t, snap.QueueLen)
	assert.False(t, snap.CircuitOpen)
	assert.NotNil(t, snap.QueueDepths)
}
