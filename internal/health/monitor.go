// Package health collects rolling metrics, raises alerts on degradation and
// sweeps expired subscriptions out of the destination chats.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sunil55999/Zorox/internal/dispatch"
	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/pipeline"
	"github.com/sunil55999/Zorox/internal/senderpool"
)

// checkInterval is how often the monitor samples the system.
const checkInterval = 5 * time.Second

// sustainWindow is how long a bad error rate must persist before alerting.
const sustainWindow = 60 * time.Second

// AlertLevel grades an alert.
type AlertLevel string

// Alert levels.
const (
	LevelElevated AlertLevel = "elevated"
	LevelCritical AlertLevel = "critical"
)

// Alert is one raised condition.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// Snapshot is the monitor's view of the system for status displays.
type Snapshot struct {
	Uptime          time.Duration      `json:"uptime"`
	Throughput      float64            `json:"throughput_msgs_per_sec"`
	ErrorRate       float64            `json:"error_rate"`
	QueueDepths     map[string]int     `json:"queue_depths"`
	QueueLen        int                `json:"queue_len"`
	QueueCapacity   int                `json:"queue_capacity"`
	CircuitOpen     bool               `json:"circuit_open"`
	EligibleSenders int                `json:"eligible_senders"`
	Senders         []senderpool.Stats `json:"senders"`
	Pipeline        pipeline.Counters  `json:"pipeline"`
	Dispatcher      dispatch.Counters  `json:"dispatcher"`
	Alerts          []Alert            `json:"alerts"`
}

// Monitor periodically samples the dispatcher, pool and pipeline.
type Monitor struct {
	disp *dispatch.Dispatcher
	pool *senderpool.Pool
	pipe *pipeline.Pipeline
	log  *logger.Logger

	metrics *Metrics

	mu         sync.Mutex
	alerts     []Alert
	errorEMA   float64
	badSince   time.Time
	critSince  time.Time
	throughput float64

	lastProcessed uint64
	lastCounters  dispatch.Counters
	lastSample    time.Time
	startedAt     time.Time
}

// NewMonitor creates a monitor and registers its prometheus instruments.
func NewMonitor(disp *dispatch.Dispatcher, pool *senderpool.Pool, pipe *pipeline.Pipeline, reg prometheus.Registerer, log *logger.Logger) *Monitor {
	return &Monitor{
		disp:      disp,
		pool:      pool,
		pipe:      pipe,
		log:       log,
		metrics:   NewMetrics(reg),
		startedAt: time.Now(),
	}
}

// Run samples until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	m.lastSample = time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	now := time.Now()
	pc := m.pipe.Counters()
	dc := m.disp.Counters()

	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := now.Sub(m.lastSample).Seconds()
	if elapsed > 0 {
		m.throughput = float64(pc.Processed-m.lastProcessed) / elapsed
	}
	m.lastProcessed = pc.Processed
	m.lastSample = now

	// failure rate of the interval folded into the EMA
	dd := dc.Succeeded - m.lastCounters.Succeeded
	df := dc.Failed - m.lastCounters.Failed
	if dd+df > 0 {
		rate := float64(df) / float64(dd+df)
		m.errorEMA = 0.8*m.errorEMA + 0.2*rate
	}
	m.lastCounters = dc

	m.evaluateLocked(now)

	m.metrics.Throughput.Set(m.throughput)
	m.metrics.ErrorRate.Set(m.errorEMA)
	m.metrics.EligibleSenders.Set(float64(m.pool.EligibleCount()))
	m.metrics.CopiedTotal.Set(float64(pc.Copied))
	m.metrics.FilteredTotal.Set(float64(pc.Filtered))
	if m.disp.CircuitOpen() {
		m.metrics.CircuitOpen.Set(1)
	} else {
		m.metrics.CircuitOpen.Set(0)
	}
	for prio, depth := range m.disp.QueueDepths() {
		m.metrics.QueueDepth.WithLabelValues(prio).Set(float64(depth))
	}
}

func (m *Monitor) evaluateLocked(now time.Time) {
	// error-rate alerts fire only after the rate has been bad for a minute
	if m.errorEMA > 0.25 {
		if m.badSince.IsZero() {
			m.badSince = now
		}
	} else {
		m.badSince = time.Time{}
	}
	if m.errorEMA > 0.50 {
		if m.critSince.IsZero() {
			m.critSince = now
		}
	} else {
		m.critSince = time.Time{}
	}

	if !m.critSince.IsZero() && now.Sub(m.critSince) >= sustainWindow {
		m.raiseLocked(LevelCritical, "error rate above 50% for 60s")
		m.critSince = now
	} else if !m.badSince.IsZero() && now.Sub(m.badSince) >= sustainWindow {
		m.raiseLocked(LevelElevated, "error rate above 25% for 60s")
		m.badSince = now
	}

	if capacity := m.disp.Capacity(); capacity > 0 && m.disp.QueueLen() > capacity*80/100 {
		m.raiseLocked(LevelElevated, "dispatch queue above 80% of capacity")
	}
	if m.pool.EligibleCount() < 1 {
		m.raiseLocked(LevelCritical, "no eligible sender")
	}
}

func (m *Monitor) raiseLocked(level AlertLevel, msg string) {
	// suppress duplicates of the most recent alert
	if n := len(m.alerts); n > 0 && m.alerts[n-1].Message == msg {
		if time.Since(m.alerts[n-1].At) < sustainWindow {
			return
		}
	}
	a := Alert{Level: level, Message: msg, At: time.Now()}
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > 100 {
		m.alerts = m.alerts[len(m.alerts)-100:]
	}
	m.log.Warn().Str("level", string(level)).Msg("health: " + msg)
}

// Snapshot returns the current health view.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	alerts := make([]Alert, len(m.alerts))
	copy(alerts, m.alerts)
	throughput, ema := m.throughput, m.errorEMA
	started := m.startedAt
	m.mu.Unlock()

	return Snapshot{
		Uptime:          time.Since(started),
		Throughput:      throughput,
		ErrorRate:       ema,
		QueueDepths:     m.disp.QueueDepths(),
		QueueLen:        m.disp.QueueLen(),
		QueueCapacity:   m.disp.Capacity(),
		CircuitOpen:     m.disp.CircuitOpen(),
		EligibleSenders: m.pool.EligibleCount(),
		Senders:         m.pool.Stats(),
		Pipeline:        m.pipe.Counters(),
		Dispatcher:      m.disp.Counters(),
		Alerts:          alerts,
	}
}
