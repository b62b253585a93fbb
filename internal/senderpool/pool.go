package senderpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sunil55999/Zorox/internal/logger"
)

// emaAlpha weights new observations in the rolling averages.
const emaAlpha = 0.2

// FMaxDefault is the consecutive-failure threshold marking a sender
// unhealthy.
const FMaxDefault = 5

// probeInterval is how often unhealthy senders are re-checked.
const probeInterval = 30 * time.Second

// ErrNoEligibleSender is returned when every sender is disabled, rate
// limited or unhealthy.
var ErrNoEligibleSender = errors.New("senderpool: no eligible sender")

// Entry is one pooled sender with its runtime metrics. Pacing is two-level:
// the pool-wide limiter caps aggregate platform traffic, the per-entry
// limiter keeps one identity below the platform's per-account ceiling.
type Entry struct {
	Sender Sender
	Handle string

	global  *rate.Limiter
	limiter *rate.Limiter

	mu                  sync.Mutex
	enabled             bool
	inFlight            int
	successRate         float64
	avgLatency          time.Duration
	consecutiveFailures int
	rateLimitedUntil    time.Time
}

// Stats is a point-in-time copy of an entry's metrics.
type Stats struct {
	ID                  int64         `json:"id"`
	Handle              string        `json:"handle"`
	Enabled             bool          `json:"enabled"`
	InFlight            int           `json:"in_flight"`
	SuccessRate         float64       `json:"success_rate"`
	AvgLatency          time.Duration `json:"avg_latency"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	RateLimitedUntil    time.Time     `json:"rate_limited_until,omitempty"`
	Eligible            bool          `json:"eligible"`
}

// Pool holds the sending identities and applies the selection policy.
type Pool struct {
	mu      sync.RWMutex
	entries map[int64]*Entry

	// limiter caps the aggregate send rate toward the platform
	limiter *rate.Limiter

	// senderRate paces each individual identity
	senderRate rate.Limit

	fMax int
	log  *logger.Logger
}

// New creates a pool. rps bounds the aggregate request rate; each identity
// is additionally paced at one request per second until overridden with
// SetPerSenderRate.
func New(rps float64, burst int, log *logger.Logger) *Pool {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pool{
		entries:    make(map[int64]*Entry),
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		senderRate: rate.Limit(1.0),
		fMax:       FMaxDefault,
		log:        log,
	}
}

// SetPerSenderRate changes the per-identity pacing, for existing entries
// too. Mainly a test hook; production keeps the conservative default.
func (p *Pool) SetPerSenderRate(rps float64) {
	if rps <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.senderRate = rate.Limit(rps)
	for _, e := range p.entries {
		e.limiter.SetLimit(p.senderRate)
	}
}

// Register adds a sender to the pool. A re-registered id replaces the old
// entry and resets its metrics.
func (p *Pool) Register(s Sender, handle string, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[s.ID()] = &Entry{
		Sender:      s,
		Handle:      handle,
		global:      p.limiter,
		limiter:     rate.NewLimiter(p.senderRate, 1),
		enabled:     enabled,
		successRate: 1.0,
	}
}

// Unregister removes a sender from the pool.
func (p *Pool) Unregister(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}

// SetEnabled flips a sender's administrative state.
func (p *Pool) SetEnabled(id int64, enabled bool) {
	p.mu.RLock()
	e := p.entries[id]
	p.mu.RUnlock()
	if e == nil {
		return
	}
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
}

// Acquire blocks until both the pool-wide and this identity's limiters
// admit one more request. Flood-wait parking (rateLimitedUntil, fed by
// RateLimited outcomes in OnComplete) is enforced at selection time by
// Pick; Acquire only paces admitted work.
func (e *Entry) Acquire(ctx context.Context) error {
	if err := e.global.Wait(ctx); err != nil {
		return err
	}
	return e.limiter.Wait(ctx)
}

func (e *Entry) eligibleLocked(now time.Time, fMax int) bool {
	return e.enabled && !now.Before(e.rateLimitedUntil) && e.consecutiveFailures < fMax
}

// Eligible reports whether the sender may take work right now.
func (e *Entry) Eligible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eligibleLocked(time.Now(), FMaxDefault)
}

// Pick selects a sender for a task. When preferred is set and that sender is
// eligible it wins; otherwise the least-loaded eligible sender is chosen,
// ties broken by success rate, then by fewest consecutive failures.
func (p *Pool) Pick(preferred *int64) (*Entry, error) {
	now := time.Now()
	p.mu.RLock()
	defer p.mu.RUnlock()

	if preferred != nil {
		if e, ok := p.entries[*preferred]; ok {
			e.mu.Lock()
			ok = e.eligibleLocked(now, p.fMax)
			e.mu.Unlock()
			if ok {
				return e, nil
			}
		}
	}

	var best *Entry
	var bestInFlight int
	var bestRate float64
	var bestFails int
	for _, e := range p.entries {
		e.mu.Lock()
		if !e.eligibleLocked(now, p.fMax) {
			e.mu.Unlock()
			continue
		}
		inFlight, sr, cf := e.inFlight, e.successRate, e.consecutiveFailures
		e.mu.Unlock()

		if best == nil ||
			inFlight < bestInFlight ||
			(inFlight == bestInFlight && sr > bestRate) ||
			(inFlight == bestInFlight && sr == bestRate && cf < bestFails) {
			best, bestInFlight, bestRate, bestFails = e, inFlight, sr, cf
		}
	}
	if best == nil {
		return nil, ErrNoEligibleSender
	}
	return best, nil
}

// NextEligibleAt returns the earliest moment a rate-limited sender frees up.
// The zero time means no sender is merely rate limited.
func (p *Pool) NextEligibleAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var min time.Time
	now := time.Now()
	for _, e := range p.entries {
		e.mu.Lock()
		until := e.rateLimitedUntil
		enabled := e.enabled && e.consecutiveFailures < p.fMax
		e.mu.Unlock()
		if !enabled || until.Before(now) {
			continue
		}
		if min.IsZero() || until.Before(min) {
			min = until
		}
	}
	return min
}

// OnDispatch marks the start of a send on the entry.
func (e *Entry) OnDispatch() {
	e.mu.Lock()
	e.inFlight++
	e.mu.Unlock()
}

// OnComplete folds a finished send into the metrics. A rate-limit outcome
// parks the sender until the platform's retry-after and does not count
// toward consecutive failures.
func (e *Entry) OnComplete(latency time.Duration, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight--

	outcome := 1.0
	if err != nil {
		se := Classify(err)
		if se.Kind == KindRateLimited {
			e.rateLimitedUntil = time.Now().Add(se.RetryAfter)
			return
		}
		outcome = 0.0
		e.consecutiveFailures++
	} else {
		e.consecutiveFailures = 0
	}

	e.successRate = (1-emaAlpha)*e.successRate + emaAlpha*outcome
	if e.avgLatency == 0 {
		e.avgLatency = latency
	} else {
		e.avgLatency = time.Duration((1-emaAlpha)*float64(e.avgLatency) + emaAlpha*float64(latency))
	}
}

// Stats returns a snapshot of every entry, sorted by id upstream if needed.
func (p *Pool) Stats() []Stats {
	now := time.Now()
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Stats, 0, len(p.entries))
	for id, e := range p.entries {
		e.mu.Lock()
		s := Stats{
			ID:                  id,
			Handle:              e.Handle,
			Enabled:             e.enabled,
			InFlight:            e.inFlight,
			SuccessRate:         e.successRate,
			AvgLatency:          e.avgLatency,
			ConsecutiveFailures: e.consecutiveFailures,
			RateLimitedUntil:    e.rateLimitedUntil,
			Eligible:            e.eligibleLocked(now, p.fMax),
		}
		e.mu.Unlock()
		out = append(out, s)
	}
	return out
}

// EligibleCount returns how many senders may take work right now.
func (p *Pool) EligibleCount() int {
	now := time.Now()
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, e := range p.entries {
		e.mu.Lock()
		if e.eligibleLocked(now, p.fMax) {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// RunProbes periodically pings unhealthy senders and readmits the ones that
// answer. Blocks until ctx is done.
func (p *Pool) RunProbes(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce(ctx)
		}
	}
}

func (p *Pool) probeOnce(ctx context.Context) {
	p.mu.RLock()
	var sick []*Entry
	for _, e := range p.entries {
		e.mu.Lock()
		if e.enabled && e.consecutiveFailures >= p.fMax {
			sick = append(sick, e)
		}
		e.mu.Unlock()
	}
	p.mu.RUnlock()

	for _, e := range sick {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := e.Sender.Ping(probeCtx)
		cancel()
		if err != nil {
			p.log.Debug().Int64("sender_id", e.Sender.ID()).Err(err).Msg("senderpool: probe failed")
			continue
		}
		e.mu.Lock()
		e.consecutiveFailures = 0
		e.mu.Unlock()
		p.log.Info().Int64("sender_id", e.Sender.ID()).Msg("senderpool: sender recovered")
	}
}
