package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/senderpool"
)

// Config tunes the dispatcher.
type Config struct {
	Workers      int
	Capacity     int
	MaxAttempts  int
	RetryBase    time.Duration
	RetryCap     time.Duration
	DrainTimeout time.Duration
}

// Counters are the dispatcher's monotonic event counts.
type Counters struct {
	Dispatched uint64 `json:"dispatched"`
	Succeeded  uint64 `json:"succeeded"`
	Retried    uint64 `json:"retried"`
	Failed     uint64 `json:"failed"`
	Cancelled  uint64 `json:"cancelled"`
	Rejected   uint64 `json:"rejected"`
	Overflowed uint64 `json:"overflowed"`
}

// Dispatcher owns the queue and the worker pool. Tasks are executed
// at-least-once; callers make side effects idempotent at the mapping layer.
type Dispatcher struct {
	cfg  Config
	q    *priorityQueue
	pool *senderpool.Pool
	circ *circuit
	log  *logger.Logger

	wg      sync.WaitGroup
	stopped atomic.Bool

	dispatched atomic.Uint64
	succeeded  atomic.Uint64
	retried    atomic.Uint64
	failed     atomic.Uint64
	cancelled  atomic.Uint64
	rejected   atomic.Uint64
	overflowed atomic.Uint64
}

// New creates a dispatcher; Run starts its workers.
func New(cfg Config, pool *senderpool.Pool, log *logger.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 50
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 50000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 300 * time.Millisecond
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 60 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 15 * time.Second
	}
	return &Dispatcher{
		cfg:  cfg,
		q:    newPriorityQueue(cfg.Capacity),
		pool: pool,
		circ: newCircuit(),
		log:  log,
	}
}

// Enqueue submits a task. Below-HIGH tasks are rejected with
// ErrBackpressure while the circuit is open; a full queue returns
// ErrQueueFull.
func (d *Dispatcher) Enqueue(t *Task) error {
	if d.stopped.Load() {
		return ErrQueueClosed
	}
	if !d.circ.allow(t.Priority) {
		d.rejected.Add(1)
		return ErrBackpressure
	}
	if err := d.q.push(t); err != nil {
		if errors.Is(err, ErrQueueFull) {
			d.overflowed.Add(1)
		}
		return err
	}
	return nil
}

// Run starts the worker pool and blocks until ctx is cancelled and the
// drain completes.
func (d *Dispatcher) Run(ctx context.Context) {
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				t, ok := d.q.pop()
				if !ok {
					return
				}
				d.execute(workCtx, t)
			}
		}()
	}

	<-ctx.Done()
	d.shutdown(cancelWork)
}

// shutdown stops intake, drains for at most DrainTimeout, then cancels the
// rest.
func (d *Dispatcher) shutdown(cancelWork context.CancelFunc) {
	d.stopped.Store(true)
	d.log.Info().Dur("drain_timeout", d.cfg.DrainTimeout).Msg("dispatch: draining")

	deadline := time.Now().Add(d.cfg.DrainTimeout)
	for time.Now().Before(deadline) && d.q.len() > 0 {
		time.Sleep(100 * time.Millisecond)
	}

	// abort in-flight sends and release workers
	cancelWork()
	rest := d.q.close()
	d.wg.Wait()

	for _, t := range rest {
		d.cancelled.Add(1)
		t.finish(OutcomeCancelled, 0, 0, context.Canceled)
	}
	if len(rest) > 0 {
		d.log.Warn().Int("abandoned", len(rest)).Msg("dispatch: drain timeout, tasks cancelled")
	}
}

// execute performs one attempt of a task.
func (d *Dispatcher) execute(ctx context.Context, t *Task) {
	entry, err := d.pool.Pick(t.PreferredSender)
	if err != nil {
		d.requeueNoSender(t)
		return
	}

	if err := entry.Acquire(ctx); err != nil {
		d.cancelled.Add(1)
		t.finish(OutcomeCancelled, 0, 0, err)
		return
	}

	d.dispatched.Add(1)
	entry.OnDispatch()
	start := time.Now()
	destMsgID, sendErr := d.perform(ctx, entry.Sender, t)
	entry.OnComplete(time.Since(start), sendErr)

	if sendErr == nil {
		d.succeeded.Add(1)
		d.circ.record(true)
		t.finish(OutcomeDone, destMsgID, entry.Sender.ID(), nil)
		return
	}

	if ctx.Err() != nil {
		d.cancelled.Add(1)
		t.finish(OutcomeCancelled, 0, 0, ctx.Err())
		return
	}

	se := senderpool.Classify(sendErr)
	switch se.Kind {
	case senderpool.KindPermanent:
		d.failed.Add(1)
		d.circ.record(false)
		d.log.Warn().
			Str("task", t.ID.String()).
			Str("code", se.Code).
			Err(sendErr).
			Msg("dispatch: permanent failure, task dropped")
		t.finish(OutcomeFailed, 0, 0, sendErr)

	case senderpool.KindRateLimited:
		// honors retry-after; neither task attempts nor sender failures move
		t.EarliestSendAt = time.Now().Add(se.RetryAfter)
		d.retried.Add(1)
		d.requeue(t)

	default: // transient
		d.circ.record(false)
		t.Attempts++
		if t.Attempts >= d.cfg.MaxAttempts {
			d.failed.Add(1)
			d.log.Warn().
				Str("task", t.ID.String()).
				Int("attempts", t.Attempts).
				Err(sendErr).
				Msg("dispatch: retries exhausted, task dropped")
			t.finish(OutcomeFailed, 0, 0, sendErr)
			return
		}
		t.EarliestSendAt = time.Now().Add(d.backoff(t.Attempts))
		d.retried.Add(1)
		d.requeue(t)
	}
}

func (d *Dispatcher) perform(ctx context.Context, s senderpool.Sender, t *Task) (int, error) {
	dest := t.Pair.DestinationChat
	switch t.Type {
	case TaskEdit:
		return t.DestMsgID, s.EditText(ctx, dest, t.DestMsgID, t.Text, t.Entities)
	case TaskDelete:
		return t.DestMsgID, s.DeleteMessage(ctx, dest, t.DestMsgID)
	default:
		if t.MediaBytes != nil {
			return s.SendMedia(ctx, dest, t.MediaKind, t.MediaBytes, t.Text, t.Entities, t.ReplyToDestID)
		}
		return s.SendText(ctx, dest, t.Text, t.Entities, t.ReplyToDestID, t.DisablePreview)
	}
}

// requeueNoSender delays the task until a sender frees up: the earliest
// rate-limit expiry, or the standard backoff, whichever is later.
func (d *Dispatcher) requeueNoSender(t *Task) {
	delay := d.backoff(t.Attempts + 1)
	if at := d.pool.NextEligibleAt(); !at.IsZero() {
		if until := time.Until(at); until > delay {
			delay = until
		}
	}
	t.EarliestSendAt = time.Now().Add(delay)
	d.requeue(t)
}

func (d *Dispatcher) requeue(t *Task) {
	if err := d.q.push(t); err != nil {
		d.cancelled.Add(1)
		t.finish(OutcomeCancelled, 0, 0, err)
	}
}

// backoff returns min(base·2^(a-1) + jitter, cap) with jitter ∈ [0, base).
func (d *Dispatcher) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := d.cfg.RetryBase << (attempt - 1)
	if delay > d.cfg.RetryCap || delay <= 0 {
		return d.cfg.RetryCap
	}
	jitter := time.Duration(rand.Int63n(int64(d.cfg.RetryBase)))
	if delay+jitter > d.cfg.RetryCap {
		return d.cfg.RetryCap
	}
	return delay + jitter
}

// QueueLen returns the number of queued tasks.
func (d *Dispatcher) QueueLen() int { return d.q.len() }

// QueueDepths returns the per-priority queue depth keyed by priority name.
func (d *Dispatcher) QueueDepths() map[string]int {
	depths := d.q.depths()
	out := make(map[string]int, len(depths))
	for p, n := range depths {
		out[Priority(p).String()] = n
	}
	return out
}

// Capacity returns the configured queue bound.
func (d *Dispatcher) Capacity() int { return d.cfg.Capacity }

// CircuitOpen reports the breaker state.
func (d *Dispatcher) CircuitOpen() bool { return d.circ.isOpen() }

// Counters returns a snapshot of the event counts.
func (d *Dispatcher) Counters() Counters {
	return Counters{
		Dispatched: d.dispatched.Load(),
		Succeeded:  d.succeeded.Load(),
		Retried:    d.retried.Load(),
		Failed:     d.failed.Load(),
		Cancelled:  d.cancelled.Load(),
		Rejected:   d.rejected.Load(),
		Overflowed: d.overflowed.Load(),
	}
}

// Clear cancels every queued task; running ones finish normally.
func (d *Dispatcher) Clear() int {
	rest := d.q.drainAll()
	for _, t := range rest {
		d.cancelled.Add(1)
		t.finish(OutcomeCancelled, 0, 0, context.Canceled)
	}
	return len(rest)
}
