// Package pipeline orchestrates the per-event replication flow: classify,
// filter, transform, enqueue and record the mapping.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sunil55999/Zorox/internal/dispatch"
	"github.com/sunil55999/Zorox/internal/filter"
	"github.com/sunil55999/Zorox/internal/imageguard"
	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
	"github.com/sunil55999/Zorox/internal/store"
)

// shardCount fixes how many event loops run; events of one source chat
// always land on the same shard so source order survives up to the queue.
const shardCount = 16

// enqueueTimeout bounds how long the listener-facing side waits on a full
// shard before dropping the event.
const enqueueTimeout = 50 * time.Millisecond

// Counters are the pipeline's monotonic event counts.
type Counters struct {
	Processed     uint64            `json:"processed"`
	Copied        uint64            `json:"copied"`
	Filtered      uint64            `json:"filtered"`
	FilterReasons map[string]uint64 `json:"filter_reasons"`
	EditsSynced   uint64            `json:"edits_synced"`
	DeletesSynced uint64            `json:"deletes_synced"`
	Errors        uint64            `json:"errors"`
	Overflowed    uint64            `json:"overflowed"`
	PausedDrops   uint64            `json:"paused_drops"`
}

// Pipeline turns listener events into dispatch tasks and keeps the mapping
// store consistent with the destination chats.
type Pipeline struct {
	store  *store.Store
	engine *filter.Engine
	guard  *imageguard.Guard
	disp   *dispatch.Dispatcher
	events EventSink
	log    *logger.Logger

	shards [shardCount]chan event
	locks  stripedLocks

	// bounds concurrent media downloads across all shards
	dlSem chan struct{}

	paused atomic.Bool
	wg     sync.WaitGroup

	processed     atomic.Uint64
	copied        atomic.Uint64
	filtered      atomic.Uint64
	editsSynced   atomic.Uint64
	deletesSynced atomic.Uint64
	errs          atomic.Uint64
	overflowed    atomic.Uint64
	pausedDrops   atomic.Uint64

	reasonMu sync.Mutex
	reasons  map[string]uint64
}

// New creates a pipeline. maxDownloads bounds in-flight media downloads;
// events may be nil.
func New(st *store.Store, engine *filter.Engine, guard *imageguard.Guard, disp *dispatch.Dispatcher, events EventSink, maxDownloads int, log *logger.Logger) *Pipeline {
	if maxDownloads <= 0 {
		maxDownloads = 25
	}
	p := &Pipeline{
		store:   st,
		engine:  engine,
		guard:   guard,
		disp:    disp,
		events:  events,
		log:     log,
		dlSem:   make(chan struct{}, maxDownloads),
		reasons: make(map[string]uint64),
	}
	for i := range p.shards {
		p.shards[i] = make(chan event, 256)
	}
	return p
}

// Run starts the shard loops and blocks until ctx is done.
func (p *Pipeline) Run(ctx context.Context) {
	for i := range p.shards {
		p.wg.Add(1)
		go func(ch chan event) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					p.handle(ctx, ev)
				}
			}
		}(p.shards[i])
	}
	<-ctx.Done()
	p.wg.Wait()
}

// Pause suspends event intake; incoming events are counted and ignored.
func (p *Pipeline) Pause() { p.paused.Store(true) }

// Resume re-enables event intake.
func (p *Pipeline) Resume() { p.paused.Store(false) }

// Paused reports the intake state.
func (p *Pipeline) Paused() bool { return p.paused.Load() }

// OnNew is the listener callback for a new source message. It never blocks
// longer than the enqueue timeout.
func (p *Pipeline) OnNew(msg *models.Message) {
	p.submit(event{kind: eventNew, msg: msg, chatID: msg.ChatID})
}

// OnEdit is the listener callback for an edited source message.
func (p *Pipeline) OnEdit(msg *models.Message) {
	p.submit(event{kind: eventEdit, msg: msg, chatID: msg.ChatID})
}

// OnDelete is the listener callback for deleted source messages.
func (p *Pipeline) OnDelete(chatID int64, msgIDs []int) {
	p.submit(event{kind: eventDelete, chatID: chatID, msgIDs: msgIDs})
}

func (p *Pipeline) submit(ev event) {
	if p.paused.Load() {
		p.pausedDrops.Add(1)
		return
	}
	shard := p.shards[uint64(ev.chatID)%shardCount]
	select {
	case shard <- ev:
	default:
		// shard busy: give it the grace window, then drop
		t := time.NewTimer(enqueueTimeout)
		defer t.Stop()
		select {
		case shard <- ev:
		case <-t.C:
			p.overflowed.Add(1)
			p.log.Warn().Int64("chat_id", ev.chatID).Msg("pipeline: event dropped, shard overflow")
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventNew:
		p.handleNew(ctx, ev.msg)
	case eventEdit:
		p.handleEdit(ev.msg)
	case eventDelete:
		p.handleDelete(ev.chatID, ev.msgIDs)
	}
}

func (p *Pipeline) handleNew(ctx context.Context, msg *models.Message) {
	p.processed.Add(1)
	pairs := p.store.PairsBySourceChat(msg.ChatID)
	for i := range pairs {
		pair := pairs[i]
		if !pair.IsActive() {
			continue
		}
		p.replicate(ctx, msg, pair)
	}
}

// replicate runs one message through one pair: filter, image guard, reply
// resolution, watermark, enqueue.
func (p *Pipeline) replicate(ctx context.Context, msg *models.Message, pair models.Pair) {
	// a mapping means this delivery is a duplicate; never send twice
	if _, err := p.store.GetMapping(msg.ID, pair.ID); err == nil {
		return
	}

	res := p.engine.Apply(msg, &pair)
	if res.Drop {
		p.recordDrop(msg, pair.ID, string(res.Reason))
		return
	}

	var media []byte
	if msg.Media != nil && msg.Media.Fetch != nil {
		data, err := p.download(ctx, msg)
		if err != nil {
			p.errs.Add(1)
			p.store.BumpPairStats(pair.ID, func(s *models.PairStats) { s.Errors++ })
			p.log.Warn().Err(err).Int("msg_id", msg.ID).Msg("pipeline: media download failed")
			return
		}
		media = data

		if msg.Media.IsImage() {
			entry, err := p.guard.CheckBlocked(media, pair.ID)
			if err != nil {
				p.log.Warn().Err(err).Msg("pipeline: image lookup failed, image passes")
			} else if entry != nil {
				p.store.BumpPairStats(pair.ID, func(s *models.PairStats) { s.ImagesBlocked++ })
				p.recordDrop(msg, pair.ID, "image_blocked")
				return
			}
			if pair.Filters.WatermarkEnabled && pair.Filters.WatermarkText != "" {
				media = p.guard.Watermark(media, pair.Filters.WatermarkText)
			}
		}
	}

	// reply resolution after filtering; a dropped ancestor means no link
	replyToDest := 0
	isReply := false
	var replyToSource *int
	if pair.Filters.PreserveReplies && msg.ReplyToID != 0 {
		src := msg.ReplyToID
		replyToSource = &src
		if m, err := p.store.GetMapping(msg.ReplyToID, pair.ID); err == nil {
			replyToDest = m.DestMsgID
			isReply = true
		}
	}

	t := dispatch.NewTask(dispatch.TaskSend, pair, dispatch.PriorityNormal)
	t.Text = res.Text
	t.Entities = res.Entities
	t.MediaBytes = media
	if msg.Media != nil {
		t.MediaKind = msg.Media.Tag
	}
	t.ReplyToDestID = replyToDest
	t.SourceMsgID = msg.ID
	t.PreferredSender = pair.SenderID

	headerRemoved, footerRemoved, mentions := res.HeaderRemoved, res.FooterRemoved, res.MentionsRemoved
	srcChat, hasMedia, kind := msg.ChatID, msg.Media != nil, msg.Kind()
	var replyDestPtr *int
	if isReply {
		rd := replyToDest
		replyDestPtr = &rd
	}

	t.Done = func(outcome dispatch.Outcome, destMsgID int, senderID int64, err error) {
		if outcome != dispatch.OutcomeDone {
			if outcome == dispatch.OutcomeFailed {
				p.errs.Add(1)
				p.store.BumpPairStats(pair.ID, func(s *models.PairStats) { s.Errors++ })
			}
			return
		}
		p.copied.Add(1)
		m := &models.Mapping{
			SourceMsgID:     t.SourceMsgID,
			PairID:          pair.ID,
			DestMsgID:       destMsgID,
			SenderID:        senderID,
			SourceChat:      srcChat,
			DestChat:        pair.DestinationChat,
			Kind:            kind,
			HasMedia:        hasMedia,
			IsReply:         isReply,
			ReplyToSourceID: replyToSource,
			ReplyToDestID:   replyDestPtr,
		}
		// a failed mapping write must not undo the send; warn, queue the row
		// to the repair log and move on
		if err := p.store.SaveMapping(m); err != nil {
			p.log.Warn().Err(err).Int("msg_id", t.SourceMsgID).Msg("pipeline: mapping write failed")
			p.store.AppendRepair("mapping", m)
		}
		p.store.TouchSender(senderID, time.Now())
		p.store.BumpPairStats(pair.ID, func(s *models.PairStats) {
			s.MessagesCopied++
			if isReply {
				s.RepliesPreserved++
			}
			if headerRemoved {
				s.HeadersRemoved++
			}
			if footerRemoved {
				s.FootersRemoved++
			}
			s.MentionsRemoved += int64(mentions)
			s.LastActivity = time.Now().Format(time.RFC3339)
		})
		p.publish(SubjectCopied, CopiedEvent{
			PairID:      pair.ID,
			SourceChat:  srcChat,
			DestChat:    pair.DestinationChat,
			SourceMsgID: t.SourceMsgID,
			DestMsgID:   destMsgID,
			SenderID:    senderID,
			HasMedia:    hasMedia,
			At:          time.Now(),
		})
	}

	p.enqueue(t, pair.ID)
}

func (p *Pipeline) handleEdit(msg *models.Message) {
	p.processed.Add(1)
	mappings, err := p.store.MappingsBySource(msg.ChatID, msg.ID)
	if err != nil {
		p.errs.Add(1)
		p.log.Warn().Err(err).Int("msg_id", msg.ID).Msg("pipeline: edit lookup failed")
		return
	}

	for i := range mappings {
		m := mappings[i]
		pair, err := p.store.GetPairByID(m.PairID)
		if err != nil || !pair.IsActive() || !pair.Filters.SyncEdits {
			continue
		}

		// a drop on the edited text leaves the original copy in place
		res := p.engine.Apply(msg, pair)
		if res.Drop {
			continue
		}

		mu := p.locks.stripe(m.PairID, m.SourceMsgID)
		mu.Lock()

		t := dispatch.NewTask(dispatch.TaskEdit, *pair, dispatch.PriorityHigh)
		t.Text = res.Text
		t.Entities = res.Entities
		t.DestMsgID = m.DestMsgID
		t.SourceMsgID = m.SourceMsgID
		sender := m.SenderID
		t.PreferredSender = &sender

		mapping := m
		t.Done = func(outcome dispatch.Outcome, _ int, senderID int64, err error) {
			defer mu.Unlock()
			if outcome != dispatch.OutcomeDone {
				if outcome == dispatch.OutcomeFailed {
					p.errs.Add(1)
					p.store.BumpPairStats(mapping.PairID, func(s *models.PairStats) { s.Errors++ })
				}
				return
			}
			p.editsSynced.Add(1)
			mapping.SenderID = senderID
			if err := p.store.SaveMapping(&mapping); err != nil {
				p.log.Warn().Err(err).Int("msg_id", mapping.SourceMsgID).Msg("pipeline: mapping refresh failed")
			}
			p.store.BumpPairStats(mapping.PairID, func(s *models.PairStats) { s.EditsSynced++ })
			p.publish(SubjectEdited, MutationEvent{
				PairID:      mapping.PairID,
				SourceMsgID: mapping.SourceMsgID,
				DestMsgID:   mapping.DestMsgID,
				At:          time.Now(),
			})
		}

		if !p.enqueue(t, m.PairID) {
			mu.Unlock()
		}
	}
}

func (p *Pipeline) handleDelete(chatID int64, msgIDs []int) {
	p.processed.Add(1)
	for _, id := range msgIDs {
		mappings, err := p.store.MappingsBySource(chatID, id)
		if err != nil {
			p.errs.Add(1)
			continue
		}
		for i := range mappings {
			m := mappings[i]
			pair, err := p.store.GetPairByID(m.PairID)
			if err != nil || !pair.Filters.SyncDeletes {
				continue
			}

			mu := p.locks.stripe(m.PairID, m.SourceMsgID)
			mu.Lock()

			t := dispatch.NewTask(dispatch.TaskDelete, *pair, dispatch.PriorityHigh)
			t.DestMsgID = m.DestMsgID
			t.SourceMsgID = m.SourceMsgID
			sender := m.SenderID
			t.PreferredSender = &sender

			mapping := m
			t.Done = func(outcome dispatch.Outcome, _ int, _ int64, err error) {
				defer mu.Unlock()
				if outcome != dispatch.OutcomeDone {
					if outcome == dispatch.OutcomeFailed {
						p.errs.Add(1)
						p.store.BumpPairStats(mapping.PairID, func(s *models.PairStats) { s.Errors++ })
					}
					return
				}
				p.deletesSynced.Add(1)
				if err := p.store.DeleteMapping(mapping.SourceMsgID, mapping.PairID); err != nil {
					p.log.Warn().Err(err).Int("msg_id", mapping.SourceMsgID).Msg("pipeline: mapping delete failed")
				}
				p.store.BumpPairStats(mapping.PairID, func(s *models.PairStats) { s.DeletesSynced++ })
				p.publish(SubjectDeleted, MutationEvent{
					PairID:      mapping.PairID,
					SourceMsgID: mapping.SourceMsgID,
					DestMsgID:   mapping.DestMsgID,
					At:          time.Now(),
				})
			}

			if !p.enqueue(t, m.PairID) {
				mu.Unlock()
			}
		}
	}
}

func (p *Pipeline) enqueue(t *dispatch.Task, pairID int64) bool {
	if err := p.disp.Enqueue(t); err != nil {
		p.errs.Add(1)
		p.store.BumpPairStats(pairID, func(s *models.PairStats) { s.Errors++ })
		if errors.Is(err, dispatch.ErrQueueFull) {
			p.log.Warn().Int64("pair_id", pairID).Msg("pipeline: dispatch queue full, task dropped")
		} else {
			p.log.Warn().Err(err).Int64("pair_id", pairID).Msg("pipeline: enqueue rejected")
		}
		return false
	}
	return true
}

func (p *Pipeline) download(ctx context.Context, msg *models.Message) ([]byte, error) {
	select {
	case p.dlSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.dlSem }()
	return msg.Media.Fetch(ctx)
}

func (p *Pipeline) recordDrop(msg *models.Message, pairID int64, reason string) {
	p.filtered.Add(1)
	p.reasonMu.Lock()
	p.reasons[reason]++
	p.reasonMu.Unlock()
	p.store.BumpPairStats(pairID, func(s *models.PairStats) {
		s.MessagesFiltered++
		if reason == string(filter.DropGlobalWord) || reason == string(filter.DropPairWord) {
			s.WordsBlocked++
		}
	})
	p.publish(SubjectDropped, DroppedEvent{
		PairID:      pairID,
		SourceChat:  msg.ChatID,
		SourceMsgID: msg.ID,
		Reason:      reason,
		At:          time.Now(),
	})
}

func (p *Pipeline) publish(subject string, ev any) {
	if p.events != nil {
		p.events.Publish(subject, ev)
	}
}

// Counters returns a snapshot of the pipeline counts.
func (p *Pipeline) Counters() Counters {
	p.reasonMu.Lock()
	reasons := make(map[string]uint64, len(p.reasons))
	for k, v := range p.reasons {
		reasons[k] = v
	}
	p.reasonMu.Unlock()
	return Counters{
		Processed:     p.processed.Load(),
		Copied:        p.copied.Load(),
		Filtered:      p.filtered.Load(),
		FilterReasons: reasons,
		EditsSynced:   p.editsSynced.Load(),
		DeletesSynced: p.deletesSynced.Load(),
		Errors:        p.errs.Load(),
		Overflowed:    p.overflowed.Load(),
		PausedDrops:   p.pausedDrops.Load(),
	}
}

// TestFilter runs the filter engine over a synthetic text message for one
// pair; used by the admin surface.
func (p *Pipeline) TestFilter(pairID int64, text string) (filter.Result, error) {
	pair, err := p.store.GetPairByID(pairID)
	if err != nil {
		return filter.Result{}, err
	}
	msg := &models.Message{ID: 0, ChatID: pair.SourceChat, Text: text, Timestamp: time.Now()}
	return p.engine.Apply(msg, pair), nil
}
