// Package admin exposes the management operations of the replication core
// and the HTTP shell mapping onto them.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sunil55999/Zorox/internal/dispatch"
	"github.com/sunil55999/Zorox/internal/filter"
	"github.com/sunil55999/Zorox/internal/health"
	"github.com/sunil55999/Zorox/internal/imageguard"
	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
	"github.com/sunil55999/Zorox/internal/pipeline"
	"github.com/sunil55999/Zorox/internal/senderpool"
	"github.com/sunil55999/Zorox/internal/store"
)

// ErrUnknownField is returned by EditPair for fields it cannot set.
var ErrUnknownField = errors.New("admin: unknown pair field")

// SenderFactory builds a live platform sender from its stored record; used
// when senders are added at runtime.
type SenderFactory func(ctx context.Context, s models.Sender) (senderpool.Sender, error)

// Service implements the management operations. The command shells (HTTP
// here, chat bots elsewhere) map onto these 1:1.
type Service struct {
	store   *store.Store
	pipe    *pipeline.Pipeline
	disp    *dispatch.Dispatcher
	pool    *senderpool.Pool
	guard   *imageguard.Guard
	sweeper *health.Sweeper
	monitor *health.Monitor
	factory SenderFactory
	log     *logger.Logger

	backupDir string
}

// NewService wires the management surface.
func NewService(
	st *store.Store,
	pipe *pipeline.Pipeline,
	disp *dispatch.Dispatcher,
	pool *senderpool.Pool,
	guard *imageguard.Guard,
	sweeper *health.Sweeper,
	monitor *health.Monitor,
	factory SenderFactory,
	backupDir string,
	log *logger.Logger,
) *Service {
	return &Service{
		store:     st,
		pipe:      pipe,
		disp:      disp,
		pool:      pool,
		guard:     guard,
		sweeper:   sweeper,
		monitor:   monitor,
		factory:   factory,
		backupDir: backupDir,
		log:       log,
	}
}

// --- pairs ---

// AddPair creates a replication binding with the default policy.
func (s *Service) AddPair(src, dst int64, name string, senderID *int64) (*models.Pair, error) {
	if src == 0 || dst == 0 {
		return nil, fmt.Errorf("source and destination chats are required")
	}
	if senderID != nil {
		if _, err := s.senderByID(*senderID); err != nil {
			return nil, err
		}
	}
	p := &models.Pair{
		SourceChat:      src,
		DestinationChat: dst,
		Name:            name,
		Status:          models.PairStatusActive,
		SenderID:        senderID,
		Filters:         models.DefaultFilterPolicy(),
	}
	if err := s.store.UpsertPair(p); err != nil {
		return nil, err
	}
	s.log.Info().Int64("pair_id", p.ID).Int64("src", src).Int64("dst", dst).Msg("admin: pair added")
	return p, nil
}

// DeletePair removes the pair and everything cascading from it.
func (s *Service) DeletePair(id int64) error {
	if _, err := s.store.GetPairByID(id); err != nil {
		return err
	}
	return s.store.DeletePair(id)
}

// EditPair sets a single pair field from its textual representation.
func (s *Service) EditPair(id int64, field, value string) (*models.Pair, error) {
	p, err := s.store.GetPairByID(id)
	if err != nil {
		return nil, err
	}

	switch field {
	case "name":
		p.Name = value
	case "status":
		switch models.PairStatus(value) {
		case models.PairStatusActive, models.PairStatusInactive:
			p.Status = models.PairStatus(value)
		default:
			return nil, fmt.Errorf("status must be active or inactive")
		}
	case "sender":
		if value == "" || value == "pool" {
			p.SenderID = nil
		} else {
			sid, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid sender id: %q", value)
			}
			if _, err := s.senderByID(sid); err != nil {
				return nil, err
			}
			p.SenderID = &sid
		}
	case "min_length", "max_length", "max_age_minutes":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", field)
		}
		switch field {
		case "min_length":
			p.Filters.MinLength = n
		case "max_length":
			p.Filters.MaxLength = n
		default:
			p.Filters.MaxAgeMinutes = n
		}
	case "sync_edits", "sync_deletes", "preserve_replies":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be a boolean", field)
		}
		switch field {
		case "sync_edits":
			p.Filters.SyncEdits = b
		case "sync_deletes":
			p.Filters.SyncDeletes = b
		default:
			p.Filters.PreserveReplies = b
		}
	case "allowed_media_types":
		var tags []models.MediaTag
		for _, t := range strings.Split(value, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, models.MediaTag(t))
			}
		}
		p.Filters.AllowedMediaTypes = tags
	default:
		return nil, ErrUnknownField
	}

	if err := s.store.UpsertPair(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPairs returns every pair.
func (s *Service) ListPairs() ([]models.Pair, error) {
	return s.store.ListPairs()
}

// PairInfo returns one pair with its policy and stats.
func (s *Service) PairInfo(id int64) (*models.Pair, error) {
	return s.store.GetPairByID(id)
}

// --- senders ---

// AddSender persists a sending identity, builds its platform client and
// admits it to the pool.
func (s *Service) AddSender(ctx context.Context, handle, credential string) (*models.Sender, error) {
	if handle == "" || credential == "" {
		return nil, fmt.Errorf("handle and credential are required")
	}
	rec := &models.Sender{DisplayHandle: handle, Credential: credential, Enabled: true}
	if err := s.store.AddSender(rec); err != nil {
		return nil, err
	}
	if s.factory != nil {
		live, err := s.factory(ctx, *rec)
		if err != nil {
			s.log.Error().Err(err).Str("handle", handle).Msg("admin: sender client failed, stored disabled")
			if _, terr := s.store.ToggleSender(rec.ID); terr != nil {
				s.log.Warn().Err(terr).Msg("admin: disable after failure failed")
			}
			return nil, fmt.Errorf("start sender client: %w", err)
		}
		s.pool.Register(live, handle, true)
	}
	s.log.Info().Int64("sender_id", rec.ID).Str("handle", handle).Msg("admin: sender added")
	return rec, nil
}

// ListSenders lists sending identities.
func (s *Service) ListSenders(includeDisabled bool) ([]models.Sender, error) {
	return s.store.ListSenders(!includeDisabled)
}

// ToggleSender flips a sender's enabled flag in store and pool.
func (s *Service) ToggleSender(id int64) (bool, error) {
	enabled, err := s.store.ToggleSender(id)
	if err != nil {
		return false, err
	}
	s.pool.SetEnabled(id, enabled)
	return enabled, nil
}

// DeleteSender removes the identity; pinned pairs fall back to the pool.
func (s *Service) DeleteSender(id int64) error {
	if err := s.store.DeleteSender(id); err != nil {
		return err
	}
	s.pool.Unregister(id)
	return nil
}

func (s *Service) senderByID(id int64) (*models.Sender, error) {
	senders, err := s.store.ListSenders(false)
	if err != nil {
		return nil, err
	}
	for i := range senders {
		if senders[i].ID == id {
			return &senders[i], nil
		}
	}
	return nil, fmt.Errorf("sender %d not found", id)
}

// --- filters ---

// BlockWord blocks a term globally or for one pair.
func (s *Service) BlockWord(word string, pairID *int64) error {
	return s.store.AddBlockedWord(word, pairID)
}

// UnblockWord removes a term block.
func (s *Service) UnblockWord(word string, pairID *int64) error {
	return s.store.RemoveBlockedWord(word, pairID)
}

// ListBlocked returns the global word set and, when pairID is set, the
// pair's set.
func (s *Service) ListBlocked(pairID *int64) (global, pair []string) {
	var id int64
	if pairID != nil {
		id = *pairID
	}
	return s.store.BlockedWordsFor(id)
}

// BlockImage hashes the image bytes and blocks everything visually similar.
func (s *Service) BlockImage(data []byte, pairID *int64, note, blockedBy string) (*models.BlockedImage, error) {
	phash, err := s.guard.Hash(data)
	if err != nil {
		return nil, err
	}
	scope := models.ScopeGlobal
	if pairID != nil {
		scope = models.ScopePair
	}
	entry := &models.BlockedImage{
		PHash:       int64(phash),
		Scope:       scope,
		PairID:      pairID,
		Threshold:   s.guard.DefaultThreshold,
		Description: note,
		BlockedBy:   blockedBy,
	}
	if err := s.store.BlockImage(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// UnblockImage removes a hash entry. The hash is given in the 16-digit hex
// form shown by ListBlockedImages.
func (s *Service) UnblockImage(phashHex string, pairID *int64) error {
	phash, err := strconv.ParseUint(phashHex, 16, 64)
	if err != nil {
		return fmt.Errorf("invalid phash %q", phashHex)
	}
	return s.store.UnblockImage(int64(phash), pairID)
}

// ListBlockedImages lists image blocks visible to a pair, or all of them.
func (s *Service) ListBlockedImages(pairID *int64) ([]models.BlockedImage, error) {
	return s.store.ListBlockedImages(pairID)
}

// SetMentions configures mention stripping for a pair.
func (s *Service) SetMentions(pairID int64, enabled bool, placeholder string) error {
	return s.editPolicy(pairID, func(f *models.FilterPolicy) error {
		f.RemoveMentions = enabled
		f.MentionPlaceholder = placeholder
		return nil
	})
}

// SetHeaderPattern sets or clears the pair's header-strip pattern.
func (s *Service) SetHeaderPattern(pairID int64, pattern string) error {
	return s.editPolicy(pairID, func(f *models.FilterPolicy) error {
		if pattern != "" {
			if err := filter.CheckPattern(pattern); err != nil {
				return err
			}
		}
		f.HeaderPattern = pattern
		return nil
	})
}

// SetFooterPattern sets or clears the pair's footer-strip pattern.
func (s *Service) SetFooterPattern(pairID int64, pattern string) error {
	return s.editPolicy(pairID, func(f *models.FilterPolicy) error {
		if pattern != "" {
			if err := filter.CheckPattern(pattern); err != nil {
				return err
			}
		}
		f.FooterPattern = pattern
		return nil
	})
}

// SetWatermark configures image watermarking for a pair.
func (s *Service) SetWatermark(pairID int64, enabled bool, text string) error {
	return s.editPolicy(pairID, func(f *models.FilterPolicy) error {
		f.WatermarkEnabled = enabled
		f.WatermarkText = text
		return nil
	})
}

func (s *Service) editPolicy(pairID int64, fn func(*models.FilterPolicy) error) error {
	p, err := s.store.GetPairByID(pairID)
	if err != nil {
		return err
	}
	if err := fn(&p.Filters); err != nil {
		return err
	}
	return s.store.UpsertPair(p)
}

// TestFilter runs a text through the pair's filter chain and reports the
// verdict with the rewritten text.
func (s *Service) TestFilter(pairID int64, text string) (filter.Result, error) {
	return s.pipe.TestFilter(pairID, text)
}

// --- ops ---

// Pause suspends the pipeline's event intake.
func (s *Service) Pause() { s.pipe.Pause() }

// Resume re-enables event intake.
func (s *Service) Resume() { s.pipe.Resume() }

// StatusReport summarizes the system for the status command.
type StatusReport struct {
	Paused      bool              `json:"paused"`
	Pairs       int               `json:"pairs"`
	QueueLen    int               `json:"queue_len"`
	CircuitOpen bool              `json:"circuit_open"`
	Senders     int               `json:"senders_eligible"`
	Pipeline    pipeline.Counters `json:"pipeline"`
}

// Status returns the quick summary.
func (s *Service) Status() (StatusReport, error) {
	pairs, err := s.store.ListPairs()
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{
		Paused:      s.pipe.Paused(),
		Pairs:       len(pairs),
		QueueLen:    s.disp.QueueLen(),
		CircuitOpen: s.disp.CircuitOpen(),
		Senders:     s.pool.EligibleCount(),
		Pipeline:    s.pipe.Counters(),
	}, nil
}

// StatsReport carries the detailed counters.
type StatsReport struct {
	Pipeline   pipeline.Counters `json:"pipeline"`
	Dispatcher dispatch.Counters `json:"dispatcher"`
	Pairs      []models.Pair     `json:"pairs"`
	Mappings   int64             `json:"mappings"`
}

// Stats returns per-pair counters and the global ones.
func (s *Service) Stats() (StatsReport, error) {
	pairs, err := s.store.ListPairs()
	if err != nil {
		return StatsReport{}, err
	}
	n, err := s.store.CountMappings()
	if err != nil {
		return StatsReport{}, err
	}
	return StatsReport{
		Pipeline:   s.pipe.Counters(),
		Dispatcher: s.disp.Counters(),
		Pairs:      pairs,
		Mappings:   n,
	}, nil
}

// Health returns the monitor snapshot.
func (s *Service) Health() health.Snapshot {
	return s.monitor.Snapshot()
}

// Queue returns the per-priority queue depths.
func (s *Service) Queue() map[string]int {
	return s.disp.QueueDepths()
}

// ClearQueue cancels every queued task and reports how many.
func (s *Service) ClearQueue() int {
	return s.disp.Clear()
}

// Backup writes a database backup and returns its path.
func (s *Service) Backup() (string, error) {
	return s.store.Backup(s.backupDir)
}

// Cleanup drops stale mappings and unused image blocks.
func (s *Service) Cleanup(olderThanDays int) (int64, error) {
	return s.store.Cleanup(olderThanDays)
}

// --- access ---

// AddSub grants a user timed access counted from now.
func (s *Service) AddSub(userID int64, days int, addedBy int64, notes string) (*models.Subscription, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive")
	}
	sub := &models.Subscription{
		UserID:    userID,
		ExpiresAt: time.Now().AddDate(0, 0, days),
		AddedBy:   addedBy,
		Notes:     notes,
	}
	if err := s.store.UpsertSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// RenewSub extends a user's access by the given days.
func (s *Service) RenewSub(userID int64, days int, addedBy int64) (*models.Subscription, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive")
	}
	return s.store.ExtendSubscription(userID, days, addedBy)
}

// ListSubs lists all subscriptions.
func (s *Service) ListSubs() ([]models.Subscription, error) {
	return s.store.ListSubscriptions()
}

// KickAll removes a user from every destination chat.
func (s *Service) KickAll(ctx context.Context, userID int64) (int, error) {
	return s.sweeper.KickEverywhere(ctx, userID)
}

// UnbanAll lifts a user's bans in every destination chat.
func (s *Service) UnbanAll(ctx context.Context, userID int64) (int, error) {
	return s.sweeper.UnbanEverywhere(ctx, userID)
}
