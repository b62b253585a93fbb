package health

import (
	"context"
	"time"

	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
	"github.com/sunil55999/Zorox/internal/senderpool"
	"github.com/sunil55999/Zorox/internal/store"
)

// sweepInterval is how often expired subscriptions are collected.
const sweepInterval = time.Hour

// chatPause spaces the per-chat removal calls to respect platform limits.
const chatPause = 200 * time.Millisecond

// Sweeper evicts users with lapsed subscriptions from every destination
// chat, then deletes their records.
type Sweeper struct {
	store *store.Store
	pool  *senderpool.Pool
	log   *logger.Logger
}

// NewSweeper creates a subscription sweeper.
func NewSweeper(st *store.Store, pool *senderpool.Pool, log *logger.Logger) *Sweeper {
	return &Sweeper{store: st, pool: pool, log: log}
}

// Run sweeps hourly until ctx is done. The first sweep happens after one
// interval so startup stays quiet.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce processes every currently expired subscription.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	expired, err := s.store.ExpiredSubscriptions(time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("sweeper: loading expired subscriptions failed")
		return
	}
	if len(expired) == 0 {
		return
	}

	chats, err := s.store.DestinationChats()
	if err != nil {
		s.log.Error().Err(err).Msg("sweeper: loading destination chats failed")
		return
	}

	for _, sub := range expired {
		if ctx.Err() != nil {
			return
		}
		if s.evict(ctx, sub, chats) {
			if err := s.store.DeleteSubscription(sub.UserID); err != nil {
				s.log.Warn().Err(err).Int64("user_id", sub.UserID).Msg("sweeper: subscription delete failed")
			} else {
				s.log.Info().Int64("user_id", sub.UserID).Msg("sweeper: expired subscription removed")
			}
		}
	}
}

// evict removes one user from all destination chats. Returns false when any
// removal failed so the record survives for the next sweep.
func (s *Sweeper) evict(ctx context.Context, sub models.Subscription, chats []int64) bool {
	ok := true
	for _, chat := range chats {
		entry, err := s.pool.Pick(nil)
		if err != nil {
			s.log.Warn().Err(err).Msg("sweeper: no sender available, sweep postponed")
			return false
		}
		if err := entry.Sender.KickUser(ctx, chat, sub.UserID); err != nil {
			s.log.Warn().Err(err).
				Int64("user_id", sub.UserID).
				Int64("chat", chat).
				Msg("sweeper: kick failed")
			ok = false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(chatPause):
		}
	}
	return ok
}

// KickEverywhere removes a user from every destination chat on demand.
func (s *Sweeper) KickEverywhere(ctx context.Context, userID int64) (int, error) {
	chats, err := s.store.DestinationChats()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, chat := range chats {
		entry, err := s.pool.Pick(nil)
		if err != nil {
			return n, err
		}
		if err := entry.Sender.KickUser(ctx, chat, userID); err == nil {
			n++
		}
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-time.After(chatPause):
		}
	}
	return n, nil
}

// UnbanEverywhere lifts a user's ban in every destination chat.
func (s *Sweeper) UnbanEverywhere(ctx context.Context, userID int64) (int, error) {
	chats, err := s.store.DestinationChats()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, chat := range chats {
		entry, err := s.pool.Pick(nil)
		if err != nil {
			return n, err
		}
		if err := entry.Sender.UnbanUser(ctx, chat, userID); err == nil {
			n++
		}
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-time.After(chatPause):
		}
	}
	return n, nil
}
