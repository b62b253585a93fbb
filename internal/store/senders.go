package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/sunil55999/Zorox/internal/models"
)

// AddSender registers a sending identity.
func (s *Store) AddSender(sender *models.Sender) error {
	return wrap("add sender", s.db.Create(sender).Error)
}

// ToggleSender flips the enabled flag and returns the new state.
func (s *Store) ToggleSender(id int64) (bool, error) {
	var sender models.Sender
	if err := s.db.First(&sender, id).Error; err != nil {
		return false, wrap("toggle sender", err)
	}
	sender.Enabled = !sender.Enabled
	if err := s.db.Model(&sender).Update("enabled", sender.Enabled).Error; err != nil {
		return false, wrap("toggle sender", err)
	}
	return sender.Enabled, nil
}

// DeleteSender removes a sending identity. Pairs pinned to it fall back to
// pool selection.
func (s *Store) DeleteSender(id int64) error {
	if err := s.db.Model(&models.Pair{}).Where("sender_id = ?", id).
		Update("sender_id", nil).Error; err != nil {
		return wrap("delete sender", err)
	}
	if err := s.db.Delete(&models.Sender{}, id).Error; err != nil {
		return wrap("delete sender", err)
	}
	return s.reloadPairIndex()
}

// ListSenders returns senders, optionally restricted to enabled ones.
func (s *Store) ListSenders(activeOnly bool) ([]models.Sender, error) {
	q := s.db.Order("id")
	if activeOnly {
		q = q.Where("enabled = ?", true)
	}
	var out []models.Sender
	if err := q.Find(&out).Error; err != nil {
		return nil, wrap("list senders", err)
	}
	return out, nil
}

// TouchSender records a successful use of the sender.
func (s *Store) TouchSender(id int64, at time.Time) {
	err := s.db.Model(&models.Sender{}).Where("id = ?", id).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": at,
		}).Error
	if err != nil {
		s.log.Warn().Err(err).Int64("sender_id", id).Msg("store: touch sender failed")
	}
}
