package store

import (
	"errors"
	"time"

	"gorm.io/gorm/clause"

	"github.com/sunil55999/Zorox/internal/models"
)

// UpsertSubscription creates or renews a user's timed access.
func (s *Store) UpsertSubscription(sub *models.Subscription) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at", "added_by", "notes", "updated_at"}),
	}).Create(sub).Error
	return wrap("upsert subscription", err)
}

// GetSubscription returns a user's subscription, or ErrNotFound.
func (s *Store) GetSubscription(userID int64) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.First(&sub, "user_id = ?", userID).Error; err != nil {
		return nil, wrap("get subscription", err)
	}
	return &sub, nil
}

// ExtendSubscription adds days to an existing subscription, or creates one
// counting from now.
func (s *Store) ExtendSubscription(userID int64, days int, addedBy int64) (*models.Subscription, error) {
	sub, err := s.GetSubscription(userID)
	if errors.Is(err, ErrNotFound) {
		sub = &models.Subscription{
			UserID:    userID,
			ExpiresAt: time.Now().AddDate(0, 0, days),
			AddedBy:   addedBy,
		}
	} else if err != nil {
		return nil, err
	} else {
		base := sub.ExpiresAt
		if base.Before(time.Now()) {
			base = time.Now()
		}
		sub.ExpiresAt = base.AddDate(0, 0, days)
		sub.AddedBy = addedBy
	}
	if err := s.UpsertSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// DeleteSubscription removes a user's subscription record.
func (s *Store) DeleteSubscription(userID int64) error {
	return wrap("delete subscription", s.db.Where("user_id = ?", userID).
		Delete(&models.Subscription{}).Error)
}

// ListSubscriptions returns all subscriptions ordered by expiry.
func (s *Store) ListSubscriptions() ([]models.Subscription, error) {
	var out []models.Subscription
	if err := s.db.Order("expires_at").Find(&out).Error; err != nil {
		return nil, wrap("list subscriptions", err)
	}
	return out, nil
}

// ExpiredSubscriptions returns the users whose access lapsed at the given
// time.
func (s *Store) ExpiredSubscriptions(now time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	if err := s.db.Find(&out, "expires_at <= ?", now).Error; err != nil {
		return nil, wrap("expired subscriptions", err)
	}
	return out, nil
}
