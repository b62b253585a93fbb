package store

import (
	"gorm.io/gorm/clause"

	"github.com/sunil55999/Zorox/internal/models"
)

// SaveMapping upserts a mapping keyed on (source_msg_id, pair_id). Duplicate
// deliveries therefore never create duplicate rows.
func (s *Store) SaveMapping(m *models.Mapping) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_msg_id"}, {Name: "pair_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"dest_msg_id", "sender_id", "kind", "has_media",
			"is_reply", "reply_to_source_id", "reply_to_dest_id", "updated_at",
		}),
	}).Create(m).Error
	return wrap("save mapping", err)
}

// GetMapping returns the mapping for a source message within a pair, or
// ErrNotFound.
func (s *Store) GetMapping(sourceMsgID int, pairID int64) (*models.Mapping, error) {
	var m models.Mapping
	err := s.db.First(&m, "source_msg_id = ? AND pair_id = ?", sourceMsgID, pairID).Error
	if err != nil {
		return nil, wrap("get mapping", err)
	}
	return &m, nil
}

// MappingsBySource returns every pair's mapping of one source message.
func (s *Store) MappingsBySource(sourceChat int64, sourceMsgID int) ([]models.Mapping, error) {
	var out []models.Mapping
	err := s.db.Find(&out, "source_chat = ? AND source_msg_id = ?", sourceChat, sourceMsgID).Error
	if err != nil {
		return nil, wrap("mappings by source", err)
	}
	return out, nil
}

// DeleteMapping removes a single mapping row.
func (s *Store) DeleteMapping(sourceMsgID int, pairID int64) error {
	err := s.db.Where("source_msg_id = ? AND pair_id = ?", sourceMsgID, pairID).
		Delete(&models.Mapping{}).Error
	return wrap("delete mapping", err)
}

// CountMappings returns the number of mapping rows.
func (s *Store) CountMappings() (int64, error) {
	var n int64
	if err := s.db.Model(&models.Mapping{}).Count(&n).Error; err != nil {
		return 0, wrap("count mappings", err)
	}
	return n, nil
}
