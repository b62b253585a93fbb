package store

import (
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/sunil55999/Zorox/internal/models"
)

// pairIndex caches the source_chat→pairs lookup used on every incoming
// event. The map is replaced wholesale on mutation, so readers never lock.
type pairIndex struct {
	v atomic.Value // map[int64][]models.Pair
}

func (i *pairIndex) get() map[int64][]models.Pair {
	m, _ := i.v.Load().(map[int64][]models.Pair)
	return m
}

func (s *Store) reloadPairIndex() error {
	var pairs []models.Pair
	if err := s.db.Find(&pairs).Error; err != nil {
		return wrap("load pairs", err)
	}
	idx := make(map[int64][]models.Pair, len(pairs))
	for _, p := range pairs {
		idx[p.SourceChat] = append(idx[p.SourceChat], p)
	}
	s.pairIndex.v.Store(idx)
	return nil
}

// UpsertPair creates the pair, or updates it when the id is set. The
// (source_chat, destination_chat) key is unique.
func (s *Store) UpsertPair(p *models.Pair) error {
	if err := s.db.Save(p).Error; err != nil {
		return wrap("upsert pair", err)
	}
	return s.reloadPairIndex()
}

// DeletePair removes the pair and cascades to its mappings and pair-scoped
// block entries.
func (s *Store) DeletePair(id int64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("pair_id = ?", id).Delete(&models.Mapping{}).Error; err != nil {
			return err
		}
		if err := tx.Where("pair_id = ?", id).Delete(&models.BlockedWord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("pair_id = ?", id).Delete(&models.BlockedImage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Pair{}, id).Error
	})
	if err != nil {
		return wrap("delete pair", err)
	}
	if err := s.reloadWordCache(); err != nil {
		return err
	}
	return s.reloadPairIndex()
}

// GetPairByID returns a pair, or ErrNotFound.
func (s *Store) GetPairByID(id int64) (*models.Pair, error) {
	var p models.Pair
	if err := s.db.First(&p, id).Error; err != nil {
		return nil, wrap("get pair", err)
	}
	return &p, nil
}

// ListPairs returns all pairs ordered by id.
func (s *Store) ListPairs() ([]models.Pair, error) {
	var pairs []models.Pair
	if err := s.db.Order("id").Find(&pairs).Error; err != nil {
		return nil, wrap("list pairs", err)
	}
	return pairs, nil
}

// PairsBySourceChat returns the pairs bound to a source chat from the
// in-memory index. The returned slice must not be mutated.
func (s *Store) PairsBySourceChat(chatID int64) []models.Pair {
	return s.pairIndex.get()[chatID]
}

// DestinationChats returns the distinct destination chats of active pairs.
func (s *Store) DestinationChats() ([]int64, error) {
	var chats []int64
	err := s.db.Model(&models.Pair{}).
		Where("status = ?", models.PairStatusActive).
		Distinct("destination_chat").
		Pluck("destination_chat", &chats).Error
	if err != nil {
		return nil, wrap("destination chats", err)
	}
	return chats, nil
}

// BumpPairStats applies fn to the pair's stats record and persists it.
// Counter updates are best-effort: a failed write is logged, not returned,
// because stats must never stall the pipeline.
func (s *Store) BumpPairStats(id int64, fn func(*models.PairStats)) {
	var p models.Pair
	if err := s.db.First(&p, id).Error; err != nil {
		s.log.Warn().Err(err).Int64("pair_id", id).Msg("store: stats load failed")
		return
	}
	fn(&p.Stats)
	if err := s.db.Model(&p).Update("stats", p.Stats).Error; err != nil {
		s.log.Warn().Err(err).Int64("pair_id", id).Msg("store: stats update failed")
	}
	// the cached index serves routing only; stale stats there are harmless
}
