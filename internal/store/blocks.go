package store

import (
	"errors"
	"math/bits"
	"strings"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/sunil55999/Zorox/internal/models"
)

// wordCache holds the global and per-pair blocked-word sets, replaced
// wholesale on mutation.
type wordCache struct {
	v atomic.Value // *wordSets
}

type wordSets struct {
	global  []string
	perPair map[int64][]string
}

func (c *wordCache) get() *wordSets {
	ws, _ := c.v.Load().(*wordSets)
	if ws == nil {
		return &wordSets{perPair: map[int64][]string{}}
	}
	return ws
}

func (s *Store) reloadWordCache() error {
	var rows []models.BlockedWord
	if err := s.db.Find(&rows).Error; err != nil {
		return wrap("load blocked words", err)
	}
	ws := &wordSets{perPair: map[int64][]string{}}
	for _, r := range rows {
		if r.PairID == nil {
			ws.global = append(ws.global, r.Word)
		} else {
			ws.perPair[*r.PairID] = append(ws.perPair[*r.PairID], r.Word)
		}
	}
	s.wordCache.v.Store(ws)
	return nil
}

// AddBlockedWord blocks a word globally (nil pairID) or for one pair.
// Adding an already-blocked word is a no-op.
func (s *Store) AddBlockedWord(word string, pairID *int64) error {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return nil
	}
	row := models.BlockedWord{Word: word, PairID: pairID}
	err := s.db.Where(&row).FirstOrCreate(&row).Error
	if err != nil {
		return wrap("add blocked word", err)
	}
	return s.reloadWordCache()
}

// RemoveBlockedWord unblocks a word for the given scope.
func (s *Store) RemoveBlockedWord(word string, pairID *int64) error {
	word = strings.ToLower(strings.TrimSpace(word))
	q := s.db.Where("word = ?", word)
	if pairID == nil {
		q = q.Where("pair_id IS NULL")
	} else {
		q = q.Where("pair_id = ?", *pairID)
	}
	if err := q.Delete(&models.BlockedWord{}).Error; err != nil {
		return wrap("remove blocked word", err)
	}
	return s.reloadWordCache()
}

// BlockedWordsFor returns the cached global set and the pair's set. The
// returned slices must not be mutated.
func (s *Store) BlockedWordsFor(pairID int64) (global, pair []string) {
	ws := s.wordCache.get()
	return ws.global, ws.perPair[pairID]
}

// BlockImage adds a perceptual-hash block entry. The (phash, pair_id) key is
// unique; re-blocking updates the threshold and description.
func (s *Store) BlockImage(entry *models.BlockedImage) error {
	var existing models.BlockedImage
	q := s.db.Where("p_hash = ?", entry.PHash)
	if entry.PairID == nil {
		q = q.Where("pair_id IS NULL")
	} else {
		q = q.Where("pair_id = ?", *entry.PairID)
	}
	err := q.First(&existing).Error
	switch {
	case err == nil:
		existing.Threshold = entry.Threshold
		existing.Description = entry.Description
		existing.BlockedBy = entry.BlockedBy
		*entry = existing
		return wrap("block image", s.db.Save(&existing).Error)
	case errorsIsNotFound(err):
		return wrap("block image", s.db.Create(entry).Error)
	default:
		return wrap("block image", err)
	}
}

// UnblockImage removes a hash entry for the given scope.
func (s *Store) UnblockImage(phash int64, pairID *int64) error {
	q := s.db.Where("p_hash = ?", phash)
	if pairID == nil {
		q = q.Where("pair_id IS NULL")
	} else {
		q = q.Where("pair_id = ?", *pairID)
	}
	return wrap("unblock image", q.Delete(&models.BlockedImage{}).Error)
}

// ListBlockedImages returns image blocks visible to a pair: its own entries
// plus the global ones. A nil pairID lists everything.
func (s *Store) ListBlockedImages(pairID *int64) ([]models.BlockedImage, error) {
	q := s.db.Order("created_at DESC")
	if pairID != nil {
		q = q.Where("pair_id = ? OR scope = ?", *pairID, models.ScopeGlobal)
	}
	var out []models.BlockedImage
	if err := q.Find(&out).Error; err != nil {
		return nil, wrap("list blocked images", err)
	}
	return out, nil
}

// LookupBlockedImage scans the global set and the pair's set for an entry
// within its Hamming threshold of the candidate hash. First match wins.
func (s *Store) LookupBlockedImage(phash uint64, pairID int64) (*models.BlockedImage, error) {
	var entries []models.BlockedImage
	err := s.db.Where("scope = ? OR pair_id = ?", models.ScopeGlobal, pairID).
		Find(&entries).Error
	if err != nil {
		return nil, wrap("lookup blocked image", err)
	}
	for i := range entries {
		d := bits.OnesCount64(phash ^ uint64(entries[i].PHash))
		if d <= entries[i].Threshold {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// BumpImageUsage counts a block hit.
func (s *Store) BumpImageUsage(id int64) {
	err := s.db.Model(&models.BlockedImage{}).Where("id = ?", id).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error
	if err != nil {
		s.log.Warn().Err(err).Int64("entry_id", id).Msg("store: image usage bump failed")
	}
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
