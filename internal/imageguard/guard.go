// Package imageguard blocks visually-duplicate images by perceptual hash
// and renders watermarks onto outgoing ones.
package imageguard

import (
	"bytes"
	"fmt"
	"image"

	// register the decoders the platform actually delivers
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"

	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
)

// BlockStore is the slice of the store the guard needs.
type BlockStore interface {
	LookupBlockedImage(phash uint64, pairID int64) (*models.BlockedImage, error)
	BumpImageUsage(id int64)
}

// Guard computes perceptual hashes and consults the blocked set.
type Guard struct {
	store BlockStore
	log   *logger.Logger

	// DefaultThreshold is the Hamming radius for newly blocked entries.
	DefaultThreshold int
}

// New creates an image guard.
func New(store BlockStore, defaultThreshold int, log *logger.Logger) *Guard {
	if defaultThreshold <= 0 {
		defaultThreshold = 5
	}
	return &Guard{store: store, log: log, DefaultThreshold: defaultThreshold}
}

// Hash decodes the image bytes and returns the 64-bit perceptual hash
// (DCT of the luminance downsample, signs around the median).
func (g *Guard) Hash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("perception hash: %w", err)
	}
	return h.GetHash(), nil
}

// CheckBlocked hashes the image and scans the global and pair blocked sets.
// On a hit the entry's usage counter is bumped and the entry returned;
// a nil entry means the image passes.
func (g *Guard) CheckBlocked(data []byte, pairID int64) (*models.BlockedImage, error) {
	phash, err := g.Hash(data)
	if err != nil {
		// an undecodable image cannot be matched; let it through
		g.log.Warn().Err(err).Msg("imageguard: hash failed, image passes")
		return nil, nil
	}

	entry, err := g.store.LookupBlockedImage(phash, pairID)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		g.store.BumpImageUsage(entry.ID)
		g.log.Debug().
			Int64("entry_id", entry.ID).
			Uint64("phash", phash).
			Msg("imageguard: image blocked")
	}
	return entry, nil
}
