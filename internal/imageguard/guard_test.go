package imageguard

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
)

// memStore is an in-memory block store.
type memStore struct {
	entries []models.BlockedImage
	bumps   []int64
}

func (m *memStore) LookupBlockedImage(phash uint64, pairID int64) (*models.BlockedImage, error) {
	for i := range m.entries {
		e := &m.entries[i]
		if e.Scope == models.ScopePair && (e.PairID == nil || *e.PairID != pairID) {
			continue
		}
		if bits.OnesCount64(phash^uint64(e.PHash)) <= e.Threshold {
			return e, nil
		}
	}
	return nil, nil
}

func (m *memStore) BumpImageUsage(id int64) { m.bumps = append(m.bumps, id) }

func testGuard(t *testing.T, st *memStore) *Guard {
	t.Helper()
	log, err := logger.New("error", "")
	require.NoError(t, err)
	return New(st, 5, log)
}

// gradientImage renders a deterministic test image.
func gradientImage(w, h int, seed uint8) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x*7) + seed,
				G: uint8(y * 3),
				B: uint8((x + y) * 2),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func TestHashDeterministic(t *testing.T) {
	g := testGuard(t, &memStore{})

	a := gradientImage(128, 128, 0)
	h1, err := g.Hash(a)
	require.NoError(t, err)
	h2, err := g.Hash(a)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHammingSymmetry(t *testing.T) {
	g := testGuard(t, &memStore{})

	ha, err := g.Hash(gradientImage(128, 128, 0))
	require.NoError(t, err)
	hb, err := g.Hash(gradientImage(128, 128, 200))
	require.NoError(t, err)

	assert.Equal(t,
		bits.OnesCount64(ha^hb),
		bits.OnesCount64(hb^ha),
	)
}

func TestCheckBlocked(t *testing.T) {
	st := &memStore{}
	g := testGuard(t, st)

	data := gradientImage(128, 128, 0)
	phash, err := g.Hash(data)
	require.NoError(t, err)

	st.entries = append(st.entries, models.BlockedImage{
		ID: 1, PHash: int64(phash), Scope: models.ScopeGlobal, Threshold: 5,
	})

	entry, err := g.CheckBlocked(data, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(1), entry.ID)
	assert.Equal(t, []int64{1}, st.bumps)
}

func TestCheckBlockedPassesUnknown(t *testing.T) {
	g := testGuard(t, &memStore{})

	entry, err := g.CheckBlocked(gradientImage(128, 128, 0), 1)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestUndecodableImagePasses(t *testing.T) {
	g := testGuard(t, &memStore{})

	entry, err := g.CheckBlocked([]byte("not an image"), 1)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestWatermarkProducesJPEG(t *testing.T) {
	g := testGuard(t, &memStore{})

	src := gradientImage(400, 300, 0)
	out := g.Watermark(src, "@relay_channel")
	require.NotEqual(t, src, out)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestWatermarkChangesPixels(t *testing.T) {
	g := testGuard(t, &memStore{})

	src := gradientImage(200, 200, 0)
	out := g.Watermark(src, "WATERMARK")

	orig, err := jpegOrPNG(src)
	require.NoError(t, err)
	marked, err := jpegOrPNG(out)
	require.NoError(t, err)

	// the text band around 60% height must differ
	y := 118
	diff := 0
	for x := 0; x < 200; x++ {
		r1, g1, b1, _ := orig.At(x, y).RGBA()
		r2, g2, b2, _ := marked.At(x, y).RGBA()
		if r1 != r2 || g1 != g2 || b1 != b2 {
			diff++
		}
	}
	assert.Positive(t, diff)
}

func TestWatermarkFailureLeavesOriginal(t *testing.T) {
	g := testGuard(t, &memStore{})

	src := []byte("definitely not an image")
	out := g.Watermark(src, "text")
	assert.Equal(t, src, out)

	// empty text is a no-op
	img := gradientImage(64, 64, 0)
	assert.Equal(t, img, g.Watermark(img, ""))
}

func jpegOrPNG(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
