package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.New("error", "")
	require.NoError(t, err)
	s, err := Open(t.TempDir()+"/test.db", log)
	require.NoError(t, err)
	return s
}

func testPair(t *testing.T, s *Store, src, dst int64) *models.Pair {
	t.Helper()
	p := &models.Pair{
		SourceChat:      src,
		DestinationChat: dst,
		Name:            "test",
		Status:          models.PairStatusActive,
		Filters:         models.DefaultFilterPolicy(),
	}
	require.NoError(t, s.UpsertPair(p))
	return p
}

func TestPairIndex(t *testing.T) {
	s := testStore(t)

	p1 := testPair(t, s, 100, 200)
	p2 := testPair(t, s, 100, 300)
	testPair(t, s, 101, 400)

	pairs := s.PairsBySourceChat(100)
	require.Len(t, pairs, 2)

	// index follows deletions
	require.NoError(t, s.DeletePair(p2.ID))
	pairs = s.PairsBySourceChat(100)
	require.Len(t, pairs, 1)
	assert.Equal(t, p1.ID, pairs[0].ID)

	assert.Empty(t, s.PairsBySourceChat(999))
}

func TestMappingUniqueness(t *testing.T) {
	s := testStore(t)
	p := testPair(t, s, 100, 200)

	m := &models.Mapping{
		SourceMsgID: 1,
		PairID:      p.ID,
		DestMsgID:   10,
		SourceChat:  100,
		DestChat:    200,
		Kind:        models.KindText,
	}
	require.NoError(t, s.SaveMapping(m))

	// duplicate delivery upserts, never duplicates
	dup := &models.Mapping{
		SourceMsgID: 1,
		PairID:      p.ID,
		DestMsgID:   11,
		SourceChat:  100,
		DestChat:    200,
		Kind:        models.KindText,
	}
	require.NoError(t, s.SaveMapping(dup))

	n, err := s.CountMappings()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetMapping(1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 11, got.DestMsgID)
}

func TestDeletePairCascades(t *testing.T) {
	s := testStore(t)
	p := testPair(t, s, 100, 200)
	other := testPair(t, s, 101, 201)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.SaveMapping(&models.Mapping{
			SourceMsgID: i, PairID: p.ID, DestMsgID: i + 10,
			SourceChat: 100, DestChat: 200, Kind: models.KindText,
		}))
	}
	require.NoError(t, s.SaveMapping(&models.Mapping{
		SourceMsgID: 1, PairID: other.ID, DestMsgID: 99,
		SourceChat: 101, DestChat: 201, Kind: models.KindText,
	}))

	require.NoError(t, s.DeletePair(p.ID))

	_, err := s.GetMapping(1, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// unrelated pair untouched
	got, err := s.GetMapping(1, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, got.DestMsgID)
}

func TestBlockedWords(t *testing.T) {
	s := testStore(t)
	p := testPair(t, s, 100, 200)

	require.NoError(t, s.AddBlockedWord("Spam", nil))
	require.NoError(t, s.AddBlockedWord("casino", &p.ID))
	// duplicates are no-ops
	require.NoError(t, s.AddBlockedWord("spam", nil))

	global, pair := s.BlockedWordsFor(p.ID)
	assert.Equal(t, []string{"spam"}, global)
	assert.Equal(t, []string{"casino"}, pair)

	// other pairs only see the global set
	global, pair = s.BlockedWordsFor(p.ID + 1)
	assert.Equal(t, []string{"spam"}, global)
	assert.Empty(t, pair)

	require.NoError(t, s.RemoveBlockedWord("spam", nil))
	global, _ = s.BlockedWordsFor(p.ID)
	assert.Empty(t, global)
}

func TestBlockedImageLookup(t *testing.T) {
	s := testStore(t)
	p := testPair(t, s, 100, 200)

	base := int64(0x0f0f0f0f0f0f0f0f)
	require.NoError(t, s.BlockImage(&models.BlockedImage{
		PHash: base, Scope: models.ScopeGlobal, Threshold: 5,
	}))

	tests := []struct {
		name    string
		phash   uint64
		blocked bool
	}{
		{"exact match", uint64(base), true},
		{"3 bits off", uint64(base) ^ 0b111, true},
		{"5 bits off", uint64(base) ^ 0b11111, true},
		{"7 bits off", uint64(base) ^ 0b1111111, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := s.LookupBlockedImage(tt.phash, p.ID)
			require.NoError(t, err)
			if tt.blocked {
				require.NotNil(t, entry)
			} else {
				assert.Nil(t, entry)
			}
		})
	}
}

func TestBlockedImageScopes(t *testing.T) {
	s := testStore(t)
	p := testPair(t, s, 100, 200)
	other := testPair(t, s, 101, 201)

	pairHash := int64(0x1111111111111111)
	require.NoError(t, s.BlockImage(&models.BlockedImage{
		PHash: pairHash, Scope: models.ScopePair, PairID: &p.ID, Threshold: 0,
	}))

	entry, err := s.LookupBlockedImage(uint64(pairHash), p.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)

	// pair-scoped entry is invisible to other pairs
	entry, err = s.LookupBlockedImage(uint64(pairHash), other.ID)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSenders(t *testing.T) {
	s := testStore(t)

	sender := &models.Sender{DisplayHandle: "@relay1", Credential: "secret", Enabled: true}
	require.NoError(t, s.AddSender(sender))

	enabled, err := s.ToggleSender(sender.ID)
	require.NoError(t, err)
	assert.False(t, enabled)

	active, err := s.ListSenders(true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.ListSenders(false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// deleting unpins bound pairs
	p := testPair(t, s, 100, 200)
	p.SenderID = &sender.ID
	require.NoError(t, s.UpsertPair(p))
	require.NoError(t, s.DeleteSender(sender.ID))

	got, err := s.GetPairByID(p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SenderID)
}

func TestSubscriptions(t *testing.T) {
	s := testStore(t)
	now := time.Now()

	sub := &models.Subscription{UserID: 42, ExpiresAt: now.Add(-time.Hour), AddedBy: 1}
	require.NoError(t, s.UpsertSubscription(sub))
	require.NoError(t, s.UpsertSubscription(&models.Subscription{
		UserID: 43, ExpiresAt: now.Add(time.Hour), AddedBy: 1,
	}))

	expired, err := s.ExpiredSubscriptions(now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(42), expired[0].UserID)

	// renewal counts from now for lapsed subscriptions
	renewed, err := s.ExtendSubscription(42, 30, 1)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.After(now.AddDate(0, 0, 29)))

	expired, err = s.ExpiredSubscriptions(now)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestSettings(t *testing.T) {
	s := testStore(t)

	got, err := s.GetSetting("missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)

	require.NoError(t, s.SetSetting("key", "v1"))
	require.NoError(t, s.SetSetting("key", "v2"))

	got, err = s.GetSetting("key", "")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
}

func TestCleanup(t *testing.T) {
	s := testStore(t)
	p := testPair(t, s, 100, 200)

	require.NoError(t, s.SaveMapping(&models.Mapping{
		SourceMsgID: 1, PairID: p.ID, DestMsgID: 10,
		SourceChat: 100, DestChat: 200, Kind: models.KindText,
	}))

	// nothing old enough yet
	removed, err := s.Cleanup(30)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
