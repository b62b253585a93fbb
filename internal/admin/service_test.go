package admin

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func testService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	log, err := logger.New("error", "")
	require.NoError(t, err)

	st, err := store.Open(t.TempDir()+"/admin.db", log)
	require.NoError(t, err)

	pool := senderpool.New(100, 10, log)
	disp := dispatch.New(dispatch.Config{
		Workers: 1, Capacity: 16,
		RetryBase: time.Millisecond, RetryCap: time.Millisecond,
	}, pool, log)
	guard := imageguard.New(st, 5, log)
	engine := filter.New(st, log)
	pipe := pipeline.New(st, engine, guard, disp, nil, 1, log)
	monitor := health.NewMonitor(disp, pool, pipe, prometheus.NewRegistry(), log)
	sweeper := health.NewSweeper(st, pool, log)

	svc := NewService(st, pipe, disp, pool, guard, sweeper, monitor, nil, t.TempDir(), log)
	return svc, st
}

func TestAddPairValidation(t *testing.T) {
	svc, _ := testService(t)

	_, err := svc.AddPair(0, 200, "bad", nil)
	assert.Error(t, err)

	p, err := svc.AddPair(100, 200, "good", nil)
	require.NoError(t, err)
	assert.Equal(t, models.PairStatusActive, p.Status)
	assert.True(t, p.Filters.SyncEdits)

	// unknown pinned sender is rejected
	bogus := int64(999)
	_, err = svc.AddPair(100, 300, "pinned", &bogus)
	assert.Error(t, err)
}

func TestEditPairFields(t *testing.T) {
	svc, _ := testService(t)
	p, err := svc.AddPair(100, 200, "relay", nil)
	require.NoError(t, err)

	tests := []struct {
		field string
		value string
		check func(*models.Pair) bool
	}{
		{"name", "renamed", func(p *models.Pair) bool { return p.Name == "renamed" }},
		{"status", "inactive", func(p *models.Pair) bool { return p.Status == models.PairStatusInactive }},
		{"min_length", "10", func(p *models.Pair) bool { return p.Filters.MinLength == 10 }},
		{"max_length", "500", func(p *models.Pair) bool { return p.Filters.MaxLength == 500 }},
		{"sync_deletes", "true", func(p *models.Pair) bool { return p.Filters.SyncDeletes }},
		{"preserve_replies", "false", func(p *models.Pair) bool { return !p.Filters.PreserveReplies }},
		{"allowed_media_types", "text,photo", func(p *models.Pair) bool {
			return len(p.Filters.AllowedMediaTypes) == 2
		}},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, err := svc.EditPair(p.ID, tt.field, tt.value)
			require.NoError(t, err)
			assert.True(t, tt.check(got))
		})
	}

	_, err = svc.EditPair(p.ID, "bogus_field", "x")
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = svc.EditPair(p.ID, "status", "sideways")
	assert.Error(t, err)

	_, err = svc.EditPair(p.ID, "min_length", "-5")
	assert.Error(t, err)
}

func TestWordBlockOps(t *testing.T) {
	svc, _ := testService(t)
	p, err := svc.AddPair(100, 200, "relay", nil)
	require.NoError(t, err)

	require.NoError(t, svc.BlockWord("spam", nil))
	require.NoError(t, svc.BlockWord("casino", &p.ID))

	global, pair := svc.ListBlocked(&p.ID)
	assert.Equal(t, []string{"spam"}, global)
	assert.Equal(t, []string{"casino"}, pair)

	require.NoError(t, svc.UnblockWord("spam", nil))
	global, _ = svc.ListBlocked(&p.ID)
	assert.Empty(t, global)
}

func TestPatternValidation(t *testing.T) {
	svc, _ := testService(t)
	p, err := svc.AddPair(100, 200, "relay", nil)
	require.NoError(t, err)

	require.NoError(t, svc.SetHeaderPattern(p.ID, `^AD\b.*$`))
	assert.Error(t, svc.SetHeaderPattern(p.ID, `([broken`))

	// clearing is always allowed
	require.NoError(t, svc.SetHeaderPattern(p.ID, ""))
	require.NoError(t, svc.SetFooterPattern(p.ID, `^END$`))

	got, err := svc.PairInfo(p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Filters.HeaderPattern)
	assert.Equal(t, `^END$`, got.Filters.FooterPattern)
}

func TestMentionAndWatermarkOps(t *testing.T) {
	svc, _ := testService(t)
	p, err := svc.AddPair(100, 200, "relay", nil)
	require.NoError(t, err)

	require.NoError(t, svc.SetMentions(p.ID, true, "[User]"))
	require.NoError(t, svc.SetWatermark(p.ID, true, "@my_channel"))

	got, err := svc.PairInfo(p.ID)
	require.NoError(t, err)
	assert.True(t, got.Filters.RemoveMentions)
	assert.Equal(t, "[User]", got.Filters.MentionPlaceholder)
	assert.True(t, got.Filters.WatermarkEnabled)
	assert.Equal(t, "@my_channel", got.Filters.WatermarkText)
}

func TestSubscriptionOps(t *testing.T) {
	svc, _ := testService(t)

	sub, err := svc.AddSub(42, 30, 1, "vip")
	require.NoError(t, err)
	assert.True(t, sub.ExpiresAt.After(time.Now().AddDate(0, 0, 29)))

	renewed, err := svc.RenewSub(42, 30, 1)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.After(time.Now().AddDate(0, 0, 59)))

	subs, err := svc.ListSubs()
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	_, err = svc.AddSub(43, 0, 1, "")
	assert.Error(t, err)
}

func TestOps(t *testing.T) {
	svc, _ := testService(t)

	svc.Pause()
	report, err := svc.Status()
	require.NoError(t, err)
	assert.True(t, report.Paused)
	svc.Resume()

	assert.Zero(t, svc.ClearQueue())
	assert.NotNil(t, svc.Queue())

	path, err := svc.Backup()
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	removed, err := svc.Cleanup(30)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestToggleAndDeleteSender(t *testing.T) {
	svc, st := testService(t)

	rec := &models.Sender{DisplayHandle: "@s1", Credential: "cred", Enabled: true}
	require.NoError(t, st.AddSender(rec))

	enabled, err := svc.ToggleSender(rec.ID)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, svc.DeleteSender(rec.ID))
	all, err := svc.ListSenders(true)
	require.NoError(t, err)
	assert.Empty(t, all)
}
