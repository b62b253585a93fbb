package telegram

import (
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunil55999/Zorox/internal/models"
	"github.com/sunil55999/Zorox/internal/senderpool"
)

func TestEntitiesRoundTrip(t *testing.T) {
	text := "bold and link here"
	wire := []tg.MessageEntityClass{
		&tg.MessageEntityBold{Offset: 0, Length: 4},
		&tg.MessageEntityTextURL{Offset: 9, Length: 4, URL: "https://example.org"},
	}

	ents := entitiesFromTG(text, wire)
	require.Len(t, ents, 2)
	assert.Equal(t, models.Entity{Start: 0, End: 4, Kind: "bold"}, ents[0])
	assert.Equal(t, "text_url", ents[1].Kind)
	assert.Equal(t, "https://example.org", ents[1].Attrs["url"])
	assert.Equal(t, "link", text[ents[1].Start:ents[1].End])

	back := entitiesToTG(text, ents)
	require.Len(t, back, 2)
	bold, ok := back[0].(*tg.MessageEntityBold)
	require.True(t, ok)
	assert.Equal(t, 0, bold.Offset)
	assert.Equal(t, 4, bold.Length)
}

func TestEntitiesNonBMP(t *testing.T) {
	// the emoji occupies two UTF-16 units but four bytes
	text := "😀 bold"
	wire := []tg.MessageEntityClass{
		&tg.MessageEntityBold{Offset: 3, Length: 4},
	}

	ents := entitiesFromTG(text, wire)
	require.Len(t, ents, 1)
	assert.Equal(t, "bold", text[ents[0].Start:ents[0].End])

	back := entitiesToTG(text, ents)
	require.Len(t, back, 1)
	b := back[0].(*tg.MessageEntityBold)
	assert.Equal(t, 3, b.Offset)
	assert.Equal(t, 4, b.Length)
}

func TestEntitiesOutOfRangeDropped(t *testing.T) {
	text := "short"
	wire := []tg.MessageEntityClass{
		&tg.MessageEntityBold{Offset: 3, Length: 40},
	}
	assert.Empty(t, entitiesFromTG(text, wire))
}

func TestClassifySendError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind senderpool.ErrKind
	}{
		{"flood wait", errors.New("rpc error code 420: FLOOD_WAIT_42"), senderpool.KindRateLimited},
		{"write forbidden", errors.New("rpc error code 403: CHAT_WRITE_FORBIDDEN"), senderpool.KindPermanent},
		{"channel private", errors.New("CHANNEL_PRIVATE"), senderpool.KindPermanent},
		{"revoked session", errors.New("401: SESSION_REVOKED"), senderpool.KindPermanent},
		{"network blip", errors.New("connection reset by peer"), senderpool.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := senderpool.Classify(classifySendError(tt.err))
			assert.Equal(t, tt.kind, se.Kind)
		})
	}

	assert.NoError(t, classifySendError(nil))

	se := senderpool.Classify(classifySendError(errors.New("FLOOD_WAIT_42")))
	assert.Equal(t, 42*time.Second, se.RetryAfter)
}

func TestFloodWaitSeconds(t *testing.T) {
	assert.Equal(t, 15, floodWaitSeconds(errors.New("rpc error: code 420: FLOOD_WAIT_15")))
	assert.Equal(t, 0, floodWaitSeconds(errors.New("some other error")))
	assert.Equal(t, 7, floodWaitSeconds(errors.New("FLOOD_WAIT_7 (caused by messages.SendMessage)")))
}

func TestSentMessageID(t *testing.T) {
	assert.Equal(t, 5, sentMessageID(&tg.UpdateShortSentMessage{ID: 5}))

	updates := &tg.Updates{
		Updates: []tg.UpdateClass{
			&tg.UpdateMessageID{ID: 9},
		},
	}
	assert.Equal(t, 9, sentMessageID(updates))

	assert.Equal(t, 0, sentMessageID(&tg.Updates{}))
}

func TestDocumentTag(t *testing.T) {
	tests := []struct {
		name string
		doc  *tg.Document
		want models.MediaTag
	}{
		{"video mime", &tg.Document{MimeType: "video/mp4"}, models.MediaVideo},
		{"audio mime", &tg.Document{MimeType: "audio/mpeg"}, models.MediaAudio},
		{"plain file", &tg.Document{MimeType: "application/pdf"}, models.MediaDocument},
		{"image document", &tg.Document{MimeType: "image/png"}, models.MediaDocument},
		{
			"voice attribute",
			&tg.Document{
				MimeType:   "audio/ogg",
				Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{Voice: true}},
			},
			models.MediaVoice,
		},
		{
			"sticker attribute",
			&tg.Document{
				MimeType:   "image/webp",
				Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeSticker{}},
			},
			models.MediaSticker,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, documentTag(tt.doc))
		})
	}
}

func TestMediaIsImage(t *testing.T) {
	photo := &models.Media{Tag: models.MediaPhoto}
	assert.True(t, photo.IsImage())

	imgDoc := &models.Media{Tag: models.MediaDocument, Mime: "image/png"}
	assert.True(t, imgDoc.IsImage())

	pdf := &models.Media{Tag: models.MediaDocument, Mime: "application/pdf"}
	assert.False(t, pdf.IsImage())
}
