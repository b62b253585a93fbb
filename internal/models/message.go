package models

import (
	"context"
	"time"
)

// MediaTag classifies the media attached to a message.
type MediaTag string

// MediaTag constants enumerate the supported media classes.
const (
	MediaText     MediaTag = "text"
	MediaPhoto    MediaTag = "photo"
	MediaVideo    MediaTag = "video"
	MediaDocument MediaTag = "document"
	MediaAudio    MediaTag = "audio"
	MediaVoice    MediaTag = "voice"
	MediaSticker  MediaTag = "sticker"
	MediaWebpage  MediaTag = "webpage"
	MediaUnknown  MediaTag = "unknown"
)

// MessageKind classifies a replicated message for the mapping record.
type MessageKind string

// MessageKind constants.
const (
	KindText  MessageKind = "text"
	KindMedia MessageKind = "media"
	KindMixed MessageKind = "mixed"
)

// Entity is a flat formatting range over the message text.
type Entity struct {
	Start int               `json:"start"`
	End   int               `json:"end"`
	Kind  string            `json:"kind"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Media describes the attachment of a source message. Bytes are fetched
// lazily through the listener so the pipeline only downloads when a pair
// actually needs them.
type Media struct {
	Tag   MediaTag
	Mime  string
	Fetch func(ctx context.Context) ([]byte, error)
}

// IsImage reports whether the media carries image bytes worth hashing.
func (m *Media) IsImage() bool {
	if m == nil {
		return false
	}
	if m.Tag == MediaPhoto {
		return true
	}
	return m.Tag == MediaDocument && len(m.Mime) > 6 && m.Mime[:6] == "image/"
}

// Message is a transient snapshot of a source event. It is never persisted.
type Message struct {
	ID        int
	ChatID    int64
	AuthorID  int64
	Text      string
	Entities  []Entity
	Media     *Media
	ReplyToID int
	Timestamp time.Time
}

// Kind derives the mapping kind for this snapshot.
func (m *Message) Kind() MessageKind {
	switch {
	case m.Media == nil:
		return KindText
	case m.Text == "":
		return KindMedia
	default:
		return KindMixed
	}
}

// MediaTagOf returns the media tag, or MediaText when no media is attached.
func (m *Message) MediaTagOf() MediaTag {
	if m.Media == nil {
		return MediaText
	}
	return m.Media.Tag
}
