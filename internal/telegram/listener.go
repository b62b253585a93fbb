package telegram

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/dispatcher/handlers"
	"github.com/celestix/gotgproto/ext"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"gorm.io/gorm"

	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
)

// Events receives the listener's callbacks. Implemented by the pipeline.
type Events interface {
	OnNew(msg *models.Message)
	OnEdit(msg *models.Message)
	OnDelete(chatID int64, msgIDs []int)
}

// Listener observes the source chats on the privileged account and feeds
// the pipeline.
type Listener struct {
	account *Account
	events  Events
	log     *logger.Logger
}

// NewPersistentAccount starts the listener account with its session stored
// in the application database, so auth-key refreshes survive restarts.
// When no client can be started from the stored session, the session string
// is used instead, held in memory only; it is not written to the database.
func NewPersistentAccount(apiID int, apiHash, sessionString string, db *gorm.DB, log *logger.Logger) (*Account, error) {
	session := sessionMaker.SqlSession(db.Dialector)
	opts := &gotgproto.ClientOpts{
		Session:          session,
		DisableCopyright: true,
	}

	proto, err := gotgproto.NewClient(
		apiID,
		apiHash,
		gotgproto.ClientTypePhone(""),
		opts,
	)
	if err != nil {
		if sessionString == "" {
			return nil, fmt.Errorf("create listener client: %w", err)
		}
		// fall back to seeding from the exported string session
		return NewAccount(apiID, apiHash, sessionString, log)
	}
	return &Account{proto: proto, log: log}, nil
}

// NewListener binds the event callbacks to an account.
func NewListener(account *Account, events Events, log *logger.Logger) *Listener {
	return &Listener{account: account, events: events, log: log}
}

// Attach registers the update handler on the account's dispatcher.
func (l *Listener) Attach() {
	l.account.proto.Dispatcher.AddHandler(handlers.NewAnyUpdate(l.handleUpdate))
}

// Idle blocks until the client disconnects.
func (l *Listener) Idle() error {
	return l.account.proto.Idle()
}

func (l *Listener) handleUpdate(_ *ext.Context, u *ext.Update) error {
	switch upd := u.UpdateClass.(type) {
	case *tg.UpdateNewChannelMessage:
		if msg := l.snapshot(upd.Message); msg != nil {
			l.events.OnNew(msg)
		}
	case *tg.UpdateNewMessage:
		if msg := l.snapshot(upd.Message); msg != nil {
			l.events.OnNew(msg)
		}
	case *tg.UpdateEditChannelMessage:
		if msg := l.snapshot(upd.Message); msg != nil {
			l.events.OnEdit(msg)
		}
	case *tg.UpdateEditMessage:
		if msg := l.snapshot(upd.Message); msg != nil {
			l.events.OnEdit(msg)
		}
	case *tg.UpdateDeleteChannelMessages:
		l.events.OnDelete(upd.ChannelID, upd.Messages)
	case *tg.UpdateDeleteMessages:
		// plain deletes carry no chat id; channel sources are unaffected
		l.log.Debug().Ints("msg_ids", upd.Messages).Msg("telegram: chatless delete ignored")
	}
	return nil
}

// snapshot converts a wire message into the pipeline's transient form.
func (l *Listener) snapshot(mc tg.MessageClass) *models.Message {
	m, ok := mc.(*tg.Message)
	if !ok {
		return nil
	}

	msg := &models.Message{
		ID:        m.ID,
		ChatID:    peerID(m.PeerID),
		Text:      m.Message,
		Entities:  entitiesFromTG(m.Message, m.Entities),
		Timestamp: time.Unix(int64(m.Date), 0),
	}
	if from, ok := m.FromID.(*tg.PeerUser); ok {
		msg.AuthorID = from.UserID
	}
	if reply, ok := m.ReplyTo.(*tg.MessageReplyHeader); ok {
		msg.ReplyToID = reply.ReplyToMsgID
	}
	if m.Media != nil {
		msg.Media = l.media(m.Media)
	}
	return msg
}

// media classifies the attachment and builds its lazy byte fetcher.
func (l *Listener) media(mc tg.MessageMediaClass) *models.Media {
	switch m := mc.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return &models.Media{Tag: models.MediaPhoto}
		}
		loc := &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     largestPhotoSize(photo),
		}
		return &models.Media{Tag: models.MediaPhoto, Mime: "image/jpeg", Fetch: l.fetcher(loc)}

	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return &models.Media{Tag: models.MediaDocument}
		}
		tag := documentTag(doc)
		loc := &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}
		return &models.Media{Tag: tag, Mime: doc.MimeType, Fetch: l.fetcher(loc)}

	case *tg.MessageMediaWebPage:
		return &models.Media{Tag: models.MediaWebpage}

	default:
		return &models.Media{Tag: models.MediaUnknown}
	}
}

func (l *Listener) fetcher(loc tg.InputFileLocationClass) func(ctx context.Context) ([]byte, error) {
	api := l.account.API()
	return func(ctx context.Context) ([]byte, error) {
		var buf bytes.Buffer
		if _, err := downloader.NewDownloader().Download(api, loc).Stream(ctx, &buf); err != nil {
			return nil, fmt.Errorf("download media: %w", err)
		}
		return buf.Bytes(), nil
	}
}

func peerID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerChannel:
		return p.ChannelID
	case *tg.PeerChat:
		return p.ChatID
	case *tg.PeerUser:
		return p.UserID
	default:
		return 0
	}
}

// largestPhotoSize picks the biggest progressive size type.
func largestPhotoSize(photo *tg.Photo) string {
	best := ""
	bestArea := 0
	for _, s := range photo.Sizes {
		if size, ok := s.(*tg.PhotoSize); ok {
			if area := size.W * size.H; area > bestArea {
				bestArea = area
				best = size.Type
			}
		}
	}
	if best == "" {
		best = "x"
	}
	return best
}

// documentTag maps a document's mime and attributes onto the media tags.
func documentTag(doc *tg.Document) models.MediaTag {
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeSticker:
			return models.MediaSticker
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				return models.MediaVoice
			}
			return models.MediaAudio
		case *tg.DocumentAttributeVideo:
			return models.MediaVideo
		}
	}
	switch {
	case strings.HasPrefix(doc.MimeType, "video/"):
		return models.MediaVideo
	case strings.HasPrefix(doc.MimeType, "audio/"):
		return models.MediaAudio
	default:
		return models.MediaDocument
	}
}
