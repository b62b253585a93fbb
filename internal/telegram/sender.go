package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"

	"github.com/sunil55999/Zorox/internal/models"
	"github.com/sunil55999/Zorox/internal/senderpool"
)

// Sender implements senderpool.Sender over one Telegram account.
type Sender struct {
	id      int64
	account *Account
}

// NewSender wraps an account as a pool sender. id is the stored sender id,
// not the Telegram user id.
func NewSender(id int64, account *Account) *Sender {
	return &Sender{id: id, account: account}
}

// ID returns the stored sender id.
func (s *Sender) ID() int64 { return s.id }

// Account exposes the underlying account, mainly for shutdown.
func (s *Sender) Account() *Account { return s.account }

// SendText copies a text message into the destination chat.
func (s *Sender) SendText(ctx context.Context, chat int64, text string, entities []models.Entity, replyTo int, disablePreview bool) (int, error) {
	peer, err := s.account.inputPeer(chat)
	if err != nil {
		return 0, senderpool.Permanent(err, "PEER_ID_INVALID")
	}

	req := &tg.MessagesSendMessageRequest{
		Peer:      peer,
		Message:   text,
		RandomID:  randomID(),
		NoWebpage: disablePreview,
		Entities:  entitiesToTG(text, entities),
	}
	if replyTo != 0 {
		req.SetReplyTo(&tg.InputReplyToMessage{ReplyToMsgID: replyTo})
	}

	updates, err := s.account.API().MessagesSendMessage(ctx, req)
	if err != nil {
		s.account.noteFloodWait(err)
		return 0, classifySendError(err)
	}
	return sentMessageID(updates), nil
}

// SendMedia uploads the payload and sends it with the caption.
func (s *Sender) SendMedia(ctx context.Context, chat int64, kind models.MediaTag, data []byte, caption string, entities []models.Entity, replyTo int) (int, error) {
	peer, err := s.account.inputPeer(chat)
	if err != nil {
		return 0, senderpool.Permanent(err, "PEER_ID_INVALID")
	}

	up := uploader.NewUploader(s.account.API())
	file, err := up.FromBytes(ctx, uploadName(kind), data)
	if err != nil {
		s.account.noteFloodWait(err)
		return 0, classifySendError(err)
	}

	var media tg.InputMediaClass
	if kind == models.MediaPhoto {
		media = &tg.InputMediaUploadedPhoto{File: file}
	} else {
		media = &tg.InputMediaUploadedDocument{
			File:     file,
			MimeType: mimeFor(kind),
			Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeFilename{FileName: uploadName(kind)},
			},
		}
	}

	req := &tg.MessagesSendMediaRequest{
		Peer:     peer,
		Media:    media,
		Message:  caption,
		RandomID: randomID(),
		Entities: entitiesToTG(caption, entities),
	}
	if replyTo != 0 {
		req.SetReplyTo(&tg.InputReplyToMessage{ReplyToMsgID: replyTo})
	}

	updates, err := s.account.API().MessagesSendMedia(ctx, req)
	if err != nil {
		s.account.noteFloodWait(err)
		return 0, classifySendError(err)
	}
	return sentMessageID(updates), nil
}

// EditText rewrites a previously sent message.
func (s *Sender) EditText(ctx context.Context, chat int64, msgID int, text string, entities []models.Entity) error {
	peer, err := s.account.inputPeer(chat)
	if err != nil {
		return senderpool.Permanent(err, "PEER_ID_INVALID")
	}

	req := &tg.MessagesEditMessageRequest{
		Peer:    peer,
		ID:      msgID,
		Message: text,
	}
	if ents := entitiesToTG(text, entities); len(ents) > 0 {
		req.SetEntities(ents)
	}

	if _, err := s.account.API().MessagesEditMessage(ctx, req); err != nil {
		s.account.noteFloodWait(err)
		return classifySendError(err)
	}
	return nil
}

// DeleteMessage erases a destination copy.
func (s *Sender) DeleteMessage(ctx context.Context, chat int64, msgID int) error {
	if channel, err := s.account.inputChannel(chat); err == nil {
		_, err := s.account.API().ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
			Channel: channel,
			ID:      []int{msgID},
		})
		if err != nil {
			s.account.noteFloodWait(err)
			return classifySendError(err)
		}
		return nil
	}

	_, err := s.account.API().MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
		Revoke: true,
		ID:     []int{msgID},
	})
	if err != nil {
		s.account.noteFloodWait(err)
		return classifySendError(err)
	}
	return nil
}

// KickUser removes a user from a destination chat.
func (s *Sender) KickUser(ctx context.Context, chat int64, userID int64) error {
	return s.editBanned(ctx, chat, userID, tg.ChatBannedRights{ViewMessages: true, UntilDate: 0})
}

// UnbanUser lifts a user's restrictions in a destination chat.
func (s *Sender) UnbanUser(ctx context.Context, chat int64, userID int64) error {
	return s.editBanned(ctx, chat, userID, tg.ChatBannedRights{})
}

func (s *Sender) editBanned(ctx context.Context, chat, userID int64, rights tg.ChatBannedRights) error {
	channel, err := s.account.inputChannel(chat)
	if err != nil {
		return senderpool.Permanent(err, "PEER_ID_INVALID")
	}
	participant, err := s.account.inputPeer(userID)
	if err != nil {
		return senderpool.Permanent(err, "PEER_ID_INVALID")
	}

	_, err = s.account.API().ChannelsEditBanned(ctx, &tg.ChannelsEditBannedRequest{
		Channel:      channel,
		Participant:  participant,
		BannedRights: rights,
	})
	if err != nil {
		s.account.noteFloodWait(err)
		return classifySendError(err)
	}
	return nil
}

// Ping delegates to the account.
func (s *Sender) Ping(ctx context.Context) error {
	if err := s.account.Ping(ctx); err != nil {
		return classifySendError(err)
	}
	return nil
}

// sentMessageID extracts the new message id from the send response.
func sentMessageID(updates tg.UpdatesClass) int {
	switch u := updates.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		for _, upd := range u.Updates {
			switch v := upd.(type) {
			case *tg.UpdateMessageID:
				return v.ID
			case *tg.UpdateNewChannelMessage:
				if m, ok := v.Message.(*tg.Message); ok {
					return m.ID
				}
			case *tg.UpdateNewMessage:
				if m, ok := v.Message.(*tg.Message); ok {
					return m.ID
				}
			}
		}
	}
	return 0
}

func uploadName(kind models.MediaTag) string {
	switch kind {
	case models.MediaPhoto:
		return "photo.jpg"
	case models.MediaVideo:
		return "video.mp4"
	case models.MediaAudio:
		return "audio.mp3"
	case models.MediaVoice:
		return "voice.ogg"
	default:
		return "file.bin"
	}
}

func mimeFor(kind models.MediaTag) string {
	switch kind {
	case models.MediaVideo:
		return "video/mp4"
	case models.MediaAudio:
		return "audio/mpeg"
	case models.MediaVoice:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func randomID() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

var _ senderpool.Sender = (*Sender)(nil)
