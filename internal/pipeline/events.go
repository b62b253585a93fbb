package pipeline

import (
	"time"

	"github.com/sunil55999/Zorox/internal/models"
)

// EventSink receives replication outcomes for external consumers. A nil
// sink disables publishing.
type EventSink interface {
	Publish(subject string, event any)
}

// Subjects for published replication events.
const (
	SubjectCopied  = "relay.copied"
	SubjectDropped = "relay.dropped"
	SubjectEdited  = "relay.edited"
	SubjectDeleted = "relay.deleted"
)

// CopiedEvent reports a successful copy.
type CopiedEvent struct {
	PairID      int64     `json:"pair_id"`
	SourceChat  int64     `json:"source_chat"`
	DestChat    int64     `json:"dest_chat"`
	SourceMsgID int       `json:"source_msg_id"`
	DestMsgID   int       `json:"dest_msg_id"`
	SenderID    int64     `json:"sender_id"`
	HasMedia    bool      `json:"has_media"`
	At          time.Time `json:"at"`
}

// DroppedEvent reports a filtered message.
type DroppedEvent struct {
	PairID      int64     `json:"pair_id"`
	SourceChat  int64     `json:"source_chat"`
	SourceMsgID int       `json:"source_msg_id"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}

// MutationEvent reports a propagated edit or delete.
type MutationEvent struct {
	PairID      int64     `json:"pair_id"`
	SourceMsgID int       `json:"source_msg_id"`
	DestMsgID   int       `json:"dest_msg_id"`
	At          time.Time `json:"at"`
}

// event is the internal unit the listener hands to the pipeline loop.
type eventKind int

const (
	eventNew eventKind = iota
	eventEdit
	eventDelete
)

type event struct {
	kind   eventKind
	msg    *models.Message
	chatID int64
	msgIDs []int
}
