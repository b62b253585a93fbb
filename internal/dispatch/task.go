// Package dispatch implements the bounded priority queue, the worker pool
// and the retry and backpressure policies for outgoing platform calls.
package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/sunil55999/Zorox/internal/models"
)

// Priority orders tasks in the queue. Higher values pop first.
type Priority int

// Priority levels.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
	priorityCount
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// TaskType selects the platform operation a task performs.
type TaskType int

// TaskType values.
const (
	TaskSend TaskType = iota
	TaskEdit
	TaskDelete
)

// Outcome is the terminal state of a task.
type Outcome int

// Outcome values.
const (
	OutcomeDone Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

// Task is one unit of outgoing work. The dispatcher owns the task from
// enqueue until a terminal outcome.
type Task struct {
	ID   uuid.UUID
	Type TaskType

	Pair models.Pair

	// transformed snapshot for send/edit
	Text     string
	Entities []models.Entity

	// media payload, already filtered and watermarked; nil for text
	MediaBytes []byte
	MediaKind  models.MediaTag

	ReplyToDestID  int
	DisablePreview bool

	// DestMsgID addresses the destination copy for edit/delete
	DestMsgID int

	// source identity, used for mapping writes after a send
	SourceMsgID int

	// PreferredSender pins the task to a sender when the pair demands it
	// or an edit should reuse the original sender.
	PreferredSender *int64

	Priority       Priority
	Attempts       int
	EarliestSendAt time.Time

	// Done is invoked exactly once on a terminal outcome. destMsgID and
	// senderID are meaningful only for OutcomeDone.
	Done func(outcome Outcome, destMsgID int, senderID int64, err error)

	seq uint64
}

// NewTask creates a task with a fresh id.
func NewTask(typ TaskType, pair models.Pair, prio Priority) *Task {
	return &Task{
		ID:       uuid.New(),
		Type:     typ,
		Pair:     pair,
		Priority: prio,
	}
}

func (t *Task) finish(outcome Outcome, destMsgID int, senderID int64, err error) {
	if t.Done != nil {
		t.Done(outcome, destMsgID, senderID, err)
	}
}
