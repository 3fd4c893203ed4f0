package relay

import (
	"context"

	"github.com/xaenox/relay-bot/internal/models"
)

// Platform is the chat platform as seen by the relay. Implementations map
// their failures onto ErrThreadCreationFailed, ErrDeliveryBlocked and
// ErrDeliveryFailed so the routers can react with errors.Is.
type Platform interface {
	// CreateThread opens a new thread in the container and returns its id.
	CreateThread(ctx context.Context, containerID int64, title string) (int64, error)

	// CloseThread closes a thread. Callers treat failures as best effort.
	CloseThread(ctx context.Context, containerID, threadID int64) error

	// SendText posts a plain text message and returns the new message id.
	SendText(ctx context.Context, msg TextMessage) (int, error)

	// CopyMessage re-posts an existing message verbatim, attachments included.
	CopyMessage(ctx context.Context, msg CopyRequest) (int, error)
}

// TextMessage is an outgoing plain text message.
type TextMessage struct {
	ChatID   int64
	ThreadID int64 // zero for no thread
	ReplyTo  int   // zero for no reply
	Text     string
}

// CopyRequest describes a verbatim copy of FromChatID/MessageID into ChatID.
type CopyRequest struct {
	FromChatID int64
	MessageID  int
	ChatID     int64
	ThreadID   int64
}

// EventKind classifies an inbound platform event.
type EventKind int

const (
	// EventPrivate is a non-command message from an end user in a private chat.
	EventPrivate EventKind = iota
	// EventThread is a non-command message posted inside a staff thread.
	EventThread
	// EventCommand is a command invocation in either context.
	EventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventPrivate:
		return "private"
	case EventThread:
		return "thread"
	case EventCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Event is one classified inbound update.
type Event struct {
	ID        string // correlation id for logs
	Kind      EventKind
	ChatID    int64
	ThreadID  int64
	MessageID int
	From      models.User
	Text      string
	HasMedia  bool

	// Set for EventCommand only.
	Command string
	Args    []string
	Private bool
}
