package telegram

import (
	"encoding/json"
	"strings"

	"github.com/xaenox/relay-bot/internal/models"
	"github.com/xaenox/relay-bot/internal/relay"
)

// Update is the subset of a Telegram update the relay reads. The library's
// own Update type predates forum topics and drops message_thread_id.
type Update struct {
	UpdateID int      `json:"update_id"`
	Message  *Message `json:"message"`
}

type Chat struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	IsForum bool   `json:"is_forum,omitempty"`
}

type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

type Message struct {
	MessageID       int             `json:"message_id"`
	MessageThreadID int64           `json:"message_thread_id"`
	IsTopicMessage  bool            `json:"is_topic_message"`
	From            *models.User    `json:"from"`
	Chat            Chat            `json:"chat"`
	Text            string          `json:"text"`
	Caption         string          `json:"caption"`
	Entities        []MessageEntity `json:"entities"`

	// Service message markers; any of them set means there is nothing to relay.
	ForumTopicCreated  json.RawMessage `json:"forum_topic_created,omitempty"`
	ForumTopicEdited   json.RawMessage `json:"forum_topic_edited,omitempty"`
	ForumTopicClosed   json.RawMessage `json:"forum_topic_closed,omitempty"`
	ForumTopicReopened json.RawMessage `json:"forum_topic_reopened,omitempty"`
	NewChatMembers     json.RawMessage `json:"new_chat_members,omitempty"`
	LeftChatMember     json.RawMessage `json:"left_chat_member,omitempty"`
	PinnedMessage      json.RawMessage `json:"pinned_message,omitempty"`
}

// IsService reports whether the message is a chat service notification.
func (m *Message) IsService() bool {
	return len(m.ForumTopicCreated) > 0 ||
		len(m.ForumTopicEdited) > 0 ||
		len(m.ForumTopicClosed) > 0 ||
		len(m.ForumTopicReopened) > 0 ||
		len(m.NewChatMembers) > 0 ||
		len(m.LeftChatMember) > 0 ||
		len(m.PinnedMessage) > 0
}

// Command returns the command name and arguments when the message starts
// with a bot command. Commands addressed to another bot are not ours.
func (m *Message) Command(botUsername string) (string, []string, bool) {
	if len(m.Entities) == 0 {
		return "", nil, false
	}
	e := m.Entities[0]
	if e.Type != "bot_command" || e.Offset != 0 || e.Length < 2 || e.Length > len(m.Text) {
		return "", nil, false
	}
	name := m.Text[1:e.Length]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		if botUsername != "" && !strings.EqualFold(name[at+1:], botUsername) {
			return "", nil, false
		}
		name = name[:at]
	}
	return strings.ToLower(name), strings.Fields(m.Text[e.Length:]), true
}

// Classifier turns updates into relay events for one staff container.
type Classifier struct {
	ContainerID int64
	BotUsername string
}

// Classify returns the relay event for u, or false when the update is not
// something the relay handles.
func (c Classifier) Classify(u Update) (relay.Event, bool) {
	m := u.Message
	if m == nil || m.From == nil || m.IsService() {
		return relay.Event{}, false
	}

	ev := relay.Event{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		From:      *m.From,
		Text:      m.Text,
		HasMedia:  m.Text == "",
	}
	if m.IsTopicMessage {
		ev.ThreadID = m.MessageThreadID
	}
	command, args, isCommand := m.Command(c.BotUsername)

	switch {
	case m.Chat.Type == "private":
		if isCommand {
			ev.Kind = relay.EventCommand
			ev.Command, ev.Args, ev.Private = command, args, true
		} else {
			ev.Kind = relay.EventPrivate
		}
		return ev, true

	case m.Chat.ID == c.ContainerID:
		if isCommand {
			ev.Kind = relay.EventCommand
			ev.Command, ev.Args = command, args
			return ev, true
		}
		if ev.ThreadID == 0 {
			return relay.Event{}, false
		}
		ev.Kind = relay.EventThread
		return ev, true
	}
	return relay.Event{}, false
}
