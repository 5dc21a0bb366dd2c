// Package message defines the unit of chat communication and its wire
// codec. Braid transports messages as self-describing binary maps;
// fields are addressed by well-known string keys.
package message

import "github.com/google/uuid"

// Message is one chat message. Decoded messages are treated as
// immutable; outbound replies are constructed fresh.
type Message struct {
	ID            string
	GroupID       string
	ThreadID      string
	UserID        string
	Content       string
	MentionedTags []string
}

// ResponseTo builds a reply into the same thread the original message
// arrived on.
func ResponseTo(m Message, content string) Message {
	return Message{
		ID:       uuid.NewString(),
		GroupID:  m.GroupID,
		ThreadID: m.ThreadID,
		Content:  content,
	}
}

// ReplyToThread builds a message into a known existing thread.
func ReplyToThread(groupID, threadID, content string) Message {
	return Message{
		ID:       uuid.NewString(),
		GroupID:  groupID,
		ThreadID: threadID,
		Content:  content,
	}
}

// NewThreadMsg builds a message that opens a fresh thread in the
// group, tagged so the right people see it. The caller keeps the
// generated thread id if it wants to watch the thread.
func NewThreadMsg(groupID, tagID, content string) Message {
	return Message{
		ID:            uuid.NewString(),
		GroupID:       groupID,
		ThreadID:      uuid.NewString(),
		Content:       content,
		MentionedTags: []string{tagID},
	}
}
