package client

import (
	"strings"

	"github.com/google/uuid"
)

// A UserID identifies a user account on the server.
type UserID string

// A ChatID identifies a chat. For private chats it is derived from the two
// participant ids, see DirectChatID.
type ChatID string

// A MessageID identifies a message within a chat. Ids generated locally for
// optimistic sends carry a recognizable prefix until the server assigns the
// permanent id.
type MessageID string

const tempIDPrefix = "temp-"

// Temporary reports whether the id is a locally generated placeholder id
// that has not been confirmed by the server.
func (id MessageID) Temporary() bool {
	return strings.HasPrefix(string(id), tempIDPrefix)
}

// NewTempMessageID returns a fresh placeholder id for an optimistic send.
func NewTempMessageID() MessageID {
	return MessageID(tempIDPrefix + uuid.NewString())
}

// DirectChatID returns the canonical id of the private chat between two
// users. Both participants compute the same id regardless of who initiates:
// the ids are sorted before joining.
func DirectChatID(a, b UserID) ChatID {
	if b < a {
		a, b = b, a
	}
	return ChatID(string(a) + ":" + string(b))
}

// A User represents a user as delivered by a user-list snapshot.
type User struct {
	ID        UserID
	Username  string
	AvatarURL string
	Online    bool
}

// A Message represents a single chat message.
type Message struct {
	ID        MessageID
	ChatID    ChatID
	SenderID  UserID
	Text      string
	Timestamp int64 // seconds since epoch; server clock once confirmed
	SeenBy    []UserID
	EditedAt  int64 // 0 = never edited
	ReplyToID MessageID
}

// SeenByUser reports whether the given user appears in the message's seen
// set.
func (m Message) SeenByUser(id UserID) bool {
	for _, u := range m.SeenBy {
		if u == id {
			return true
		}
	}
	return false
}

// ChatType distinguishes the kinds of chats the server knows about.
type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
	ChatTypeChannel ChatType = "channel"
)

// A Chat represents a chat and its loaded message timeline. The timeline is
// kept in non-decreasing timestamp order after every mutation.
type Chat struct {
	ID        ChatID
	Name      string
	Type      ChatType
	OwnerID   UserID
	AvatarURL string
	Members   []UserID
	Messages  []Message
}

// HasMember reports whether the user is a member of the chat.
func (c Chat) HasMember(id UserID) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

// LastTimestamp returns the timestamp of the newest loaded message, or 0 for
// an empty timeline. Used to order the chat list by recent activity.
func (c Chat) LastTimestamp() int64 {
	if len(c.Messages) == 0 {
		return 0
	}
	return c.Messages[len(c.Messages)-1].Timestamp
}
