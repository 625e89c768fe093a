package client

import (
	"log/slog"
	"sort"
)

// A Store is the single source of truth for chats, users and message
// timelines. Every other component reads and writes through it.
//
// The store is not safe for concurrent use. All access must happen on the
// goroutine that applies protocol events, which is how the adapter delivers
// them.
type Store struct {
	logger *slog.Logger
	chats  map[ChatID]*Chat
	users  map[UserID]User
}

// NewStore returns an empty store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		logger: logger,
		chats:  make(map[ChatID]*Chat),
		users:  make(map[UserID]User),
	}
}

// UpsertChat inserts the chat if its id has not been seen before. For a
// known chat only the metadata (name, type, owner, avatar, members) is
// merged; the stored timeline is never overwritten wholesale, so state
// merged from earlier batches survives.
func (s *Store) UpsertChat(chat Chat) {
	if existing, ok := s.chats[chat.ID]; ok {
		existing.Name = chat.Name
		existing.Type = chat.Type
		existing.OwnerID = chat.OwnerID
		existing.AvatarURL = chat.AvatarURL
		existing.Members = append([]UserID(nil), chat.Members...)
		return
	}
	c := chat
	c.Members = append([]UserID(nil), chat.Members...)
	c.Messages = append([]Message(nil), chat.Messages...)
	sort.SliceStable(c.Messages, func(i, j int) bool {
		return c.Messages[i].Timestamp < c.Messages[j].Timestamp
	})
	s.chats[c.ID] = &c
}

// Chat returns a copy of the chat with the given id.
func (s *Store) Chat(id ChatID) (Chat, bool) {
	c, ok := s.chats[id]
	if !ok {
		return Chat{}, false
	}
	return *c, true
}

// AppendLiveMessage appends a message to the end of its chat's timeline.
// A message for an unknown chat is dropped and logged: the server sends chat
// metadata before or with the first message, so this is the designed
// behavior rather than an error to surface.
func (s *Store) AppendLiveMessage(msg Message) bool {
	c, ok := s.chats[msg.ChatID]
	if !ok {
		s.logger.Warn("Dropped message for unknown chat", "chat_id", msg.ChatID, "message_id", msg.ID)
		return false
	}
	c.Messages = append(c.Messages, msg)
	return true
}

// FindMessage looks up a message by id within a chat.
func (s *Store) FindMessage(chatID ChatID, messageID MessageID) (Message, bool) {
	c, ok := s.chats[chatID]
	if !ok {
		return Message{}, false
	}
	for _, m := range c.Messages {
		if m.ID == messageID {
			return m, true
		}
	}
	return Message{}, false
}

// RemoveMessage deletes a message by id. It is a no-op if the chat or the
// message is unknown.
func (s *Store) RemoveMessage(chatID ChatID, messageID MessageID) bool {
	c, ok := s.chats[chatID]
	if !ok {
		return false
	}
	for i, m := range c.Messages {
		if m.ID == messageID {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			return true
		}
	}
	return false
}

// Timeline returns a copy of a chat's message sequence, oldest first.
func (s *Store) Timeline(chatID ChatID) []Message {
	c, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	return append([]Message(nil), c.Messages...)
}

// SetUsers replaces the known user set with a fresh snapshot. Snapshots are
// delivered wholesale; there are no partial user updates.
func (s *Store) SetUsers(users []User) {
	s.users = make(map[UserID]User, len(users))
	for _, u := range users {
		s.users[u.ID] = u
	}
}

// User returns the user with the given id.
func (s *Store) User(id UserID) (User, bool) {
	u, ok := s.users[id]
	return u, ok
}

// Users returns all known users in no particular order.
func (s *Store) Users() []User {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out
}

// ResolveChatName returns the display name for a chat. Private chats have no
// server-side name; the peer's username is resolved at read time.
func (s *Store) ResolveChatName(chat Chat, self UserID) string {
	if chat.Name != "" {
		return chat.Name
	}
	if chat.Type == ChatTypePrivate {
		for _, member := range chat.Members {
			if member == self {
				continue
			}
			if u, ok := s.users[member]; ok {
				return u.Username
			}
		}
		return "Unknown User"
	}
	return "Chat"
}

// ChatsByActivity returns copies of all chats ordered by the timestamp of
// their newest message, most recently active first.
func (s *Store) ChatsByActivity() []Chat {
	out := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastTimestamp() > out[j].LastTimestamp()
	})
	return out
}

// Reset drops all chats and users, as on logout.
func (s *Store) Reset() {
	s.chats = make(map[ChatID]*Chat)
	s.users = make(map[UserID]User)
}
