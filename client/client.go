package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// An Adapter issues commands to the chat server. The concrete
// implementation lives in the protocol layer; this core never retries or
// times out requests itself.
type Adapter interface {
	// SendMessage sends text to a chat. When recipientID is non-empty the
	// chat does not exist yet and the server creates it for the pair.
	SendMessage(ctx context.Context, chatID ChatID, recipientID UserID, text string, replyTo MessageID) error
	FetchHistory(ctx context.Context, chatID ChatID, before int64) error
	MarkSeen(ctx context.Context, chatID ChatID, messageID MessageID) error
	EditMessage(ctx context.Context, chatID ChatID, messageID MessageID, newText string) error
	DeleteMessage(ctx context.Context, chatID ChatID, messageID MessageID) error
}

// A Client applies inbound protocol events to the local state and issues
// outbound commands. It is the surface the UI layer talks to.
//
// All event-applying methods must be called from a single goroutine, the
// one running the protocol read loop. The optional On* callbacks are
// invoked synchronously from that goroutine after the corresponding state
// change; they replace any form of runtime type recovery for notifying the
// UI.
type Client struct {
	Logger  *slog.Logger
	Adapter Adapter

	// Now supplies timestamps for optimistic placeholders. Defaults to the
	// wall clock; tests pin it.
	Now func() int64

	OnChatListChanged func()
	OnTimelineChanged func(chatID ChatID)
	OnPendingRetired  func(chatID ChatID, tempID MessageID)
	OnStatusChanged   func(chatID ChatID, messageID MessageID, status Status)
	OnError           func(message string)

	self    UserID
	focused ChatID
	store   *Store
	syncer  *Synchronizer
	tracker *SendTracker

	once sync.Once
}

func (c *Client) init() {
	c.once.Do(func() {
		if c.Logger == nil {
			c.Logger = slog.Default()
		}
		if c.Now == nil {
			c.Now = func() int64 { return time.Now().Unix() }
		}
		c.store = NewStore(c.Logger)
		c.syncer = &Synchronizer{Logger: c.Logger, Store: c.store}
		c.tracker = &SendTracker{Logger: c.Logger}
	})
}

// Self returns the logged-in user's id, empty before login.
func (c *Client) Self() UserID {
	return c.self
}

// Chats returns all known chats ordered by recent activity.
func (c *Client) Chats() []Chat {
	c.init()
	return c.store.ChatsByActivity()
}

// Timeline returns the loaded messages of a chat, oldest first.
func (c *Client) Timeline(chatID ChatID) []Message {
	c.init()
	return c.store.Timeline(chatID)
}

// FindMessage looks up a single message, used for reply previews.
func (c *Client) FindMessage(chatID ChatID, messageID MessageID) (Message, bool) {
	c.init()
	return c.store.FindMessage(chatID, messageID)
}

// ChatTitle resolves the display name of a chat.
func (c *Client) ChatTitle(chatID ChatID) string {
	c.init()
	chat, ok := c.store.Chat(chatID)
	if !ok {
		return ""
	}
	return c.store.ResolveChatName(chat, c.self)
}

// User returns a user from the last user-list snapshot.
func (c *Client) User(id UserID) (User, bool) {
	c.init()
	return c.store.User(id)
}

// Users returns the last user-list snapshot.
func (c *Client) Users() []User {
	c.init()
	return c.store.Users()
}

// MessageStatus derives the display status of a message in its chat.
func (c *Client) MessageStatus(msg Message) Status {
	c.init()
	chat, ok := c.store.Chat(msg.ChatID)
	if !ok {
		return StatusSent
	}
	return ComputeStatus(msg, chat, c.self)
}

// Focus marks a chat as the one currently open on screen. Seen receipts for
// its unread incoming messages are emitted now, and new messages arriving
// for it are acknowledged as they come in. Receipts already recorded in
// SeenBy are never re-sent.
func (c *Client) Focus(ctx context.Context, chatID ChatID) {
	c.init()
	c.focused = chatID
	for _, msg := range c.store.Timeline(chatID) {
		if !NeedsSeenReceipt(msg, c.self) || msg.ID.Temporary() {
			continue
		}
		if err := c.Adapter.MarkSeen(ctx, chatID, msg.ID); err != nil {
			c.Logger.Error("Could not send seen receipt", "chat_id", chatID, "message_id", msg.ID, "error", err.Error())
		}
	}
}

// Send inserts an optimistic placeholder into the timeline and issues the
// send command. The placeholder keeps a temporary id until the server echo
// retires it. For a private chat that does not exist yet the command
// carries the recipient id instead, letting the server create the chat.
func (c *Client) Send(ctx context.Context, chatID ChatID, text string, replyTo MessageID) (Message, error) {
	c.init()
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, fmt.Errorf("send: empty message")
	}

	msg := Message{
		ID:        NewTempMessageID(),
		ChatID:    chatID,
		SenderID:  c.self,
		Text:      text,
		Timestamp: c.Now(),
		ReplyToID: replyTo,
	}

	var recipient UserID
	if _, known := c.store.Chat(chatID); !known {
		recipient = otherParticipant(chatID, c.self)
	} else {
		c.store.AppendLiveMessage(msg)
		if c.OnTimelineChanged != nil {
			c.OnTimelineChanged(chatID)
		}
	}
	c.tracker.Track(msg)

	if err := c.Adapter.SendMessage(ctx, chatID, recipient, text, replyTo); err != nil {
		return Message{}, fmt.Errorf("send: %w", err)
	}
	return msg, nil
}

// otherParticipant extracts the peer's id from a derived direct-chat id.
// Returns empty when the id is not a direct pair involving self.
func otherParticipant(chatID ChatID, self UserID) UserID {
	parts := strings.Split(string(chatID), ":")
	if len(parts) != 2 {
		return ""
	}
	a, b := UserID(parts[0]), UserID(parts[1])
	switch self {
	case a:
		return b
	case b:
		return a
	}
	return ""
}

// FetchOlder requests the page of history preceding the oldest loaded
// message of a chat.
func (c *Client) FetchOlder(ctx context.Context, chatID ChatID) error {
	c.init()
	before := c.Now()
	if tl := c.store.Timeline(chatID); len(tl) > 0 {
		before = tl[0].Timestamp
	}
	if err := c.Adapter.FetchHistory(ctx, chatID, before); err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	return nil
}

// Edit issues an edit command. The local timeline is updated when the
// server's edit notification comes back.
func (c *Client) Edit(ctx context.Context, chatID ChatID, messageID MessageID, newText string) error {
	c.init()
	if err := c.Adapter.EditMessage(ctx, chatID, messageID, newText); err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	return nil
}

// Delete issues a delete command. The local timeline is updated when the
// server's delete notification comes back.
func (c *Client) Delete(ctx context.Context, chatID ChatID, messageID MessageID) error {
	c.init()
	if err := c.Adapter.DeleteMessage(ctx, chatID, messageID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Logout clears all in-memory state. Unconfirmed optimistic sends are
// abandoned.
func (c *Client) Logout() {
	c.init()
	c.store.Reset()
	c.tracker.Reset()
	c.self = ""
	c.focused = ""
	if c.OnChatListChanged != nil {
		c.OnChatListChanged()
	}
}

// LoginSucceeded records the authenticated user.
func (c *Client) LoginSucceeded(user User, token string) {
	c.init()
	c.self = user.ID
	c.Logger.Info("Logged in", "user_id", user.ID, "username", user.Username)
}

// AuthFailed surfaces an authentication failure verbatim. No retry happens
// here.
func (c *Client) AuthFailed(message string) {
	c.init()
	c.Logger.Warn("Authentication failed", "message", message)
	if c.OnError != nil {
		c.OnError(message)
	}
}

// HistoryReceived merges a history snapshot. Unknown chats are inserted,
// known chats get their metadata refreshed and their message batch merged
// into the existing timeline.
func (c *Client) HistoryReceived(chats []Chat) {
	c.init()
	for _, chat := range chats {
		if _, known := c.store.Chat(chat.ID); !known {
			c.store.UpsertChat(chat)
			if c.OnTimelineChanged != nil {
				c.OnTimelineChanged(chat.ID)
			}
			continue
		}
		c.store.UpsertChat(chat)
		novel, ok := c.syncer.MergeHistory(chat.ID, chat.Messages)
		if ok && len(novel) > 0 && c.OnTimelineChanged != nil {
			c.OnTimelineChanged(chat.ID)
		}
	}
	if c.OnChatListChanged != nil {
		c.OnChatListChanged()
	}
}

// MessageReceived applies a live message push. A message echoing one of our
// own optimistic sends first retires its placeholder; the confirmed message
// is then appended normally. Incoming messages for the focused chat are
// acknowledged with a seen receipt.
func (c *Client) MessageReceived(ctx context.Context, msg Message) {
	c.init()
	if msg.ID == "" || msg.ChatID == "" || msg.SenderID == "" {
		c.Logger.Warn("Skipping malformed live message")
		return
	}

	if msg.SenderID == c.self {
		if tempID, ok := c.tracker.Confirm(msg); ok {
			c.store.RemoveMessage(msg.ChatID, tempID)
			if c.OnPendingRetired != nil {
				c.OnPendingRetired(msg.ChatID, tempID)
			}
		}
	}

	if !c.store.AppendLiveMessage(msg) {
		return
	}

	if msg.ChatID == c.focused && NeedsSeenReceipt(msg, c.self) {
		if err := c.Adapter.MarkSeen(ctx, msg.ChatID, msg.ID); err != nil {
			c.Logger.Error("Could not send seen receipt", "chat_id", msg.ChatID, "message_id", msg.ID, "error", err.Error())
		}
	}

	if c.OnTimelineChanged != nil {
		c.OnTimelineChanged(msg.ChatID)
	}
	if c.OnChatListChanged != nil {
		c.OnChatListChanged()
	}
}

// UsersUpdated replaces the user set with a fresh snapshot.
func (c *Client) UsersUpdated(users []User) {
	c.init()
	c.store.SetUsers(users)
	if c.OnChatListChanged != nil {
		c.OnChatListChanged()
	}
}

// ChatCreated inserts a chat announced by the server.
func (c *Client) ChatCreated(chat Chat) {
	c.init()
	c.store.UpsertChat(chat)
	if c.OnChatListChanged != nil {
		c.OnChatListChanged()
	}
}

// SeenUpdated grows a message's seen set and reports the recomputed status.
func (c *Client) SeenUpdated(chatID ChatID, messageID MessageID, userID UserID) {
	c.init()
	msg, ok := c.syncer.ApplySeen(chatID, messageID, userID)
	if !ok {
		return
	}
	if c.OnStatusChanged != nil {
		c.OnStatusChanged(chatID, messageID, c.MessageStatus(msg))
	}
}

// MessageEdited applies an edit notification.
func (c *Client) MessageEdited(chatID ChatID, messageID MessageID, newText string, editedAt int64) {
	c.init()
	if c.syncer.ApplyEdit(chatID, messageID, newText, editedAt) && c.OnTimelineChanged != nil {
		c.OnTimelineChanged(chatID)
	}
}

// MessageDeleted applies a delete notification.
func (c *Client) MessageDeleted(chatID ChatID, messageID MessageID) {
	c.init()
	if c.syncer.ApplyDelete(chatID, messageID) && c.OnTimelineChanged != nil {
		c.OnTimelineChanged(chatID)
	}
}

// ErrorReceived surfaces a server error message. No state changes.
func (c *Client) ErrorReceived(message string) {
	c.init()
	c.Logger.Warn("Server error", "message", message)
	if c.OnError != nil {
		c.OnError(message)
	}
}
