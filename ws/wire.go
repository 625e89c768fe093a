package ws

import (
	"encoding/json"

	"github.com/noveo/messenger-core/client"
)

// envelope carries the discriminator every wire event starts with.
type envelope struct {
	Type string `json:"type"`
}

// Inbound event type values.
const (
	evtLoginSuccess   = "login_success"
	evtAuthFailed     = "auth_failed"
	evtChatHistory    = "chat_history"
	evtMessage        = "message"
	evtUserListUpdate = "user_list_update"
	evtNewChatInfo    = "new_chat_info"
	evtSeenUpdate     = "message_seen_update"
	evtMessageUpdated = "message_updated"
	evtMessageDeleted = "message_deleted"
	evtError          = "error"
)

// Outbound command type values.
const (
	cmdLogin       = "login_with_password"
	cmdMessage     = "message"
	cmdGetHistory  = "get_history"
	cmdMessageSeen = "message_seen"
	cmdEdit        = "edit_message"
	cmdDelete      = "delete_message"
)

type wireUser struct {
	UserID    string `json:"userId" validate:"required"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	Online    bool   `json:"online"`
}

func (u wireUser) user() client.User {
	return client.User{
		ID:        client.UserID(u.UserID),
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		Online:    u.Online,
	}
}

type wireMessage struct {
	MessageID string          `json:"messageId" validate:"required"`
	ChatID    string          `json:"chatId" validate:"required"`
	SenderID  string          `json:"senderId" validate:"required"`
	Timestamp int64           `json:"timestamp"`
	Content   json.RawMessage `json:"content"`
	SeenBy    []string        `json:"seenBy"`
	EditedAt  int64           `json:"editedAt"`
	ReplyToID string          `json:"replyToId"`
}

// text extracts the message text. Some server versions nest the content
// object directly, others double-encode it as a JSON string; both forms are
// accepted.
func (m wireMessage) text() string {
	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &content); err == nil {
		return content.Text
	}
	var encoded string
	if err := json.Unmarshal(m.Content, &encoded); err != nil {
		return ""
	}
	if err := json.Unmarshal([]byte(encoded), &content); err != nil {
		return ""
	}
	return content.Text
}

func (m wireMessage) message() client.Message {
	seenBy := make([]client.UserID, len(m.SeenBy))
	for i, u := range m.SeenBy {
		seenBy[i] = client.UserID(u)
	}
	return client.Message{
		ID:        client.MessageID(m.MessageID),
		ChatID:    client.ChatID(m.ChatID),
		SenderID:  client.UserID(m.SenderID),
		Text:      m.text(),
		Timestamp: m.Timestamp,
		SeenBy:    seenBy,
		EditedAt:  m.EditedAt,
		ReplyToID: client.MessageID(m.ReplyToID),
	}
}

type wireChat struct {
	ChatID    string        `json:"chatId" validate:"required"`
	ChatName  string        `json:"chatName"`
	ChatType  string        `json:"chatType"`
	OwnerID   string        `json:"ownerId"`
	AvatarURL string        `json:"avatarUrl"`
	Members   []string      `json:"members"`
	Messages  []wireMessage `json:"messages"`
}

// chat converts the wire form, keeping only messages that pass validation.
// skipped reports how many records were dropped.
func (c wireChat) chat(val validateFunc) (client.Chat, int) {
	members := make([]client.UserID, len(c.Members))
	for i, m := range c.Members {
		members[i] = client.UserID(m)
	}
	msgs := make([]client.Message, 0, len(c.Messages))
	skipped := 0
	for _, wm := range c.Messages {
		if len(val(wm)) > 0 {
			skipped++
			continue
		}
		msgs = append(msgs, wm.message())
	}
	return client.Chat{
		ID:        client.ChatID(c.ChatID),
		Name:      c.ChatName,
		Type:      client.ChatType(c.ChatType),
		OwnerID:   client.UserID(c.OwnerID),
		AvatarURL: c.AvatarURL,
		Members:   members,
		Messages:  msgs,
	}, skipped
}

type loginSuccessPayload struct {
	User  wireUser `json:"user"`
	Token string   `json:"token"`
}

type chatHistoryPayload struct {
	Chats []wireChat `json:"chats"`
}

type userListPayload struct {
	Users []wireUser `json:"users"`
}

type newChatPayload struct {
	Chat wireChat `json:"chat"`
}

type seenUpdatePayload struct {
	ChatID    string `json:"chatId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
}

type messageUpdatedPayload struct {
	ChatID     string `json:"chatId" validate:"required"`
	MessageID  string `json:"messageId" validate:"required"`
	NewContent string `json:"newContent"`
	EditedAt   int64  `json:"editedAt"`
}

type messageDeletedPayload struct {
	ChatID    string `json:"chatId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
}

type errorPayload struct {
	Message string `json:"message"`
}
