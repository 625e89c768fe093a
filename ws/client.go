// Package ws is the protocol adapter: it turns wire events from the chat
// server into typed calls on the core and turns core commands into wire
// requests. Connection framing, reconnection policy and timeouts live here,
// not in the core.
package ws

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/noveo/messenger-core/client"
	"github.com/noveo/messenger-core/ws/validator"
)

// An EventHandler receives the typed events decoded from the wire.
// *client.Client implements it. Events are delivered sequentially from the
// read loop goroutine, which is what lets the core stay lock-free.
type EventHandler interface {
	LoginSucceeded(user client.User, token string)
	AuthFailed(message string)
	HistoryReceived(chats []client.Chat)
	MessageReceived(ctx context.Context, msg client.Message)
	UsersUpdated(users []client.User)
	ChatCreated(chat client.Chat)
	SeenUpdated(chatID client.ChatID, messageID client.MessageID, userID client.UserID)
	MessageEdited(chatID client.ChatID, messageID client.MessageID, newText string, editedAt int64)
	MessageDeleted(chatID client.ChatID, messageID client.MessageID)
	ErrorReceived(message string)
}

type validateFunc func(s any) []validator.FieldError

const handshakeTimeout = 10 * time.Second

// A Conn is a websocket connection to the chat server. It implements
// client.Adapter for the outbound direction.
type Conn struct {
	Logger  *slog.Logger
	URL     string
	Handler EventHandler
	Val     *validator.Validator

	// Insecure accepts untrusted certificates, matching how this client is
	// deployed against self-hosted servers.
	Insecure bool

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// Dial opens the websocket connection. Events are not delivered until
// Listen runs.
func (c *Conn) Dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	if c.Insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	conn, resp, err := dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.URL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	c.conn = conn
	return nil
}

// Listen reads and dispatches events until the connection closes or ctx is
// canceled. It always returns a non-nil error describing why it stopped.
func (c *Conn) Listen(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(ctx, data)
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// dispatch decodes one wire event and hands it to the handler. Unknown
// types are logged and ignored; malformed payloads never abort the loop.
func (c *Conn) dispatch(ctx context.Context, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.Logger.Warn("Discarding undecodable frame", "error", err.Error())
		return
	}

	switch env.Type {
	case evtLoginSuccess:
		var p loginSuccessPayload
		if !c.decode(data, &p, env.Type) {
			return
		}
		c.Handler.LoginSucceeded(p.User.user(), p.Token)

	case evtAuthFailed:
		var p errorPayload
		if !c.decode(data, &p, env.Type) {
			return
		}
		c.Handler.AuthFailed(p.Message)

	case evtChatHistory:
		var p chatHistoryPayload
		if !c.decode(data, &p, env.Type) {
			return
		}
		chats := make([]client.Chat, 0, len(p.Chats))
		for _, wc := range p.Chats {
			if errs := c.Val.ValidateStruct(wc); len(errs) > 0 {
				c.Logger.Warn("Skipping malformed chat in history", "fields", validator.Fields(errs))
				continue
			}
			chat, skipped := wc.chat(c.Val.ValidateStruct)
			if skipped > 0 {
				c.Logger.Warn("Skipped malformed messages in history", "chat_id", chat.ID, "count", skipped)
			}
			chats = append(chats, chat)
		}
		c.Handler.HistoryReceived(chats)

	case evtMessage:
		var p wireMessage
		if !c.decode(data, &p, env.Type) {
			return
		}
		if errs := c.Val.ValidateStruct(p); len(errs) > 0 {
			c.Logger.Warn("Skipping malformed message", "fields", validator.Fields(errs))
			return
		}
		c.Handler.MessageReceived(ctx, p.message())

	case evtUserListUpdate:
		var p userListPayload
		if !c.decode(data, &p, env.Type) {
			return
		}
		users := make([]client.User, 0, len(p.Users))
		for _, wu := range p.Users {
			if errs := c.Val.ValidateStruct(wu); len(errs) > 0 {
				c.Logger.Warn("Skipping malformed user", "fields", validator.Fields(errs))
				continue
			}
			users = append(users, wu.user())
		}
		c.Handler.UsersUpdated(users)

	case evtNewChatInfo:
		var p newChatPayload
		if !c.decode(data, &p, env.Type) {
			return
		}
		if errs := c.Val.ValidateStruct(p.Chat); len(errs) > 0 {
			c.Logger.Warn("Skipping malformed chat", "fields", validator.Fields(errs))
			return
		}
		chat, _ := p.Chat.chat(c.Val.ValidateStruct)
		c.Handler.ChatCreated(chat)

	case evtSeenUpdate:
		var p seenUpdatePayload
		if !c.decode(data, &p, env.Type) {
			return
		}
		if errs := c.Val.ValidateStruct(p); len(errs) > 0 {
			c.Logger.Warn("Skipping malformed seen update", "fields", validator.Fields(errs))
			return
		}
		c.Handler.SeenUpdated(client.ChatID(p.ChatID), client.MessageID(p.MessageID), client.UserID(p.UserID))

	case evtMessageUpdated:
		var p messageUpdatedPayload
		if !c.decode(data, &p, env.Type) {
			return
		}
		if errs := c.Val.ValidateStruct(p); len(errs) > 0 {
			c.Logger.Warn("Skipping malformed edit", "fields", validator.Fields(errs))
			return
		}
		c.Handler.MessageEdited(client.ChatID(p.ChatID), client.MessageID(p.MessageID), p.NewContent, p.EditedAt)

	case evtMessageDeleted:
		var p messageDeletedPayload
		if !c.decode(data, &p, env.Type) {
			return
		}
		if errs := c.Val.ValidateStruct(p); len(errs) > 0 {
			c.Logger.Warn("Skipping malformed delete", "fields", validator.Fields(errs))
			return
		}
		c.Handler.MessageDeleted(client.ChatID(p.ChatID), client.MessageID(p.MessageID))

	case evtError:
		var p errorPayload
		if !c.decode(data, &p, env.Type) {
			return
		}
		c.Handler.ErrorReceived(p.Message)

	default:
		c.Logger.Warn("Ignoring unknown event type", "type", env.Type)
	}
}

func (c *Conn) decode(data []byte, v any, typ string) bool {
	if err := json.Unmarshal(data, v); err != nil {
		c.Logger.Warn("Discarding malformed payload", "type", typ, "error", err.Error())
		return false
	}
	return true
}

func (c *Conn) write(ctx context.Context, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("write: not connected")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteJSON(payload)
}

// Login authenticates with a username and password.
func (c *Conn) Login(ctx context.Context, username, password string) error {
	return c.write(ctx, map[string]any{
		"type":     cmdLogin,
		"username": username,
		"password": password,
	})
}

// SendMessage implements client.Adapter. recipientID, when set, replaces
// chatId in the payload so the server creates the pair's chat.
func (c *Conn) SendMessage(ctx context.Context, chatID client.ChatID, recipientID client.UserID, text string, replyTo client.MessageID) error {
	payload := map[string]any{
		"type": cmdMessage,
		"content": map[string]any{
			"text":  text,
			"file":  nil,
			"theme": nil,
		},
		"replyToId": nil,
	}
	if recipientID != "" {
		payload["recipientId"] = string(recipientID)
	} else {
		payload["chatId"] = string(chatID)
	}
	if replyTo != "" {
		payload["replyToId"] = string(replyTo)
	}
	return c.write(ctx, payload)
}

// FetchHistory implements client.Adapter.
func (c *Conn) FetchHistory(ctx context.Context, chatID client.ChatID, before int64) error {
	return c.write(ctx, map[string]any{
		"type":   cmdGetHistory,
		"chatId": string(chatID),
		"before": before,
	})
}

// MarkSeen implements client.Adapter.
func (c *Conn) MarkSeen(ctx context.Context, chatID client.ChatID, messageID client.MessageID) error {
	return c.write(ctx, map[string]any{
		"type":      cmdMessageSeen,
		"chatId":    string(chatID),
		"messageId": string(messageID),
	})
}

// EditMessage implements client.Adapter.
func (c *Conn) EditMessage(ctx context.Context, chatID client.ChatID, messageID client.MessageID, newText string) error {
	return c.write(ctx, map[string]any{
		"type":      cmdEdit,
		"chatId":    string(chatID),
		"messageId": string(messageID),
		"newText":   newText,
	})
}

// DeleteMessage implements client.Adapter.
func (c *Conn) DeleteMessage(ctx context.Context, chatID client.ChatID, messageID client.MessageID) error {
	return c.write(ctx, map[string]any{
		"type":      cmdDelete,
		"chatId":    string(chatID),
		"messageId": string(messageID),
	})
}

var _ client.Adapter = (*Conn)(nil)
