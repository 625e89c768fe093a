package client

import (
	"log/slog"
	"sort"
)

// A Synchronizer merges incoming message batches into the store's per-chat
// timelines and applies edits, deletions and seen updates.
type Synchronizer struct {
	Logger *slog.Logger
	Store  *Store
}

// MergeHistory merges an unordered batch of messages into a chat's
// timeline. Messages whose id is already present are dropped, the novel
// remainder is appended, and the full timeline is re-sorted by timestamp.
// The sort is stable so messages sharing a second-granularity timestamp keep
// their relative order.
//
// Sorting after the merge, instead of inserting in order, keeps the
// timeline invariant independent of batch arrival order and of clock skew
// between batches: merging the same batch twice is a no-op.
//
// The returned slice holds the novel messages sorted oldest first. For a
// pagination response these are, by construction, older than everything
// already loaded; the caller prepends them one at a time and owns any
// scroll-anchor adjustment. ok is false when the chat is unknown, which is
// a no-op rather than an error.
func (sy *Synchronizer) MergeHistory(chatID ChatID, batch []Message) (novel []Message, ok bool) {
	c, ok := sy.Store.chats[chatID]
	if !ok {
		sy.Logger.Warn("History batch for unknown chat", "chat_id", chatID, "count", len(batch))
		return nil, false
	}

	existing := make(map[MessageID]struct{}, len(c.Messages))
	for _, m := range c.Messages {
		existing[m.ID] = struct{}{}
	}

	for _, m := range batch {
		if m.ID == "" || m.SenderID == "" {
			sy.Logger.Warn("Skipping malformed message in batch", "chat_id", chatID)
			continue
		}
		if _, dup := existing[m.ID]; dup {
			continue
		}
		existing[m.ID] = struct{}{}
		novel = append(novel, m)
	}
	if len(novel) == 0 {
		return nil, true
	}

	c.Messages = append(c.Messages, novel...)
	sort.SliceStable(c.Messages, func(i, j int) bool {
		return c.Messages[i].Timestamp < c.Messages[j].Timestamp
	})

	sort.SliceStable(novel, func(i, j int) bool {
		return novel[i].Timestamp < novel[j].Timestamp
	})
	return novel, true
}

// ApplyEdit updates a message's text and edit timestamp in place. The
// timeline is not reordered; edits do not move messages.
func (sy *Synchronizer) ApplyEdit(chatID ChatID, messageID MessageID, newText string, editedAt int64) bool {
	c, ok := sy.Store.chats[chatID]
	if !ok {
		return false
	}
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			c.Messages[i].Text = newText
			c.Messages[i].EditedAt = editedAt
			return true
		}
	}
	return false
}

// ApplyDelete removes a message. Messages replying to it keep their
// reference; dangling reply references are tolerated throughout.
func (sy *Synchronizer) ApplyDelete(chatID ChatID, messageID MessageID) bool {
	return sy.Store.RemoveMessage(chatID, messageID)
}

// ApplySeen records that a user has seen a message. The seen set only ever
// grows. The updated message is returned so the caller can recompute its
// status.
func (sy *Synchronizer) ApplySeen(chatID ChatID, messageID MessageID, userID UserID) (Message, bool) {
	c, ok := sy.Store.chats[chatID]
	if !ok {
		return Message{}, false
	}
	for i := range c.Messages {
		if c.Messages[i].ID != messageID {
			continue
		}
		if !c.Messages[i].SeenByUser(userID) {
			c.Messages[i].SeenBy = append(c.Messages[i].SeenBy, userID)
		}
		return c.Messages[i], true
	}
	return Message{}, false
}
