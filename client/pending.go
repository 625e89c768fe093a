package client

import "log/slog"

// A SendTracker reconciles optimistic placeholder messages with their
// server echoes so the timeline never shows a duplicate bubble.
type SendTracker struct {
	Logger *slog.Logger

	pending []pendingSend // oldest first
}

type pendingSend struct {
	tempID MessageID
	chatID ChatID
	text   string
}

// Track records a placeholder message that was just inserted optimistically.
func (t *SendTracker) Track(msg Message) {
	t.pending = append(t.pending, pendingSend{
		tempID: msg.ID,
		chatID: msg.ChatID,
		text:   msg.Text,
	})
}

// Confirm matches an incoming live message sent by the local user against
// the pending table. The match key is the exact (chat, text) pair; when
// several pending sends match, the oldest wins, since the server is
// expected to confirm in send order. On a match the entry is retired and
// its placeholder id returned so the caller can remove the placeholder.
//
// This is best-effort: identical texts sent twice in quick succession and
// confirmed out of order may retire the wrong placeholder. The rendered
// timeline is still correct, only the transient pending indicator can be
// attributed to the wrong bubble.
func (t *SendTracker) Confirm(msg Message) (MessageID, bool) {
	for i, p := range t.pending {
		if p.chatID == msg.ChatID && p.text == msg.Text {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			t.Logger.Debug("Confirmed optimistic send", "temp_id", p.tempID, "message_id", msg.ID)
			return p.tempID, true
		}
	}
	return "", false
}

// Len returns the number of unconfirmed sends.
func (t *SendTracker) Len() int {
	return len(t.pending)
}

// Reset discards all pending entries. There is no persistent outbox;
// unconfirmed sends are abandoned on logout.
func (t *SendTracker) Reset() {
	t.pending = nil
}
