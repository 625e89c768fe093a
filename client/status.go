package client

// Status is the delivery status displayed next to a message. It only ever
// moves forward: Pending -> Sent -> Seen.
type Status int

const (
	// StatusPending marks a message waiting for server confirmation.
	StatusPending Status = iota
	// StatusSent marks a message confirmed by the server.
	StatusSent
	// StatusSeen marks a message seen by at least one other chat member.
	StatusSeen
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	case StatusSeen:
		return "seen"
	}
	return "unknown"
}

// ComputeStatus derives the status shown for msg in chat from the point of
// view of the local user. Messages sent by others are always reported as
// Sent: the client does not render read receipts on incoming messages.
func ComputeStatus(msg Message, chat Chat, self UserID) Status {
	if msg.SenderID != self {
		return StatusSent
	}
	if msg.ID.Temporary() {
		return StatusPending
	}
	for _, member := range chat.Members {
		if member == self {
			continue
		}
		if msg.SeenByUser(member) {
			return StatusSeen
		}
	}
	return StatusSent
}

// NeedsSeenReceipt reports whether the local user still owes the server a
// seen receipt for msg. Checking SeenBy here is what keeps the receipt from
// being emitted more than once per message.
func NeedsSeenReceipt(msg Message, self UserID) bool {
	return msg.SenderID != self && !msg.SeenByUser(self)
}
