package client

import (
	"testing"

	"github.com/neilotoole/slogt"
)

func TestSendTracker_Confirm(t *testing.T) {
	tr := &SendTracker{Logger: slogt.New(t)}
	tr.Track(Message{ID: "temp-1", ChatID: "chat-1", SenderID: "me", Text: "hello"})

	echo := Message{ID: "m-42", ChatID: "chat-1", SenderID: "me", Text: "hello"}
	tempID, ok := tr.Confirm(echo)
	if !ok || tempID != "temp-1" {
		t.Fatalf("Got (%q, %v), want (temp-1, true)", tempID, ok)
	}
	if tr.Len() != 0 {
		t.Errorf("Got %d pending entries, want 0", tr.Len())
	}

	// A second identical echo finds nothing left to retire.
	if _, ok := tr.Confirm(echo); ok {
		t.Error("Confirm matched an already-retired entry")
	}
}

func TestSendTracker_ConfirmNoMatch(t *testing.T) {
	tr := &SendTracker{Logger: slogt.New(t)}
	tr.Track(Message{ID: "temp-1", ChatID: "chat-1", SenderID: "me", Text: "hello"})

	tests := []struct {
		name string
		echo Message
	}{
		{name: "DifferentText", echo: Message{ID: "m-1", ChatID: "chat-1", SenderID: "me", Text: "bye"}},
		{name: "DifferentChat", echo: Message{ID: "m-2", ChatID: "chat-2", SenderID: "me", Text: "hello"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := tr.Confirm(tt.echo); ok {
				t.Error("Confirm matched unexpectedly")
			}
		})
	}
	if tr.Len() != 1 {
		t.Errorf("Got %d pending entries, want 1", tr.Len())
	}
}

// Duplicate rapid sends of identical text retire oldest first; the server
// is expected to confirm in send order.
func TestSendTracker_ConfirmFIFO(t *testing.T) {
	tr := &SendTracker{Logger: slogt.New(t)}
	tr.Track(Message{ID: "temp-old", ChatID: "chat-1", SenderID: "me", Text: "hi"})
	tr.Track(Message{ID: "temp-new", ChatID: "chat-1", SenderID: "me", Text: "hi"})

	echo := Message{ID: "m-1", ChatID: "chat-1", SenderID: "me", Text: "hi"}

	first, _ := tr.Confirm(echo)
	if first != "temp-old" {
		t.Errorf("Got %q first, want temp-old", first)
	}
	second, _ := tr.Confirm(echo)
	if second != "temp-new" {
		t.Errorf("Got %q second, want temp-new", second)
	}
}

func TestSendTracker_Reset(t *testing.T) {
	tr := &SendTracker{Logger: slogt.New(t)}
	tr.Track(Message{ID: "temp-1", ChatID: "chat-1", SenderID: "me", Text: "hello"})

	tr.Reset()

	if tr.Len() != 0 {
		t.Errorf("Got %d pending entries after reset, want 0", tr.Len())
	}
}
