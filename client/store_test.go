package client

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
)

func TestStore_UpsertChat(t *testing.T) {
	s := NewStore(slogt.New(t))

	s.UpsertChat(Chat{
		ID:      "c1",
		Name:    "Team",
		Type:    ChatTypeGroup,
		Members: []UserID{"alice", "bob"},
		Messages: []Message{
			msg("b", 200), msg("a", 100),
		},
	})

	// Insert sorts the incoming timeline.
	if diff := cmp.Diff([]MessageID{"a", "b"}, timelineIDs(t, s, "c1")); diff != "" {
		t.Errorf("Timeline mismatch (-want +got):\n%s", diff)
	}

	// A second upsert refreshes metadata but never touches messages.
	s.UpsertChat(Chat{
		ID:      "c1",
		Name:    "Team Renamed",
		Type:    ChatTypeGroup,
		Members: []UserID{"alice", "bob", "carol"},
		Messages: []Message{
			msg("x", 999),
		},
	})

	got, ok := s.Chat("c1")
	if !ok {
		t.Fatal("Chat disappeared")
	}
	if got.Name != "Team Renamed" {
		t.Errorf("Got name %q, want %q", got.Name, "Team Renamed")
	}
	if len(got.Members) != 3 {
		t.Errorf("Got %d members, want 3", len(got.Members))
	}
	if diff := cmp.Diff([]MessageID{"a", "b"}, timelineIDs(t, s, "c1")); diff != "" {
		t.Errorf("Upsert overwrote the timeline (-want +got):\n%s", diff)
	}
}

func TestStore_AppendLiveMessage(t *testing.T) {
	s := NewStore(slogt.New(t))
	s.UpsertChat(Chat{ID: "c1", Type: ChatTypeGroup})

	if !s.AppendLiveMessage(msg("a", 100)) {
		t.Error("Append to known chat failed")
	}

	// Unknown chat: dropped, not stored anywhere.
	dropped := msg("x", 100)
	dropped.ChatID = "nope"
	if s.AppendLiveMessage(dropped) {
		t.Error("Append to unknown chat should report false")
	}
	if _, ok := s.FindMessage("nope", "x"); ok {
		t.Error("Dropped message should not be findable")
	}
}

func TestStore_FindAndRemoveMessage(t *testing.T) {
	s := NewStore(slogt.New(t))
	s.UpsertChat(Chat{ID: "c1", Type: ChatTypeGroup, Messages: []Message{msg("a", 100)}})

	if _, ok := s.FindMessage("c1", "a"); !ok {
		t.Error("FindMessage missed an existing message")
	}
	if _, ok := s.FindMessage("c1", "zzz"); ok {
		t.Error("FindMessage invented a message")
	}

	if !s.RemoveMessage("c1", "a") {
		t.Error("Remove failed")
	}
	if s.RemoveMessage("c1", "a") {
		t.Error("Second remove should be a no-op")
	}
	if s.RemoveMessage("nope", "a") {
		t.Error("Remove in unknown chat should be a no-op")
	}
}

func TestStore_ResolveChatName(t *testing.T) {
	tests := []struct {
		name  string
		chat  Chat
		users []User
		want  string
	}{
		{
			name: "NamedChat",
			chat: Chat{ID: "c1", Name: "Team", Type: ChatTypeGroup},
			want: "Team",
		},
		{
			name:  "PrivateResolvesPeer",
			chat:  Chat{ID: "c1", Type: ChatTypePrivate, Members: []UserID{"alice", "bob"}},
			users: []User{{ID: "bob", Username: "Bob"}},
			want:  "Bob",
		},
		{
			name: "PrivatePeerUnknown",
			chat: Chat{ID: "c1", Type: ChatTypePrivate, Members: []UserID{"alice", "bob"}},
			want: "Unknown User",
		},
		{
			name: "UnnamedGroup",
			chat: Chat{ID: "c1", Type: ChatTypeGroup, Members: []UserID{"alice", "bob"}},
			want: "Chat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(slogt.New(t))
			s.SetUsers(tt.users)
			if got := s.ResolveChatName(tt.chat, "alice"); got != tt.want {
				t.Errorf("Got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStore_ChatsByActivity(t *testing.T) {
	s := NewStore(slogt.New(t))
	s.UpsertChat(Chat{ID: "old", Type: ChatTypeGroup, Messages: []Message{msg("a", 100)}})
	s.UpsertChat(Chat{ID: "new", Type: ChatTypeGroup, Messages: []Message{msg("b", 500)}})
	s.UpsertChat(Chat{ID: "empty", Type: ChatTypeGroup})

	var got []ChatID
	for _, c := range s.ChatsByActivity() {
		got = append(got, c.ID)
	}
	want := []ChatID{"new", "old", "empty"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Order mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_Reset(t *testing.T) {
	s := NewStore(slogt.New(t))
	s.UpsertChat(Chat{ID: "c1", Type: ChatTypeGroup})
	s.SetUsers([]User{{ID: "alice"}})

	s.Reset()

	if len(s.ChatsByActivity()) != 0 {
		t.Error("Chats survived reset")
	}
	if _, ok := s.User("alice"); ok {
		t.Error("Users survived reset")
	}
}

func TestDirectChatID(t *testing.T) {
	if got, want := DirectChatID("bob", "alice"), ChatID("alice:bob"); got != want {
		t.Errorf("Got %q, want %q", got, want)
	}
	// Both participants derive the same id.
	if DirectChatID("alice", "bob") != DirectChatID("bob", "alice") {
		t.Error("Direct chat id depends on initiator")
	}
}
