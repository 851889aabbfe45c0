package roster

import (
	"strings"
	"testing"
)

func ids(ps []Participant) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ClientID
	}
	return out
}

func TestApplySnapshotExcludesLocal(t *testing.T) {
	r := New("me", nil)
	r.ApplySnapshot([]Entry{{ClientID: "a"}, {ClientID: "me"}, {ClientID: "b", DisplayName: "Bob"}})

	got := ids(r.Snapshot())
	if strings.Join(got, ",") != "a,b" {
		t.Fatalf("ids = %v, want [a b]", got)
	}
	if r.Has("me") {
		t.Error("local id present in roster")
	}
}

func TestApplySnapshotReplaces(t *testing.T) {
	r := New("me", nil)
	r.Join("old", "Old")
	r.AttachStream("old", "s", RemoteTrack{ID: "t", Kind: "audio"})

	r.ApplySnapshot([]Entry{{ClientID: "new"}, {ClientID: "old"}})
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	p, _ := r.Get("old")
	if p.RemoteStream != nil {
		t.Error("snapshot kept remote stream")
	}

	r.ApplySnapshot(nil)
	if r.Len() != 0 {
		t.Errorf("empty snapshot left %d participants", r.Len())
	}
}

func TestApplySnapshotSkipsInvalidEntries(t *testing.T) {
	r := New("me", nil)
	r.ApplySnapshot([]Entry{{ClientID: ""}, {ClientID: "a"}, {ClientID: "a", DisplayName: "dup"}})
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestDisplayNameDefaults(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", "User abcdef"},
		{"blank", "   ", "User abcdef"},
		{"control", "bad\x00name", "User abcdef"},
		{"too long", strings.Repeat("x", maxDisplayName+1), "User abcdef"},
		{"trimmed", "  Ann ", "Ann"},
		{"unicode", "Zoë", "Zoë"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("me", nil)
			r.Join("abcdefghij", tt.in)
			p, _ := r.Get("abcdefghij")
			if p.DisplayName != tt.want {
				t.Errorf("DisplayName = %q, want %q", p.DisplayName, tt.want)
			}
		})
	}

	if got := DefaultName("ab"); got != "User ab" {
		t.Errorf("DefaultName(short) = %q", got)
	}
}

func TestJoinLeave(t *testing.T) {
	r := New("me", nil)
	var updates int
	r.OnUpdate(func([]Participant) { updates++ })

	if !r.Join("a", "A") {
		t.Fatal("first Join returned false")
	}
	if r.Join("a", "A2") {
		t.Error("repeated Join reported new participant")
	}
	if p, _ := r.Get("a"); p.DisplayName != "A2" {
		t.Errorf("DisplayName = %q, want A2", p.DisplayName)
	}
	if r.Join("me", "Me") {
		t.Error("local id joined")
	}
	if !r.Leave("a") || r.Leave("a") {
		t.Error("Leave did not report presence correctly")
	}
	if updates != 3 {
		t.Errorf("updates = %d, want 3", updates)
	}
}

func TestStreamBookkeeping(t *testing.T) {
	r := New("me", nil)
	r.Join("a", "")

	r.AttachStream("a", "s1", RemoteTrack{ID: "v", Kind: "video"})
	r.AttachStream("a", "s1", RemoteTrack{ID: "au", Kind: "audio"})
	r.AttachStream("a", "s1", RemoteTrack{ID: "v", Kind: "video"})

	p, _ := r.Get("a")
	if !p.IsConnected || p.RemoteStream == nil || len(p.RemoteStream.Tracks) != 2 {
		t.Fatalf("participant = %+v", p)
	}

	// Returned copies do not alias registry state.
	p.RemoteStream.Tracks[0].Kind = "mutated"
	if q, _ := r.Get("a"); q.RemoteStream.Tracks[0].Kind != "video" {
		t.Error("Get returned aliased stream")
	}

	r.DetachStream("a")
	p, _ = r.Get("a")
	if p.IsConnected || p.RemoteStream != nil {
		t.Errorf("after detach = %+v", p)
	}

	if r.AttachStream("ghost", "s", RemoteTrack{ID: "x"}) {
		t.Error("AttachStream accepted unknown participant")
	}
}
