// Package roster tracks the remote participants of a room.
package roster

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxDisplayName = 64

// RemoteTrack identifies one inbound media track.
type RemoteTrack struct {
	ID   string
	Kind string
}

// RemoteStream is the media a participant is sending us.
type RemoteStream struct {
	ID     string
	Tracks []RemoteTrack
}

type Participant struct {
	ClientID     string
	DisplayName  string
	IsConnected  bool
	RemoteStream *RemoteStream
}

// Entry is one row of a participants-list snapshot.
type Entry struct {
	ClientID    string
	DisplayName string
}

// Registry is the authoritative participant list. It never holds the local
// client. Registry is not safe for concurrent use.
type Registry struct {
	localID  string
	order    []string
	byID     map[string]*Participant
	logger   *slog.Logger
	onUpdate func([]Participant)
}

func New(localID string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		localID: localID,
		byID:    make(map[string]*Participant),
		logger:  logger,
	}
}

// OnUpdate registers fn to receive a copy of the roster after every change.
func (r *Registry) OnUpdate(fn func([]Participant)) {
	r.onUpdate = fn
}

// ApplySnapshot replaces the roster with entries. Remote streams are dropped;
// links re-attach them as tracks arrive.
func (r *Registry) ApplySnapshot(entries []Entry) {
	r.order = r.order[:0]
	r.byID = make(map[string]*Participant, len(entries))

	for _, e := range entries {
		if e.ClientID == "" {
			r.logger.Warn("skipping roster entry without client id")
			continue
		}
		if e.ClientID == r.localID {
			continue
		}
		if _, dup := r.byID[e.ClientID]; dup {
			continue
		}
		r.insert(e.ClientID, e.DisplayName)
	}
	r.notify()
}

// Join adds clientID. A repeated join refreshes the display name.
// It reports whether the participant is new.
func (r *Registry) Join(clientID, displayName string) bool {
	if clientID == "" || clientID == r.localID {
		return false
	}
	if p, ok := r.byID[clientID]; ok {
		p.DisplayName = normalizeName(clientID, displayName)
		r.notify()
		return false
	}
	r.insert(clientID, displayName)
	r.notify()
	return true
}

// Leave removes clientID and reports whether it was present.
func (r *Registry) Leave(clientID string) bool {
	if _, ok := r.byID[clientID]; !ok {
		return false
	}
	delete(r.byID, clientID)
	for i, id := range r.order {
		if id == clientID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.notify()
	return true
}

// AttachStream records an inbound track for clientID and marks it connected.
func (r *Registry) AttachStream(clientID, streamID string, track RemoteTrack) bool {
	p, ok := r.byID[clientID]
	if !ok {
		return false
	}
	if p.RemoteStream == nil || p.RemoteStream.ID != streamID {
		p.RemoteStream = &RemoteStream{ID: streamID}
	}
	replaced := false
	for i, t := range p.RemoteStream.Tracks {
		if t.ID == track.ID {
			p.RemoteStream.Tracks[i] = track
			replaced = true
		}
	}
	if !replaced {
		p.RemoteStream.Tracks = append(p.RemoteStream.Tracks, track)
	}
	p.IsConnected = true
	r.notify()
	return true
}

// SetConnected updates the connection flag of clientID.
func (r *Registry) SetConnected(clientID string, connected bool) {
	p, ok := r.byID[clientID]
	if !ok || p.IsConnected == connected {
		return
	}
	p.IsConnected = connected
	r.notify()
}

// DetachStream clears the remote stream and connection flag of clientID.
func (r *Registry) DetachStream(clientID string) {
	p, ok := r.byID[clientID]
	if !ok || (p.RemoteStream == nil && !p.IsConnected) {
		return
	}
	p.RemoteStream = nil
	p.IsConnected = false
	r.notify()
}

func (r *Registry) Has(clientID string) bool {
	_, ok := r.byID[clientID]
	return ok
}

// Get returns a copy of the participant.
func (r *Registry) Get(clientID string) (Participant, bool) {
	p, ok := r.byID[clientID]
	if !ok {
		return Participant{}, false
	}
	return clone(p), true
}

func (r *Registry) Len() int {
	return len(r.order)
}

// IDs returns the client ids in insertion order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Snapshot returns a copy of all participants in insertion order.
func (r *Registry) Snapshot() []Participant {
	out := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, clone(r.byID[id]))
	}
	return out
}

func (r *Registry) insert(clientID, displayName string) {
	r.byID[clientID] = &Participant{
		ClientID:    clientID,
		DisplayName: normalizeName(clientID, displayName),
	}
	r.order = append(r.order, clientID)
}

func (r *Registry) notify() {
	if r.onUpdate != nil {
		r.onUpdate(r.Snapshot())
	}
}

func clone(p *Participant) Participant {
	c := *p
	if p.RemoteStream != nil {
		s := *p.RemoteStream
		s.Tracks = append([]RemoteTrack(nil), p.RemoteStream.Tracks...)
		c.RemoteStream = &s
	}
	return c
}

// DefaultName is the display name used when a participant sends none.
func DefaultName(clientID string) string {
	prefix := clientID
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return "User " + prefix
}

func normalizeName(clientID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" || !utf8.ValidString(name) || utf8.RuneCountInString(name) > maxDisplayName {
		return DefaultName(clientID)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return DefaultName(clientID)
		}
	}
	return name
}
