package mesh

import (
	"errors"

	pion "github.com/pion/webrtc/v4"
)

var (
	ErrNegotiationFailed = errors.New("negotiation failed")
	ErrCandidateRejected = errors.New("ice candidate rejected")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrClosed            = errors.New("coordinator stopped")
)

// Connection is one peer connection as seen by the negotiation engine.
// CreateOffer and CreateAnswer also apply the result as the local description.
type Connection interface {
	CreateOffer() (pion.SessionDescription, error)
	CreateAnswer() (pion.SessionDescription, error)
	SetRemoteDescription(desc pion.SessionDescription) error
	HasRemoteDescription() bool
	SignalingState() pion.SignalingState
	Rollback() error
	AddICECandidate(candidate pion.ICECandidateInit) error
	CreateDataChannel(label string, opts *pion.DataChannelInit) (Channel, error)
	AddTrack(track pion.TrackLocal) error
	RemoveTrack(track pion.TrackLocal) error
	Close() error
}

// Channel is a data channel handle.
type Channel interface {
	Label() string
	Send(data []byte) error
	IsOpen() bool
	Close() error
}

// ConnectionFactory creates connections whose callbacks are delivered to emit.
// emit may be called from any goroutine.
type ConnectionFactory interface {
	NewConnection(remoteID string, emit func(LinkEvent)) (Connection, error)
}

// Relay sends frames to the rendezvous relay.
type Relay interface {
	Send(msgType string, payload any) error
}

type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "responder"
	}
	return "initiator"
}

type LinkState int

const (
	StateConnecting LinkState = iota
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// stateFromPion maps a peer connection state onto a link state.
func stateFromPion(s pion.PeerConnectionState) LinkState {
	switch s {
	case pion.PeerConnectionStateConnected:
		return StateConnected
	case pion.PeerConnectionStateDisconnected:
		return StateDisconnected
	case pion.PeerConnectionStateFailed:
		return StateFailed
	case pion.PeerConnectionStateClosed:
		return StateClosed
	}
	return StateConnecting
}

type EventKind int

const (
	EventTrackAdded EventKind = iota
	EventCandidateGenerated
	EventStateChanged
	EventChannelOpened
	EventChannelClosed
	EventMessageReceived
	EventNegotiationNeeded
)

func (k EventKind) String() string {
	switch k {
	case EventTrackAdded:
		return "track-added"
	case EventCandidateGenerated:
		return "candidate-generated"
	case EventStateChanged:
		return "state-changed"
	case EventChannelOpened:
		return "channel-opened"
	case EventChannelClosed:
		return "channel-closed"
	case EventMessageReceived:
		return "message-received"
	case EventNegotiationNeeded:
		return "negotiation-needed"
	}
	return "unknown"
}

// TrackInfo describes an inbound media track.
type TrackInfo struct {
	ID       string
	StreamID string
	Kind     string

	// Remote is the pion track, nil for test connections.
	Remote *pion.TrackRemote
}

// LinkEvent is a connection callback converted into a value. Only the field
// matching Kind is set.
type LinkEvent struct {
	Kind      EventKind
	Candidate *pion.ICECandidateInit
	State     LinkState
	Channel   Channel
	Data      []byte
	Track     *TrackInfo
}

// LinkInfo is a read-only view of a peer link.
type LinkInfo struct {
	RemoteID    string
	Role        Role
	State       LinkState
	ChannelOpen bool
	Tracks      int
}
