package signaling

import (
	"encoding/json"
	"fmt"
)

// Message is one websocket frame exchanged with the relay.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoinRoom  = "join-room"
	MessageTypeLeaveRoom = "leave-room"
	MessageTypeSignal    = "signal"

	MessageTypeUserJoined       = "user-joined"
	MessageTypeUserLeft         = "user-left"
	MessageTypeParticipantsList = "participants-list"
	MessageTypeError            = "error"
)

// NewMessage encodes payload into a frame of type t.
func NewMessage(t string, payload any) (*Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return &Message{Type: t, Payload: b}, nil
}

type JoinRoomPayload struct {
	RoomID      string `json:"roomId"`
	ClientID    string `json:"clientId"`
	DisplayName string `json:"displayName"`
}

type LeaveRoomPayload struct {
	RoomID   string `json:"roomId"`
	ClientID string `json:"clientId"`
}

// ParticipantPayload is the body of user-joined and one participants-list entry.
type ParticipantPayload struct {
	ClientID    string `json:"clientId"`
	DisplayName string `json:"displayName,omitempty"`
}

type UserLeftPayload struct {
	ClientID string `json:"clientId"`
}

// SignalEnvelope is the body of a signal frame: From on inbound, To on outbound.
type SignalEnvelope struct {
	From   string        `json:"from,omitempty"`
	To     string        `json:"to,omitempty"`
	Signal SignalPayload `json:"signal"`
}

// SignalPayload is either a session description (Type + SDP) or a trickled
// ICE candidate (Candidate set).
type SignalPayload struct {
	Type string `json:"type,omitempty"`
	SDP  string `json:"sdp,omitempty"`

	Candidate        *string `json:"candidate,omitempty"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

const (
	SignalTypeOffer  = "offer"
	SignalTypeAnswer = "answer"
)

// IsCandidate reports whether the payload carries an ICE candidate.
func (s SignalPayload) IsCandidate() bool {
	return s.Candidate != nil
}

// IsDescription reports whether the payload carries an offer or answer.
func (s SignalPayload) IsDescription() bool {
	return s.Candidate == nil && (s.Type == SignalTypeOffer || s.Type == SignalTypeAnswer)
}

// ErrorPayload represents error messages from the relay.
type ErrorPayload struct {
	Error string `json:"error"`
}
