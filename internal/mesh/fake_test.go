package mesh

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/BioHazard786/warpmesh/internal/signaling"
	pion "github.com/pion/webrtc/v4"
)

// fakeConnection models the signaling state machine of a peer connection.
type fakeConnection struct {
	remoteID string
	emit     func(LinkEvent)

	mu         sync.Mutex
	state      pion.SignalingState
	local      *pion.SessionDescription
	remote     *pion.SessionDescription
	candidates []pion.ICECandidateInit
	channels   []*fakeChannel
	tracks     []pion.TrackLocal
	rollbacks  int
	offers     int
	closed     bool
}

func (c *fakeConnection) CreateOffer() (pion.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != pion.SignalingStateStable {
		return pion.SessionDescription{}, fmt.Errorf("create offer in state %s", c.state)
	}
	c.offers++
	desc := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: fmt.Sprintf("offer-%s-%d", c.remoteID, c.offers)}
	c.local = &desc
	c.state = pion.SignalingStateHaveLocalOffer
	return desc, nil
}

func (c *fakeConnection) CreateAnswer() (pion.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != pion.SignalingStateHaveRemoteOffer {
		return pion.SessionDescription{}, fmt.Errorf("create answer in state %s", c.state)
	}
	desc := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "answer-" + c.remoteID}
	c.local = &desc
	c.state = pion.SignalingStateStable
	return desc, nil
}

func (c *fakeConnection) SetRemoteDescription(desc pion.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case desc.Type == pion.SDPTypeOffer && c.state == pion.SignalingStateStable:
		c.state = pion.SignalingStateHaveRemoteOffer
	case desc.Type == pion.SDPTypeAnswer && c.state == pion.SignalingStateHaveLocalOffer:
		c.state = pion.SignalingStateStable
	default:
		return fmt.Errorf("set remote %s in state %s", desc.Type, c.state)
	}
	c.remote = &desc
	return nil
}

func (c *fakeConnection) HasRemoteDescription() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote != nil
}

func (c *fakeConnection) SignalingState() pion.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConnection) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != pion.SignalingStateHaveLocalOffer {
		return fmt.Errorf("rollback in state %s", c.state)
	}
	c.rollbacks++
	c.state = pion.SignalingStateStable
	return nil
}

func (c *fakeConnection) AddICECandidate(candidate pion.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return errors.New("remote description not set")
	}
	if candidate.Candidate == "bad" {
		return errors.New("malformed candidate")
	}
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *fakeConnection) CreateDataChannel(label string, _ *pion.DataChannelInit) (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := &fakeChannel{label: label}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConnection) AddTrack(track pion.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, track)
	return nil
}

func (c *fakeConnection) RemoveTrack(track pion.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.tracks {
		if t == track {
			c.tracks = append(c.tracks[:i], c.tracks[i+1:]...)
			return nil
		}
	}
	return errors.New("track not attached")
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnection) appliedCandidates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.candidates))
	for _, cand := range c.candidates {
		out = append(out, cand.Candidate)
	}
	return out
}

func (c *fakeConnection) trackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks)
}

func (c *fakeConnection) fileChannel() *fakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.channels) == 0 {
		return nil
	}
	return c.channels[0]
}

type fakeChannel struct {
	label string

	mu     sync.Mutex
	open   bool
	frames [][]byte
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return errors.New("channel closed")
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) setOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = open
}

func (c *fakeChannel) Close() error {
	c.setOpen(false)
	return nil
}

func (c *fakeChannel) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

type fakeFactory struct {
	mu    sync.Mutex
	conns map[string][]*fakeConnection
	err   error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{conns: make(map[string][]*fakeConnection)}
}

func (f *fakeFactory) NewConnection(remoteID string, emit func(LinkEvent)) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConnection{remoteID: remoteID, emit: emit, state: pion.SignalingStateStable}
	f.conns[remoteID] = append(f.conns[remoteID], c)
	return c, nil
}

// all returns every connection created for remoteID, oldest first.
func (f *fakeFactory) all(remoteID string) []*fakeConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeConnection(nil), f.conns[remoteID]...)
}

func (f *fakeFactory) last(t *testing.T, remoteID string) *fakeConnection {
	t.Helper()
	conns := f.all(remoteID)
	if len(conns) == 0 {
		t.Fatalf("no connection created for %s", remoteID)
	}
	return conns[len(conns)-1]
}

type sentFrame struct {
	Type    string
	Payload json.RawMessage
}

type recordingRelay struct {
	mu     sync.Mutex
	frames []sentFrame
}

func (r *recordingRelay) Send(msgType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, sentFrame{Type: msgType, Payload: b})
	return nil
}

func (r *recordingRelay) ofType(msgType string) []sentFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentFrame
	for _, f := range r.frames {
		if f.Type == msgType {
			out = append(out, f)
		}
	}
	return out
}

// signalsTo returns the signal payloads sent to peer, in order.
func (r *recordingRelay) signalsTo(t *testing.T, peer string) []signaling.SignalPayload {
	t.Helper()
	var out []signaling.SignalPayload
	for _, f := range r.ofType(signaling.MessageTypeSignal) {
		var env signaling.SignalEnvelope
		if err := json.Unmarshal(f.Payload, &env); err != nil {
			t.Fatalf("decode signal envelope: %v", err)
		}
		if env.To == peer {
			out = append(out, env.Signal)
		}
	}
	return out
}

func (r *recordingRelay) descriptionsTo(t *testing.T, peer string, kind string) []string {
	t.Helper()
	var out []string
	for _, s := range r.signalsTo(t, peer) {
		if s.IsDescription() && s.Type == kind {
			out = append(out, s.SDP)
		}
	}
	return out
}
