package signaling

import (
	"encoding/json"
	"errors"
	"testing"
)

type recordingSink struct {
	participants [][]ParticipantPayload
	joined       []string
	left         []string
	signals      []SignalEnvelope
	relayErrors  []string
}

func (s *recordingSink) HandleParticipants(entries []ParticipantPayload) {
	s.participants = append(s.participants, entries)
}

func (s *recordingSink) HandleUserJoined(id, name string) { s.joined = append(s.joined, id+"/"+name) }
func (s *recordingSink) HandleUserLeft(id string)         { s.left = append(s.left, id) }
func (s *recordingSink) HandleRelayError(m string)        { s.relayErrors = append(s.relayErrors, m) }

func (s *recordingSink) HandleSignal(from string, sig SignalPayload) {
	s.signals = append(s.signals, SignalEnvelope{From: from, Signal: sig})
}

func frame(typ, payload string) *Message {
	return &Message{Type: typ, Payload: json.RawMessage(payload)}
}

func TestDispatchRoutes(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(nil, sink, nil)

	frames := []*Message{
		frame(MessageTypeParticipantsList, `[{"clientId":"a","displayName":"Ann"},{"clientId":"b"}]`),
		frame(MessageTypeUserJoined, `{"clientId":"c","displayName":"Cy"}`),
		frame(MessageTypeUserLeft, `{"clientId":"a"}`),
		frame(MessageTypeSignal, `{"from":"b","signal":{"type":"offer","sdp":"v=0"}}`),
		frame(MessageTypeSignal, `{"from":"b","signal":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}}`),
		frame(MessageTypeError, `{"error":"Room not found"}`),
		frame("something-new", `{}`),
	}
	for _, f := range frames {
		if err := h.Dispatch(f); err != nil {
			t.Fatalf("Dispatch(%s): %v", f.Type, err)
		}
	}

	if len(sink.participants) != 1 || len(sink.participants[0]) != 2 || sink.participants[0][0].DisplayName != "Ann" {
		t.Errorf("participants = %+v", sink.participants)
	}
	if len(sink.joined) != 1 || sink.joined[0] != "c/Cy" {
		t.Errorf("joined = %v", sink.joined)
	}
	if len(sink.left) != 1 || sink.left[0] != "a" {
		t.Errorf("left = %v", sink.left)
	}
	if len(sink.signals) != 2 {
		t.Fatalf("signals = %d, want 2", len(sink.signals))
	}
	if !sink.signals[0].Signal.IsDescription() || sink.signals[0].Signal.SDP != "v=0" {
		t.Errorf("offer = %+v", sink.signals[0].Signal)
	}
	cand := sink.signals[1].Signal
	if !cand.IsCandidate() || cand.SDPMid == nil || *cand.SDPMid != "0" || cand.SDPMLineIndex == nil || *cand.SDPMLineIndex != 0 {
		t.Errorf("candidate = %+v", cand)
	}
	if len(sink.relayErrors) != 1 || sink.relayErrors[0] != "Room not found" {
		t.Errorf("relay errors = %v", sink.relayErrors)
	}
}

func TestDispatchMalformed(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{"joined without id", frame(MessageTypeUserJoined, `{"displayName":"x"}`)},
		{"joined not json", frame(MessageTypeUserJoined, `nope`)},
		{"left without payload", &Message{Type: MessageTypeUserLeft}},
		{"signal without sender", frame(MessageTypeSignal, `{"signal":{"type":"offer","sdp":"v=0"}}`)},
		{"signal unknown type", frame(MessageTypeSignal, `{"from":"a","signal":{"type":"pranswer","sdp":"v=0"}}`)},
		{"signal without sdp", frame(MessageTypeSignal, `{"from":"a","signal":{"type":"answer"}}`)},
		{"signal empty body", frame(MessageTypeSignal, `{"from":"a","signal":{}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			h := NewHandler(nil, sink, nil)
			if err := h.Dispatch(tt.msg); !errors.Is(err, ErrMalformed) {
				t.Fatalf("error = %v, want ErrMalformed", err)
			}
			if len(sink.joined)+len(sink.left)+len(sink.signals) != 0 {
				t.Error("malformed frame reached the sink")
			}
		})
	}
}

func TestDispatchMalformedRosterIsEmpty(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(nil, sink, nil)

	if err := h.Dispatch(frame(MessageTypeParticipantsList, `{"clientId":"a"}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
	if len(sink.participants) != 1 || len(sink.participants[0]) != 0 {
		t.Errorf("participants = %+v, want one empty snapshot", sink.participants)
	}
}

func TestSignalPayloadJSON(t *testing.T) {
	cand := "candidate:1"
	idx := uint16(0)
	b, err := json.Marshal(SignalEnvelope{To: "x", Signal: SignalPayload{Candidate: &cand, SDPMLineIndex: &idx}})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"to":"x","signal":{"candidate":"candidate:1","sdpMLineIndex":0}}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}
