package signaling_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BioHazard786/warpmesh/internal/signaling"
	"github.com/BioHazard786/warpmesh/internal/signaling/relaytest"
)

func connect(t *testing.T, url string) *signaling.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := signaling.NewClient(url, nil)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func next(t *testing.T, c *signaling.Client, want string) *signaling.Message {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-c.Incoming():
			if !ok {
				t.Fatalf("connection closed waiting for %s", want)
			}
			if msg.Type == want {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestClientRoomFlow(t *testing.T) {
	relay := relaytest.NewServer(nil)
	defer relay.Close()

	alice := connect(t, relay.URL())
	bob := connect(t, relay.URL())

	if err := alice.Send(signaling.MessageTypeJoinRoom, signaling.JoinRoomPayload{RoomID: "r", ClientID: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatal(err)
	}
	next(t, alice, signaling.MessageTypeParticipantsList)

	if err := bob.Send(signaling.MessageTypeJoinRoom, signaling.JoinRoomPayload{RoomID: "r", ClientID: "bob", DisplayName: "Bob"}); err != nil {
		t.Fatal(err)
	}

	sink := &sinkRecorder{}
	h := signaling.NewHandler(bob, sink, nil)
	if err := h.Dispatch(next(t, bob, signaling.MessageTypeParticipantsList)); err != nil {
		t.Fatal(err)
	}
	if len(sink.entries) != 1 || sink.entries[0].ClientID != "alice" || sink.entries[0].DisplayName != "Alice" {
		t.Fatalf("bob's roster = %+v", sink.entries)
	}

	ah := signaling.NewHandler(alice, sink, nil)
	if err := ah.Dispatch(next(t, alice, signaling.MessageTypeUserJoined)); err != nil {
		t.Fatal(err)
	}
	if sink.joined != "bob" {
		t.Fatalf("alice saw join of %q", sink.joined)
	}

	if err := alice.Send(signaling.MessageTypeSignal, signaling.SignalEnvelope{To: "bob", Signal: signaling.SignalPayload{Type: signaling.SignalTypeOffer, SDP: "v=0"}}); err != nil {
		t.Fatal(err)
	}
	if err := h.Dispatch(next(t, bob, signaling.MessageTypeSignal)); err != nil {
		t.Fatal(err)
	}
	if sink.signalFrom != "alice" || sink.signal.SDP != "v=0" {
		t.Fatalf("bob got signal %+v from %q", sink.signal, sink.signalFrom)
	}

	if err := bob.Send(signaling.MessageTypeLeaveRoom, signaling.LeaveRoomPayload{RoomID: "r", ClientID: "bob"}); err != nil {
		t.Fatal(err)
	}
	if err := ah.Dispatch(next(t, alice, signaling.MessageTypeUserLeft)); err != nil {
		t.Fatal(err)
	}
	if sink.left != "bob" {
		t.Fatalf("alice saw leave of %q", sink.left)
	}
}

func TestHandlerStartEndsWithConnection(t *testing.T) {
	relay := relaytest.NewServer(nil)
	c := connect(t, relay.URL())

	h := signaling.NewHandler(c, &sinkRecorder{}, nil)
	errc := make(chan error, 1)
	go func() { errc <- h.Start(context.Background()) }()

	relay.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, signaling.ErrConnectionLost) {
			t.Fatalf("Start returned %v, want ErrConnectionLost", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after relay shutdown")
	}
}

func TestSendAfterClose(t *testing.T) {
	relay := relaytest.NewServer(nil)
	defer relay.Close()

	c := connect(t, relay.URL())
	c.Close()
	c.Close()

	if err := c.Send(signaling.MessageTypeLeaveRoom, signaling.LeaveRoomPayload{}); !errors.Is(err, signaling.ErrClientClosed) {
		t.Errorf("Send after Close = %v, want ErrClientClosed", err)
	}
}

type sinkRecorder struct {
	entries    []signaling.ParticipantPayload
	joined     string
	left       string
	signalFrom string
	signal     signaling.SignalPayload
}

func (s *sinkRecorder) HandleParticipants(e []signaling.ParticipantPayload) { s.entries = e }
func (s *sinkRecorder) HandleUserJoined(id, _ string)                      { s.joined = id }
func (s *sinkRecorder) HandleUserLeft(id string)                           { s.left = id }
func (s *sinkRecorder) HandleRelayError(string)                            {}

func (s *sinkRecorder) HandleSignal(from string, sig signaling.SignalPayload) {
	s.signalFrom = from
	s.signal = sig
}
