package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrMalformed      = errors.New("malformed signaling payload")
	ErrConnectionLost = errors.New("relay connection lost")
)

// EventSink consumes decoded relay events. Methods are called in frame order
// from the handler goroutine.
type EventSink interface {
	HandleParticipants(entries []ParticipantPayload)
	HandleUserJoined(clientID, displayName string)
	HandleUserLeft(clientID string)
	HandleSignal(from string, signal SignalPayload)
	HandleRelayError(message string)
}

// Handler decodes relay frames and routes them to an EventSink.
type Handler struct {
	client *Client
	sink   EventSink
	logger *slog.Logger
}

func NewHandler(client *Client, sink EventSink, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{client: client, sink: sink, logger: logger.With("component", "relay")}
}

// Start routes incoming frames until the connection closes or ctx ends.
func (h *Handler) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-h.client.Incoming():
			if !ok {
				return ErrConnectionLost
			}
			if err := h.Dispatch(msg); err != nil {
				h.logger.Warn("dropping relay message", "type", msg.Type, "error", err)
			}
		}
	}
}

// Dispatch decodes one frame and delivers it to the sink. Malformed frames
// return an error wrapping ErrMalformed and are not delivered, except a
// malformed participants-list, which is delivered as an empty roster.
func (h *Handler) Dispatch(msg *Message) error {
	switch msg.Type {
	case MessageTypeParticipantsList:
		var entries []ParticipantPayload
		if err := decode(msg, &entries); err != nil {
			h.sink.HandleParticipants(nil)
			return err
		}
		h.sink.HandleParticipants(entries)

	case MessageTypeUserJoined:
		var p ParticipantPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		if p.ClientID == "" {
			return fmt.Errorf("%w: user-joined without clientId", ErrMalformed)
		}
		h.sink.HandleUserJoined(p.ClientID, p.DisplayName)

	case MessageTypeUserLeft:
		var p UserLeftPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		if p.ClientID == "" {
			return fmt.Errorf("%w: user-left without clientId", ErrMalformed)
		}
		h.sink.HandleUserLeft(p.ClientID)

	case MessageTypeSignal:
		var env SignalEnvelope
		if err := decode(msg, &env); err != nil {
			return err
		}
		if err := validateSignal(env); err != nil {
			return err
		}
		h.sink.HandleSignal(env.From, env.Signal)

	case MessageTypeError:
		var p ErrorPayload
		if err := decode(msg, &p); err != nil || p.Error == "" {
			p.Error = "unknown error from relay"
		}
		h.sink.HandleRelayError(p.Error)

	default:
		h.logger.Debug("ignoring relay message", "type", msg.Type)
	}
	return nil
}

func decode(msg *Message, v any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrMalformed, msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, msg.Type, err)
	}
	return nil
}

func validateSignal(env SignalEnvelope) error {
	switch {
	case env.From == "":
		return fmt.Errorf("%w: signal without sender", ErrMalformed)
	case env.Signal.IsCandidate():
		return nil
	case !env.Signal.IsDescription():
		return fmt.Errorf("%w: signal type %q", ErrMalformed, env.Signal.Type)
	case env.Signal.SDP == "":
		return fmt.Errorf("%w: %s without sdp", ErrMalformed, env.Signal.Type)
	}
	return nil
}
