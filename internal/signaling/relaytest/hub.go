// Package relaytest runs an in-process rendezvous relay for tests. It speaks
// the same frames as the production relay: join-room, leave-room and signal
// in; participants-list, user-joined, user-left and signal out.
package relaytest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BioHazard786/warpmesh/internal/signaling"
)

type room struct {
	id      string
	order   []*peer
	members map[string]*peer
}

// Hub owns every room and is driven by a single goroutine.
type Hub struct {
	rooms      map[string]*room
	register   chan *peer
	unregister chan *peer
	inbound    chan *frame
	ops        chan func()
	stopped    chan struct{}
	logger     *slog.Logger
}

type frame struct {
	msg  *signaling.Message
	from *peer
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*room),
		register:   make(chan *peer),
		unregister: make(chan *peer),
		inbound:    make(chan *frame),
		ops:        make(chan func()),
		stopped:    make(chan struct{}),
		logger:     logger.With("component", "relaytest"),
	}
}

// Run processes hub events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return

		case p := <-h.register:
			h.logger.Debug("peer connected", "addr", p.conn.RemoteAddr())

		case p := <-h.unregister:
			h.leave(p)
			close(p.send)

		case f := <-h.inbound:
			h.route(f)

		case op := <-h.ops:
			op()
		}
	}
}

// do runs fn on the hub goroutine and waits for it.
func (h *Hub) do(ctx context.Context, fn func()) bool {
	done := make(chan struct{})
	select {
	case h.ops <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return false
	}
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) route(f *frame) {
	switch f.msg.Type {
	case signaling.MessageTypeJoinRoom:
		var p signaling.JoinRoomPayload
		if err := json.Unmarshal(f.msg.Payload, &p); err != nil || p.RoomID == "" || p.ClientID == "" {
			h.sendError(f.from, "invalid join-room")
			return
		}
		h.join(f.from, p)

	case signaling.MessageTypeLeaveRoom:
		h.leave(f.from)

	case signaling.MessageTypeSignal:
		var env signaling.SignalEnvelope
		if err := json.Unmarshal(f.msg.Payload, &env); err != nil || env.To == "" {
			h.sendError(f.from, "invalid signal")
			return
		}
		r := h.rooms[f.from.roomID]
		if r == nil {
			h.sendError(f.from, "You must join a room first")
			return
		}
		target := r.members[env.To]
		if target == nil {
			h.logger.Debug("signal target not in room", "to", env.To, "room", r.id)
			return
		}
		h.deliver(target, signaling.MessageTypeSignal, signaling.SignalEnvelope{From: f.from.clientID, Signal: env.Signal})

	default:
		h.logger.Debug("unknown message type", "type", f.msg.Type)
	}
}

func (h *Hub) join(p *peer, req signaling.JoinRoomPayload) {
	if p.roomID != "" {
		h.leave(p)
	}

	if r := h.rooms[req.RoomID]; r != nil {
		if old := r.members[req.ClientID]; old != nil {
			h.leave(old)
		}
	}
	r := h.roomFor(req.RoomID)

	others := make([]signaling.ParticipantPayload, 0, len(r.order))
	for _, o := range r.order {
		others = append(others, signaling.ParticipantPayload{ClientID: o.clientID, DisplayName: o.displayName})
	}

	p.roomID = r.id
	p.clientID = req.ClientID
	p.displayName = req.DisplayName
	r.members[p.clientID] = p
	r.order = append(r.order, p)

	h.deliver(p, signaling.MessageTypeParticipantsList, others)
	joined := signaling.ParticipantPayload{ClientID: p.clientID, DisplayName: p.displayName}
	for _, o := range r.order {
		if o != p {
			h.deliver(o, signaling.MessageTypeUserJoined, joined)
		}
	}
	h.logger.Debug("peer joined", "room", r.id, "client", p.clientID, "members", len(r.order))
}

func (h *Hub) roomFor(id string) *room {
	r := h.rooms[id]
	if r == nil {
		r = &room{id: id, members: make(map[string]*peer)}
		h.rooms[id] = r
	}
	return r
}

func (h *Hub) leave(p *peer) {
	r := h.rooms[p.roomID]
	if r == nil || r.members[p.clientID] != p {
		return
	}
	delete(r.members, p.clientID)
	for i, o := range r.order {
		if o == p {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for _, o := range r.order {
		h.deliver(o, signaling.MessageTypeUserLeft, signaling.UserLeftPayload{ClientID: p.clientID})
	}
	if len(r.order) == 0 {
		delete(h.rooms, r.id)
	}
	h.logger.Debug("peer left", "room", r.id, "client", p.clientID)
	p.roomID = ""
}

func (h *Hub) sendError(p *peer, text string) {
	h.deliver(p, signaling.MessageTypeError, signaling.ErrorPayload{Error: text})
}

func (h *Hub) deliver(p *peer, t string, payload any) {
	msg, err := signaling.NewMessage(t, payload)
	if err != nil {
		h.logger.Error("encode frame", "type", t, "error", err)
		return
	}
	h.push(p, msg)
}

func (h *Hub) push(p *peer, msg *signaling.Message) {
	select {
	case p.send <- msg:
	default:
		h.logger.Warn("peer send buffer full, dropping frame", "client", p.clientID, "type", msg.Type)
	}
}
