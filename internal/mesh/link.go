package mesh

import (
	"github.com/BioHazard786/warpmesh/internal/roster"
	"github.com/BioHazard786/warpmesh/internal/webrtc"
	pion "github.com/pion/webrtc/v4"
)

// peerLink is one entry of the link table.
type peerLink struct {
	remoteID string
	role     Role
	state    LinkState
	conn     Connection

	channel     Channel
	channelOpen bool

	// pending holds remote candidates that arrived before the remote
	// description.
	pending []pion.ICECandidateInit

	attached     map[pion.TrackLocal]bool
	remoteTracks []TrackInfo
}

func (l *peerLink) info() LinkInfo {
	return LinkInfo{
		RemoteID:    l.remoteID,
		Role:        l.role,
		State:       l.state,
		ChannelOpen: l.channelOpen,
		Tracks:      len(l.remoteTracks),
	}
}

// newLink creates a connection to remoteID and installs it in the table.
// Initiators also open the file channel; responders receive it.
func (c *Coordinator) newLink(remoteID string, role Role) (*peerLink, error) {
	link := &peerLink{
		remoteID: remoteID,
		role:     role,
		state:    StateConnecting,
		attached: make(map[pion.TrackLocal]bool),
	}

	conn, err := c.opts.Factory.NewConnection(remoteID, func(ev LinkEvent) {
		c.post(func() { c.handleLinkEvent(link, ev) })
	})
	if err != nil {
		return nil, err
	}
	link.conn = conn

	if role == RoleInitiator {
		ch, err := conn.CreateDataChannel(webrtc.FileChannelLabel, webrtc.FileChannelInit())
		if err != nil {
			conn.Close()
			return nil, err
		}
		link.channel = ch
	}

	c.links[remoteID] = link
	if orphans := c.orphans[remoteID]; len(orphans) > 0 {
		// Held candidates belong to a session the peer offered. A fresh
		// offer of ours starts a new one, so they can never apply to it.
		if role == RoleResponder {
			link.pending = append(link.pending, orphans...)
		} else {
			c.logger.Debug("dropping candidates from an earlier session", "peer", remoteID, "count", len(orphans))
		}
		delete(c.orphans, remoteID)
	}
	c.syncTracks(link)
	c.notifyLinks()
	return link, nil
}

// removeLink closes a link and forgets everything tied to it.
func (c *Coordinator) removeLink(link *peerLink) {
	if c.links[link.remoteID] == link {
		delete(c.links, link.remoteID)
	}
	link.state = StateClosed
	if link.channel != nil {
		link.channel.Close()
	}
	link.channelOpen = false
	if err := link.conn.Close(); err != nil {
		c.logger.Debug("close connection", "peer", link.remoteID, "error", err)
	}
	c.registry.DetachStream(link.remoteID)
	if n := c.reassembler.DiscardFrom(link.remoteID); n > 0 {
		c.logger.Warn("discarded incomplete transfers", "peer", link.remoteID, "count", n)
	}
}

// syncTracks makes the tracks attached to link match the published set.
func (c *Coordinator) syncTracks(link *peerLink) {
	want := make(map[pion.TrackLocal]bool, len(c.tracks))
	for _, t := range c.tracks {
		want[t] = true
		if link.attached[t] {
			continue
		}
		if err := link.conn.AddTrack(t); err != nil {
			c.logger.Warn("attach track", "peer", link.remoteID, "track", t.ID(), "error", err)
			continue
		}
		link.attached[t] = true
	}
	for t := range link.attached {
		if want[t] {
			continue
		}
		if err := link.conn.RemoveTrack(t); err != nil {
			c.logger.Warn("detach track", "peer", link.remoteID, "track", t.ID(), "error", err)
		}
		delete(link.attached, t)
	}
}

func (c *Coordinator) handleLinkEvent(link *peerLink, ev LinkEvent) {
	if c.links[link.remoteID] != link {
		return
	}
	log := c.logger.With("peer", link.remoteID)

	switch ev.Kind {
	case EventCandidateGenerated:
		if ev.Candidate == nil {
			return
		}
		c.sendSignal(link.remoteID, candidateSignal(*ev.Candidate))

	case EventStateChanged:
		log.Debug("link state changed", "from", link.state, "to", ev.State)
		switch ev.State {
		case StateConnected:
			link.state = StateConnected
			delete(c.attempts, link.remoteID)
			c.registry.SetConnected(link.remoteID, true)
			c.syncTracks(link)
		case StateDisconnected:
			link.state = StateDisconnected
		case StateFailed, StateClosed:
			c.failLink(link, ev.State)
		default:
			link.state = ev.State
		}
		c.notifyLinks()

	case EventTrackAdded:
		if ev.Track == nil {
			return
		}
		link.state = StateConnected
		link.remoteTracks = append(link.remoteTracks, *ev.Track)
		c.registry.AttachStream(link.remoteID, ev.Track.StreamID, roster.RemoteTrack{ID: ev.Track.ID, Kind: ev.Track.Kind})
		log.Info("remote track added", "track", ev.Track.ID, "kind", ev.Track.Kind)
		if c.opts.OnRemoteTrack != nil {
			c.opts.OnRemoteTrack(link.remoteID, *ev.Track)
		}
		c.notifyLinks()

	case EventChannelOpened:
		if ev.Channel != nil {
			link.channel = ev.Channel
		}
		link.channelOpen = true
		log.Info("file channel open")
		c.notifyLinks()

	case EventChannelClosed:
		link.channelOpen = false
		log.Info("file channel closed")
		c.notifyLinks()

	case EventMessageReceived:
		if err := c.reassembler.HandleMessage(link.remoteID, ev.Data); err != nil {
			log.Warn("dropping file channel frame", "error", err)
		}

	case EventNegotiationNeeded:
		if link.conn.SignalingState() == pion.SignalingStateStable && link.conn.HasRemoteDescription() {
			c.offer(link)
		}
	}
}

// failLink removes a broken link and, while the participant is still in the
// room, schedules one reconnect attempt.
func (c *Coordinator) failLink(link *peerLink, state LinkState) {
	id := link.remoteID
	c.logger.Warn("link lost", "peer", id, "state", state)
	c.removeLink(link)
	c.registry.SetConnected(id, false)

	if !c.registry.Has(id) || c.reconnects[id] {
		return
	}
	if limit := c.opts.MaxReconnectAttempts; limit > 0 && c.attempts[id] >= limit {
		c.logger.Error("giving up on peer", "peer", id, "attempts", c.attempts[id], "error", ErrConnectionFailed)
		return
	}
	c.attempts[id]++
	c.reconnects[id] = true
	c.schedule(c.opts.ReconnectDelay, "reconnect", id,
		func() bool { return c.registry.Has(id) && c.links[id] == nil },
		func() {
			delete(c.reconnects, id)
			c.connect(id)
		},
		func() { delete(c.reconnects, id) },
	)
}
