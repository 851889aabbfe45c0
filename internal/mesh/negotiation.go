package mesh

import (
	"fmt"

	"github.com/BioHazard786/warpmesh/internal/signaling"
	pion "github.com/pion/webrtc/v4"
)

func (c *Coordinator) sendSignal(to string, signal signaling.SignalPayload) {
	err := c.opts.Relay.Send(signaling.MessageTypeSignal, signaling.SignalEnvelope{To: to, Signal: signal})
	if err != nil {
		c.logger.Warn("send signal", "peer", to, "error", err)
	}
}

func candidateSignal(ice pion.ICECandidateInit) signaling.SignalPayload {
	candidate := ice.Candidate
	return signaling.SignalPayload{
		Candidate:        &candidate,
		SDPMid:           ice.SDPMid,
		SDPMLineIndex:    ice.SDPMLineIndex,
		UsernameFragment: ice.UsernameFragment,
	}
}

func candidateInit(s signaling.SignalPayload) pion.ICECandidateInit {
	return pion.ICECandidateInit{
		Candidate:        *s.Candidate,
		SDPMid:           s.SDPMid,
		SDPMLineIndex:    s.SDPMLineIndex,
		UsernameFragment: s.UsernameFragment,
	}
}

// offer creates a local offer on link and relays it.
func (c *Coordinator) offer(link *peerLink) {
	desc, err := link.conn.CreateOffer()
	if err != nil {
		c.logger.Error("create offer", "peer", link.remoteID, "error", fmt.Errorf("%w: %w", ErrNegotiationFailed, err))
		c.failLink(link, StateFailed)
		return
	}
	c.logger.Debug("sending offer", "peer", link.remoteID)
	c.sendSignal(link.remoteID, signaling.SignalPayload{Type: signaling.SignalTypeOffer, SDP: desc.SDP})
}

func (c *Coordinator) handleSignal(from string, signal signaling.SignalPayload) {
	if from == "" || from == c.opts.LocalID {
		return
	}
	switch {
	case signal.IsCandidate():
		c.handleCandidate(from, candidateInit(signal))
	case signal.Type == signaling.SignalTypeOffer:
		c.handleOffer(from, signal.SDP)
	case signal.Type == signaling.SignalTypeAnswer:
		c.handleAnswer(from, signal.SDP)
	default:
		c.logger.Warn("ignoring signal", "peer", from, "type", signal.Type)
	}
}

// handleOffer answers a remote offer. When both sides offered at once the
// smaller client id keeps its offer and the other side yields.
func (c *Coordinator) handleOffer(from, sdp string) {
	if !c.registry.Has(from) {
		c.registry.Join(from, "")
	}

	link := c.links[from]
	if link != nil && link.conn.SignalingState() == pion.SignalingStateHaveLocalOffer {
		if c.opts.LocalID < from {
			c.logger.Debug("ignoring colliding offer", "peer", from)
			return
		}
		if !link.conn.HasRemoteDescription() {
			c.logger.Debug("yielding initial offer", "peer", from)
			pending := link.pending
			c.removeLink(link)
			link = nil
			c.orphans[from] = append(pending, c.orphans[from]...)
		} else if err := link.conn.Rollback(); err != nil {
			c.logger.Error("rollback local offer", "peer", from, "error", err)
			c.failLink(link, StateFailed)
			return
		}
	}

	if link == nil {
		var err error
		link, err = c.newLink(from, RoleResponder)
		if err != nil {
			c.logger.Error("create link", "peer", from, "error", err)
			return
		}
	}

	if err := link.conn.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sdp}); err != nil {
		c.logger.Error("apply offer", "peer", from, "error", fmt.Errorf("%w: %w", ErrNegotiationFailed, err))
		c.failLink(link, StateFailed)
		return
	}
	c.flushCandidates(link)
	c.syncTracks(link)

	desc, err := link.conn.CreateAnswer()
	if err != nil {
		c.logger.Error("create answer", "peer", from, "error", fmt.Errorf("%w: %w", ErrNegotiationFailed, err))
		c.failLink(link, StateFailed)
		return
	}
	c.logger.Debug("sending answer", "peer", from)
	c.sendSignal(from, signaling.SignalPayload{Type: signaling.SignalTypeAnswer, SDP: desc.SDP})
}

func (c *Coordinator) handleAnswer(from, sdp string) {
	link := c.links[from]
	if link == nil || link.conn.SignalingState() != pion.SignalingStateHaveLocalOffer {
		c.logger.Debug("ignoring unexpected answer", "peer", from)
		return
	}
	if err := link.conn.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sdp}); err != nil {
		c.logger.Error("apply answer", "peer", from, "error", fmt.Errorf("%w: %w", ErrNegotiationFailed, err))
		c.failLink(link, StateFailed)
		return
	}
	c.flushCandidates(link)
}

// handleCandidate applies a remote candidate, or holds it until the remote
// description is known.
func (c *Coordinator) handleCandidate(from string, candidate pion.ICECandidateInit) {
	link := c.links[from]
	if link == nil {
		held := c.orphans[from]
		if len(held) >= maxOrphanCandidates {
			c.logger.Debug("dropping candidate for unknown peer", "peer", from)
			return
		}
		c.orphans[from] = append(held, candidate)
		return
	}
	if !link.conn.HasRemoteDescription() {
		link.pending = append(link.pending, candidate)
		return
	}
	c.addCandidate(link, candidate)
}

func (c *Coordinator) flushCandidates(link *peerLink) {
	pending := link.pending
	link.pending = nil
	for _, candidate := range pending {
		c.addCandidate(link, candidate)
	}
}

func (c *Coordinator) addCandidate(link *peerLink, candidate pion.ICECandidateInit) {
	if err := link.conn.AddICECandidate(candidate); err != nil {
		c.logger.Warn("add ice candidate", "peer", link.remoteID, "error", fmt.Errorf("%w: %w", ErrCandidateRejected, err))
	}
}
