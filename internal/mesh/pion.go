package mesh

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/warpmesh/internal/logging"
	"github.com/BioHazard786/warpmesh/internal/webrtc"
	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"
)

const (
	HighWaterMark = 2 * 1024 * 1024 // 2 MB - backpressure threshold
	LowWaterMark  = 512 * 1024      // 512 KB - resume threshold
	SendTimeout   = 10 * time.Second
)

var ErrBufferTimeout = errors.New("send buffer not draining")

// PionFactory creates real peer connections sharing one pion API.
type PionFactory struct {
	api    *pion.API
	config pion.Configuration
	logger *slog.Logger
}

func NewPionFactory(config pion.Configuration, logger *slog.Logger) (*PionFactory, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	s := pion.SettingEngine{LoggerFactory: logging.NewPionFactory(logger)}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(registry),
		pion.WithSettingEngine(s),
	)
	return &PionFactory{api: api, config: config, logger: logger}, nil
}

func (f *PionFactory) NewConnection(remoteID string, emit func(LinkEvent)) (Connection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	conn := &pionConnection{
		pc:      pc,
		emit:    emit,
		senders: make(map[pion.TrackLocal]*pion.RTPSender),
		logger:  f.logger.With("peer", remoteID),
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		candidate := c.ToJSON()
		emit(LinkEvent{Kind: EventCandidateGenerated, Candidate: &candidate})
	})
	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		emit(LinkEvent{Kind: EventStateChanged, State: stateFromPion(s)})
	})
	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		emit(LinkEvent{Kind: EventTrackAdded, Track: &TrackInfo{
			ID:       track.ID(),
			StreamID: track.StreamID(),
			Kind:     track.Kind().String(),
			Remote:   track,
		}})
	})
	pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != webrtc.FileChannelLabel {
			conn.logger.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		conn.watch(newPionChannel(dc))
	})
	pc.OnNegotiationNeeded(func() {
		emit(LinkEvent{Kind: EventNegotiationNeeded})
	})
	return conn, nil
}

type pionConnection struct {
	pc     *pion.PeerConnection
	emit   func(LinkEvent)
	logger *slog.Logger

	mu      sync.Mutex
	senders map[pion.TrackLocal]*pion.RTPSender
}

func (c *pionConnection) CreateOffer() (pion.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return pion.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return pion.SessionDescription{}, err
	}
	return offer, nil
}

func (c *pionConnection) CreateAnswer() (pion.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return pion.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return pion.SessionDescription{}, err
	}
	return answer, nil
}

func (c *pionConnection) SetRemoteDescription(desc pion.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConnection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *pionConnection) SignalingState() pion.SignalingState {
	return c.pc.SignalingState()
}

func (c *pionConnection) Rollback() error {
	return c.pc.SetLocalDescription(pion.SessionDescription{Type: pion.SDPTypeRollback})
}

func (c *pionConnection) AddICECandidate(candidate pion.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConnection) CreateDataChannel(label string, opts *pion.DataChannelInit) (Channel, error) {
	dc, err := c.pc.CreateDataChannel(label, opts)
	if err != nil {
		return nil, err
	}
	ch := newPionChannel(dc)
	c.watch(ch)
	return ch, nil
}

// watch forwards a file channel's lifecycle and messages to the link.
func (c *pionConnection) watch(ch *pionChannel) {
	ch.dc.OnOpen(func() {
		c.emit(LinkEvent{Kind: EventChannelOpened, Channel: ch})
	})
	ch.dc.OnClose(func() {
		c.emit(LinkEvent{Kind: EventChannelClosed})
	})
	ch.dc.OnMessage(func(msg pion.DataChannelMessage) {
		if msg.IsString {
			return
		}
		c.emit(LinkEvent{Kind: EventMessageReceived, Data: msg.Data})
	})
	if ch.IsOpen() {
		c.emit(LinkEvent{Kind: EventChannelOpened, Channel: ch})
	}
}

func (c *pionConnection) AddTrack(track pion.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.senders[track] = sender
	c.mu.Unlock()

	// RTCP has to be read for interceptors like NACK to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *pionConnection) RemoveTrack(track pion.TrackLocal) error {
	c.mu.Lock()
	sender, ok := c.senders[track]
	delete(c.senders, track)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.pc.RemoveTrack(sender)
}

func (c *pionConnection) Close() error {
	return c.pc.Close()
}

// pionChannel is a file channel with send-side backpressure.
type pionChannel struct {
	dc  *pion.DataChannel
	low chan struct{}
}

func newPionChannel(dc *pion.DataChannel) *pionChannel {
	ch := &pionChannel{dc: dc, low: make(chan struct{}, 1)}
	dc.SetBufferedAmountLowThreshold(LowWaterMark)
	dc.OnBufferedAmountLow(func() {
		select {
		case ch.low <- struct{}{}:
		default:
		}
	})
	return ch
}

func (c *pionChannel) Label() string { return c.dc.Label() }

func (c *pionChannel) IsOpen() bool {
	return c.dc.ReadyState() == pion.DataChannelStateOpen
}

func (c *pionChannel) Send(data []byte) error {
	if err := c.waitForWindow(); err != nil {
		return err
	}
	return c.dc.Send(data)
}

func (c *pionChannel) waitForWindow() error {
	buffered := c.dc.BufferedAmount()
	if buffered < HighWaterMark {
		return nil
	}
	select {
	case <-c.low:
		return nil
	case <-time.After(SendTimeout):
		if c.dc.BufferedAmount() < buffered {
			return nil
		}
		return fmt.Errorf("%w (buffered: %d bytes)", ErrBufferTimeout, buffered)
	}
}

func (c *pionChannel) Close() error {
	return c.dc.Close()
}
