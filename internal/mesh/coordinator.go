// Package mesh maintains a full mesh of WebRTC links to every other
// participant of a room.
//
// All mesh state is owned by the goroutine running Coordinator.Run. Relay
// events, connection callbacks, expired timers and API calls are queued onto
// that goroutine, so handlers never need locks and always see consistent
// tables.
package mesh

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/BioHazard786/warpmesh/internal/clock"
	"github.com/BioHazard786/warpmesh/internal/roster"
	"github.com/BioHazard786/warpmesh/internal/signaling"
	"github.com/BioHazard786/warpmesh/internal/transfer"
	pion "github.com/pion/webrtc/v4"
)

const (
	DefaultConnectDelay         = time.Second
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5

	// maxOrphanCandidates bounds candidates held for ids without a link.
	maxOrphanCandidates = 64
)

type Options struct {
	LocalID     string
	DisplayName string
	RoomID      string

	Relay   Relay
	Factory ConnectionFactory
	Clock   clock.Clock
	Logger  *slog.Logger

	// ConnectDelay is the wait before a new link is attempted. The peer with
	// the larger client id waits twice as long, so the smaller id usually
	// offers first.
	ConnectDelay   time.Duration
	ReconnectDelay time.Duration

	// MaxReconnectAttempts caps consecutive reconnects per participant.
	// Negative means unlimited.
	MaxReconnectAttempts int

	// ChunkInterval paces file chunks. Negative disables pacing.
	ChunkInterval time.Duration

	OnParticipantUpdate func([]roster.Participant)
	OnFileReceived      func(transfer.ReceivedFile)
	OnIncomingProgress  func(transfer.IncomingProgress)
	OnRemoteTrack       func(peerID string, track TrackInfo)
	OnLinkUpdate        func([]LinkInfo)
	OnRelayError        func(message string)
}

// Coordinator drives the participant registry, the link table and file
// reassembly from a single event loop.
type Coordinator struct {
	opts   Options
	logger *slog.Logger
	clock  clock.Clock

	registry    *roster.Registry
	links       map[string]*peerLink
	orphans     map[string][]pion.ICECandidateInit
	attempts    map[string]int
	reconnects  map[string]bool
	timers      map[clock.Timer]struct{}
	tracks      []pion.TrackLocal
	reassembler *transfer.Reassembler
	sender      *transfer.Sender

	queue *queue
	done  chan struct{}
}

func New(opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConnectDelay <= 0 {
		opts.ConnectDelay = DefaultConnectDelay
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectAttempts == 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.ChunkInterval == 0 {
		opts.ChunkInterval = transfer.DefaultChunkInterval
	}

	logger := opts.Logger.With("component", "mesh", "local", opts.LocalID)
	c := &Coordinator{
		opts:       opts,
		logger:     logger,
		clock:      opts.Clock,
		registry:   roster.New(opts.LocalID, logger),
		links:      make(map[string]*peerLink),
		orphans:    make(map[string][]pion.ICECandidateInit),
		attempts:   make(map[string]int),
		reconnects: make(map[string]bool),
		timers:     make(map[clock.Timer]struct{}),
		queue:      newQueue(),
		done:       make(chan struct{}),
	}
	c.registry.OnUpdate(opts.OnParticipantUpdate)
	ro := transfer.ReassemblerOptions{
		Logger:         logger,
		OnFileReceived: opts.OnFileReceived,
	}
	if opts.OnIncomingProgress != nil {
		ro.OnChunk = func(t *transfer.IncomingTransfer) { opts.OnIncomingProgress(t.Progress()) }
	}
	c.reassembler = transfer.NewReassembler(ro)
	c.sender = transfer.NewSender(c, transfer.SenderOptions{
		Clock:         opts.Clock,
		ChunkInterval: opts.ChunkInterval,
		Logger:        logger,
	})
	return c
}

// Run processes events until ctx is done, then closes every link.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			for _, fn := range c.queue.drain() {
				fn()
			}
			c.shutdown()
			return ctx.Err()
		case <-c.queue.signal:
			for _, fn := range c.queue.drain() {
				fn()
			}
		}
	}
}

// post queues fn on the loop without waiting.
func (c *Coordinator) post(fn func()) {
	c.queue.push(fn)
}

// do runs fn on the loop and waits for it to finish.
func (c *Coordinator) do(fn func()) error {
	finished := make(chan struct{})
	c.queue.push(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Done is closed when Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) LocalID() string {
	return c.opts.LocalID
}

// Join announces the local participant to the room.
func (c *Coordinator) Join() error {
	return c.opts.Relay.Send(signaling.MessageTypeJoinRoom, signaling.JoinRoomPayload{
		RoomID:      c.opts.RoomID,
		ClientID:    c.opts.LocalID,
		DisplayName: c.opts.DisplayName,
	})
}

// Leave closes every link and tells the room we are gone.
func (c *Coordinator) Leave() error {
	if err := c.do(c.closeAll); err != nil {
		return err
	}
	return c.opts.Relay.Send(signaling.MessageTypeLeaveRoom, signaling.LeaveRoomPayload{
		RoomID:   c.opts.RoomID,
		ClientID: c.opts.LocalID,
	})
}

// HandleParticipants applies a roster snapshot: links to ids missing from it
// are closed and every listed participant without a link gets a connect
// attempt.
func (c *Coordinator) HandleParticipants(entries []signaling.ParticipantPayload) {
	c.do(func() {
		snapshot := make([]roster.Entry, 0, len(entries))
		for _, e := range entries {
			snapshot = append(snapshot, roster.Entry{ClientID: e.ClientID, DisplayName: e.DisplayName})
		}
		c.registry.ApplySnapshot(snapshot)

		for id, link := range c.links {
			if !c.registry.Has(id) {
				c.logger.Info("closing link to participant missing from roster", "peer", id)
				c.removeLink(link)
				c.forget(id)
			}
		}
		for id, link := range c.links {
			if link.state == StateConnected {
				c.registry.SetConnected(id, true)
			}
			for _, t := range link.remoteTracks {
				c.registry.AttachStream(id, t.StreamID, roster.RemoteTrack{ID: t.ID, Kind: t.Kind})
			}
		}
		for _, id := range c.registry.IDs() {
			if c.links[id] == nil {
				c.scheduleConnect(id)
			}
		}
		c.notifyLinks()
	})
}

func (c *Coordinator) HandleUserJoined(clientID, displayName string) {
	c.do(func() {
		if clientID == c.opts.LocalID {
			return
		}
		c.registry.Join(clientID, displayName)
		if c.links[clientID] == nil {
			c.scheduleConnect(clientID)
		}
	})
}

func (c *Coordinator) HandleUserLeft(clientID string) {
	c.do(func() {
		c.registry.Leave(clientID)
		if link := c.links[clientID]; link != nil {
			c.removeLink(link)
		}
		c.forget(clientID)
		c.notifyLinks()
	})
}

func (c *Coordinator) HandleSignal(from string, signal signaling.SignalPayload) {
	c.do(func() { c.handleSignal(from, signal) })
}

func (c *Coordinator) HandleRelayError(message string) {
	c.logger.Warn("relay error", "error", message)
	if c.opts.OnRelayError != nil {
		c.opts.OnRelayError(message)
	}
}

// PublishTracks replaces the local tracks attached to every live link.
func (c *Coordinator) PublishTracks(tracks []pion.TrackLocal) {
	c.do(func() {
		c.tracks = append([]pion.TrackLocal(nil), tracks...)
		for _, link := range c.links {
			if link.state == StateConnecting || link.state == StateConnected {
				c.syncTracks(link)
			}
		}
	})
}

// FileChannels lists the file channel of every link, ordered by peer id.
func (c *Coordinator) FileChannels() []transfer.Target {
	var targets []transfer.Target
	c.do(func() {
		for _, id := range c.sortedLinkIDs() {
			link := c.links[id]
			t := transfer.Target{PeerID: id}
			if link.channel != nil {
				t.Channel = link.channel
			}
			targets = append(targets, t)
		}
	})
	return targets
}

// SendFile broadcasts file to every peer with an open file channel.
func (c *Coordinator) SendFile(ctx context.Context, file transfer.OutgoingFile) (*transfer.OutgoingTransfer, error) {
	return c.sender.SendFile(ctx, file, c.opts.LocalID)
}

// SendFileWithProgress is SendFile reporting progress to fn.
func (c *Coordinator) SendFileWithProgress(ctx context.Context, file transfer.OutgoingFile, fn func(transfer.Progress)) (*transfer.OutgoingTransfer, error) {
	s := transfer.NewSender(c, transfer.SenderOptions{
		Clock:         c.clock,
		ChunkInterval: c.opts.ChunkInterval,
		Logger:        c.logger,
		OnProgress:    fn,
	})
	return s.SendFile(ctx, file, c.opts.LocalID)
}

func (c *Coordinator) Participants() []roster.Participant {
	var out []roster.Participant
	c.do(func() { out = c.registry.Snapshot() })
	return out
}

func (c *Coordinator) Links() []LinkInfo {
	var out []LinkInfo
	c.do(func() { out = c.linkInfos() })
	return out
}

func (c *Coordinator) Link(remoteID string) (LinkInfo, bool) {
	var (
		info LinkInfo
		ok   bool
	)
	c.do(func() {
		if link := c.links[remoteID]; link != nil {
			info, ok = link.info(), true
		}
	})
	return info, ok
}

// OpenChannels returns how many links have an open file channel.
func (c *Coordinator) OpenChannels() int {
	n := 0
	c.do(func() {
		for _, link := range c.links {
			if link.channel != nil && link.channel.IsOpen() {
				n++
			}
		}
	})
	return n
}

func (c *Coordinator) linkInfos() []LinkInfo {
	out := make([]LinkInfo, 0, len(c.links))
	for _, id := range c.sortedLinkIDs() {
		out = append(out, c.links[id].info())
	}
	return out
}

func (c *Coordinator) sortedLinkIDs() []string {
	ids := make([]string, 0, len(c.links))
	for id := range c.links {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Coordinator) notifyLinks() {
	if c.opts.OnLinkUpdate != nil {
		c.opts.OnLinkUpdate(c.linkInfos())
	}
}

// forget drops per-participant bookkeeping once it has left.
func (c *Coordinator) forget(id string) {
	delete(c.orphans, id)
	delete(c.attempts, id)
	delete(c.reconnects, id)
}

func (c *Coordinator) closeAll() {
	for _, link := range c.links {
		c.removeLink(link)
	}
	c.orphans = make(map[string][]pion.ICECandidateInit)
	c.notifyLinks()
}

func (c *Coordinator) shutdown() {
	for t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[clock.Timer]struct{})
	c.closeAll()
}
