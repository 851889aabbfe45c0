package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/warpmesh/internal/config"
	"github.com/BioHazard786/warpmesh/internal/mesh"
	"github.com/BioHazard786/warpmesh/internal/roster"
	"github.com/BioHazard786/warpmesh/internal/signaling"
	"github.com/BioHazard786/warpmesh/internal/transfer"
	"github.com/BioHazard786/warpmesh/internal/ui"
)

// SessionOptions are the callbacks a command hooks into the mesh.
type SessionOptions struct {
	OnParticipantUpdate func([]roster.Participant)
	OnLinkUpdate        func([]mesh.LinkInfo)
	OnFileReceived      func(transfer.ReceivedFile)
	OnIncomingProgress  func(transfer.IncomingProgress)
	OnRemoteTrack       func(peerID string, track mesh.TrackInfo)
}

// Session is one membership of a room: the relay connection and the mesh
// coordinator driven by it.
type Session struct {
	Config *config.Config
	RoomID string
	Client *signaling.Client
	Mesh   *mesh.Coordinator

	cancel context.CancelFunc
	errs   chan error
	wg     sync.WaitGroup
	once   sync.Once
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	c, err := config.Load(opts)
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	if c.ForceRelay && c.TURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return c, nil
}

// StartSession connects to the relay, starts the mesh loop and joins roomID.
func StartSession(ctx context.Context, c *config.Config, roomID string, opts SessionOptions) (*Session, error) {
	logger := slog.Default().With("room", roomID)

	client := signaling.NewClient(c.WebSocketURL, logger)
	if err := client.Connect(ctx); err != nil {
		return nil, transfer.NewError("connect to server", err)
	}

	factory, err := mesh.NewPionFactory(c.PeerConfiguration(), logger)
	if err != nil {
		client.Close()
		return nil, transfer.NewError("create webrtc api", err)
	}

	coord := mesh.New(mesh.Options{
		LocalID:              c.ClientID,
		DisplayName:          c.DisplayName,
		RoomID:               roomID,
		Relay:                client,
		Factory:              factory,
		Logger:               logger,
		ConnectDelay:         c.ConnectDelay,
		ReconnectDelay:       c.ReconnectDelay,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		ChunkInterval:        c.ChunkInterval,
		OnParticipantUpdate:  opts.OnParticipantUpdate,
		OnLinkUpdate:         opts.OnLinkUpdate,
		OnFileReceived:       opts.OnFileReceived,
		OnIncomingProgress:   opts.OnIncomingProgress,
		OnRemoteTrack:        opts.OnRemoteTrack,
		OnRelayError: func(msg string) {
			ui.PrintWarningf("Relay: %s", msg)
		},
	})

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		Config: c,
		RoomID: roomID,
		Client: client,
		Mesh:   coord,
		cancel: cancel,
		errs:   make(chan error, 2),
	}

	handler := signaling.NewHandler(client, coord, logger)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		coord.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		if err := handler.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.errs <- err
		}
	}()

	if err := coord.Join(); err != nil {
		s.Close()
		return nil, transfer.NewError("join room", err)
	}
	return s, nil
}

// Errors reports fatal relay errors, such as losing the connection.
func (s *Session) Errors() <-chan error {
	return s.errs
}

// Close leaves the room and releases every link.
func (s *Session) Close() {
	s.once.Do(func() {
		if err := s.Mesh.Leave(); err != nil {
			slog.Debug("leave room", "error", err)
		}
		s.cancel()
		s.Client.Close()
		s.wg.Wait()
	})
}
