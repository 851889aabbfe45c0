// Package media owns the local capture session and publishes its tracks to
// the mesh.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

var ErrDeviceUnavailable = errors.New("capture device unavailable")

// DeviceError reports a failed capture of one kind.
type DeviceError struct {
	Kind Kind
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is makes every DeviceError match ErrDeviceUnavailable.
func (e *DeviceError) Is(target error) bool { return target == ErrDeviceUnavailable }

// Capture is an acquired device and the tracks it feeds.
type Capture struct {
	Tracks []pion.TrackLocal

	stopOnce sync.Once
	stop     func()
}

// NewCapture wraps tracks; stop is called once when the capture is released.
func NewCapture(tracks []pion.TrackLocal, stop func()) *Capture {
	return &Capture{Tracks: tracks, stop: stop}
}

func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		if c.stop != nil {
			c.stop()
		}
	})
}

// Capturer acquires a device of the given kind, tagging tracks with streamID.
type Capturer interface {
	Capture(ctx context.Context, kind Kind, streamID string) (*Capture, error)
}

// Sink receives the full set of local tracks after every change.
type Sink interface {
	PublishTracks(tracks []pion.TrackLocal)
}

// Publisher holds one local stream made of independently toggled audio and
// video captures.
type Publisher struct {
	capturer Capturer
	sink     Sink
	logger   *slog.Logger

	// op serialises start and stop calls.
	op sync.Mutex

	mu       sync.RWMutex
	streamID string
	active   map[Kind]*Capture
}

func NewPublisher(capturer Capturer, sink Sink, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		capturer: capturer,
		sink:     sink,
		logger:   logger.With("component", "media"),
		active:   make(map[Kind]*Capture),
	}
}

func (p *Publisher) StartAudio(ctx context.Context) error { return p.start(ctx, KindAudio) }
func (p *Publisher) StartVideo(ctx context.Context) error { return p.start(ctx, KindVideo) }
func (p *Publisher) StopAudio()                           { p.stop(KindAudio) }
func (p *Publisher) StopVideo()                           { p.stop(KindVideo) }

func (p *Publisher) start(ctx context.Context, kind Kind) error {
	p.op.Lock()
	defer p.op.Unlock()

	p.mu.RLock()
	streamID := p.streamID
	p.mu.RUnlock()
	if streamID == "" {
		streamID = uuid.NewString()
	}

	capture, err := p.capturer.Capture(ctx, kind, streamID)
	if err != nil {
		var de *DeviceError
		if !errors.As(err, &de) {
			err = &DeviceError{Kind: kind, Err: err}
		}
		p.logger.Warn("capture failed", "kind", kind, "error", err)
		return err
	}

	p.mu.Lock()
	old := p.active[kind]
	p.active[kind] = capture
	p.streamID = streamID
	p.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	p.logger.Info("capture started", "kind", kind, "stream", streamID, "tracks", len(capture.Tracks))
	p.publish()
	return nil
}

func (p *Publisher) stop(kind Kind) {
	p.op.Lock()
	defer p.op.Unlock()

	p.mu.Lock()
	capture, ok := p.active[kind]
	delete(p.active, kind)
	if len(p.active) == 0 {
		p.streamID = ""
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	capture.Stop()
	p.logger.Info("capture stopped", "kind", kind)
	p.publish()
}

// Close stops every capture.
func (p *Publisher) Close() {
	p.StopAudio()
	p.StopVideo()
}

// Tracks returns the current local tracks, audio first.
func (p *Publisher) Tracks() []pion.TrackLocal {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var tracks []pion.TrackLocal
	for _, kind := range []Kind{KindAudio, KindVideo} {
		if c := p.active[kind]; c != nil {
			tracks = append(tracks, c.Tracks...)
		}
	}
	return tracks
}

// Stream returns the id of the local stream, if one exists.
func (p *Publisher) Stream() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.streamID, p.streamID != ""
}

// Active reports whether kind is being captured.
func (p *Publisher) Active(kind Kind) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active[kind] != nil
}

func (p *Publisher) publish() {
	if p.sink != nil {
		p.sink.PublishTracks(p.Tracks())
	}
}
