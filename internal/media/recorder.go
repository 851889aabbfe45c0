package media

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// rtpWriter is implemented by ivfwriter and oggwriter.
type rtpWriter interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// Recorder saves inbound tracks to Dir: Opus to .ogg, VP8 to .ivf.
type Recorder struct {
	Dir    string
	Logger *slog.Logger
}

// Path returns the file a track from peer would be written to, or "" when the
// codec cannot be recorded.
func (r *Recorder) Path(peer, trackID string, codec pion.RTPCodecParameters) string {
	var ext string
	switch strings.ToLower(codec.MimeType) {
	case strings.ToLower(pion.MimeTypeOpus):
		ext = ".ogg"
	case strings.ToLower(pion.MimeTypeVP8):
		ext = ".ivf"
	default:
		return ""
	}
	return filepath.Join(r.Dir, sanitize(peer)+"-"+sanitize(trackID)+ext)
}

// Record copies packets from track until it ends. It blocks; run it in its
// own goroutine.
func (r *Recorder) Record(peer string, track *pion.TrackRemote) error {
	return r.record(peer, track.ID(), track.Codec(), func() (*rtp.Packet, error) {
		packet, _, err := track.ReadRTP()
		return packet, err
	})
}

func (r *Recorder) record(peer, trackID string, codec pion.RTPCodecParameters, read func() (*rtp.Packet, error)) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	path := r.Path(peer, trackID, codec)
	if path == "" {
		logger.Info("not recording unsupported codec", "peer", peer, "codec", codec.MimeType)
		return nil
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}

	var (
		w   rtpWriter
		err error
	)
	if strings.HasSuffix(path, ".ogg") {
		w, err = oggwriter.New(path, codec.ClockRate, max(codec.Channels, 1))
	} else {
		w, err = ivfwriter.New(path)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer w.Close()

	logger.Info("recording track", "peer", peer, "file", path)
	for {
		packet, err := read()
		if err != nil {
			logger.Debug("track ended", "peer", peer, "track", trackID, "error", err)
			return nil
		}
		if err := w.WriteRTP(packet); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
