package media

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

func writeOgg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.ogg")
	w, err := oggwriter.New(path, 48000, 2)
	if err != nil {
		t.Fatalf("oggwriter.New: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func writeIVF(t *testing.T, fourcc string) string {
	t.Helper()
	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:12], fourcc)
	binary.LittleEndian.PutUint16(header[12:], 640)
	binary.LittleEndian.PutUint16(header[14:], 480)
	binary.LittleEndian.PutUint32(header[16:], 30)
	binary.LittleEndian.PutUint32(header[20:], 1)
	binary.LittleEndian.PutUint32(header[24:], 0)

	path := filepath.Join(t.TempDir(), "v.ivf")
	if err := os.WriteFile(path, header, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileCapturerAudio(t *testing.T) {
	f := &FileCapturer{AudioPath: writeOgg(t)}
	c, err := f.Capture(context.Background(), KindAudio, "stream-1")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer c.Stop()

	if len(c.Tracks) != 1 {
		t.Fatalf("%d tracks", len(c.Tracks))
	}
	tr := c.Tracks[0]
	if tr.Kind() != pion.RTPCodecTypeAudio || tr.StreamID() != "stream-1" {
		t.Errorf("track kind=%s stream=%s", tr.Kind(), tr.StreamID())
	}
}

func TestFileCapturerVideo(t *testing.T) {
	f := &FileCapturer{VideoPath: writeIVF(t, "VP80")}
	c, err := f.Capture(context.Background(), KindVideo, "s")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	c.Stop()
	c.Stop()

	if c.Tracks[0].Kind() != pion.RTPCodecTypeVideo {
		t.Errorf("kind = %s", c.Tracks[0].Kind())
	}
}

func TestFileCapturerErrors(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(garbage, []byte("not media"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		f    *FileCapturer
		kind Kind
	}{
		{"no audio source", &FileCapturer{}, KindAudio},
		{"no video source", &FileCapturer{}, KindVideo},
		{"missing file", &FileCapturer{AudioPath: filepath.Join(t.TempDir(), "nope.ogg")}, KindAudio},
		{"not ogg", &FileCapturer{AudioPath: garbage}, KindAudio},
		{"not ivf", &FileCapturer{VideoPath: garbage}, KindVideo},
		{"unsupported codec", &FileCapturer{VideoPath: writeIVF(t, "H264")}, KindVideo},
		{"unknown kind", &FileCapturer{}, Kind("screen")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.f.Capture(context.Background(), tt.kind, "s")
			if !errors.Is(err, ErrDeviceUnavailable) {
				t.Errorf("error = %v, want DeviceError", err)
			}
		})
	}
}
