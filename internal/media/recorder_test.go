package media

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

func TestRecorderPath(t *testing.T) {
	r := &Recorder{Dir: "/rec"}
	opus := pion.RTPCodecParameters{RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}}
	vp8 := pion.RTPCodecParameters{RTPCodecCapability: pion.RTPCodecCapability{MimeType: "video/vp8"}}
	h264 := pion.RTPCodecParameters{RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeH264}}

	if got := r.Path("peer/1", "{abc}", opus); got != filepath.Join("/rec", "peer_1-_abc_.ogg") {
		t.Errorf("opus path = %q", got)
	}
	if got := r.Path("p", "t", vp8); filepath.Ext(got) != ".ivf" {
		t.Errorf("vp8 path = %q", got)
	}
	if got := r.Path("p", "t", h264); got != "" {
		t.Errorf("h264 path = %q, want empty", got)
	}
}

func TestRecorderWritesOgg(t *testing.T) {
	dir := t.TempDir()
	r := &Recorder{Dir: dir}
	codec := pion.RTPCodecParameters{RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2}}

	packets := []*rtp.Packet{
		{Header: rtp.Header{SequenceNumber: 1, Timestamp: 960}, Payload: []byte{0xf8, 0xff, 0xfe}},
		{Header: rtp.Header{SequenceNumber: 2, Timestamp: 1920}, Payload: []byte{0xf8, 0xff, 0xfe}},
	}
	i := 0
	read := func() (*rtp.Packet, error) {
		if i == len(packets) {
			return nil, io.EOF
		}
		i++
		return packets[i-1], nil
	}

	if err := r.record("alice", "mic", codec, read); err != nil {
		t.Fatalf("record: %v", err)
	}

	f, err := os.Open(r.Path("alice", "mic", codec))
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		t.Fatalf("recording is not ogg: %v", err)
	}
	pages := 0
	for {
		if _, _, err := reader.ParseNextPage(); err != nil {
			if !errors.Is(err, io.EOF) {
				t.Fatalf("ParseNextPage: %v", err)
			}
			break
		}
		pages++
	}
	if pages < 2 {
		t.Errorf("recording has %d pages after header, want >= 2", pages)
	}
}
