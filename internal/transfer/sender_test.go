package transfer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/warpmesh/internal/clock"
	"github.com/BioHazard786/warpmesh/internal/webrtc"
)

type fakeChannel struct {
	mu      sync.Mutex
	open    bool
	sendErr error
	frames  [][]byte

	// closeAfter closes the channel once this many frames were sent (0 = never).
	closeAfter int
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	if c.closeAfter > 0 && len(c.frames) >= c.closeAfter {
		c.open = false
	}
	return nil
}

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) payloads(t *testing.T) []webrtc.Payload {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]webrtc.Payload, 0, len(c.frames))
	for _, f := range c.frames {
		p, err := webrtc.Decode(f)
		if err != nil {
			t.Fatalf("Decode sent frame: %v", err)
		}
		out = append(out, p)
	}
	return out
}

type fakeSource []Target

func (s fakeSource) FileChannels() []Target { return s }

func TestSendFileWithoutOpenChannels(t *testing.T) {
	closed := &fakeChannel{}
	source := fakeSource{{PeerID: "a", Channel: closed}, {PeerID: "b", Channel: &fakeChannel{}}}
	s := NewSender(source, SenderOptions{})

	_, err := s.SendFile(context.Background(), OutgoingFile{Name: "x.bin", Data: []byte("data")}, "me")
	if !errors.Is(err, ErrTransferUnavailable) {
		t.Fatalf("error = %v, want ErrTransferUnavailable", err)
	}
	if !strings.Contains(err.Error(), "0 open of 2") {
		t.Errorf("error %q does not report channel counts", err)
	}
	if len(closed.frames) != 0 {
		t.Errorf("%d frames sent on closed channel", len(closed.frames))
	}
}

func TestSendFileWithNoLinks(t *testing.T) {
	s := NewSender(fakeSource(nil), SenderOptions{})
	_, err := s.SendFile(context.Background(), OutgoingFile{Name: "x", Data: []byte("x")}, "me")
	if !errors.Is(err, ErrTransferUnavailable) {
		t.Fatalf("error = %v, want ErrTransferUnavailable", err)
	}
}

func TestSendFileRejectsEmptyPayload(t *testing.T) {
	s := NewSender(fakeSource{{PeerID: "a", Channel: &fakeChannel{open: true}}}, SenderOptions{})
	_, err := s.SendFile(context.Background(), OutgoingFile{Name: "empty"}, "me")
	if !errors.Is(err, ErrInvalidFile) {
		t.Fatalf("error = %v, want ErrInvalidFile", err)
	}
}

func TestSendFileChunking(t *testing.T) {
	ch := &fakeChannel{open: true}
	s := NewSender(fakeSource{{PeerID: "a", Channel: ch}}, SenderOptions{})

	data := bytes.Repeat([]byte{7}, 16400)
	tr, err := s.SendFile(context.Background(), OutgoingFile{Name: "f.bin", MediaType: "application/octet-stream", Data: data}, "me")
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if tr.TotalChunks != 2 {
		t.Fatalf("TotalChunks = %d, want 2", tr.TotalChunks)
	}

	payloads := ch.payloads(t)
	if len(payloads) != 3 {
		t.Fatalf("sent %d frames, want 3", len(payloads))
	}
	info, ok := payloads[0].(*webrtc.FileInfo)
	if !ok {
		t.Fatalf("first frame is %T, want *FileInfo", payloads[0])
	}
	if info.ID != tr.ID || info.Size != 16400 || info.TotalChunks != 2 || info.Sender != "me" {
		t.Errorf("info = %+v", info)
	}

	wantSizes := []int{16384, 16}
	for i, p := range payloads[1:] {
		chunk, ok := p.(*webrtc.FileChunk)
		if !ok {
			t.Fatalf("frame %d is %T, want *FileChunk", i+1, p)
		}
		if chunk.ChunkIndex != i || len(chunk.Bytes) != wantSizes[i] || chunk.FileID != tr.ID {
			t.Errorf("chunk %d: index=%d len=%d id=%s", i, chunk.ChunkIndex, len(chunk.Bytes), chunk.FileID)
		}
	}
}

func TestSendFileSkipsClosedAndFailingRecipients(t *testing.T) {
	good := &fakeChannel{open: true}
	failing := &fakeChannel{open: true, sendErr: errors.New("boom")}
	closed := &fakeChannel{}
	source := fakeSource{
		{PeerID: "good", Channel: good},
		{PeerID: "failing", Channel: failing},
		{PeerID: "closed", Channel: closed},
	}
	s := NewSender(source, SenderOptions{})

	tr, err := s.SendFile(context.Background(), OutgoingFile{Name: "f", Data: make([]byte, 3*ChunkSize)}, "me")
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if len(tr.Recipients) != 1 || tr.Recipients[0] != "good" {
		t.Errorf("Recipients = %v, want [good]", tr.Recipients)
	}
	if n := len(good.frames); n != 4 {
		t.Errorf("good channel got %d frames, want 4", n)
	}
	if len(closed.frames) != 0 {
		t.Errorf("closed channel got %d frames", len(closed.frames))
	}
}

func TestSendFileStopsForChannelClosedMidTransfer(t *testing.T) {
	stays := &fakeChannel{open: true}
	leaves := &fakeChannel{open: true, closeAfter: 2} // info + first chunk
	s := NewSender(fakeSource{{PeerID: "a", Channel: stays}, {PeerID: "b", Channel: leaves}}, SenderOptions{})

	if _, err := s.SendFile(context.Background(), OutgoingFile{Name: "f", Data: make([]byte, 4*ChunkSize)}, "me"); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if len(stays.frames) != 5 {
		t.Errorf("open channel got %d frames, want 5", len(stays.frames))
	}
	if len(leaves.frames) != 2 {
		t.Errorf("closed channel got %d frames, want 2", len(leaves.frames))
	}
}

func TestSendFilePacesChunks(t *testing.T) {
	fake := clock.Fake(time.Unix(1000, 0))
	ch := &fakeChannel{open: true}
	var mu sync.Mutex
	var progress []Progress
	s := NewSender(fakeSource{{PeerID: "a", Channel: ch}}, SenderOptions{
		Clock:         fake,
		ChunkInterval: 10 * time.Millisecond,
		OnProgress: func(p Progress) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		},
	})

	done := make(chan error, 1)
	go func() {
		_, err := s.SendFile(context.Background(), OutgoingFile{Name: "f", Data: make([]byte, 3*ChunkSize)}, "me")
		done <- err
	}()

	fake.WaitForTimers(1)
	ch.mu.Lock()
	sent := len(ch.frames)
	ch.mu.Unlock()
	if sent != 2 {
		t.Fatalf("before first interval sent %d frames, want 2", sent)
	}

	fake.Advance(10 * time.Millisecond)
	fake.WaitForTimers(1)
	fake.Advance(10 * time.Millisecond)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendFile: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendFile did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(progress) != 3 || progress[2].BytesSent != int64(3*ChunkSize) {
		t.Errorf("progress = %+v", progress)
	}
	if got := ch.payloads(t)[0].(*webrtc.FileInfo).Timestamp; got != time.Unix(1000, 0).UnixMilli() {
		t.Errorf("timestamp = %d", got)
	}
}

func TestSendFileCancelled(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	ch := &fakeChannel{open: true}
	s := NewSender(fakeSource{{PeerID: "a", Channel: ch}}, SenderOptions{Clock: fake, ChunkInterval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.SendFile(ctx, OutgoingFile{Name: "f", Data: make([]byte, 2*ChunkSize)}, "me")
		done <- err
	}()

	fake.WaitForTimers(1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrTransferCancelled) {
			t.Fatalf("error = %v, want ErrTransferCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendFile did not return after cancel")
	}
}

func TestTotalChunks(t *testing.T) {
	tests := []struct {
		size, want int
	}{
		{1, 1},
		{ChunkSize, 1},
		{ChunkSize + 1, 2},
		{16400, 2},
		{10 * ChunkSize, 10},
	}
	for _, tt := range tests {
		if got := TotalChunks(tt.size); got != tt.want {
			t.Errorf("TotalChunks(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}
