package transfer

import (
	"log/slog"
	"time"

	"github.com/BioHazard786/warpmesh/internal/webrtc"
)

// ReceivedFile is a fully reassembled inbound transfer.
type ReceivedFile struct {
	ID        string
	Name      string
	MediaType string
	Size      int64
	Data      []byte
	Timestamp time.Time
	Sender    string

	// From is the link the file arrived on.
	From string
}

// IncomingTransfer collects the chunks of one announced file.
type IncomingTransfer struct {
	ID          string
	TotalChunks int
	Metadata    webrtc.FileInfo
	From        string

	slots  [][]byte
	filled int
}

// Received returns how many distinct chunks have arrived.
func (t *IncomingTransfer) Received() int { return t.filled }

// IncomingProgress is a copy of an inbound transfer's state that can leave
// the goroutine owning the Reassembler.
type IncomingProgress struct {
	ID          string
	Name        string
	From        string
	Size        int64
	Received    int
	TotalChunks int
}

func (p IncomingProgress) Done() bool { return p.Received >= p.TotalChunks }

func (t *IncomingTransfer) Progress() IncomingProgress {
	return IncomingProgress{
		ID:          t.ID,
		Name:        t.Metadata.Name,
		From:        t.From,
		Size:        t.Metadata.Size,
		Received:    t.Received(),
		TotalChunks: t.TotalChunks,
	}
}

type ReassemblerOptions struct {
	Logger         *slog.Logger
	OnFileReceived func(ReceivedFile)

	// OnChunk, if set, is called after each accepted chunk.
	OnChunk func(t *IncomingTransfer)
}

// Reassembler rebuilds files from file channel frames. It is not safe for
// concurrent use; the mesh loop owns it.
type Reassembler struct {
	transfers map[string]*IncomingTransfer
	logger    *slog.Logger
	onFile    func(ReceivedFile)
	onChunk   func(*IncomingTransfer)
}

func NewReassembler(opts ReassemblerOptions) *Reassembler {
	r := &Reassembler{
		transfers: make(map[string]*IncomingTransfer),
		logger:    opts.Logger,
		onFile:    opts.OnFileReceived,
		onChunk:   opts.OnChunk,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// HandleMessage processes one frame received from peer from. Malformed frames
// are logged and returned as errors; they never affect other transfers.
func (r *Reassembler) HandleMessage(from string, frame []byte) error {
	payload, err := webrtc.Decode(frame)
	if err != nil {
		r.logger.Warn("discarding data channel message", "peer", from, "error", err)
		return err
	}

	switch p := payload.(type) {
	case *webrtc.FileInfo:
		r.open(from, p)
	case *webrtc.FileChunk:
		r.store(from, p)
	case *webrtc.LegacyFile:
		r.deliver(ReceivedFile{
			ID:        p.ID,
			Name:      p.Name,
			MediaType: p.MediaType,
			Size:      p.Size,
			Data:      p.Data,
			Timestamp: time.UnixMilli(p.Timestamp),
			Sender:    p.Sender,
			From:      from,
		})
	}
	return nil
}

func (r *Reassembler) open(from string, info *webrtc.FileInfo) {
	if _, exists := r.transfers[info.ID]; exists {
		r.logger.Debug("transfer re-announced, restarting", "transfer", info.ID, "peer", from)
	}
	r.transfers[info.ID] = &IncomingTransfer{
		ID:          info.ID,
		TotalChunks: info.TotalChunks,
		Metadata:    *info,
		From:        from,
		slots:       make([][]byte, info.TotalChunks),
	}
	r.logger.Debug("transfer opened", "transfer", info.ID, "file", info.Name, "chunks", info.TotalChunks, "peer", from)
}

func (r *Reassembler) store(from string, chunk *webrtc.FileChunk) {
	t, ok := r.transfers[chunk.FileID]
	if !ok {
		r.logger.Debug("chunk for unknown transfer", "transfer", chunk.FileID, "peer", from)
		return
	}
	if chunk.ChunkIndex >= t.TotalChunks {
		r.logger.Warn("chunk index out of range", "transfer", t.ID, "index", chunk.ChunkIndex, "chunks", t.TotalChunks)
		return
	}

	if t.slots[chunk.ChunkIndex] == nil {
		t.filled++
	}
	// A nil slot marks a missing chunk, so an empty chunk is stored non-nil.
	data := make([]byte, len(chunk.Bytes))
	copy(data, chunk.Bytes)
	t.slots[chunk.ChunkIndex] = data

	if r.onChunk != nil {
		r.onChunk(t)
	}
	if t.filled < t.TotalChunks {
		return
	}

	delete(r.transfers, t.ID)

	var n int
	for _, s := range t.slots {
		n += len(s)
	}
	buf := make([]byte, 0, n)
	for _, s := range t.slots {
		buf = append(buf, s...)
	}
	if int64(n) != t.Metadata.Size {
		r.logger.Warn("reassembled size differs from announcement", "transfer", t.ID, "announced", t.Metadata.Size, "received", n)
	}

	r.deliver(ReceivedFile{
		ID:        t.ID,
		Name:      t.Metadata.Name,
		MediaType: t.Metadata.MediaType,
		Size:      t.Metadata.Size,
		Data:      buf,
		Timestamp: time.UnixMilli(t.Metadata.Timestamp),
		Sender:    t.Metadata.Sender,
		From:      t.From,
	})
}

func (r *Reassembler) deliver(f ReceivedFile) {
	r.logger.Info("file received", "transfer", f.ID, "file", f.Name, "size", len(f.Data), "peer", f.From)
	if r.onFile != nil {
		r.onFile(f)
	}
}

// Pending returns the number of transfers still waiting for chunks.
func (r *Reassembler) Pending() int {
	return len(r.transfers)
}

// DiscardFrom drops the incomplete transfers announced by peer and returns
// how many were dropped. Chunks are never resent on a new link, so they
// could not complete.
func (r *Reassembler) DiscardFrom(peer string) int {
	n := 0
	for id, t := range r.transfers {
		if t.From == peer {
			delete(r.transfers, id)
			n++
		}
	}
	return n
}
