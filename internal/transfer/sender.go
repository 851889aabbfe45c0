package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BioHazard786/warpmesh/internal/clock"
	"github.com/BioHazard786/warpmesh/internal/webrtc"
	"github.com/google/uuid"
)

// OutgoingFile is a payload handed to SendFile.
type OutgoingFile struct {
	Name      string
	MediaType string
	Data      []byte
}

// OutgoingTransfer describes a transfer once it has been announced.
type OutgoingTransfer struct {
	ID          string
	Name        string
	Size        int64
	TotalChunks int
	ChunkSize   int
	Recipients  []string
}

// Progress is reported after every chunk broadcast.
type Progress struct {
	TransferID  string
	Name        string
	ChunksSent  int
	TotalChunks int
	BytesSent   int64
	Size        int64
	Recipients  int
}

type SenderOptions struct {
	Clock         clock.Clock
	ChunkInterval time.Duration
	Logger        *slog.Logger
	OnProgress    func(Progress)
}

// Sender broadcasts files to every open file channel of a ChannelSource.
type Sender struct {
	source     ChannelSource
	clock      clock.Clock
	interval   time.Duration
	logger     *slog.Logger
	onProgress func(Progress)
}

func NewSender(source ChannelSource, opts SenderOptions) *Sender {
	s := &Sender{
		source:     source,
		clock:      opts.Clock,
		interval:   opts.ChunkInterval,
		logger:     opts.Logger,
		onProgress: opts.OnProgress,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// SendFile announces file to every open channel and then streams its chunks,
// pausing the chunk interval between them. It fails with ErrTransferUnavailable
// before any chunk is built when no channel is open. A recipient whose channel
// closes or errors stops receiving chunks; the others continue.
func (s *Sender) SendFile(ctx context.Context, file OutgoingFile, senderID string) (*OutgoingTransfer, error) {
	targets := s.source.FileChannels()
	recipients := openTargets(targets)
	if len(recipients) == 0 {
		return nil, &TransferError{
			Op:      "send file",
			File:    file.Name,
			Err:     ErrTransferUnavailable,
			Details: fmt.Sprintf("0 open of %d channels", len(targets)),
		}
	}
	if len(file.Data) == 0 {
		return nil, NewFileError("send file", file.Name, ErrInvalidFile)
	}

	size := len(file.Data)
	t := &OutgoingTransfer{
		ID:          uuid.NewString(),
		Name:        file.Name,
		Size:        int64(size),
		TotalChunks: TotalChunks(size),
		ChunkSize:   ChunkSize,
	}
	log := s.logger.With("transfer", t.ID, "file", file.Name)

	info := &webrtc.FileInfo{
		ID:          t.ID,
		Name:        file.Name,
		MediaType:   file.MediaType,
		Size:        t.Size,
		TotalChunks: t.TotalChunks,
		Sender:      senderID,
		Timestamp:   s.clock.Now().UnixMilli(),
	}
	recipients = s.broadcast(log, recipients, info)
	if len(recipients) == 0 {
		return t, &TransferError{Op: "send file", File: file.Name, Err: ErrTransferUnavailable, Details: fmt.Sprintf("announcement reached 0 of %d channels", len(targets))}
	}
	for _, r := range recipients {
		t.Recipients = append(t.Recipients, r.PeerID)
	}
	log.Debug("transfer announced", "chunks", t.TotalChunks, "recipients", len(recipients))

	for i := 0; i < t.TotalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return t, &TransferError{Op: "send file", File: file.Name, Err: ErrTransferCancelled, Details: err.Error()}
		}

		start, end := chunkBounds(i, size)
		chunk := &webrtc.FileChunk{
			FileID:      t.ID,
			ChunkIndex:  i,
			TotalChunks: t.TotalChunks,
			Bytes:       file.Data[start:end],
		}
		recipients = s.broadcast(log, openTargets(recipients), chunk)
		if len(recipients) == 0 {
			return t, &TransferError{Op: "send file", File: file.Name, Err: ErrTransferUnavailable, Details: fmt.Sprintf("every recipient closed after chunk %d of %d", i, t.TotalChunks)}
		}

		if s.onProgress != nil {
			s.onProgress(Progress{
				TransferID:  t.ID,
				Name:        file.Name,
				ChunksSent:  i + 1,
				TotalChunks: t.TotalChunks,
				BytesSent:   int64(end),
				Size:        t.Size,
				Recipients:  len(recipients),
			})
		}

		if i < t.TotalChunks-1 && s.interval > 0 {
			select {
			case <-ctx.Done():
				return t, &TransferError{Op: "send file", File: file.Name, Err: ErrTransferCancelled, Details: ctx.Err().Error()}
			case <-s.clock.After(s.interval):
			}
		}
	}

	log.Debug("transfer sent", "recipients", len(recipients))
	return t, nil
}

// broadcast sends payload to each target and returns the ones that accepted it.
func (s *Sender) broadcast(log *slog.Logger, targets []Target, payload webrtc.Payload) []Target {
	frame, err := webrtc.Encode(payload)
	if err != nil {
		log.Error("encode failed", "error", err)
		return nil
	}

	delivered := targets[:0:0]
	for _, t := range targets {
		if err := t.Channel.Send(frame); err != nil {
			log.Warn("send to peer failed", "peer", t.PeerID, "error", err)
			continue
		}
		delivered = append(delivered, t)
	}
	return delivered
}
