package webrtc

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Envelope tags carried on the file transfer channel.
const (
	MessageTypeFileInfo  = "file-info"
	MessageTypeFileChunk = "file-chunk"
	MessageTypeFile      = "file"
)

var ErrMalformedMessage = errors.New("malformed data channel message")

// Message is the envelope for every data channel frame.
type Message struct {
	Type string             `msgpack:"type"`
	Data msgpack.RawMessage `msgpack:"data"`
}

// Payload is implemented by the three envelope bodies.
type Payload interface {
	messageType() string
	validate() error
}

// FileInfo announces a chunked transfer.
type FileInfo struct {
	ID          string `msgpack:"id"`
	Name        string `msgpack:"name"`
	MediaType   string `msgpack:"mediaType"`
	Size        int64  `msgpack:"size"`
	TotalChunks int    `msgpack:"totalChunks"`
	Sender      string `msgpack:"sender"`
	Timestamp   int64  `msgpack:"timestamp"` // unix milliseconds
}

// FileChunk carries one slice of a transfer.
type FileChunk struct {
	FileID      string `msgpack:"fileId"`
	ChunkIndex  int    `msgpack:"chunkIndex"`
	TotalChunks int    `msgpack:"totalChunks"`
	Bytes       []byte `msgpack:"bytes"`
}

// LegacyFile is the whole-file variant older peers send in a single frame.
type LegacyFile struct {
	ID        string `msgpack:"id"`
	Name      string `msgpack:"name"`
	MediaType string `msgpack:"mediaType"`
	Size      int64  `msgpack:"size"`
	Data      []byte `msgpack:"data"`
	Sender    string `msgpack:"sender"`
	Timestamp int64  `msgpack:"timestamp"`
}

func (*FileInfo) messageType() string   { return MessageTypeFileInfo }
func (*FileChunk) messageType() string  { return MessageTypeFileChunk }
func (*LegacyFile) messageType() string { return MessageTypeFile }

func (p *FileInfo) validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: file-info without id", ErrMalformedMessage)
	case p.TotalChunks < 1 || p.TotalChunks > MaxTotalChunks:
		return fmt.Errorf("%w: file-info totalChunks %d", ErrMalformedMessage, p.TotalChunks)
	case p.Size < 0:
		return fmt.Errorf("%w: file-info size %d", ErrMalformedMessage, p.Size)
	}
	return nil
}

func (p *FileChunk) validate() error {
	switch {
	case p.FileID == "":
		return fmt.Errorf("%w: file-chunk without fileId", ErrMalformedMessage)
	case p.TotalChunks < 1 || p.TotalChunks > MaxTotalChunks:
		return fmt.Errorf("%w: file-chunk totalChunks %d", ErrMalformedMessage, p.TotalChunks)
	case p.ChunkIndex < 0 || p.ChunkIndex >= p.TotalChunks:
		return fmt.Errorf("%w: chunk index %d of %d", ErrMalformedMessage, p.ChunkIndex, p.TotalChunks)
	case len(p.Bytes) > MaxChunkSize:
		return fmt.Errorf("%w: chunk of %d bytes", ErrMalformedMessage, len(p.Bytes))
	}
	return nil
}

func (p *LegacyFile) validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: file without id", ErrMalformedMessage)
	}
	return nil
}

// NewMessage wraps payload in an envelope tagged with its type.
func NewMessage(payload Payload) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: payload.messageType(), Data: b}, nil
}

// Encode serialises payload into a frame ready for DataChannel.Send.
func Encode(payload Payload) ([]byte, error) {
	msg, err := NewMessage(payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msg)
}

// Decode parses a frame into *FileInfo, *FileChunk or *LegacyFile.
// Unknown tags and schema violations are reported as ErrMalformedMessage.
func Decode(frame []byte) (Payload, error) {
	var msg Message
	if err := msgpack.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var p Payload
	switch msg.Type {
	case MessageTypeFileInfo:
		p = &FileInfo{}
	case MessageTypeFileChunk:
		p = &FileChunk{}
	case MessageTypeFile:
		p = &LegacyFile{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, msg.Type)
	}

	if err := msg.DecodePayload(p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, msg.Type, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodePayload decodes the envelope body into v.
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Data, v)
}
