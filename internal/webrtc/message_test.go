package webrtc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestEncodeDecodeFileChunk(t *testing.T) {
	frame, err := Encode(&FileChunk{FileID: "abc", ChunkIndex: 1, TotalChunks: 2, Bytes: []byte("hello")})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	p, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	chunk, ok := p.(*FileChunk)
	if !ok {
		t.Fatalf("Decode returned %T, want *FileChunk", p)
	}
	if chunk.FileID != "abc" || chunk.ChunkIndex != 1 || !bytes.Equal(chunk.Bytes, []byte("hello")) {
		t.Errorf("chunk = %+v", chunk)
	}
}

func TestEnvelopeUsesTypeAndDataKeys(t *testing.T) {
	frame, err := Encode(&FileInfo{ID: "x", Name: "a.txt", TotalChunks: 1, Size: 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var raw map[string]any
	if err := msgpack.Unmarshal(frame, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if raw["type"] != MessageTypeFileInfo {
		t.Errorf("type = %v, want %q", raw["type"], MessageTypeFileInfo)
	}
	data, ok := raw["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want map", raw["data"])
	}
	if data["name"] != "a.txt" {
		t.Errorf("data.name = %v", data["name"])
	}
}

func TestDecodeRejects(t *testing.T) {
	unknown, _ := msgpack.Marshal(Message{Type: "ping"})

	tests := []struct {
		name    string
		payload Payload
		frame   []byte
	}{
		{name: "garbage", frame: []byte{0xc1, 0x00}},
		{name: "unknown type", frame: unknown},
		{name: "info without id", payload: &FileInfo{TotalChunks: 1}},
		{name: "info zero chunks", payload: &FileInfo{ID: "a", TotalChunks: 0}},
		{name: "info negative size", payload: &FileInfo{ID: "a", TotalChunks: 1, Size: -1}},
		{name: "chunk index out of range", payload: &FileChunk{FileID: "a", ChunkIndex: 2, TotalChunks: 2}},
		{name: "chunk negative index", payload: &FileChunk{FileID: "a", ChunkIndex: -1, TotalChunks: 2}},
		{name: "chunk oversize", payload: &FileChunk{FileID: "a", TotalChunks: 1, Bytes: make([]byte, MaxChunkSize+1)}},
		{name: "legacy without id", payload: &LegacyFile{Data: []byte("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := tt.frame
			if tt.payload != nil {
				var err error
				frame, err = Encode(tt.payload)
				if err != nil {
					t.Fatalf("Encode: %v", err)
				}
			}
			if _, err := Decode(frame); !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("Decode error = %v, want ErrMalformedMessage", err)
			}
		})
	}
}

func TestFileChannelInitIsReliable(t *testing.T) {
	opts := FileChannelInit()
	if opts.Ordered == nil || !*opts.Ordered {
		t.Error("channel is not ordered")
	}
	if opts.MaxRetransmits != nil || opts.MaxPacketLifeTime != nil {
		t.Error("channel has a partial reliability limit")
	}
}
