package transfer

import (
	"time"

	"github.com/BioHazard786/warpmesh/internal/webrtc"
)

const (
	// ChunkSize is the fixed slice length of a chunked transfer.
	ChunkSize = webrtc.MaxChunkSize

	// DefaultChunkInterval paces chunks so the channel buffer cannot grow unbounded.
	DefaultChunkInterval = 10 * time.Millisecond
)

// TotalChunks returns ceil(size/ChunkSize).
func TotalChunks(size int) int {
	return (size + ChunkSize - 1) / ChunkSize
}

// chunkBounds returns the byte range of chunk index within a payload of size bytes.
func chunkBounds(index, size int) (start, end int) {
	start = index * ChunkSize
	end = min(start+ChunkSize, size)
	return start, end
}
