package webrtc

import pion "github.com/pion/webrtc/v4"

// FileChannelLabel names the per-link data channel used for file transfer.
const FileChannelLabel = "fileTransfer"

const (
	// MaxChunkSize is the largest chunk body a peer may send.
	MaxChunkSize = 16 * 1024

	// MaxTotalChunks bounds the slots a single announcement can reserve (16 GiB).
	MaxTotalChunks = 1 << 20
)

// FileChannelInit returns the parameters of the file transfer channel:
// ordered, with no retransmit or lifetime limit so delivery is reliable.
func FileChannelInit() *pion.DataChannelInit {
	ordered := true
	return &pion.DataChannelInit{Ordered: &ordered}
}
