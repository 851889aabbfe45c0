package transfer

// Channel is the send side of a peer's file channel.
type Channel interface {
	Send(data []byte) error
	IsOpen() bool
}

// Target pairs a remote participant with its file channel.
type Target struct {
	PeerID  string
	Channel Channel
}

// ChannelSource lists one Target per live peer link, open or not.
type ChannelSource interface {
	FileChannels() []Target
}

func openTargets(targets []Target) []Target {
	open := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.Channel != nil && t.Channel.IsOpen() {
			open = append(open, t)
		}
	}
	return open
}
