package registry

import (
	"log/slog"
	"time"
)

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithShards sets how many independently locked partitions the user map is split into.
func WithShards(n int) Option {
	return func(h *Hub) {
		h.config.shards = n
	}
}

// WithMailboxSize sets the [BACKPRESSURE] threshold.
// It defines the buffer capacity for each individual user's actor mailbox.
func WithMailboxSize(size int) Option {
	return func(h *Hub) {
		h.config.mailboxSize = size
	}
}

// WithSendTimeout bounds how long a cell waits on one saturated session.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.sendTimeout = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		h.config.logger = l
	}
}
