// Package realtime keeps one live subscription per (feed, tenant) pair and
// turns channel failures into backoff-driven reconnects. The channel
// lifecycle is modeled independently of the transport so the retry logic is
// testable without a network.
package realtime

import (
	"context"
	"encoding/json"
)

// ChannelStatus values a transport reports. The wire spelling matches the
// upstream feed protocol.
type ChannelStatus string

const (
	StatusSubscribed   ChannelStatus = "SUBSCRIBED"
	StatusChannelError ChannelStatus = "CHANNEL_ERROR"
	StatusTimedOut     ChannelStatus = "TIMED_OUT"
	StatusClosed       ChannelStatus = "CLOSED"
)

// failed reports whether the status ends the channel's useful life.
func (s ChannelStatus) failed() bool {
	return s == StatusChannelError || s == StatusTimedOut || s == StatusClosed
}

// Event is a change notification: the new and/or old row images.
type Event struct {
	New json.RawMessage `json:"new,omitempty"`
	Old json.RawMessage `json:"old,omitempty"`
}

type StatusHandler func(status ChannelStatus, cause error)

type EventHandler func(evt Event)

// Channel is one live subscription.
type Channel interface {
	Unsubscribe(ctx context.Context) error
}

// ChannelFactory opens a subscription for a feed key. Implementations emit
// StatusSubscribed once live, then failure statuses as they happen; events
// flow through onEvent in delivery order.
type ChannelFactory interface {
	Open(ctx context.Context, key string, onStatus StatusHandler, onEvent EventHandler) (Channel, error)
}
