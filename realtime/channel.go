// Package realtime tracks live client channels and speaks the JSON message
// protocol used over them.
package realtime

import "errors"

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrBufferFull    = errors.New("channel send buffer full")
)

// Channel is a live, bidirectional connection to one client.
type Channel interface {
	// ID is unique per connection, so a reconnect gets a new one.
	ID() string
	// Send queues payload for delivery. It never blocks.
	Send(payload any) error
	IsOpen() bool
}
