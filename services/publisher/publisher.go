// Package publisher forwards scanned posts to downstream consumers
package publisher

import "context"

// Publisher delivers encoded post records
type Publisher interface {
	// Publish sends message under field key to one of the post streams
	Publish(ctx context.Context, key string, message []byte) error

	// TrimStreams caps every post stream at the configured length
	TrimStreams(ctx context.Context) error

	// Close releases the connection
	Close() error
}
