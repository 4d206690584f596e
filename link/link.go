package link

import "errors"

var (
	// ErrAlreadySubscribed indicates a second subscription was attempted on
	// a link that only supports one subscriber.
	ErrAlreadySubscribed = errors.New("link already has a subscriber")

	// ErrLinkClosed indicates an operation on a disconnected link.
	ErrLinkClosed = errors.New("link is closed")
)

// ChunkHandler is invoked for each chunk arriving off the link, in arrival
// order. The link never invokes it concurrently with itself.
type ChunkHandler func(chunk []byte)

// ClosedHandler is invoked at most once when the chunk stream ends for any
// reason other than a deliberate local Disconnect. err carries the cause.
type ClosedHandler func(err error)

// Link is a subscribable source of raw byte chunks from a peer device. The
// stream is lazy, unbounded, and non-restartable: delivery order is
// preserved and chunks are neither dropped nor duplicated within one
// connection. There is no backpressure; the underlying notification
// mechanism cannot be paused.
type Link interface {
	// Subscribe registers the chunk and closure handlers and starts
	// delivery. A link supports a single subscription.
	Subscribe(onChunk ChunkHandler, onClosed ClosedHandler) error

	// Disconnect terminates the stream. It is idempotent and safe to call
	// from teardown paths; the closed handler is not invoked for a
	// deliberate local disconnect.
	Disconnect() error
}
