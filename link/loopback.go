package link

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/bleframe/limits"
)

// Loopback is an in-memory Link for tests and examples. Chunks pushed with
// Deliver are handed to the subscriber synchronously, preserving order.
type Loopback struct {
	mu           sync.Mutex
	onChunk      ChunkHandler
	onClosed     ClosedHandler
	disconnected bool
}

// NewLoopback creates an unsubscribed in-memory link.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Subscribe registers the handlers. Only one subscription is accepted.
func (l *Loopback) Subscribe(onChunk ChunkHandler, onClosed ClosedHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disconnected {
		return ErrLinkClosed
	}
	if l.onChunk != nil {
		return ErrAlreadySubscribed
	}
	l.onChunk = onChunk
	l.onClosed = onClosed
	return nil
}

// Deliver pushes one chunk to the subscriber. Chunks delivered before a
// subscription exists, or after disconnect, are dropped. Oversized chunks
// close the link with a validation error, mirroring a misbehaving peer.
func (l *Loopback) Deliver(chunk []byte) {
	l.mu.Lock()
	if l.disconnected || l.onChunk == nil {
		l.mu.Unlock()
		return
	}
	onChunk := l.onChunk
	l.mu.Unlock()

	if len(chunk) > limits.MaxChunkSize {
		l.CloseWithError(limits.ValidateChunkSize(chunk))
		return
	}

	onChunk(chunk)
}

// CloseWithError terminates the stream as if the connection dropped,
// invoking the closed handler with err. No-op after Disconnect.
func (l *Loopback) CloseWithError(err error) {
	l.mu.Lock()
	if l.disconnected {
		l.mu.Unlock()
		return
	}
	l.disconnected = true
	onClosed := l.onClosed
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "CloseWithError",
		"error":    errString(err),
	}).Debug("Loopback link closed")

	if onClosed != nil {
		onClosed(err)
	}
}

// Disconnect terminates the stream deliberately. Idempotent; the closed
// handler is not invoked.
func (l *Loopback) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnected = true
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
