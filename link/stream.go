package link

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/bleframe/limits"
)

// StreamLink adapts a byte stream (a net.Conn, a serial port, a pipe) into a
// chunk link by slicing reads into at most MTU-sized chunks. Chunk
// boundaries fall wherever the stream's reads happen to land, unrelated to
// any framing in the data, which is exactly the behavior of a notification
// channel.
type StreamLink struct {
	reader io.ReadCloser
	mtu    int

	mu           sync.Mutex
	subscribed   bool
	disconnected bool
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewStreamLink wraps reader as a Link. mtu bounds the chunk size; zero
// selects limits.DefaultMTU.
func NewStreamLink(reader io.ReadCloser, mtu int) *StreamLink {
	if mtu <= 0 {
		mtu = limits.DefaultMTU
	}
	if mtu > limits.MaxChunkSize {
		mtu = limits.MaxChunkSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &StreamLink{
		reader: reader,
		mtu:    mtu,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe starts the read loop. Only one subscription is accepted.
func (s *StreamLink) Subscribe(onChunk ChunkHandler, onClosed ClosedHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disconnected {
		return ErrLinkClosed
	}
	if s.subscribed {
		return ErrAlreadySubscribed
	}
	s.subscribed = true

	logrus.WithFields(logrus.Fields{
		"function": "Subscribe",
		"mtu":      s.mtu,
	}).Debug("Starting stream link read loop")

	go s.readLoop(onChunk, onClosed)
	return nil
}

// readLoop pulls the stream until it ends or the link is disconnected.
func (s *StreamLink) readLoop(onChunk ChunkHandler, onClosed ClosedHandler) {
	buf := make([]byte, s.mtu)
	for {
		n, err := s.reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err == nil {
			continue
		}

		select {
		case <-s.ctx.Done():
			// Deliberate local disconnect: stream ends silently.
			return
		default:
		}

		logrus.WithFields(logrus.Fields{
			"function": "readLoop",
			"error":    err.Error(),
		}).Info("Stream link terminated")

		if onClosed != nil {
			onClosed(err)
		}
		return
	}
}

// Disconnect closes the underlying stream and stops delivery. Idempotent.
func (s *StreamLink) Disconnect() error {
	s.mu.Lock()
	if s.disconnected {
		s.mu.Unlock()
		return nil
	}
	s.disconnected = true
	s.mu.Unlock()

	s.cancel()
	return s.reader.Close()
}
