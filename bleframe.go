package bleframe

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/bleframe/frame"
	"github.com/opd-ai/bleframe/limits"
	"github.com/opd-ai/bleframe/link"
	"github.com/opd-ai/bleframe/storage"
)

// Options contains configuration options for creating a Receiver.
type Options struct {
	// StartSentinel and EndSentinel frame each transmission. Defaults are
	// STX (0x02) and ETX (0x03).
	StartSentinel byte
	EndSentinel   byte
	// MaxBufferSize caps accumulated payload per transfer. Zero selects
	// limits.MaxTransferSize; frame.UnlimitedBuffer disables the cap.
	MaxBufferSize uint64
	// NamePrefix is prepended to generated file names.
	NamePrefix string
	// StallTimeout aborts a transfer with no chunk for this duration when
	// CheckStall is pumped. Zero disables stall detection.
	StallTimeout time.Duration
	// Storage receives completed payloads. When nil, completions are only
	// delivered to the OnFileComplete callback.
	Storage storage.Provider
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		StartSentinel: frame.DefaultStartSentinel,
		EndSentinel:   frame.DefaultEndSentinel,
		MaxBufferSize: limits.MaxTransferSize,
		NamePrefix:    frame.DefaultNamePrefix,
	}
}

// Receiver wires a chunk link into the frame reassembler and hands completed
// files to a storage provider. One Receiver serves one connection; create a
// new one per connection.
type Receiver struct {
	link        link.Link
	reassembler *frame.Reassembler
	storage     storage.Provider

	mu      sync.Mutex
	running bool

	completeCallback func(frame.FileComplete)
	savedCallback    func(path string, fc frame.FileComplete)
	abortCallback    func(frame.TransferAborted)
	errorCallback    func(frame.TransferError)
	progressCallback func(uint64)
}

// New creates a Receiver subscribed to lnk. A nil options uses NewOptions
// defaults. The subscription starts immediately; register callbacks before
// the peer begins transmitting.
func New(lnk link.Link, options *Options) (*Receiver, error) {
	if options == nil {
		options = NewOptions()
	}

	logrus.WithFields(logrus.Fields{
		"function":        "New",
		"max_buffer_size": options.MaxBufferSize,
		"stall_timeout":   options.StallTimeout,
		"storage":         options.Storage != nil,
	}).Info("Creating receiver")

	reassembler, err := frame.NewReassembler(frame.Config{
		StartSentinel: options.StartSentinel,
		EndSentinel:   options.EndSentinel,
		MaxBufferSize: options.MaxBufferSize,
		NamePrefix:    options.NamePrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reassembler: %w", err)
	}
	reassembler.SetStallTimeout(options.StallTimeout)

	r := &Receiver{
		link:        lnk,
		reassembler: reassembler,
		storage:     options.Storage,
		running:     true,
	}

	reassembler.OnFileComplete(r.handleComplete)
	reassembler.OnTransferAborted(r.handleAbort)
	reassembler.OnTransferError(r.handleError)
	reassembler.OnProgress(r.handleProgress)

	if err := lnk.Subscribe(r.handleChunk, r.handleLinkClosed); err != nil {
		return nil, fmt.Errorf("failed to subscribe to link: %w", err)
	}

	return r, nil
}

// handleChunk feeds the reassembler while the receiver is alive.
func (r *Receiver) handleChunk(chunk []byte) {
	if !r.IsRunning() {
		return
	}
	r.reassembler.ProcessChunk(chunk)
}

// handleLinkClosed reports a dropped connection to the reassembler.
func (r *Receiver) handleLinkClosed(err error) {
	if !r.IsRunning() {
		return
	}

	detail := "link closed"
	if err != nil {
		detail = err.Error()
	}
	r.reassembler.LinkTerminated(detail)
}

// handleComplete hands the payload to storage and re-emits the completion.
func (r *Receiver) handleComplete(fc frame.FileComplete) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	completeCallback := r.completeCallback
	savedCallback := r.savedCallback
	errorCallback := r.errorCallback
	provider := r.storage
	r.mu.Unlock()

	if completeCallback != nil {
		completeCallback(fc)
	}

	if provider == nil {
		return
	}

	path, err := provider.Save(fc.SuggestedName, fc.Data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "handleComplete",
			"session_id": fc.SessionID,
			"name":       fc.SuggestedName,
			"error":      err.Error(),
		}).Error("Storage hand-off failed, session data lost")

		if errorCallback != nil {
			errorCallback(frame.TransferError{
				Kind:   frame.ErrorStorageFailure,
				Detail: err.Error(),
			})
		}
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":   "handleComplete",
		"session_id": fc.SessionID,
		"path":       path,
		"size":       fc.Size,
	}).Info("Received file handed off to storage")

	if savedCallback != nil {
		savedCallback(path, fc)
	}
}

func (r *Receiver) handleAbort(ta frame.TransferAborted) {
	r.mu.Lock()
	callback := r.abortCallback
	running := r.running
	r.mu.Unlock()

	if running && callback != nil {
		callback(ta)
	}
}

func (r *Receiver) handleError(te frame.TransferError) {
	r.mu.Lock()
	callback := r.errorCallback
	running := r.running
	r.mu.Unlock()

	if running && callback != nil {
		callback(te)
	}
}

func (r *Receiver) handleProgress(received uint64) {
	r.mu.Lock()
	callback := r.progressCallback
	running := r.running
	r.mu.Unlock()

	if running && callback != nil {
		callback(received)
	}
}

// OnFileComplete sets the callback invoked once per completed transfer,
// before any storage hand-off.
func (r *Receiver) OnFileComplete(callback func(frame.FileComplete)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completeCallback = callback
}

// OnFileSaved sets the callback invoked after a completed transfer was
// persisted by the storage provider.
func (r *Receiver) OnFileSaved(callback func(path string, fc frame.FileComplete)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savedCallback = callback
}

// OnTransferAborted sets the callback invoked when an in-flight transfer is
// discarded.
func (r *Receiver) OnTransferAborted(callback func(frame.TransferAborted)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abortCallback = callback
}

// OnTransferError sets the callback invoked when a transfer fails.
func (r *Receiver) OnTransferError(callback func(frame.TransferError)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCallback = callback
}

// OnProgress sets the callback invoked with the accumulated byte count as a
// transfer receives chunks.
func (r *Receiver) OnProgress(callback func(uint64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progressCallback = callback
}

// CheckStall pumps the stall watchdog. Call it periodically from a
// supervising loop when Options.StallTimeout is set; it returns true if a
// stalled transfer was aborted.
func (r *Receiver) CheckStall() bool {
	if !r.IsRunning() {
		return false
	}
	return r.reassembler.CheckStall()
}

// SetTimeProvider sets a custom clock for deterministic stall testing.
func (r *Receiver) SetTimeProvider(tp frame.TimeProvider) {
	r.reassembler.SetTimeProvider(tp)
}

// State returns the current framing state.
func (r *Receiver) State() frame.State {
	return r.reassembler.State()
}

// Progress returns the byte count accumulated by the in-flight transfer.
func (r *Receiver) Progress() uint64 {
	return r.reassembler.Received()
}

// IsRunning reports whether the receiver has not been killed.
func (r *Receiver) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Kill tears the receiver down: the link is disconnected and any mid-flight
// transfer is discarded without emitting events. Idempotent.
func (r *Receiver) Kill() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Kill",
	}).Info("Tearing down receiver")

	if err := r.link.Disconnect(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Kill",
			"error":    err.Error(),
		}).Warn("Failed to disconnect link during teardown")
	}

	r.reassembler.Abort(frame.AbortTeardown)
}
