package frame

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/opd-ai/bleframe/limits"
)

// ErrSentinelsEqual indicates the start and end sentinel bytes are identical,
// which makes transfer boundaries undetectable.
var ErrSentinelsEqual = errors.New("start and end sentinel bytes must differ")

const (
	// DefaultStartSentinel marks the first byte of a transfer (STX).
	DefaultStartSentinel byte = 0x02
	// DefaultEndSentinel marks the last byte of a transfer (ETX).
	DefaultEndSentinel byte = 0x03

	// DefaultNamePrefix is used when generating suggested file names.
	DefaultNamePrefix = "received"

	// suggestedNameLayout is the timestamp layout for generated file names.
	suggestedNameLayout = "20060102_150405"
)

// State represents the reassembler's position in the framing protocol.
type State uint8

const (
	// StateIdle indicates no transfer is in flight; the reassembler is
	// waiting for a chunk whose first byte is the start sentinel.
	StateIdle State = iota
	// StateReceiving indicates a start sentinel was observed and payload is
	// accumulating until a chunk ends with the end sentinel.
	StateReceiving
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// Config controls sentinel values and buffering behavior for a Reassembler.
// The zero value selects the defaults (STX/ETX sentinels, limits.MaxTransferSize
// cap, "received" name prefix).
type Config struct {
	// StartSentinel is the byte value that, as the first byte of a chunk,
	// begins a transfer.
	StartSentinel byte
	// EndSentinel is the byte value that, as the last byte of a chunk,
	// terminates a transfer.
	EndSentinel byte
	// MaxBufferSize caps accumulated payload per session. Zero selects
	// limits.MaxTransferSize. Set UnlimitedBuffer for parity with senders
	// that never bound their transmissions.
	MaxBufferSize uint64
	// NamePrefix is prepended to generated suggested file names.
	NamePrefix string
}

// UnlimitedBuffer disables the accumulation cap when set as MaxBufferSize.
const UnlimitedBuffer uint64 = 1<<64 - 1

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// Reassembler turns an ordered stream of opaque byte chunks into complete
// files by watching for sentinel bytes at chunk boundaries. It owns at most
// one transfer session at a time; a new start sentinel while a session is in
// flight supersedes it.
//
// Chunks must be processed one at a time in arrival order. The internal
// mutex makes concurrent misuse safe but never reorders work.
type Reassembler struct {
	cfg Config

	mu            sync.Mutex
	state         State
	buffer        []byte
	received      uint64
	sessionID     uuid.UUID
	lastChunkTime time.Time
	stallTimeout  time.Duration
	timeProvider  TimeProvider

	completeCallback func(FileComplete)
	abortCallback    func(TransferAborted)
	errorCallback    func(TransferError)
	progressCallback func(uint64)
}

// NewReassembler creates a Reassembler with the given configuration. Zero
// fields in cfg are replaced by defaults. The start and end sentinels must
// differ after defaulting.
func NewReassembler(cfg Config) (*Reassembler, error) {
	if cfg.StartSentinel == 0 && cfg.EndSentinel == 0 {
		cfg.StartSentinel = DefaultStartSentinel
		cfg.EndSentinel = DefaultEndSentinel
	}
	if cfg.StartSentinel == cfg.EndSentinel {
		return nil, ErrSentinelsEqual
	}
	if cfg.MaxBufferSize == 0 {
		cfg.MaxBufferSize = limits.MaxTransferSize
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = DefaultNamePrefix
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewReassembler",
		"start_sentinel":  fmt.Sprintf("0x%02x", cfg.StartSentinel),
		"end_sentinel":    fmt.Sprintf("0x%02x", cfg.EndSentinel),
		"max_buffer_size": cfg.MaxBufferSize,
	}).Info("Creating frame reassembler")

	return &Reassembler{
		cfg:          cfg,
		state:        StateIdle,
		timeProvider: DefaultTimeProvider{},
	}, nil
}

// ProcessChunk consumes one chunk from the link, in arrival order. It runs
// the framing state machine to completion before returning: any resulting
// FileComplete, TransferAborted, or TransferError is delivered to the
// registered callbacks synchronously.
//
// End detection only inspects the last byte of this chunk. A byte equal to
// the end sentinel in the middle of a chunk, or at the end of a chunk that
// is not the real terminator, is indistinguishable from a terminator; the
// sender must account for this framing.
func (r *Reassembler) ProcessChunk(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Empty chunks can neither start nor end a transfer.
	if len(chunk) == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "ProcessChunk",
			"state":    r.state,
		}).Debug("Ignoring empty chunk")
		return
	}

	if r.state == StateReceiving && chunk[0] == r.cfg.StartSentinel {
		logrus.WithFields(logrus.Fields{
			"function":   "ProcessChunk",
			"session_id": r.sessionID,
			"received":   r.received,
		}).Warn("Start sentinel while receiving, superseding in-flight session")
		r.abortLocked(AbortSuperseded)
	}

	if r.state == StateIdle {
		if chunk[0] != r.cfg.StartSentinel {
			logrus.WithFields(logrus.Fields{
				"function":   "ProcessChunk",
				"chunk_size": len(chunk),
			}).Debug("Discarding chunk outside a transfer")
			return
		}
		r.beginSessionLocked()
	}

	// The sentinel bytes are data-adjacent: the entire chunk, including the
	// start/end sentinels themselves, is part of the payload.
	newSize := r.received + uint64(len(chunk))
	if err := limits.ValidateTransferSize(newSize, r.cfg.MaxBufferSize); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "ProcessChunk",
			"session_id": r.sessionID,
			"received":   r.received,
			"chunk_size": len(chunk),
			"error":      err.Error(),
		}).Error("Accumulated payload would exceed buffer cap, aborting session")
		r.emitErrorLocked(ErrorBufferOverflow, err.Error())
		r.resetLocked()
		return
	}

	r.buffer = append(r.buffer, chunk...)
	r.received = newSize
	r.lastChunkTime = r.timeProvider.Now()

	logrus.WithFields(logrus.Fields{
		"function":   "ProcessChunk",
		"session_id": r.sessionID,
		"chunk_size": len(chunk),
		"received":   r.received,
	}).Debug("Appended chunk to session buffer")

	if r.progressCallback != nil {
		r.progressCallback(r.received)
	}

	if chunk[len(chunk)-1] == r.cfg.EndSentinel {
		r.finalizeLocked()
	}
}

// beginSessionLocked starts a fresh transfer session. Caller holds r.mu.
func (r *Reassembler) beginSessionLocked() {
	r.state = StateReceiving
	r.buffer = nil
	r.received = 0
	r.sessionID = uuid.New()
	r.lastChunkTime = r.timeProvider.Now()

	logrus.WithFields(logrus.Fields{
		"function":   "beginSessionLocked",
		"session_id": r.sessionID,
	}).Info("Transfer session started")
}

// finalizeLocked completes the in-flight session and emits FileComplete.
// Caller holds r.mu.
func (r *Reassembler) finalizeLocked() {
	event := FileComplete{
		SessionID:     r.sessionID,
		Data:          r.buffer,
		SuggestedName: r.suggestName(),
		Digest:        blake2b.Sum256(r.buffer),
		Size:          r.received,
	}

	logrus.WithFields(logrus.Fields{
		"function":       "finalizeLocked",
		"session_id":     r.sessionID,
		"size":           event.Size,
		"suggested_name": event.SuggestedName,
	}).Info("Transfer complete")

	// Buffer ownership moves to the subscriber with the event.
	r.resetLocked()

	if r.completeCallback != nil {
		r.completeCallback(event)
	}
}

// suggestName generates a file name from the current clock.
func (r *Reassembler) suggestName() string {
	return fmt.Sprintf("%s_%s.bin", r.cfg.NamePrefix, r.timeProvider.Now().UTC().Format(suggestedNameLayout))
}

// Abort discards any in-flight session. AbortTeardown discards silently;
// other reasons emit a TransferAborted event. Calling Abort while idle is a
// no-op, so it is safe from teardown paths.
func (r *Reassembler) Abort(reason AbortReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abortLocked(reason)
}

// abortLocked discards the in-flight session, if any. Caller holds r.mu.
func (r *Reassembler) abortLocked(reason AbortReason) {
	if r.state != StateReceiving {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":   "abortLocked",
		"session_id": r.sessionID,
		"reason":     reason,
		"received":   r.received,
	}).Info("Discarding in-flight session")

	event := TransferAborted{SessionID: r.sessionID, Reason: reason}
	r.resetLocked()

	if reason != AbortTeardown && r.abortCallback != nil {
		r.abortCallback(event)
	}
}

// LinkTerminated reports that the chunk stream ended underneath the
// reassembler. An in-flight session is discarded and reported as incomplete;
// a partial buffer is never finalized.
func (r *Reassembler) LinkTerminated(detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateReceiving {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":   "LinkTerminated",
		"session_id": r.sessionID,
		"received":   r.received,
		"detail":     detail,
	}).Warn("Link terminated with transfer in flight")

	r.resetLocked()
	r.emitErrorLocked(ErrorLinkTerminated, detail)
}

// resetLocked returns the reassembler to idle with an empty buffer. Caller
// holds r.mu.
func (r *Reassembler) resetLocked() {
	r.state = StateIdle
	r.buffer = nil
	r.received = 0
}

// emitErrorLocked delivers a TransferError to the registered callback.
// Caller holds r.mu.
func (r *Reassembler) emitErrorLocked(kind ErrorKind, detail string) {
	if r.errorCallback != nil {
		r.errorCallback(TransferError{Kind: kind, Detail: detail})
	}
}

// SetStallTimeout configures the watchdog timeout used by CheckStall.
// A transfer with no chunk for this duration is considered stalled.
// Set to 0 to disable stall detection.
func (r *Reassembler) SetStallTimeout(timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stallTimeout = timeout

	logrus.WithFields(logrus.Fields{
		"function":      "SetStallTimeout",
		"stall_timeout": timeout,
	}).Debug("Stall timeout configured")
}

// CheckStall aborts the in-flight session if no chunk arrived within the
// stall timeout, reporting it as TransferAborted(stalled). It returns true
// if a stall was detected. Call it periodically from a supervising loop;
// the reassembler itself never runs timers.
func (r *Reassembler) CheckStall() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stallTimeout == 0 || r.state != StateReceiving {
		return false
	}

	idle := r.timeProvider.Since(r.lastChunkTime)
	if idle < r.stallTimeout {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"function":      "CheckStall",
		"session_id":    r.sessionID,
		"stall_timeout": r.stallTimeout,
		"idle":          idle,
		"received":      r.received,
	}).Warn("Transfer stalled: no chunk received within timeout")

	r.abortLocked(AbortStalled)
	return true
}

// SetTimeProvider sets a custom time provider for deterministic testing.
// Also resets the last-chunk time to the new provider's current time so
// stall detection stays consistent across the switch.
func (r *Reassembler) SetTimeProvider(tp TimeProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeProvider = tp
	r.lastChunkTime = tp.Now()
}

// State returns the current framing state.
func (r *Reassembler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Received returns the byte count accumulated by the in-flight session.
func (r *Reassembler) Received() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received
}

// SessionID returns the identifier of the in-flight session, or uuid.Nil
// when idle.
func (r *Reassembler) SessionID() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReceiving {
		return uuid.Nil
	}
	return r.sessionID
}

// OnFileComplete sets the callback invoked once per successful session.
func (r *Reassembler) OnFileComplete(callback func(FileComplete)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completeCallback = callback
}

// OnTransferAborted sets the callback invoked when a session is discarded.
func (r *Reassembler) OnTransferAborted(callback func(TransferAborted)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abortCallback = callback
}

// OnTransferError sets the callback invoked when a session fails.
func (r *Reassembler) OnTransferError(callback func(TransferError)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCallback = callback
}

// OnProgress sets the callback invoked with the accumulated byte count after
// each appended chunk.
func (r *Reassembler) OnProgress(callback func(uint64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progressCallback = callback
}
