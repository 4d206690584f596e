package frame

import "github.com/google/uuid"

// ErrorKind classifies a transfer error reported by the reassembler or the
// surrounding receiver.
type ErrorKind uint8

const (
	// ErrorBufferOverflow indicates the accumulated payload exceeded the
	// configured cap and the session was discarded.
	ErrorBufferOverflow ErrorKind = iota
	// ErrorStorageFailure indicates the completed payload could not be
	// handed off to the storage provider.
	ErrorStorageFailure
	// ErrorLinkTerminated indicates the chunk stream ended or the connection
	// dropped while a transfer was in flight.
	ErrorLinkTerminated
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorBufferOverflow:
		return "buffer_overflow"
	case ErrorStorageFailure:
		return "storage_failure"
	case ErrorLinkTerminated:
		return "link_terminated"
	default:
		return "unknown"
	}
}

// AbortReason classifies why an in-flight session was discarded without
// completing.
type AbortReason uint8

const (
	// AbortSuperseded indicates a new start sentinel arrived while a session
	// was still receiving; the old session is dropped in favor of the new one.
	AbortSuperseded AbortReason = iota
	// AbortStalled indicates the stall watchdog fired because no chunk
	// arrived within the configured timeout.
	AbortStalled
	// AbortTeardown indicates a deliberate local teardown. Teardown discards
	// silently: no event is ever emitted for this reason.
	AbortTeardown
)

// String returns a human-readable name for the abort reason.
func (r AbortReason) String() string {
	switch r {
	case AbortSuperseded:
		return "superseded"
	case AbortStalled:
		return "stalled"
	case AbortTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// FileComplete is emitted exactly once per successful session. Data is the
// full accumulated payload, sentinel bytes included; ownership transfers to
// the subscriber and the reassembler keeps no reference.
type FileComplete struct {
	SessionID     uuid.UUID
	Data          []byte
	SuggestedName string
	Digest        [32]byte // BLAKE2b-256 of Data
	Size          uint64
}

// TransferAborted is emitted when an in-flight session is discarded before
// its end sentinel arrived.
type TransferAborted struct {
	SessionID uuid.UUID
	Reason    AbortReason
}

// TransferError is emitted when a session fails. All errors are recoverable:
// the reassembler returns to idle and keeps listening for a new transfer.
type TransferError struct {
	Kind   ErrorKind
	Detail string
}
