// Package limits provides centralized size limits for the bleframe link protocol.
// This ensures consistent validation across different components of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// DefaultMTU is the assumed notification payload size for BLE 4.2 links
	// with the data length extension (247 bytes minus the 3-byte ATT header)
	DefaultMTU = 244

	// MaxChunkSize is the largest single notification payload accepted from
	// a link before the connection is considered misbehaving (64KB limit)
	MaxChunkSize = 65536

	// MaxTransferSize is the default cap on accumulated payload per transfer
	// This prevents memory exhaustion from a malformed or adversarial stream
	// that opens a transfer and never terminates it (16MB limit)
	MaxTransferSize = 16 * 1024 * 1024
)

var (
	// ErrChunkEmpty indicates an empty chunk was provided to a validator
	ErrChunkEmpty = errors.New("empty chunk")

	// ErrChunkTooLarge indicates a chunk exceeds the maximum allowed size
	ErrChunkTooLarge = errors.New("chunk too large")

	// ErrTransferTooLarge indicates accumulated payload exceeds the transfer cap
	ErrTransferTooLarge = errors.New("transfer too large")
)

// ValidateChunkSize validates a single link chunk against MaxChunkSize.
// Returns an error with context including the actual and maximum sizes.
func ValidateChunkSize(chunk []byte) error {
	if len(chunk) == 0 {
		return ErrChunkEmpty
	}
	if len(chunk) > MaxChunkSize {
		return fmt.Errorf("%w: chunk size %d exceeds limit %d", ErrChunkTooLarge, len(chunk), MaxChunkSize)
	}
	return nil
}

// ValidateTransferSize validates an accumulated payload size against the
// configured cap. A cap of zero disables the check entirely, which callers
// may use for strict behavioral parity with senders that never bound their
// transmissions.
func ValidateTransferSize(accumulated, max uint64) error {
	if max == 0 {
		return nil
	}
	if accumulated > max {
		return fmt.Errorf("%w: accumulated size %d exceeds limit %d", ErrTransferTooLarge, accumulated, max)
	}
	return nil
}
