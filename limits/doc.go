// Package limits provides centralized size constants and validation functions
// for data arriving off a notification link. The package ensures consistent
// size enforcement across the link boundary and the frame reassembler.
//
// # Size Hierarchy
//
//   - DefaultMTU (244 bytes): the usable notification payload on a BLE 4.2
//     link with the data length extension. Stream-based link adapters slice
//     their input into chunks of at most this size to mimic real links.
//
//   - MaxChunkSize (64KB): the largest single chunk accepted from a link.
//     A peer delivering larger chunks is misbehaving and the connection is
//     closed rather than buffered.
//
//   - MaxTransferSize (16MB): the default cap on payload accumulated across
//     one transfer. This bounds memory held for a sender that opens a
//     transfer and never terminates it.
//
// # Validation Functions
//
// Each validation function returns a wrapped sentinel error with context:
//
//	err := limits.ValidateChunkSize(chunk)
//	if errors.Is(err, limits.ErrChunkTooLarge) {
//	    // close the link
//	}
//
// ValidateTransferSize takes the cap as a parameter so callers can configure
// it per connection; a cap of zero disables the check.
//
// # Security Considerations
//
// The transfer cap is the primary defense against memory exhaustion from a
// malformed or adversarial stream. All link-received data should pass
// ValidateChunkSize before reaching the reassembler.
package limits
