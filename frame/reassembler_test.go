package frame

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func newTestReassembler(t *testing.T, cfg Config) (*Reassembler, *eventCollector) {
	t.Helper()
	r, err := NewReassembler(cfg)
	require.NoError(t, err)
	return r, newEventCollector(r)
}

// TestSingleChunkTransfer verifies that one chunk carrying both sentinels
// yields exactly one completion with the chunk's full contents.
func TestSingleChunkTransfer(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	chunk := []byte{0x02, 0x41, 0x42, 0x03}
	r.ProcessChunk(chunk)

	require.Len(t, events.completes, 1)
	assert.Equal(t, []byte{0x02, 0x41, 0x42, 0x03}, events.completes[0].Data)
	assert.Equal(t, uint64(4), events.completes[0].Size)
	assert.Empty(t, events.aborts)
	assert.Empty(t, events.errors)
	assert.Equal(t, StateIdle, r.State())
}

// TestMultiChunkTransfer verifies payload accumulation across chunks with no
// intermediate completion events.
func TestMultiChunkTransfer(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	r.ProcessChunk([]byte{0x02, 0x41})
	assert.Empty(t, events.completes, "no completion before the end sentinel")
	assert.Equal(t, StateReceiving, r.State())

	r.ProcessChunk([]byte{0x42, 0x43})
	assert.Empty(t, events.completes)

	r.ProcessChunk([]byte{0x44, 0x03})
	require.Len(t, events.completes, 1)
	assert.Equal(t, []byte{0x02, 0x41, 0x42, 0x43, 0x44, 0x03}, events.completes[0].Data)
	assert.Equal(t, StateIdle, r.State())
}

// TestInterruptedTransferRestart verifies a start sentinel mid-transfer
// discards the prior buffer with exactly one abort before the new session
// begins accumulating.
func TestInterruptedTransferRestart(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	r.ProcessChunk([]byte{0x02, 0x10, 0x11})
	firstSession := r.SessionID()
	require.NotEqual(t, uuid.Nil, firstSession)

	r.ProcessChunk([]byte{0x02, 0x20})
	require.Len(t, events.aborts, 1)
	assert.Equal(t, AbortSuperseded, events.aborts[0].Reason)
	assert.Equal(t, firstSession, events.aborts[0].SessionID)
	assert.NotEqual(t, firstSession, r.SessionID())
	assert.Empty(t, events.completes)

	r.ProcessChunk([]byte{0x21, 0x03})
	require.Len(t, events.completes, 1)
	assert.Equal(t, []byte{0x02, 0x20, 0x21, 0x03}, events.completes[0].Data,
		"new session must contain only bytes after the restart")
	assert.Len(t, events.aborts, 1, "exactly one abort for the superseded session")
}

// TestOverflowBound verifies the accumulation cap: exactly one overflow error,
// no completion for the overflowed session, and the reassembler recovers.
func TestOverflowBound(t *testing.T) {
	r, events := newTestReassembler(t, Config{MaxBufferSize: 8})

	r.ProcessChunk([]byte{0x02, 1, 2, 3, 4, 5})
	assert.Equal(t, StateReceiving, r.State())

	r.ProcessChunk([]byte{6, 7, 8, 9})
	require.Len(t, events.errors, 1)
	assert.Equal(t, ErrorBufferOverflow, events.errors[0].Kind)
	assert.Empty(t, events.completes, "no partial completion for an overflowed session")
	assert.Equal(t, StateIdle, r.State())
	assert.Equal(t, uint64(0), r.Received())

	// The component stays usable after the error.
	r.ProcessChunk([]byte{0x02, 0x03})
	require.Len(t, events.completes, 1)
	assert.Len(t, events.errors, 1)
}

// TestOverflowExactCapCompletes verifies a transfer landing exactly on the cap
// is not treated as overflow.
func TestOverflowExactCapCompletes(t *testing.T) {
	r, events := newTestReassembler(t, Config{MaxBufferSize: 4})

	r.ProcessChunk([]byte{0x02, 0x41, 0x42, 0x03})

	require.Len(t, events.completes, 1)
	assert.Empty(t, events.errors)
}

// TestUnlimitedBuffer verifies the parity escape hatch that disables the cap.
func TestUnlimitedBuffer(t *testing.T) {
	r, events := newTestReassembler(t, Config{MaxBufferSize: UnlimitedBuffer})

	r.ProcessChunk([]byte{0x02})
	for i := 0; i < 64; i++ {
		r.ProcessChunk(bytes.Repeat([]byte{0x55}, 1024))
	}
	r.ProcessChunk([]byte{0x03})

	require.Len(t, events.completes, 1)
	assert.Equal(t, uint64(64*1024+2), events.completes[0].Size)
	assert.Empty(t, events.errors)
}

// TestEmptyChunkNoOp verifies an empty chunk produces no event and no state
// transition in either state.
func TestEmptyChunkNoOp(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	r.ProcessChunk(nil)
	r.ProcessChunk([]byte{})
	assert.Equal(t, StateIdle, r.State())

	r.ProcessChunk([]byte{0x02, 0x41})
	r.ProcessChunk([]byte{})
	assert.Equal(t, StateReceiving, r.State())
	assert.Equal(t, uint64(2), r.Received())

	assert.Empty(t, events.completes)
	assert.Empty(t, events.aborts)
	assert.Empty(t, events.errors)
}

// TestIdleDiscardsStrayChunks verifies bytes arriving outside a transfer are
// dropped without starting a session, even if they end with the end sentinel.
func TestIdleDiscardsStrayChunks(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	r.ProcessChunk([]byte{0x41, 0x42, 0x03})
	assert.Equal(t, StateIdle, r.State())
	assert.Empty(t, events.completes)
	assert.Empty(t, events.aborts)
	assert.Empty(t, events.errors)
}

// TestIdempotentReset verifies that replaying an identical chunk sequence
// after returning to idle produces the same outcome with no state leaking
// between sessions.
func TestIdempotentReset(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	sequence := [][]byte{
		{0x02, 0x41},
		{0x42},
		{0x43, 0x03},
	}

	run := func() FileComplete {
		for _, chunk := range sequence {
			r.ProcessChunk(chunk)
		}
		require.Len(t, events.completes, 1)
		fc := events.completes[0]
		events.reset()
		return fc
	}

	first := run()
	second := run()

	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, first.Size, second.Size)
	assert.Equal(t, first.Digest, second.Digest)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

// TestSentinelConfigValidation covers custom sentinel values and the
// equal-sentinel rejection.
func TestSentinelConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "defaults", cfg: Config{}, wantErr: nil},
		{name: "custom_sentinels", cfg: Config{StartSentinel: 0x7e, EndSentinel: 0x7f}, wantErr: nil},
		{name: "equal_sentinels", cfg: Config{StartSentinel: 0x42, EndSentinel: 0x42}, wantErr: ErrSentinelsEqual},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReassembler(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, r)
		})
	}
}

// TestCustomSentinelFraming verifies framing honors configured sentinel bytes.
func TestCustomSentinelFraming(t *testing.T) {
	r, events := newTestReassembler(t, Config{StartSentinel: 0xaa, EndSentinel: 0xbb})

	// Default STX means nothing under the custom config.
	r.ProcessChunk([]byte{0x02, 0x41, 0x03})
	assert.Empty(t, events.completes)
	assert.Equal(t, StateIdle, r.State())

	r.ProcessChunk([]byte{0xaa, 0x41})
	r.ProcessChunk([]byte{0x42, 0xbb})
	require.Len(t, events.completes, 1)
	assert.Equal(t, []byte{0xaa, 0x41, 0x42, 0xbb}, events.completes[0].Data)
}

// TestCompletionDigest verifies the event digest matches a BLAKE2b-256 of
// the delivered payload.
func TestCompletionDigest(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	r.ProcessChunk([]byte{0x02, 0xde, 0xad, 0xbe, 0xef, 0x03})

	require.Len(t, events.completes, 1)
	fc := events.completes[0]
	assert.Equal(t, blake2b.Sum256(fc.Data), fc.Digest)
}

// TestSuggestedNameFromClock verifies the generated name is derived from the
// time provider's clock and the configured prefix.
func TestSuggestedNameFromClock(t *testing.T) {
	r, events := newTestReassembler(t, Config{NamePrefix: "scan"})
	r.SetTimeProvider(newMockTimeProvider())

	r.ProcessChunk([]byte{0x02, 0x03})

	require.Len(t, events.completes, 1)
	assert.Equal(t, "scan_20260101_000000.bin", events.completes[0].SuggestedName)
}

// TestLinkTerminatedMidSession verifies a dropped link discards the partial
// buffer and reports it, never finalizing.
func TestLinkTerminatedMidSession(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	r.ProcessChunk([]byte{0x02, 0x41, 0x42})
	r.LinkTerminated("connection dropped")

	require.Len(t, events.errors, 1)
	assert.Equal(t, ErrorLinkTerminated, events.errors[0].Kind)
	assert.Equal(t, "connection dropped", events.errors[0].Detail)
	assert.Empty(t, events.completes, "a partial buffer is never finalized")
	assert.Equal(t, StateIdle, r.State())
}

// TestLinkTerminatedWhileIdle verifies stream termination with no transfer in
// flight is silent.
func TestLinkTerminatedWhileIdle(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	r.LinkTerminated("connection dropped")

	assert.Empty(t, events.errors)
	assert.Empty(t, events.aborts)
}

// TestTeardownAbortIsSilent verifies teardown discards a mid-flight session
// without emitting any event.
func TestTeardownAbortIsSilent(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	r.ProcessChunk([]byte{0x02, 0x41})
	r.Abort(AbortTeardown)

	assert.Equal(t, StateIdle, r.State())
	assert.Empty(t, events.completes)
	assert.Empty(t, events.aborts)
	assert.Empty(t, events.errors)

	// Idempotent from teardown paths.
	r.Abort(AbortTeardown)
	assert.Empty(t, events.aborts)
}

// TestProgressReporting verifies the monotonically increasing byte counter
// delivered to the progress callback.
func TestProgressReporting(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	r.ProcessChunk([]byte{0x02, 0x41})
	r.ProcessChunk([]byte{0x42, 0x43})
	r.ProcessChunk([]byte{0x03})

	assert.Equal(t, []uint64{2, 4, 5}, events.progress)
}

// TestSessionIDLifecycle verifies the session identifier is nil while idle
// and unique per session.
func TestSessionIDLifecycle(t *testing.T) {
	r, _ := newTestReassembler(t, Config{})

	assert.Equal(t, uuid.Nil, r.SessionID())

	r.ProcessChunk([]byte{0x02})
	first := r.SessionID()
	assert.NotEqual(t, uuid.Nil, first)

	r.ProcessChunk([]byte{0x03})
	assert.Equal(t, uuid.Nil, r.SessionID())

	r.ProcessChunk([]byte{0x02})
	assert.NotEqual(t, first, r.SessionID())
}

// TestEndSentinelOnlyChecksLastByte documents the protocol limitation: an
// end-sentinel byte inside a chunk does not terminate the transfer, while one
// at the end of any chunk does, payload or not.
func TestEndSentinelOnlyChecksLastByte(t *testing.T) {
	r, events := newTestReassembler(t, Config{})

	r.ProcessChunk([]byte{0x02, 0x03, 0x41})
	assert.Empty(t, events.completes, "mid-chunk end sentinel is plain payload")
	assert.Equal(t, StateReceiving, r.State())

	r.ProcessChunk([]byte{0x42, 0x03})
	require.Len(t, events.completes, 1)
	assert.Equal(t, []byte{0x02, 0x03, 0x41, 0x42, 0x03}, events.completes[0].Data)
}

// TestStallWatchdog exercises CheckStall with a deterministic clock.
func TestStallWatchdog(t *testing.T) {
	r, events := newTestReassembler(t, Config{})
	clock := newMockTimeProvider()
	r.SetTimeProvider(clock)
	r.SetStallTimeout(30 * time.Second)

	// No session in flight: nothing to stall.
	assert.False(t, r.CheckStall())

	r.ProcessChunk([]byte{0x02, 0x41})
	clock.advance(10 * time.Second)
	assert.False(t, r.CheckStall(), "fresh session is not stalled")

	clock.advance(25 * time.Second)
	assert.True(t, r.CheckStall())
	require.Len(t, events.aborts, 1)
	assert.Equal(t, AbortStalled, events.aborts[0].Reason)
	assert.Equal(t, StateIdle, r.State())
	assert.Empty(t, events.completes)
}

// TestStallWatchdogDisabled verifies a zero timeout disables detection.
func TestStallWatchdogDisabled(t *testing.T) {
	r, events := newTestReassembler(t, Config{})
	clock := newMockTimeProvider()
	r.SetTimeProvider(clock)

	r.ProcessChunk([]byte{0x02, 0x41})
	clock.advance(time.Hour)

	assert.False(t, r.CheckStall())
	assert.Empty(t, events.aborts)
	assert.Equal(t, StateReceiving, r.State())
}

// TestChunkSequenceOutcomes runs framing scenarios through the state machine
// and checks the terminal event counts and final state.
func TestChunkSequenceOutcomes(t *testing.T) {
	tests := []struct {
		name          string
		chunks        [][]byte
		maxBuffer     uint64
		wantCompletes int
		wantAborts    int
		wantErrors    int
		wantState     State
	}{
		{
			name:          "back_to_back_transfers",
			chunks:        [][]byte{{0x02, 0x41, 0x03}, {0x02, 0x42, 0x03}},
			wantCompletes: 2,
			wantState:     StateIdle,
		},
		{
			name:          "trailing_partial_transfer",
			chunks:        [][]byte{{0x02, 0x41, 0x03}, {0x02, 0x42}},
			wantCompletes: 1,
			wantState:     StateReceiving,
		},
		{
			name:      "start_only_never_completes",
			chunks:    [][]byte{{0x02}, {0x41}, {0x42}},
			wantState: StateReceiving,
		},
		{
			name:          "two_restarts_two_aborts",
			chunks:        [][]byte{{0x02, 0x41}, {0x02, 0x42}, {0x02, 0x43, 0x03}},
			wantCompletes: 1,
			wantAborts:    2,
			wantState:     StateIdle,
		},
		{
			name:       "overflow_then_idle",
			chunks:     [][]byte{{0x02, 1, 2, 3}, {4, 5, 6, 7}},
			maxBuffer:  6,
			wantErrors: 1,
			wantState:  StateIdle,
		},
		{
			name:      "stray_bytes_ignored",
			chunks:    [][]byte{{0x41}, {0x03}, {0x42, 0x03}},
			wantState: StateIdle,
		},
		{
			name:          "single_byte_chunks",
			chunks:        [][]byte{{0x02}, {0x41}, {0x03}},
			wantCompletes: 1,
			wantState:     StateIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, events := newTestReassembler(t, Config{MaxBufferSize: tt.maxBuffer})
			for _, chunk := range tt.chunks {
				r.ProcessChunk(chunk)
			}

			assert.Len(t, events.completes, tt.wantCompletes, "completions")
			assert.Len(t, events.aborts, tt.wantAborts, "aborts")
			assert.Len(t, events.errors, tt.wantErrors, "errors")
			assert.Equal(t, tt.wantState, r.State())
		})
	}
}
