package frame

import (
	"time"
)

// mockTimeProvider provides deterministic time for testing.
type mockTimeProvider struct {
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	return m.currentTime
}

func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.currentTime.Sub(t)
}

func (m *mockTimeProvider) advance(d time.Duration) {
	m.currentTime = m.currentTime.Add(d)
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{
		currentTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// eventCollector records every event a reassembler emits, in order.
type eventCollector struct {
	completes []FileComplete
	aborts    []TransferAborted
	errors    []TransferError
	progress  []uint64
}

func newEventCollector(r *Reassembler) *eventCollector {
	c := &eventCollector{}
	r.OnFileComplete(func(fc FileComplete) { c.completes = append(c.completes, fc) })
	r.OnTransferAborted(func(ta TransferAborted) { c.aborts = append(c.aborts, ta) })
	r.OnTransferError(func(te TransferError) { c.errors = append(c.errors, te) })
	r.OnProgress(func(n uint64) { c.progress = append(c.progress, n) })
	return c
}

func (c *eventCollector) reset() {
	c.completes = nil
	c.aborts = nil
	c.errors = nil
	c.progress = nil
}
