package wrpc

import (
	"errors"
	"sync"
	"time"
)

// Callback receives the outcome of one dispatched request, exactly once.
// payload is only meaningful when err is nil.
type Callback func(payload []byte, err error)

type pendingRow struct {
	timestamp time.Time
	callback  Callback
}

// pendingTable holds in-flight requests. Callbacks it hands out must be
// invoked by the caller after the table lock is released.
type pendingTable struct {
	mu     sync.Mutex
	rows   map[uint64]pendingRow
	closed bool
}

var errIDInUse = errors.New("wrpc: request id in use")

func newPendingTable() *pendingTable {
	return &pendingTable{rows: make(map[uint64]pendingRow)}
}

// insert fails with errIDInUse if id is already pending and with
// ErrNotConnected once the table has been drained.
func (t *pendingTable) insert(id uint64, now time.Time, cb Callback) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrNotConnected
	}
	if _, exist := t.rows[id]; exist {
		return errIDInUse
	}
	t.rows[id] = pendingRow{timestamp: now, callback: cb}
	return nil
}

func (t *pendingTable) remove(id uint64) (cb Callback, ok bool) {
	t.mu.Lock()
	row, ok := t.rows[id]
	if ok {
		delete(t.rows, id)
	}
	t.mu.Unlock()
	return row.callback, ok
}

// expire removes every row older than threshold.
func (t *pendingTable) expire(now time.Time, threshold time.Duration) (cbs []Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var purge []uint64
	for id, row := range t.rows {
		if now.Sub(row.timestamp) > threshold {
			purge = append(purge, id)
		}
	}
	for _, id := range purge {
		cbs = append(cbs, t.rows[id].callback)
		delete(t.rows, id)
	}
	return
}

// drain empties the table and refuses later inserts.
func (t *pendingTable) drain() (cbs []Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for id, row := range t.rows {
		cbs = append(cbs, row.callback)
		delete(t.rows, id)
	}
	return
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	n := len(t.rows)
	t.mu.Unlock()
	return n
}
