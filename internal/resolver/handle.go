package resolver

import (
	"os"
	"sync"
	"time"
)

// Handle tracks one open backing file descriptor plus the bookkeeping
// the Resolver needs to decide how subsequent reads are served.
type Handle struct {
	path        string
	sourceRoot  string
	file        *os.File
	flags       int
	readOnly    bool
	transformed bool // the pipeline has at least one stage applicable to this path
	fingerprint uint64
	lastAccess  time.Time
	accessCount int64
}

// handleTable is the Resolver's open-file table: one entry per open()
// call, keyed by an opaque monotonically increasing identifier.
type handleTable struct {
	mu   sync.Mutex
	next uint64
	open map[uint64]*Handle
}

func newHandleTable() *handleTable {
	return &handleTable{next: 1, open: make(map[uint64]*Handle)}
}

func (t *handleTable) register(h *Handle) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.open[id] = h
	return id
}

func (t *handleTable) get(id uint64) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.open[id]
	return h, ok
}

func (t *handleTable) release(id uint64) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.open[id]
	if ok {
		delete(t.open, id)
	}
	return h, ok
}

func (t *handleTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}
