package pcsc

import "sync"

// MaxReaders bounds the reader-state table (spec §4.6 DESIGN FLAG: "a
// fixed-size table, not a growable map"; fixed at 128 slots to match
// original_source's LTSM_PCSC_MAX_READERS, since spec §3 leaves the exact
// number an open question).
const MaxReaders = 128

// readerTable is the stub's local snapshot of remote reader state,
// refreshed by a background resync job and consulted by
// WaitReaderStateChangeStart without a remote round trip once it has been
// primed (spec §4.6: "Reader-state sync").
type readerTable struct {
	mu    sync.RWMutex
	slots [MaxReaders]ReaderState
	count int
}

// Replace overwrites the table with a fresh snapshot, truncating to
// MaxReaders. Returns the names of readers whose state actually moved,
// for waiters diffing against their last-seen snapshot.
func (t *readerTable) Replace(fresh []ReaderState) (changed []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := make(map[string]ReaderState, t.count)
	for i := 0; i < t.count; i++ {
		prev[t.slots[i].Name] = t.slots[i]
	}

	n := len(fresh)
	if n > MaxReaders {
		n = MaxReaders
	}
	for i := 0; i < n; i++ {
		t.slots[i] = fresh[i]
		if old, ok := prev[fresh[i].Name]; !ok || old.EventState != fresh[i].EventState {
			changed = append(changed, fresh[i].Name)
		}
	}
	t.count = n
	return changed
}

// Snapshot returns a copy of the current table (spec §8:
// "GetStatusChange(timeout=0) returns immediately with current state").
func (t *readerTable) Snapshot() []ReaderState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ReaderState, t.count)
	copy(out, t.slots[:t.count])
	return out
}
