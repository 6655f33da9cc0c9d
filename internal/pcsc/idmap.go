package pcsc

import "sync"

// idMap translates between the local stub's 32-bit context/handle ids
// (what applications linked against libpcsclite see) and the remote
// peer's 64-bit identifiers (spec §4.6: "translates its local 32-bit
// context/handle into the 64-bit remote identifier").
type idMap struct {
	mu     sync.Mutex
	next   uint32
	toLoc  map[uint64]uint32
	toRem  map[uint32]uint64
}

func newIDMap() *idMap {
	return &idMap{toLoc: make(map[uint64]uint32), toRem: make(map[uint32]uint64)}
}

// Bind allocates (or reuses) a local id for a remote id.
func (m *idMap) Bind(remote uint64) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if local, ok := m.toLoc[remote]; ok {
		return local
	}
	m.next++
	local := m.next
	m.toLoc[remote] = local
	m.toRem[local] = remote
	return local
}

// Remote resolves a local id back to the remote identifier.
func (m *idMap) Remote(local uint32) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remote, ok := m.toRem[local]
	return remote, ok
}

// Release forgets a local/remote pair. The Stub calls it on
// ReleaseContext and Disconnect; pairs bound for a client that goes away
// without either call stay in the map.
func (m *idMap) Release(local uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if remote, ok := m.toRem[local]; ok {
		delete(m.toRem, local)
		delete(m.toLoc, remote)
	}
}

// Count reports how many ids are currently live, used by tests asserting
// no leaks across a session lifetime.
func (m *idMap) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.toLoc)
}
