package review

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

type memoryStore struct {
	mu    sync.RWMutex
	snaps map[string][]byte
	undo  map[string][]byte
}

// NewMemoryStore returns a process-local store. Snapshots are kept encoded so
// callers never share state with the store.
func NewMemoryStore() SnapshotStore {
	return &memoryStore{snaps: make(map[string][]byte), undo: make(map[string][]byte)}
}

func (m *memoryStore) Save(_ context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.snaps[snap.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Load(_ context.Context, id string) (*Snapshot, error) {
	m.mu.RLock()
	data, ok := m.snaps[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeSnapshot(data)
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.snaps, id)
	delete(m.undo, id)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) List(_ context.Context, limit, offset int) ([]*Snapshot, int, error) {
	m.mu.RLock()
	all := make([]*Snapshot, 0, len(m.snaps))
	for _, data := range m.snaps {
		s, err := decodeSnapshot(data)
		if err != nil {
			m.mu.RUnlock()
			return nil, 0, err
		}
		all = append(all, s)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	total := len(all)
	if offset >= total {
		return []*Snapshot{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memoryStore) SaveUndo(_ context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.undo[snap.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) LoadUndo(_ context.Context, id string) (*Snapshot, error) {
	m.mu.RLock()
	data, ok := m.undo[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeSnapshot(data)
}

func (m *memoryStore) DeleteUndo(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.undo, id)
	m.mu.Unlock()
	return nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
