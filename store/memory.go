package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"potluck"
)

type memoryRecord struct {
	version int64
	data    []byte
}

// Memory keeps JSON-encoded sessions in a map so callers never share slices
// with the stored copy.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]memoryRecord
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]memoryRecord)}
}

func (m *Memory) Create(ctx context.Context, s potluck.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[s.ID]; ok {
		return fmt.Errorf("session %s already exists: %w", s.ID, ErrConflict)
	}
	m.docs[s.ID] = memoryRecord{version: s.Version, data: data}
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (potluck.Session, error) {
	m.mu.RLock()
	rec, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return potluck.Session{}, notFound(id)
	}
	return decode(rec.data)
}

func (m *Memory) Update(ctx context.Context, s potluck.Session, expectedVersion int64) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.docs[s.ID]
	if !ok {
		return notFound(s.ID)
	}
	if rec.version != expectedVersion {
		return conflict(s.ID, expectedVersion)
	}
	m.docs[s.ID] = memoryRecord{version: s.Version, data: data}
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return notFound(id)
	}
	delete(m.docs, id)
	return nil
}

func (m *Memory) ListByHost(ctx context.Context, hostID string) ([]potluck.Session, error) {
	return m.list(func(s potluck.Session) bool { return s.HostID == hostID })
}

func (m *Memory) ListByParticipant(ctx context.Context, userID string) ([]potluck.Session, error) {
	return m.list(func(s potluck.Session) bool { return hasParticipant(s, userID) })
}

func (m *Memory) list(keep func(potluck.Session) bool) ([]potluck.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]potluck.Session, 0)
	for _, rec := range m.docs {
		s, err := decode(rec.data)
		if err != nil {
			return nil, err
		}
		if keep(s) {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

func decode(data []byte) (potluck.Session, error) {
	var s potluck.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return potluck.Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return s, nil
}
