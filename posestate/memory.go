package posestate

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the in-process fallback when no Redis cache is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	poses    map[string]*CellPose
	sessions map[string]*SessionMirror
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		poses:    make(map[string]*CellPose),
		sessions: make(map[string]*SessionMirror),
	}
}

func (m *MemoryStore) SetPose(_ context.Context, pose *CellPose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pose
	m.poses[pose.CellID] = &cp
	return nil
}

func (m *MemoryStore) GetPose(_ context.Context, cellID string) (*CellPose, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pose, ok := m.poses[cellID]
	if !ok {
		return nil, nil
	}
	cp := *pose
	return &cp, nil
}

func (m *MemoryStore) SetSession(_ context.Context, mirror *SessionMirror) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mirror
	m.sessions[mirror.CellID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, cellID string) (*SessionMirror, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mirror, ok := m.sessions[cellID]
	if !ok {
		return nil, nil
	}
	cp := *mirror
	return &cp, nil
}

func (m *MemoryStore) ListCellIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	for id := range m.poses {
		seen[id] = true
	}
	for id := range m.sessions {
		seen[id] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) RemoveCell(_ context.Context, cellID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.poses, cellID)
	delete(m.sessions, cellID)
	return nil
}
