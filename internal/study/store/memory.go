package store

import (
	"context"
	"maps"
	"sync"

	"github.com/hzi-braunschweig/pia-system/internal/study"
	"github.com/hzi-braunschweig/pia-system/pkg/domain"
	"github.com/hzi-braunschweig/pia-system/pkg/platform/sentinel"
)

// Memory is an in-memory study catalog for tests and single-node development.
// It implements study.Catalog, study.Roster and study.Admin.
type Memory struct {
	mu      sync.RWMutex
	groups  map[domain.StudyID]*study.Group
	members map[domain.StudyID]map[domain.UserID]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		groups:  make(map[domain.StudyID]*study.Group),
		members: make(map[domain.StudyID]map[domain.UserID]struct{}),
	}
}

// Seed registers a group. Intended for tests and bootstrap code.
func (m *Memory) Seed(g *study.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	cp.Attributes = maps.Clone(g.Attributes)
	if cp.Attributes == nil {
		cp.Attributes = make(map[string]string)
	}
	m.groups[g.ID] = &cp
}

func (m *Memory) FindByID(ctx context.Context, id domain.StudyID) (*study.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *g
	cp.Attributes = maps.Clone(g.Attributes)
	return &cp, nil
}

func (m *Memory) MemberCount(ctx context.Context, id domain.StudyID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.groups[id]; !ok {
		return 0, sentinel.ErrNotFound
	}
	return len(m.members[id]), nil
}

func (m *Memory) AddMember(ctx context.Context, id domain.StudyID, userID domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return sentinel.ErrNotFound
	}
	if m.members[id] == nil {
		m.members[id] = make(map[domain.UserID]struct{})
	}
	m.members[id][userID] = struct{}{}
	return nil
}

func (m *Memory) SetAttribute(ctx context.Context, id domain.StudyID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	g.Attributes[key] = value
	return nil
}

func (m *Memory) RemoveAttribute(ctx context.Context, id domain.StudyID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(g.Attributes, key)
	return nil
}
