package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// MockInstanceStore is an in-memory InstanceStore
type MockInstanceStore struct {
	mu          sync.RWMutex
	instances   map[string]*domain.Instance
	checkpoints map[string]*domain.Checkpoint // instanceID + "/" + name
	saves       int

	// Custom behavior hooks (optional)
	UpdateFn         func(inst *domain.Instance) error
	SaveCheckpointFn func(cp *domain.Checkpoint) error
}

// NewMockInstanceStore creates a new MockInstanceStore
func NewMockInstanceStore() *MockInstanceStore {
	return &MockInstanceStore{
		instances:   make(map[string]*domain.Instance),
		checkpoints: make(map[string]*domain.Checkpoint),
	}
}

func (m *MockInstanceStore) Create(ctx context.Context, inst *domain.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.instances[inst.ID]; exists {
		return domain.ErrAlreadyExists
	}
	copied := *inst
	m.instances[inst.ID] = &copied
	return nil
}

func (m *MockInstanceStore) Get(ctx context.Context, id string) (*domain.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *inst
	return &copied, nil
}

func (m *MockInstanceStore) Update(ctx context.Context, inst *domain.Instance) error {
	if m.UpdateFn != nil {
		if err := m.UpdateFn(inst); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[inst.ID]; !ok {
		return domain.ErrNotFound
	}
	copied := *inst
	m.instances[inst.ID] = &copied
	return nil
}

func (m *MockInstanceStore) ListStale(ctx context.Context, statuses []domain.InstanceStatus, updatedBefore time.Time) ([]*domain.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stale []*domain.Instance
	for _, inst := range m.instances {
		if !inst.UpdatedAt.Before(updatedBefore) {
			continue
		}
		for _, status := range statuses {
			if inst.Status == status {
				copied := *inst
				stale = append(stale, &copied)
				break
			}
		}
	}
	return stale, nil
}

func (m *MockInstanceStore) SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	if m.SaveCheckpointFn != nil {
		if err := m.SaveCheckpointFn(cp); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cp.InstanceID + "/" + cp.Name
	if _, exists := m.checkpoints[key]; exists {
		return nil
	}
	copied := *cp
	m.checkpoints[key] = &copied
	m.saves++
	return nil
}

func (m *MockInstanceStore) GetCheckpoint(ctx context.Context, instanceID, name string) (*domain.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[instanceID+"/"+name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *cp
	return &copied, nil
}

// Helper methods for testing

// CheckpointCount returns how many distinct checkpoints were written
func (m *MockInstanceStore) CheckpointCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// HasCheckpoint reports whether a named checkpoint exists
func (m *MockInstanceStore) HasCheckpoint(instanceID, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.checkpoints[instanceID+"/"+name]
	return ok
}

// Touch backdates an instance's UpdatedAt (for recovery tests)
func (m *MockInstanceStore) Touch(id string, updatedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[id]; ok {
		inst.UpdatedAt = updatedAt
	}
}
