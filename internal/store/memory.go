package store

import (
	"context"
	"sync"

	"github.com/lei/pipeline-trigger/internal/models"
)

// Memory is a process-local Store
type Memory struct {
	mu      sync.RWMutex
	records map[string]models.SubmissionRecord
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{records: make(map[string]models.SubmissionRecord)}
}

func (m *Memory) Save(ctx context.Context, record *models.SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = *record
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*models.SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (m *Memory) Close() error { return nil }
