package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/model"
)

// Memory keeps quota records in process memory. Counters are only correct when
// a single server instance serves all callers.
type Memory struct {
	mu      sync.Mutex
	records map[model.QuotaKey]model.QuotaRecord
}

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{
		records: make(map[model.QuotaKey]model.QuotaRecord),
	}
}

func (m *Memory) GetQuota(ctx context.Context, key model.QuotaKey) (*model.QuotaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) UpdateQuota(ctx context.Context, key model.QuotaKey, fn QuotaUpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *model.QuotaRecord
	if rec, ok := m.records[key]; ok {
		current = &rec
	}

	next, err := fn(current)
	if err != nil {
		return goerr.Wrap(err, "failed to update quota", goerr.V("key", key))
	}
	if next != nil {
		m.records[key] = *next
	}
	return nil
}
