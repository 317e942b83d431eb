package repository

import (
	"context"

	"github.com/m-mizutani/tolerancia/pkg/model"
)

// QuotaUpdateFunc receives the current record (nil when absent) and returns the
// record to store, or nil to leave storage untouched.
type QuotaUpdateFunc func(current *model.QuotaRecord) (*model.QuotaRecord, error)

// Repository defines the interface for quota persistence
type Repository interface {
	// GetQuota retrieves the quota record for key. It returns nil without error when absent.
	GetQuota(ctx context.Context, key model.QuotaKey) (*model.QuotaRecord, error)

	// UpdateQuota runs fn as one atomic read-modify-write on the record for key.
	// fn may be invoked more than once when the backend retries.
	UpdateQuota(ctx context.Context, key model.QuotaKey, fn QuotaUpdateFunc) error
}
