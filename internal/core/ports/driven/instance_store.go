package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// InstanceStore persists ingestion instances and their step checkpoints.
// It is the durable half of the ingestion state machine.
type InstanceStore interface {
	// Create inserts a new instance
	Create(ctx context.Context, inst *domain.Instance) error

	// Get retrieves an instance by ID
	Get(ctx context.Context, id string) (*domain.Instance, error)

	// Update writes status, step, error, output and attempts
	Update(ctx context.Context, inst *domain.Instance) error

	// ListStale returns non-terminal instances not updated since the cutoff
	ListStale(ctx context.Context, statuses []domain.InstanceStatus, updatedBefore time.Time) ([]*domain.Instance, error)

	// SaveCheckpoint records a step result. An existing checkpoint with the
	// same name is left untouched.
	SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error

	// GetCheckpoint retrieves a step result. Returns domain.ErrNotFound if the
	// step has not been checkpointed.
	GetCheckpoint(ctx context.Context, instanceID, name string) (*domain.Checkpoint, error)
}
