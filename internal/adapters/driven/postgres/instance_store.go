package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.InstanceStore = (*InstanceStore)(nil)

// InstanceStore implements driven.InstanceStore using PostgreSQL.
// Instances live in ingestion_instances, step results in ingestion_checkpoints.
type InstanceStore struct {
	db *DB
}

// NewInstanceStore creates a new InstanceStore
func NewInstanceStore(db *DB) *InstanceStore {
	return &InstanceStore{db: db}
}

const instanceColumns = `id, params, status, step, error, output, attempts, created_at, updated_at`

// Create inserts a new instance
func (s *InstanceStore) Create(ctx context.Context, inst *domain.Instance) error {
	params, err := json.Marshal(inst.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	output, err := marshalOutput(inst.Output)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ingestion_instances (` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.db.ExecContext(ctx, query,
		inst.ID,
		params,
		string(inst.Status),
		string(inst.Step),
		inst.Error,
		output,
		inst.Attempts,
		inst.CreatedAt,
		inst.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

// Get retrieves an instance by ID
func (s *InstanceStore) Get(ctx context.Context, id string) (*domain.Instance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM ingestion_instances WHERE id = $1`, id)
	return scanInstance(row)
}

// Update writes status, step, error, output and attempts
func (s *InstanceStore) Update(ctx context.Context, inst *domain.Instance) error {
	output, err := marshalOutput(inst.Output)
	if err != nil {
		return err
	}

	query := `
		UPDATE ingestion_instances
		SET status = $1, step = $2, error = $3, output = $4, attempts = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		string(inst.Status),
		string(inst.Step),
		inst.Error,
		output,
		inst.Attempts,
		inst.UpdatedAt,
		inst.ID,
	)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	return expectRowsAffected(result)
}

// ListStale returns instances in one of the statuses not updated since the cutoff
func (s *InstanceStore) ListStale(ctx context.Context, statuses []domain.InstanceStatus, updatedBefore time.Time) ([]*domain.Instance, error) {
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}

	query := `
		SELECT ` + instanceColumns + `
		FROM ingestion_instances
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(values), updatedBefore)
	if err != nil {
		return nil, fmt.Errorf("query stale instances: %w", err)
	}
	defer rows.Close()

	var instances []*domain.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return instances, nil
}

// SaveCheckpoint records a step result. The first write for a name wins.
func (s *InstanceStore) SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO ingestion_checkpoints (instance_id, name, output, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instance_id, name) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, cp.InstanceID, cp.Name, []byte(cp.Output), createdAt)
	if err != nil {
		return fmt.Errorf("insert checkpoint %s: %w", cp.Name, err)
	}
	return nil
}

// GetCheckpoint retrieves a step result
func (s *InstanceStore) GetCheckpoint(ctx context.Context, instanceID, name string) (*domain.Checkpoint, error) {
	query := `
		SELECT instance_id, name, output, created_at
		FROM ingestion_checkpoints
		WHERE instance_id = $1 AND name = $2
	`

	var cp domain.Checkpoint
	var output []byte
	err := s.db.QueryRowContext(ctx, query, instanceID, name).Scan(
		&cp.InstanceID,
		&cp.Name,
		&output,
		&cp.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	cp.Output = json.RawMessage(output)
	return &cp, nil
}

// marshalOutput returns a nil interface for a missing output so the column stays NULL
func marshalOutput(output *domain.InstanceOutput) (any, error) {
	if output == nil {
		return nil, nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("marshal output: %w", err)
	}
	return data, nil
}

func scanInstance(row rowScanner) (*domain.Instance, error) {
	var inst domain.Instance
	var params, output []byte
	var status, step string

	err := row.Scan(
		&inst.ID,
		&params,
		&status,
		&step,
		&inst.Error,
		&output,
		&inst.Attempts,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan instance: %w", err)
	}

	if err := json.Unmarshal(params, &inst.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if len(output) > 0 {
		inst.Output = &domain.InstanceOutput{}
		if err := json.Unmarshal(output, inst.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
	}
	inst.Status = domain.ParseInstanceStatus(status)
	inst.Step = domain.Step(step)
	return &inst, nil
}
