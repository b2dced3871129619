package driving

import (
	"context"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// TriggerRequest is the input of an ingestion trigger
type TriggerRequest struct {
	URL    string `json:"url"`
	Strict bool   `json:"strict"`
	// Type is fetch, render or browser (alias of render). Empty means fetch.
	Type string `json:"type"`
}

// TriggerResponse reports a newly created ingestion instance
type TriggerResponse struct {
	Message    string                `json:"message"`
	InstanceID string                `json:"instanceId"`
	Status     domain.InstanceStatus `json:"status"`
}

// InstanceStatusResponse is the externally visible state of an instance
type InstanceStatusResponse struct {
	ID     string                 `json:"id"`
	Status domain.InstanceStatus  `json:"status"`
	Error  string                 `json:"error,omitempty"`
	Output *domain.InstanceOutput `json:"output,omitempty"`
}

// IngestionService starts and reports on site ingestions
type IngestionService interface {
	// Trigger creates and enqueues an ingestion instance.
	// Returns domain.ErrAlreadyExists if a site with the URL is already stored.
	Trigger(ctx context.Context, req TriggerRequest) (*TriggerResponse, error)

	// Status returns the state of an instance
	Status(ctx context.Context, instanceID string) (*InstanceStatusResponse, error)
}
