package domain

import (
	"encoding/json"
	"time"
)

// InstanceStatus is the externally visible state of an ingestion instance
type InstanceStatus string

const (
	InstanceStatusQueued          InstanceStatus = "queued"
	InstanceStatusRunning         InstanceStatus = "running"
	InstanceStatusPaused          InstanceStatus = "paused"
	InstanceStatusErrored         InstanceStatus = "errored"
	InstanceStatusTerminated      InstanceStatus = "terminated"
	InstanceStatusComplete        InstanceStatus = "complete"
	InstanceStatusWaiting         InstanceStatus = "waiting"
	InstanceStatusWaitingForPause InstanceStatus = "waitingForPause"
	InstanceStatusUnknown         InstanceStatus = "unknown"
)

// ParseInstanceStatus maps a stored value to a status.
// Unrecognised values become InstanceStatusUnknown.
func ParseInstanceStatus(s string) InstanceStatus {
	switch st := InstanceStatus(s); st {
	case InstanceStatusQueued, InstanceStatusRunning, InstanceStatusPaused,
		InstanceStatusErrored, InstanceStatusTerminated, InstanceStatusComplete,
		InstanceStatusWaiting, InstanceStatusWaitingForPause:
		return st
	default:
		return InstanceStatusUnknown
	}
}

// IsTerminal returns true if the instance will never be advanced again
func (s InstanceStatus) IsTerminal() bool {
	switch s {
	case InstanceStatusErrored, InstanceStatusTerminated, InstanceStatusComplete:
		return true
	default:
		return false
	}
}

// Step names one checkpointed stage of the ingestion state machine
type Step string

const (
	StepLookupOrCreateSite    Step = "lookup-or-create-site"
	StepCrawl                 Step = "crawl"
	StepPersistPages          Step = "persist-pages"
	StepEmbedAndPersistChunks Step = "embed-and-persist-chunks"
	StepDone                  Step = "done"
)

// Steps lists the ingestion steps in execution order
var Steps = []Step{
	StepLookupOrCreateSite,
	StepCrawl,
	StepPersistPages,
	StepEmbedAndPersistChunks,
	StepDone,
}

// Next returns the step that follows s. Done is its own successor.
func (s Step) Next() Step {
	for i, step := range Steps {
		if step == s && i+1 < len(Steps) {
			return Steps[i+1]
		}
	}
	return StepDone
}

// IsValid returns true if this is a known step
func (s Step) IsValid() bool {
	for _, step := range Steps {
		if step == s {
			return true
		}
	}
	return false
}

// IngestParams are the trigger parameters of an ingestion instance
type IngestParams struct {
	URL    string    `json:"url"`
	Strict bool      `json:"strict"`
	Mode   CrawlMode `json:"mode"`
}

// InstanceOutput summarises a completed ingestion
type InstanceOutput struct {
	SiteID        string `json:"site_id"`
	PagesCrawled  int    `json:"pages_crawled"`
	PagesCreated  int    `json:"pages_created"`
	PagesEmbedded int    `json:"pages_embedded"`
	PagesSkipped  int    `json:"pages_skipped"`
	ChunksCreated int    `json:"chunks_created"`
}

// Instance is one execution of the ingestion state machine
type Instance struct {
	ID        string          `json:"id"`
	Params    IngestParams    `json:"params"`
	Status    InstanceStatus  `json:"status"`
	Step      Step            `json:"step"`
	Error     string          `json:"error,omitempty"`
	Output    *InstanceOutput `json:"output,omitempty"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewInstance creates a queued instance positioned at the first step
func NewInstance(params IngestParams) *Instance {
	now := time.Now()
	return &Instance{
		ID:        GenerateID(),
		Params:    params,
		Status:    InstanceStatusQueued,
		Step:      StepLookupOrCreateSite,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkRunning records the start of an execution attempt
func (i *Instance) MarkRunning() {
	i.Status = InstanceStatusRunning
	i.Attempts++
	i.UpdatedAt = time.Now()
}

// AdvanceTo moves the step pointer
func (i *Instance) AdvanceTo(step Step) {
	i.Step = step
	i.UpdatedAt = time.Now()
}

// MarkWaiting records a transient failure; the instance will be resumed
func (i *Instance) MarkWaiting(err string) {
	i.Status = InstanceStatusWaiting
	i.Error = err
	i.UpdatedAt = time.Now()
}

// MarkErrored records a permanent failure
func (i *Instance) MarkErrored(err string) {
	i.Status = InstanceStatusErrored
	i.Error = err
	i.UpdatedAt = time.Now()
}

// MarkComplete records the final output
func (i *Instance) MarkComplete(output *InstanceOutput) {
	i.Status = InstanceStatusComplete
	i.Step = StepDone
	i.Error = ""
	i.Output = output
	i.UpdatedAt = time.Now()
}

// Checkpoint is the durable result of one named step of an instance
type Checkpoint struct {
	InstanceID string          `json:"instance_id"`
	Name       string          `json:"name"`
	Output     json.RawMessage `json:"output"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PageCheckpointName names the nested checkpoint of one page's embedding
func PageCheckpointName(pageID string) string {
	return "embed-page:" + pageID
}

// SiteStepOutput is the checkpoint of lookup-or-create-site
type SiteStepOutput struct {
	SiteID  string `json:"site_id"`
	Created bool   `json:"created"`
}

// CrawlStepOutput is the checkpoint of crawl
type CrawlStepOutput struct {
	Results []CrawlResult `json:"results"`
}

// PersistedPage is a newly created page paired with its raw text
type PersistedPage struct {
	PageID string `json:"page_id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

// PersistPagesOutput is the checkpoint of persist-pages
type PersistPagesOutput struct {
	Pages   []PersistedPage `json:"pages"`
	Skipped int             `json:"skipped"`
}

// PageEmbedOutcome is what happened to one page during embedding
type PageEmbedOutcome string

const (
	PageEmbedded PageEmbedOutcome = "embedded"
	PageSkipped  PageEmbedOutcome = "skipped"
)

// PageEmbedOutput is the nested checkpoint of one page's embedding
type PageEmbedOutput struct {
	PageID  string           `json:"page_id"`
	Outcome PageEmbedOutcome `json:"outcome"`
	Chunks  int              `json:"chunks"`
	Reason  string           `json:"reason,omitempty"`
}

// EmbedStepOutput is the checkpoint of embed-and-persist-chunks
type EmbedStepOutput struct {
	PagesEmbedded int `json:"pages_embedded"`
	PagesSkipped  int `json:"pages_skipped"`
	ChunksCreated int `json:"chunks_created"`
}
