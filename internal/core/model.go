package core

import "time"

// Reference is a unit of work discovered but not yet fetched.
// Created by Discovery, consumed by a Fetcher, never mutated afterwards.
type Reference struct {
	SourceID       string
	ExternalID     string // unique within SourceID
	URL            string
	Title          string
	OpaqueMetadata map[string]string
}

// Article is a structural subdivision of a Document (e.g. a numbered section).
type Article struct {
	Number string
	Title  string
	Text   string
}

// Reform records an amendment relationship between documents.
type Reform struct {
	ExternalID string // external_id of the reforming/reformed document
	Relation   string // "amends" | "repeals" | "supersedes" ...
}

// Document is a fetched-and-parsed record. Produced by a parser, persisted
// exactly once, immutable thereafter.
type Document struct {
	ID              string
	SourceID        string
	ExternalID      string
	Title           string
	PublicationDate *time.Time
	Category        string
	Scope           string
	Status          string
	Articles        []Article
	Reforms         []Reform
	RawBlobRef      string
}

// DiscoveryMode selects how Discovery enumerates a source's index.
type DiscoveryMode string

const (
	ModeToday    DiscoveryMode = "today"
	ModeDate     DiscoveryMode = "date"
	ModeRange    DiscoveryMode = "range"
	ModeCategory DiscoveryMode = "category"
	ModeSearch   DiscoveryMode = "search"
)

// JobConfig parameterizes a single pipeline run. Read-only once the job starts.
type JobConfig struct {
	SourceID string        `json:"source_id" yaml:"source_id"`
	Mode     DiscoveryMode `json:"mode" yaml:"mode"`

	Date      time.Time `json:"date,omitempty" yaml:"date,omitempty"`             // Mode == ModeDate
	DateStart time.Time `json:"date_start,omitempty" yaml:"date_start,omitempty"` // Mode == ModeRange
	DateEnd   time.Time `json:"date_end,omitempty" yaml:"date_end,omitempty"`     // Mode == ModeRange

	Category string `json:"category,omitempty" yaml:"category,omitempty"` // Mode == ModeCategory
	Scope    string `json:"scope,omitempty" yaml:"scope,omitempty"`
	Status   string `json:"status,omitempty" yaml:"status,omitempty"`

	Query   string            `json:"query,omitempty" yaml:"query,omitempty"` // Mode == ModeSearch
	Filters map[string]string `json:"filters,omitempty" yaml:"filters,omitempty"`

	// MaxResults caps how many references Discovery enqueues. nil means
	// unbounded; a non-nil 0 means discover nothing (job completes with
	// discovered=0). A plain int can't carry both "unset" and "explicitly
	// zero", hence the pointer.
	MaxResults       *int    `json:"max_results,omitempty" yaml:"max_results,omitempty"`
	OutputDirectory  string  `json:"output_directory,omitempty" yaml:"output_directory,omitempty"`
	RateLimitRPS     float64 `json:"rate_limit_rps,omitempty" yaml:"rate_limit_rps,omitempty"`
	Concurrency      int     `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	DownloadPayloads bool    `json:"download_payloads,omitempty" yaml:"download_payloads,omitempty"`
	CheckpointID     string  `json:"checkpoint_id,omitempty" yaml:"checkpoint_id,omitempty"`

	MaxFetchAttempts   int `json:"max_fetch_attempts,omitempty" yaml:"max_fetch_attempts,omitempty"`
	CheckpointInterval int `json:"checkpoint_interval,omitempty" yaml:"checkpoint_interval,omitempty"` // write a checkpoint every N completions
}

// Validate applies defaults and rejects configuration that cannot run,
// treated as a job-fatal configuration validation failure.
func (c *JobConfig) Validate() error {
	if c.SourceID == "" {
		return ErrConfigInvalid
	}
	switch c.Mode {
	case ModeToday, ModeDate, ModeRange, ModeCategory, ModeSearch:
	default:
		return ErrConfigInvalid
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.MaxFetchAttempts <= 0 {
		c.MaxFetchAttempts = 3
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 10
	}
	if c.RateLimitRPS < 0 {
		return ErrConfigInvalid
	}
	return nil
}

// PipelineState is the Coordinator's finite state.
type PipelineState string

const (
	StateIdle        PipelineState = "idle"
	StateDiscovering PipelineState = "discovering"
	StateFetching    PipelineState = "fetching"
	StatePaused      PipelineState = "paused"
	StateCancelling  PipelineState = "cancelling"
	StateCompleted   PipelineState = "completed"
	StateFailed      PipelineState = "failed"
)

// Progress is a monotonic counters snapshot.
type Progress struct {
	Discovered int
	Downloaded int
	Pending    int
	Active     int
	Errors     int
	State      PipelineState
	Cancelled  bool
}

// Checkpoint is a durable resume point.
type Checkpoint struct {
	SessionID              string
	SourceID                string
	LastProcessedExternalID string
	PendingIDs              []string
	FailedIDs               []string
	SeenIDs                 []string
	CreatedAt               time.Time
}

// LogEntry is one observability trace line, kept in the Coordinator's bounded
// ring buffer and readable via the control surface's Logs operation.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Component string
	Message   string
	ExternalID string
	ErrorKind  string
}

// JobStatus is the snapshot returned by the control surface's Status ask.
type JobStatus struct {
	JobID    string
	SourceID string
	State    PipelineState
	Progress Progress
}
