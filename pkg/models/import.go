package models

import (
	"time"
)

// ImportStage identifies where an import run is in its lifecycle. Committed and
// Failed are the only terminal stages; no partial state is externally visible.
type ImportStage string

const (
	StageValidating        ImportStage = "validating"
	StageFetchingSource    ImportStage = "fetching_source"
	StageExtractingHints   ImportStage = "extracting_hints"
	StageMatching          ImportStage = "matching"
	StageLayingOutFallback ImportStage = "laying_out_fallback"
	StagePersisting        ImportStage = "persisting"
	StageCommitted         ImportStage = "committed"
	StageFailed            ImportStage = "failed"
)

// PageImage is one page of the source document, rendered to an image.
type PageImage struct {
	MIMEType string `json:"mime_type" validate:"required"`
	Data     []byte `json:"data" validate:"required"`
}

// RunImportRequest is the request body for running or previewing an import.
// SourceRef is optional: without it every item goes through fallback layout,
// and with no source at all the run is rejected as having nothing to import.
type RunImportRequest struct {
	SourceRef  *string     `json:"source_ref,omitempty"`
	PageImages []PageImage `json:"page_images" validate:"required,min=1,dive"`
}

// ImportResult reports the outcome of a completed (or previewed) run.
type ImportResult struct {
	RunID          string         `json:"run_id"`
	TenantID       string         `json:"tenant_id"`
	MatchedCount   int            `json:"matched_count"`
	UnmatchedCount int            `json:"unmatched_count"`
	MatchRate      float64        `json:"match_rate"`
	PageCount      int            `json:"page_count"`
	Entries        []CatalogEntry `json:"entries"`
	Committed      bool           `json:"committed"`
}

// ImportRun is the persisted audit record for one run.
// Field order matches schema: id, tenant_id, stage, matched_count, ...
type ImportRun struct {
	ID             string      `json:"id" db:"id"`
	TenantID       string      `json:"tenant_id" db:"tenant_id"`
	Stage          ImportStage `json:"stage" db:"stage"`
	MatchedCount   int         `json:"matched_count" db:"matched_count"`
	UnmatchedCount int         `json:"unmatched_count" db:"unmatched_count"`
	MatchRate      float64     `json:"match_rate" db:"match_rate"`
	PageCount      int         `json:"page_count" db:"page_count"`
	Error          *string     `json:"error,omitempty" db:"error"`
	StartedAt      time.Time   `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty" db:"finished_at"`
}
