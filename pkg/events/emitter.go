// Package events publishes catalog lifecycle notifications
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
)

const (
	// EventCatalogReplaced is emitted after a run commits a new snapshot.
	EventCatalogReplaced = "catalog.replaced"
	// EventImportFailed is emitted when a run reaches the failed state.
	EventImportFailed = "import.failed"
	// EventCatalogDeleted is emitted when a tenant's catalog is removed.
	EventCatalogDeleted = "catalog.deleted"
)

// Publisher is the transport the emitter writes to
type Publisher interface {
	Publish(ctx context.Context, tenantID, eventType string, value []byte) error
}

// CatalogEvent is the payload shape for all catalog lifecycle events
type CatalogEvent struct {
	EventType      string    `json:"event_type"`
	TenantID       string    `json:"tenant_id"`
	RunID          string    `json:"run_id,omitempty"`
	ItemCount      int       `json:"item_count,omitempty"`
	MatchedCount   int       `json:"matched_count,omitempty"`
	UnmatchedCount int       `json:"unmatched_count,omitempty"`
	MatchRate      float64   `json:"match_rate,omitempty"`
	FailedStage    string    `json:"failed_stage,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Emitter publishes catalog events. Emission is best-effort: a publish error
// is logged, never surfaced, because the snapshot is already committed by the
// time events fire.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new Emitter. A nil publisher disables emission.
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// CatalogReplaced announces a committed snapshot
func (e *Emitter) CatalogReplaced(ctx context.Context, tenantID, runID string, itemCount, matchedCount, unmatchedCount int, matchRate float64) {
	e.emit(ctx, &CatalogEvent{
		EventType:      EventCatalogReplaced,
		TenantID:       tenantID,
		RunID:          runID,
		ItemCount:      itemCount,
		MatchedCount:   matchedCount,
		UnmatchedCount: unmatchedCount,
		MatchRate:      matchRate,
	})
}

// ImportFailed announces a failed run
func (e *Emitter) ImportFailed(ctx context.Context, tenantID, runID, failedStage, reason string) {
	e.emit(ctx, &CatalogEvent{
		EventType:   EventImportFailed,
		TenantID:    tenantID,
		RunID:       runID,
		FailedStage: failedStage,
		Reason:      reason,
	})
}

// CatalogDeleted announces a removed tenant catalog
func (e *Emitter) CatalogDeleted(ctx context.Context, tenantID string) {
	e.emit(ctx, &CatalogEvent{
		EventType: EventCatalogDeleted,
		TenantID:  tenantID,
	})
}

func (e *Emitter) emit(ctx context.Context, event *CatalogEvent) {
	if e.publisher == nil {
		return
	}
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to encode %s event", event.EventType)
		return
	}

	if err := e.publisher.Publish(ctx, event.TenantID, event.EventType, data); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", event.EventType)
	}
}
