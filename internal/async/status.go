// Package async runs ingest work in the background while the knowledge base
// keeps serving searches.
package async

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/amankb/internal/ui"
)

// IndexingStatus is the overall state of a background run.
type IndexingStatus string

const (
	// StatusIdle means no run was started.
	StatusIdle IndexingStatus = "idle"
	// StatusIndexing means a run is in progress.
	StatusIndexing IndexingStatus = "indexing"
	// StatusReady means the last run finished.
	StatusReady IndexingStatus = "ready"
	// StatusError means the last run failed.
	StatusError IndexingStatus = "error"
)

// IndexProgressSnapshot is an immutable copy of IndexProgress.
type IndexProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	Total          int     `json:"total"`
	Processed      int     `json:"processed"`
	Documents      int     `json:"documents"`
	Skipped        int     `json:"skipped"`
	Chunks         int     `json:"chunks"`
	Errors         int     `json:"errors"`
	Warnings       int     `json:"warnings"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	LastError      string  `json:"last_error,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// IndexProgress tracks a background run. It implements ui.Renderer so an
// ingest runner can report into it directly.
type IndexProgress struct {
	mu sync.RWMutex

	now       func() time.Time
	status    IndexingStatus
	stage     ui.Stage
	total     int
	processed int
	documents int
	skipped   int
	chunks    int
	errors    int
	warnings  int
	lastError string
	startTime time.Time
	endTime   time.Time
	message   string
}

var _ ui.Renderer = (*IndexProgress)(nil)

// NewIndexProgress creates an idle tracker.
func NewIndexProgress() *IndexProgress {
	return &IndexProgress{now: time.Now, status: StatusIdle}
}

// begin resets the tracker for a new run.
func (p *IndexProgress) begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status, p.stage = StatusIndexing, ui.StageScanning
	p.total, p.processed = 0, 0
	p.documents, p.skipped, p.chunks = 0, 0, 0
	p.errors, p.warnings = 0, 0
	p.lastError, p.message = "", ""
	p.startTime, p.endTime = p.now(), time.Time{}
}

// Start implements ui.Renderer.
func (p *IndexProgress) Start(ctx context.Context) error { return nil }

// Stop implements ui.Renderer.
func (p *IndexProgress) Stop() error { return nil }

// UpdateProgress implements ui.Renderer.
func (p *IndexProgress) UpdateProgress(event ui.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = event.Stage
	p.total = event.Total
	p.processed = event.Current
}

// AddError implements ui.Renderer.
func (p *IndexProgress) AddError(event ui.ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings++
		return
	}
	p.errors++
	var b strings.Builder
	if event.File != "" {
		b.WriteString(event.File)
		b.WriteString(": ")
	}
	if event.Err != nil {
		b.WriteString(event.Err.Error())
	}
	p.lastError = b.String()
}

// Complete implements ui.Renderer.
func (p *IndexProgress) Complete(stats ui.CompletionStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = ui.StageComplete
	p.processed = p.total
	p.documents = stats.Documents
	p.skipped = stats.Skipped
	p.chunks = stats.Chunks
}

// SetError marks the run failed.
func (p *IndexProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusError
	p.message = message
	p.endTime = p.now()
}

// SetReady marks the run finished.
func (p *IndexProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusReady
	p.endTime = p.now()
}

// IsIndexing reports whether a run is in progress.
func (p *IndexProgress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status == StatusIndexing
}

// Snapshot returns a copy of the current state.
func (p *IndexProgress) Snapshot() IndexProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := IndexProgressSnapshot{
		Status:       string(p.status),
		Total:        p.total,
		Processed:    p.processed,
		Documents:    p.documents,
		Skipped:      p.skipped,
		Chunks:       p.chunks,
		Errors:       p.errors,
		Warnings:     p.warnings,
		LastError:    p.lastError,
		ErrorMessage: p.message,
	}
	if p.status == StatusIdle {
		return snap
	}
	snap.Stage = strings.ToLower(p.stage.String())
	if p.total > 0 {
		snap.ProgressPct = float64(p.processed) / float64(p.total) * 100
	}
	end := p.endTime
	if end.IsZero() {
		end = p.now()
	}
	snap.ElapsedSeconds = int(end.Sub(p.startTime).Seconds())
	return snap
}
