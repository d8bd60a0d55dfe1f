package ui

import (
	"sync"
	"time"
)

// etaSmoothingFactor is the weight of a new ETA sample against the previous one.
const etaSmoothingFactor = 0.3

// ProgressTracker holds progress state across stages. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu          sync.Mutex
	now         func() time.Time
	stage       Stage
	current     int
	total       int
	currentFile string
	startTime   time.Time
	stageStart  time.Time
	lastETA     time.Duration
	errors      int
	warnings    int
}

// ProgressStats is a snapshot of a tracker.
type ProgressStats struct {
	Stage       Stage         `json:"stage"`
	Current     int           `json:"current"`
	Total       int           `json:"total"`
	Progress    float64       `json:"progress"`
	ETA         time.Duration `json:"eta_ns"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	CurrentFile string        `json:"current_file,omitempty"`
	Errors      int           `json:"errors"`
	Warnings    int           `json:"warnings"`
}

// NewProgressTracker creates a tracker starting in StageScanning.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{now: now, stage: StageScanning, startTime: t, stageStart: t}
}

// Apply records a progress event. A stage change resets the counters.
func (p *ProgressTracker) Apply(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Stage != p.stage {
		p.stage = event.Stage
		p.stageStart = p.now()
		p.lastETA = 0
		p.currentFile = ""
	}
	p.current = event.Current
	p.total = event.Total
	if event.CurrentFile != "" {
		p.currentFile = event.CurrentFile
	}
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Complete moves the tracker to StageComplete.
func (p *ProgressTracker) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = StageComplete
	p.current = p.total
	p.lastETA = 0
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    p.progress(),
		ETA:         p.eta(),
		Elapsed:     p.now().Sub(p.startTime),
		CurrentFile: p.currentFile,
		Errors:      p.errors,
		Warnings:    p.warnings,
	}
}

func (p *ProgressTracker) progress() float64 {
	if p.total == 0 {
		return 0
	}
	return min(float64(p.current)/float64(p.total), 1)
}

// eta extrapolates the stage's elapsed time, smoothed exponentially so that
// uneven document sizes do not make it jump. Caller holds mu.
func (p *ProgressTracker) eta() time.Duration {
	progress := p.progress()
	if progress <= 0 || progress >= 1 {
		return 0
	}
	elapsed := p.now().Sub(p.stageStart)
	raw := time.Duration(float64(elapsed)/progress) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(raw) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}
