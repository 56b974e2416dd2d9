package scan

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/echoreel/moderation/internal/item"
	"github.com/echoreel/moderation/internal/metrics"
)

// ErrScanRunning is returned when a rescan is triggered while one is
// already in flight.
var ErrScanRunning = errors.New("scan: a rescan is already running")

// priorityBoost is added to a report's cached priority when the analyzer
// flags its text. The authoritative priority is still recomputed on every
// queue read; the boost only influences the store's sort cache.
const priorityBoost = 50

// Source is the slice of the item store the runner needs.
type Source interface {
	ListOpenReports(ctx context.Context) ([]item.ModerationItem, error)
	SetCachedPriority(ctx context.Context, id string, priority int) error
}

// Config tunes the batch shape.
type Config struct {
	BatchSize   int           // reports processed concurrently per group
	Pause       time.Duration // pause between groups, for downstream rate limits
	ItemTimeout time.Duration // per-report budget
	RunTimeout  time.Duration // budget for one whole run, including the list read
}

// DefaultConfig processes 25 reports at a time with a 250ms pause and gives
// a whole run two minutes before the store reads are cancelled.
func DefaultConfig() Config {
	return Config{
		BatchSize:   25,
		Pause:       250 * time.Millisecond,
		ItemTimeout: 2 * time.Second,
		RunTimeout:  2 * time.Minute,
	}
}

// Status describes the last or current rescan run.
type Status struct {
	Running    bool       `json:"running"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Scanned    int        `json:"scanned"`
	Flagged    int        `json:"flagged"`
	Failed     int        `json:"failed"`
}

// Runner executes the report rescan job. One run at a time; failures are
// isolated per report and never abort the remaining groups. There is no
// mid-flight cancellation: dispatched report work runs to completion.
type Runner struct {
	source   Source
	analyzer *Analyzer
	config   Config

	mu     sync.Mutex
	status Status
}

// NewRunner creates a rescan runner over the given source.
func NewRunner(source Source, analyzer *Analyzer, config Config) *Runner {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultConfig().RunTimeout
	}
	return &Runner{source: source, analyzer: analyzer, config: config}
}

// Trigger starts a rescan in the background. Returns ErrScanRunning if one
// is already in flight.
func (r *Runner) Trigger() error {
	r.mu.Lock()
	if r.status.Running {
		r.mu.Unlock()
		return ErrScanRunning
	}
	now := time.Now().UTC()
	r.status = Status{Running: true, StartedAt: &now}
	r.mu.Unlock()

	go func() {
		r.Run(context.Background())
	}()
	return nil
}

// Status returns a snapshot of the last or current run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Run executes one rescan synchronously: list open reports, process them
// in fixed-size groups with a pause between groups, and bump the cached
// priority of every report the analyzer flags. The whole run is bounded by
// RunTimeout so a hung store read finishes as a failed run instead of
// holding the running flag forever.
func (r *Runner) Run(ctx context.Context) {
	r.begin()
	ctx, cancel := context.WithTimeout(ctx, r.config.RunTimeout)
	defer cancel()

	reports, err := r.source.ListOpenReports(ctx)
	if err != nil {
		log.Printf("[scan] list open reports: %v", err)
		r.finish()
		metrics.ScanRuns.WithLabelValues("failed").Inc()
		return
	}

	for start := 0; start < len(reports); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(reports) {
			end = len(reports)
		}
		r.processGroup(ctx, reports[start:end])

		if end < len(reports) && r.config.Pause > 0 {
			time.Sleep(r.config.Pause)
		}
	}

	status := r.finish()
	metrics.ScanRuns.WithLabelValues("completed").Inc()
	log.Printf("[scan] rescan complete scanned=%d flagged=%d failed=%d",
		status.Scanned, status.Flagged, status.Failed)
}

// processGroup analyzes one group of reports concurrently. A report's
// failure is counted and skipped; it never aborts the group.
func (r *Runner) processGroup(ctx context.Context, group []item.ModerationItem) {
	var wg sync.WaitGroup
	for i := range group {
		rep := group[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.processReport(ctx, rep)
		}()
	}
	wg.Wait()
}

func (r *Runner) processReport(ctx context.Context, rep item.ModerationItem) {
	result := r.analyzer.Check(rep.Details)

	r.mu.Lock()
	r.status.Scanned++
	r.mu.Unlock()

	if !result.Flagged {
		return
	}

	opCtx := ctx
	if r.config.ItemTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, r.config.ItemTimeout)
		defer cancel()
	}
	if err := r.source.SetCachedPriority(opCtx, rep.ID, rep.Priority+priorityBoost); err != nil {
		log.Printf("[scan] bump priority report=%s: %v", rep.ID, err)
		r.mu.Lock()
		r.status.Failed++
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.status.Flagged++
	r.mu.Unlock()
	log.Printf("[scan] FLAGGED report=%s reason=%s term=%q", rep.ID, result.Reason, result.Term)
}

// begin resets the run counters unless Trigger already did.
func (r *Runner) begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Running {
		return
	}
	now := time.Now().UTC()
	r.status = Status{Running: true, StartedAt: &now}
}

func (r *Runner) finish() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.status.Running = false
	r.status.FinishedAt = &now
	return r.status
}
