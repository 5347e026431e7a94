package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shoplist/internal/core"
	"shoplist/internal/sheets"
)

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often pending rows are flushed (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of rows exported per flush (default: 10)
	BatchSize int

	// MaxRetries is the number of attempts before a row is dropped (default: 3)
	MaxRetries int
}

func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval: 10 * time.Second,
		BatchSize:    10,
		MaxRetries:   3,
	}
}

type exportKey struct {
	userID int64
	month  string
}

type pendingExport struct {
	history  core.MonthlyHistory
	attempts int
}

// ExportProcessor queues history rows and flushes them to a sheet in the
// background. Rows for the same user and month coalesce: only the latest
// version is exported.
type ExportProcessor struct {
	exporter sheets.HistoryExporter
	config   ExportProcessorConfig

	qmu     sync.Mutex
	order   []exportKey
	pending map[exportKey]*pendingExport

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportProcessor(exporter sheets.HistoryExporter, config ExportProcessorConfig) *ExportProcessor {
	def := DefaultExportProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	return &ExportProcessor{
		exporter: exporter,
		config:   config,
		pending:  make(map[exportKey]*pendingExport),
	}
}

// Enqueue schedules h for export, replacing any pending row of the same month.
func (p *ExportProcessor) Enqueue(h core.MonthlyHistory) {
	k := exportKey{userID: h.UserID, month: h.Month}

	p.qmu.Lock()
	defer p.qmu.Unlock()
	if cur, ok := p.pending[k]; ok {
		cur.history = h
		cur.attempts = 0
		return
	}
	p.pending[k] = &pendingExport{history: h}
	p.order = append(p.order, k)
}

// Pending returns the number of rows waiting for export.
func (p *ExportProcessor) Pending() int {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	return len(p.pending)
}

// Start begins the flush loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stop, done)

	slog.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop flushes once more, stops the loop and waits for it to exit. It is
// safe to call repeatedly and concurrently; a call that times out can be
// retried and waits for the same loop.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stop, done := p.stopCh, p.doneCh
	p.stopCh = nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
	}

	select {
	case <-done:
		slog.InfoContext(ctx, "Export processor stopped gracefully", "pending", p.Pending())
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}
}

func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context, stop <-chan struct{}, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		if p.doneCh == done {
			p.running = false
			p.stopCh = nil
		}
		p.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			// Final flush on a context that outlives the caller's cancellation.
			p.Flush(context.WithoutCancel(ctx))
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// take removes up to n rows from the head of the queue.
func (p *ExportProcessor) take(n int) []*pendingExport {
	p.qmu.Lock()
	defer p.qmu.Unlock()

	var batch []*pendingExport
	for len(batch) < n && len(p.order) > 0 {
		k := p.order[0]
		p.order = p.order[1:]
		if e, ok := p.pending[k]; ok {
			delete(p.pending, k)
			batch = append(batch, e)
		}
	}
	return batch
}

// requeue puts a failed row back unless a newer one was enqueued meanwhile.
func (p *ExportProcessor) requeue(e *pendingExport) {
	k := exportKey{userID: e.history.UserID, month: e.history.Month}

	p.qmu.Lock()
	defer p.qmu.Unlock()
	if _, ok := p.pending[k]; ok {
		return
	}
	p.pending[k] = e
	p.order = append(p.order, k)
}

// Flush exports one batch and returns how many rows were written.
func (p *ExportProcessor) Flush(ctx context.Context) int {
	batch := p.take(p.config.BatchSize)
	if len(batch) == 0 {
		return 0
	}
	slog.DebugContext(ctx, "Exporting history batch", "count", len(batch))

	exported := 0
	for _, e := range batch {
		ref, err := p.exporter.ExportHistory(ctx, e.history)
		if err == nil {
			exported++
			slog.InfoContext(ctx, "Exported monthly history",
				"user_id", e.history.UserID,
				"month", e.history.Month,
				"sheets_ref", ref)
			continue
		}

		e.attempts++
		if e.attempts >= p.config.MaxRetries {
			slog.ErrorContext(ctx, "History export failed permanently after max retries",
				"user_id", e.history.UserID,
				"month", e.history.Month,
				"attempts", e.attempts,
				"error", err)
			continue
		}
		slog.WarnContext(ctx, "History export failed",
			"user_id", e.history.UserID,
			"month", e.history.Month,
			"attempt", e.attempts,
			"error", err)
		p.requeue(e)
	}
	return exported
}
