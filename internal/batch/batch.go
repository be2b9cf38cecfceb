// Package batch is the Batch Execution Coordinator: it drives many documents
// through the processing pipeline with a fixed worker pool, isolates
// per-document failures, and supports cooperative cancellation.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/documents"
	"github.com/JaimeStill/manifest/internal/scoring"
	"github.com/JaimeStill/manifest/internal/telemetry"
	"github.com/JaimeStill/manifest/internal/workflow"
	"github.com/JaimeStill/manifest/pkg/lifecycle"
)

// Status is a batch's position in its lifecycle.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusAborted   Status = "aborted"
)

// Item is the outcome of one document within a batch. Status is empty until
// the document finishes.
type Item struct {
	DocumentID uuid.UUID        `json:"document_id"`
	Status     documents.Status `json:"status,omitempty"`
	Lane       scoring.Lane     `json:"lane,omitempty"`
	Step       workflow.Step    `json:"step,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Report summarizes a batch. Failed counts documents that ended without a
// score, including ones that could not be loaded.
type Report struct {
	ID          uuid.UUID            `json:"id"`
	Status      Status               `json:"status"`
	Total       int                  `json:"total"`
	Completed   int                  `json:"completed"`
	Partial     int                  `json:"partial"`
	Failed      int                  `json:"failed"`
	Cancelled   int                  `json:"cancelled"`
	Pending     int                  `json:"pending"`
	Lanes       map[scoring.Lane]int `json:"lanes"`
	Items       []Item               `json:"items"`
	Error       string               `json:"error,omitempty"`
	SubmittedAt time.Time            `json:"submitted_at"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
}

// SubmitCommand lists the documents to process.
type SubmitCommand struct {
	DocumentIDs []uuid.UUID `json:"document_ids"`
}

// Coordinator runs batches and tracks their progress in memory.
type Coordinator struct {
	rt      *workflow.Runtime
	cfg     Config
	metrics *telemetry.Metrics
	logger  *slog.Logger

	base context.Context
	wg   sync.WaitGroup

	mu      sync.RWMutex
	batches map[uuid.UUID]*run
}

// New creates a Coordinator. Batches run under context.Background until Start
// binds them to a lifecycle.
func New(rt *workflow.Runtime, cfg Config, metrics *telemetry.Metrics, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		rt:      rt,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("system", "batch"),
		base:    context.Background(),
		batches: make(map[uuid.UUID]*run),
	}
}

// Start ties running batches to lc: shutdown stops every batch from dequeuing
// and waits for in-flight documents.
func (c *Coordinator) Start(lc *lifecycle.Coordinator) {
	c.base = lc.Context()
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		c.logger.Info("waiting for in-flight batches")
		c.wg.Wait()
	})
}

func (c *Coordinator) Handler() *Handler {
	return NewHandler(c, c.logger)
}

// Submit starts a batch in the background and returns its initial report.
func (c *Coordinator) Submit(cmd SubmitCommand) (*Report, error) {
	r, err := c.prepare(cmd.DocumentIDs)
	if err != nil {
		return nil, err
	}

	c.wg.Go(func() { c.execute(r) })
	return r.report(), nil
}

// Run executes a batch and blocks until it finishes or ctx is cancelled.
// Cancelling ctx cancels the batch.
func (c *Coordinator) Run(ctx context.Context, ids []uuid.UUID) (*Report, error) {
	r, err := c.prepare(ids)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, r.cancel)
	defer stop()

	c.wg.Add(1)
	defer c.wg.Done()
	c.execute(r)

	return r.report(), nil
}

// Status returns the current report of a batch.
func (c *Coordinator) Status(id uuid.UUID) (*Report, error) {
	r, err := c.find(id)
	if err != nil {
		return nil, err
	}
	return r.report(), nil
}

// Cancel stops a batch from starting further documents. Documents already in
// flight finish with their natural outcome.
func (c *Coordinator) Cancel(id uuid.UUID) (*Report, error) {
	r, err := c.find(id)
	if err != nil {
		return nil, err
	}
	if r.finished() {
		return nil, fmt.Errorf("%w: %s", ErrFinished, id)
	}

	r.cancel()
	c.logger.Info("batch cancellation requested", "batch_id", id)
	return r.report(), nil
}

// Wait blocks until the batch finishes or ctx is done.
func (c *Coordinator) Wait(ctx context.Context, id uuid.UUID) (*Report, error) {
	r, err := c.find(id)
	if err != nil {
		return nil, err
	}

	select {
	case <-r.done:
		return r.report(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) prepare(ids []uuid.UUID) (*run, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(ids) > c.cfg.MaxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ids), c.cfg.MaxSize)
	}

	r := newRun(c.base, ids)

	c.mu.Lock()
	c.prune()
	c.batches[r.id] = r
	c.mu.Unlock()

	return r, nil
}

func (c *Coordinator) find(id uuid.UUID) (*run, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return r, nil
}

// prune drops finished batches older than the retention window.
// Callers must hold c.mu.
func (c *Coordinator) prune() {
	cutoff := time.Now().Add(-c.cfg.RetentionDuration())
	for id, r := range c.batches {
		if at := r.finishedAt(); at != nil && at.Before(cutoff) {
			delete(c.batches, id)
		}
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return slices.Clip(out)
}
