package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/documents"
	"github.com/JaimeStill/manifest/internal/scoring"
	"github.com/JaimeStill/manifest/internal/workflow"
)

// run is the live state of one batch.
type run struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	items     []Item
	status    Status
	cause     error
	submitted time.Time
	ended     *time.Time
}

func newRun(base context.Context, ids []uuid.UUID) *run {
	ctx, cancel := context.WithCancel(base)
	items := make([]Item, len(ids))
	for i, id := range ids {
		items[i] = Item{DocumentID: id}
	}
	return &run{
		id:        uuid.New(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		items:     items,
		status:    StatusRunning,
		submitted: time.Now().UTC(),
	}
}

// execute dequeues documents into at most cfg.Workers concurrent pipelines.
// Once the batch context is cancelled no further document starts; documents
// already started run to completion on a context detached from it.
func (c *Coordinator) execute(r *run) {
	defer close(r.done)
	defer r.cancel()

	c.metrics.BatchStarted()
	defer c.metrics.BatchFinished()

	c.logger.Info("batch started", "batch_id", r.id, "documents", len(r.items), "workers", c.cfg.Workers)
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)

	for i := range r.items {
		if r.ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if r.ctx.Err() != nil {
				return nil
			}
			c.process(r, i)
			return nil
		})
	}
	g.Wait()

	c.cancelPending(r)
	report := r.finish()

	c.logger.Info("batch finished",
		"batch_id", r.id,
		"status", report.Status,
		"completed", report.Completed,
		"partial", report.Partial,
		"failed", report.Failed,
		"cancelled", report.Cancelled,
		"duration", time.Since(start),
	)
}

func (c *Coordinator) process(r *run, i int) {
	id := r.items[i].DocumentID
	ctx := context.WithoutCancel(r.ctx)

	out, err := workflow.Execute(ctx, c.rt, id)
	if err == nil {
		r.set(i, Item{
			DocumentID: id,
			Status:     out.Document.Status,
			Lane:       out.Document.Score.Lane,
		})
		return
	}

	item := Item{
		DocumentID: id,
		Step:       workflow.FailedStep(err),
		Error:      err.Error(),
	}
	if doc, ferr := c.rt.Documents.Find(ctx, id); ferr == nil && doc.Status.Terminal() {
		item.Status = doc.Status
	}
	r.set(i, item)

	if errors.Is(err, classifier.ErrRuleStoreUnavailable) {
		r.abort(err)
		c.logger.Error("batch aborted", "batch_id", r.id, "document_id", id, "error", err)
	}
}

// cancelPending marks every document that never started as cancelled.
func (c *Coordinator) cancelPending(r *run) {
	ctx := context.WithoutCancel(r.ctx)
	detail := "batch cancelled before start"
	if cause := r.err(); cause != nil {
		detail = "batch aborted before start: " + cause.Error()
	}

	for i, item := range r.snapshot() {
		if item.Status != "" || item.Error != "" {
			continue
		}
		_, err := c.rt.Documents.Fail(ctx, item.DocumentID, documents.StatusCancelled, &documents.Failure{
			Step:   "batch",
			Detail: detail,
		})
		if err != nil {
			c.logger.Warn("cancel document", "batch_id", r.id, "document_id", item.DocumentID, "error", err)
		}
		c.metrics.Document(string(documents.StatusCancelled))
		item.Status = documents.StatusCancelled
		r.set(i, item)
	}
}

func (r *run) set(i int, item Item) {
	r.mu.Lock()
	r.items[i] = item
	r.mu.Unlock()
}

func (r *run) snapshot() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Item, len(r.items))
	copy(out, r.items)
	return out
}

func (r *run) abort(cause error) {
	r.mu.Lock()
	if r.cause == nil {
		r.cause = cause
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *run) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cause
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *run) finishedAt() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

func (r *run) finish() *Report {
	r.mu.Lock()
	now := time.Now().UTC()
	r.ended = &now
	switch {
	case r.cause != nil:
		r.status = StatusAborted
	case r.ctx.Err() != nil:
		r.status = StatusCancelled
	default:
		r.status = StatusCompleted
	}
	r.mu.Unlock()
	return r.report()
}

func (r *run) report() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := &Report{
		ID:          r.id,
		Status:      r.status,
		Total:       len(r.items),
		Lanes:       make(map[scoring.Lane]int),
		Items:       make([]Item, len(r.items)),
		SubmittedAt: r.submitted,
		FinishedAt:  r.ended,
	}
	copy(rep.Items, r.items)
	if r.cause != nil {
		rep.Error = r.cause.Error()
	}

	for _, it := range r.items {
		switch {
		case it.Status == documents.StatusCompleted:
			rep.Completed++
		case it.Status == documents.StatusClassificationPartial:
			rep.Partial++
		case it.Status == documents.StatusCancelled:
			rep.Cancelled++
		case it.Status == "" && it.Error == "":
			rep.Pending++
		default:
			rep.Failed++
		}
		if it.Lane != "" {
			rep.Lanes[it.Lane]++
		}
	}
	return rep
}
