package workflow

import (
	"context"
	"fmt"
	"io"

	"github.com/JaimeStill/manifest/internal/documents"
)

// load downloads the stored invoice and extracts it. Either failure marks the
// document failed_extraction.
func load(ctx context.Context, rt *Runtime, s *state) error {
	data, err := download(ctx, rt, s.doc)
	if err != nil {
		return fail(ctx, rt, s, StepDownload, err)
	}
	s.data = data

	x, err := rt.Extractor.Extract(ctx, data, s.doc.ContentType, s.doc.ID.String())
	if err != nil {
		return fail(ctx, rt, s, StepExtract, err)
	}
	s.extracted = x

	rt.Logger.InfoContext(ctx, "extraction complete",
		"document_id", s.doc.ID,
		"line_items", len(x.LineItems),
		"confidence", x.Confidence,
		"attempts", x.Attempts,
	)
	return nil
}

func download(ctx context.Context, rt *Runtime, doc *documents.Document) ([]byte, error) {
	body, err := rt.Storage.Download(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("download blob: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func fail(ctx context.Context, rt *Runtime, s *state, step Step, cause error) error {
	return record(ctx, rt, s, documents.StatusFailedExtraction, step, cause)
}

// abort stops a document for a reason outside its own data. It ends cancelled
// so it can be resubmitted.
func abort(ctx context.Context, rt *Runtime, s *state, step Step, cause error) error {
	return record(ctx, rt, s, documents.StatusCancelled, step, cause)
}

func record(ctx context.Context, rt *Runtime, s *state, status documents.Status, step Step, cause error) error {
	failure := &documents.Failure{Step: string(step), Detail: cause.Error()}

	if _, err := rt.Documents.Fail(context.WithoutCancel(ctx), s.doc.ID, status, failure); err != nil {
		rt.Logger.ErrorContext(ctx, "record failure", "document_id", s.doc.ID, "error", err)
	}
	rt.Metrics.Document(string(status))

	rt.Logger.WarnContext(ctx, "document failed",
		"document_id", s.doc.ID,
		"step", step,
		"error", cause,
	)
	return stepError(step, cause)
}
