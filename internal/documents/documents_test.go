package documents_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/documents"
	"github.com/JaimeStill/manifest/internal/scoring"
	"github.com/JaimeStill/manifest/pkg/pagination"
	"github.com/JaimeStill/manifest/pkg/routes"
	"github.com/JaimeStill/manifest/pkg/storage"
)

var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) (documents.System, storage.System) {
	t.Helper()
	blobs := storage.NewMemory()
	return documents.NewMemory(blobs, discard(), pagination.Config{DefaultPageSize: 25, MaxPageSize: 100}), blobs
}

func create(t *testing.T, sys documents.System) *documents.Document {
	t.Helper()
	doc, err := sys.Create(context.Background(), documents.CreateCommand{
		Data:        png,
		Filename:    "../invoice 001.png",
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return doc
}

func amount(v float64) *float64 { return &v }

func save(t *testing.T, sys documents.System, id uuid.UUID) *documents.Result {
	t.Helper()

	s := scoring.DocumentScore{
		Extraction: 90, Classification: 90, Validation: 90, Overall: 90,
		Flags: []scoring.Flag{scoring.FlagTotalMismatch},
		Lane:  scoring.LaneQuickReview,
	}
	lines := []documents.Line{
		documents.LineFromResult(0, amount(1000), classifier.Result{
			Description: "Ocean Freight", Normalized: "OCEAN FREIGHT",
			Category: "OCEAN_FREIGHT", Confidence: 1, Method: classifier.MethodExact,
		}),
		documents.LineFromResult(1, amount(70), classifier.Result{
			Description: "Doc fee", Normalized: "DOC FEE",
			Category: "OTHER", Confidence: 0.6, Method: classifier.MethodLLM,
			Alternatives: []classifier.Candidate{{Category: "DOCS_FEE", Confidence: 0.3, Method: classifier.MethodLLM}},
		}),
	}

	result, err := sys.Save(context.Background(), id, documents.SaveCommand{
		Status: documents.StatusCompleted,
		Header: documents.Header{VendorName: "ACME", InvoiceNumber: "INV-001", Total: amount(1000), Currency: "USD"},
		Score:  s,
		Lines:  lines,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return result
}

func TestCreateStoresBlob(t *testing.T) {
	sys, blobs := newStore(t)
	doc := create(t, sys)

	if doc.Status != documents.StatusPending || doc.SizeBytes != int64(len(png)) {
		t.Errorf("doc = %+v", doc)
	}
	if doc.StorageKey != "documents/"+doc.ID.String()+"/invoice%20001.png" {
		t.Errorf("StorageKey = %q", doc.StorageKey)
	}

	rc, err := blobs.Download(context.Background(), doc.StorageKey)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !bytes.Equal(data, png) {
		t.Error("stored blob differs from upload")
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	sys, _ := newStore(t)
	doc := create(t, sys)

	begun, err := sys.Begin(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if begun.Status != documents.StatusProcessing || begun.Attempts != 1 {
		t.Errorf("begun = %s attempts %d", begun.Status, begun.Attempts)
	}
	if _, err := sys.Begin(ctx, doc.ID); !errors.Is(err, documents.ErrInvalidStatus) {
		t.Errorf("second Begin err = %v, want ErrInvalidStatus", err)
	}

	result := save(t, sys, doc.ID)
	if result.Document.Score == nil || result.Document.Score.Lane != scoring.LaneQuickReview {
		t.Fatalf("saved score = %+v", result.Document.Score)
	}
	if len(result.Lines) != 2 || result.Lines[0].ID == uuid.Nil {
		t.Fatalf("lines = %+v", result.Lines)
	}

	if _, err := sys.Begin(ctx, doc.ID); err != nil {
		t.Fatalf("reprocess Begin: %v", err)
	}
	failed, err := sys.Fail(ctx, doc.ID, documents.StatusFailedExtraction, &documents.Failure{Step: "extract", Detail: "timeout"})
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Score != nil || failed.Failure == nil || failed.Attempts != 2 {
		t.Errorf("failed = %+v", failed)
	}

	after, err := sys.Result(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if len(after.Lines) != 0 {
		t.Errorf("lines survived failure: %d", len(after.Lines))
	}

	if _, err := sys.Fail(ctx, doc.ID, documents.StatusCompleted, nil); !errors.Is(err, documents.ErrInvalidStatus) {
		t.Errorf("Fail(completed) err = %v", err)
	}
	if _, err := sys.Save(ctx, doc.ID, documents.SaveCommand{Status: documents.StatusCancelled}); !errors.Is(err, documents.ErrInvalidStatus) {
		t.Errorf("Save(cancelled) err = %v", err)
	}
}

func TestCorrect(t *testing.T) {
	ctx := context.Background()
	sys, _ := newStore(t)
	company := uuid.New()

	doc, err := sys.Create(ctx, documents.CreateCommand{Data: png, Filename: "a.png", ContentType: "image/png", CompanyID: &company})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	result := save(t, sys, doc.ID)
	if result.Document.CompanyID == nil || *result.Document.CompanyID != company {
		t.Fatalf("Save dropped the upload company: %v", result.Document.CompanyID)
	}
	line := result.Lines[1]

	_, err = sys.Correct(ctx, documents.CorrectCommand{
		LineID: line.ID, PreviousCategory: "THC", CorrectedCategory: "DOCS_FEE", CorrectedBy: "reviewer",
	})
	if !errors.Is(err, documents.ErrStaleCorrection) {
		t.Fatalf("stale correction err = %v", err)
	}

	c, err := sys.Correct(ctx, documents.CorrectCommand{
		LineID: line.ID, PreviousCategory: "OTHER", CorrectedCategory: "DOCS_FEE", CorrectedBy: "reviewer",
	})
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if c.Description != "DOC FEE" || c.PreviousCategory != "OTHER" || c.CompanyID == nil || *c.CompanyID != company {
		t.Errorf("correction = %+v", c)
	}

	updated, err := sys.FindLine(ctx, line.ID)
	if err != nil {
		t.Fatalf("FindLine: %v", err)
	}
	if updated.Category != "DOCS_FEE" || updated.Method != classifier.MethodHuman || updated.Confidence != 1 || len(updated.Alternatives) != 0 {
		t.Errorf("updated line = %+v", updated)
	}

	page, err := sys.Corrections(ctx, pagination.PageRequest{}, documents.CorrectionFilters{DocumentID: &doc.ID})
	if err != nil {
		t.Fatalf("Corrections: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("corrections total = %d, want 1", page.Total)
	}

	invalid := []documents.CorrectCommand{
		{CorrectedCategory: "DOCS_FEE", CorrectedBy: "r"},
		{LineID: line.ID, CorrectedBy: "r"},
		{LineID: line.ID, CorrectedCategory: "DOCS_FEE"},
	}
	for _, cmd := range invalid {
		if _, err := sys.Correct(ctx, cmd); !errors.Is(err, documents.ErrInvalidCorrection) {
			t.Errorf("Correct(%+v) err = %v, want ErrInvalidCorrection", cmd, err)
		}
	}
	if _, err := sys.Correct(ctx, documents.CorrectCommand{LineID: uuid.New(), CorrectedCategory: "X", CorrectedBy: "r"}); !errors.Is(err, documents.ErrLineNotFound) {
		t.Errorf("unknown line err = %v", err)
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	sys, _ := newStore(t)

	first := create(t, sys)
	create(t, sys)
	save(t, sys, first.ID)

	lane := scoring.LaneQuickReview
	page, err := sys.List(ctx, pagination.PageRequest{}, documents.Filters{Lane: &lane})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 || page.Data[0].ID != first.ID {
		t.Errorf("lane filter returned %d documents", page.Total)
	}

	pending := documents.StatusPending
	page, err = sys.List(ctx, pagination.PageRequest{}, documents.Filters{Status: &pending})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("status filter total = %d, want 1", page.Total)
	}

	floor := 95.0
	page, _ = sys.List(ctx, pagination.PageRequest{}, documents.Filters{MinScore: &floor})
	if page.Total != 0 {
		t.Errorf("min score filter total = %d, want 0", page.Total)
	}
}

func upload(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="invoice.bin"`)
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHandler(t *testing.T) {
	sys, _ := newStore(t)
	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler(1<<20).Routes())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, upload(t, "image/png", png))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body)
	}
	var doc documents.Document
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, upload(t, "text/plain", []byte("hello")))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("text upload status = %d, want 415", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, upload(t, "image/png", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty upload status = %d, want 400", rec.Code)
	}

	small := http.NewServeMux()
	routes.Register(small, sys.Handler(64).Routes())
	rec = httptest.NewRecorder()
	small.ServeHTTP(rec, upload(t, "image/png", bytes.Repeat(png, 16)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized upload status = %d, want 413", rec.Code)
	}

	tests := []struct {
		target string
		status int
	}{
		{"/documents/" + doc.ID.String(), http.StatusOK},
		{"/documents/" + doc.ID.String() + "/result", http.StatusOK},
		{"/documents/" + uuid.NewString(), http.StatusNotFound},
		{"/documents/not-a-uuid", http.StatusBadRequest},
		{"/documents?status=pending", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
		if rec.Code != tt.status {
			t.Errorf("GET %s = %d, want %d", tt.target, rec.Code, tt.status)
		}
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", documents.ErrNotFound, http.StatusNotFound},
		{"stale correction", documents.ErrStaleCorrection, http.StatusConflict},
		{"too large", documents.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"unsupported type", documents.ErrUnsupportedType, http.StatusUnsupportedMediaType},
		{"blob missing", storage.ErrNotFound, http.StatusNotFound},
		{"bad key", storage.ErrInvalidKey, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := documents.MapHTTPStatus(tt.err); got != tt.want {
				t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
