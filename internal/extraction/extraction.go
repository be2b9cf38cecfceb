// Package extraction is the client for the OCR service that turns a scanned
// invoice into header fields and line items.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/time/rate"

	"github.com/JaimeStill/manifest/internal/telemetry"
	"github.com/JaimeStill/manifest/pkg/formatting"
)

const maxResponseBytes = 16 << 20

var supportedTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/tiff":      true,
	"image/bmp":       true,
}

// Supported reports whether contentType can be sent to the OCR service.
func Supported(contentType string) bool {
	return supportedTypes[mediaType(contentType)]
}

// Field is one extracted header value with the service's confidence in it.
type Field struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Present reports whether the field carries a non-blank value.
func (f Field) Present() bool {
	return strings.TrimSpace(f.Value) != ""
}

// LineItem is one cost line from the invoice body.
type LineItem struct {
	Description string   `json:"description"`
	Amount      *float64 `json:"amount,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
}

// Complete reports whether the line has both a description and a numeric amount.
func (l LineItem) Complete() bool {
	return strings.TrimSpace(l.Description) != "" && l.Amount != nil
}

// Result is the structured output of one extraction.
type Result struct {
	VendorName    Field      `json:"vendor_name"`
	InvoiceNumber Field      `json:"invoice_number"`
	InvoiceDate   Field      `json:"invoice_date"`
	Total         Field      `json:"total"`
	Currency      Field      `json:"currency"`
	LineItems     []LineItem `json:"line_items"`
	Confidence    float64    `json:"confidence"`
	Text          string     `json:"text,omitempty"`
	PageCount     int        `json:"page_count"`
	Attempts      int        `json:"attempts"`
}

// TotalAmount parses the declared invoice total.
func (r Result) TotalAmount() (float64, bool) {
	if !r.Total.Present() {
		return 0, false
	}
	v, err := formatting.ParseAmount(r.Total.Value)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Date parses the invoice date.
func (r Result) Date() (time.Time, bool) {
	if !r.InvoiceDate.Present() {
		return time.Time{}, false
	}
	t, err := formatting.ParseDate(r.InvoiceDate.Value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Client posts documents to the OCR service's /extract/file endpoint.
type Client struct {
	http        *http.Client
	endpoint    string
	maxAttempts int
	backoff     time.Duration
	maxSize     int64
	limiter     *rate.Limiter
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

// New creates a Client. A nil limiter disables rate limiting.
func New(cfg Config, limiter *rate.Limiter, metrics *telemetry.Metrics, logger *slog.Logger) *Client {
	return &Client{
		http:        &http.Client{Timeout: cfg.TimeoutDuration()},
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/extract/file",
		maxAttempts: max(cfg.MaxAttempts, 1),
		backoff:     cfg.BaseBackoffDuration(),
		maxSize:     cfg.MaxFileSizeBytes(),
		limiter:     limiter,
		metrics:     metrics,
		logger:      logger.With("system", "extraction"),
	}
}

// Extract sends data to the OCR service, retrying retryable failures with
// exponential backoff. Terminal failures are returned as *Error. A cancelled
// context stops retries and returns the context error.
func (c *Client) Extract(ctx context.Context, data []byte, contentType, documentID string) (*Result, error) {
	contentType = mediaType(contentType)
	pages, err := c.precheck(data, contentType)
	if err != nil {
		return nil, err
	}

	var last *Error
	for attempt := range c.maxAttempts {
		if attempt > 0 {
			delay := c.backoff * time.Duration(1<<(attempt-1))
			c.logger.WarnContext(ctx, "retrying extraction",
				"document_id", documentID,
				"attempt", attempt+1,
				"delay", delay,
				"code", last.Code,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		result, xerr := c.call(ctx, data, contentType, documentID)
		if xerr == nil {
			result.Attempts = attempt + 1
			if result.PageCount == 0 {
				result.PageCount = pages
			}
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		xerr.Attempts = attempt + 1
		last = xerr
		if !xerr.Retryable() {
			break
		}
	}

	return nil, last
}

func (c *Client) precheck(data []byte, contentType string) (int, error) {
	if !supportedTypes[contentType] {
		return 0, &Error{Code: CodeUnsupportedFormat, Message: fmt.Sprintf("content type %q", contentType)}
	}
	if len(data) == 0 {
		return 0, &Error{Code: CodeInvalidInput, Message: "empty document"}
	}
	if c.maxSize > 0 && int64(len(data)) > c.maxSize {
		return 0, &Error{
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("%s exceeds %s", formatting.FormatBytes(int64(len(data)), 1), formatting.FormatBytes(c.maxSize, 1)),
		}
	}
	if contentType != "application/pdf" {
		return 1, nil
	}

	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, &Error{Code: CodeInvalidInput, Message: fmt.Sprintf("unreadable pdf: %v", err)}
	}
	return pages, nil
}

func (c *Client) call(ctx context.Context, data []byte, contentType, documentID string) (*Result, *Error) {
	body, boundary, err := encode(data, contentType, documentID)
	if err != nil {
		return nil, &Error{Code: CodeInvalidInput, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, &Error{Code: CodeUnknown, Message: err.Error()}
	}
	req.Header.Set("Content-Type", boundary)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ExternalCall("ocr", err, time.Since(start))
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	xerr := statusError(resp.StatusCode, raw, err)
	if xerr != nil {
		c.metrics.ExternalCall("ocr", xerr, time.Since(start))
		return nil, xerr
	}

	var wire response
	if err := json.Unmarshal(raw, &wire); err != nil {
		xerr = &Error{Code: CodeServiceError, Message: fmt.Sprintf("decode response: %v", err)}
		c.metrics.ExternalCall("ocr", xerr, time.Since(start))
		return nil, xerr
	}
	if !wire.Success {
		xerr = &Error{Code: knownCode(wire.ErrorCode), Message: wire.ErrorMessage}
		c.metrics.ExternalCall("ocr", xerr, time.Since(start))
		return nil, xerr
	}
	c.metrics.ExternalCall("ocr", nil, time.Since(start))

	result := wire.result()
	c.logger.DebugContext(ctx, "extraction complete",
		"document_id", documentID,
		"line_items", len(result.LineItems),
		"confidence", result.Confidence,
		"duration", time.Since(start),
	)
	return result, nil
}

func encode(data []byte, contentType, documentID string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("documentId", documentID); err != nil {
		return nil, "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, documentID))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}

func transportError(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Code: CodeTimeout, Message: err.Error()}
	}
	return &Error{Code: CodeNetworkError, Message: err.Error()}
}

func statusError(status int, body []byte, readErr error) *Error {
	if readErr != nil {
		return &Error{Code: CodeNetworkError, Message: fmt.Sprintf("read response: %v", readErr)}
	}

	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusRequestEntityTooLarge:
		return &Error{Code: CodeFileTooLarge, Message: string(body)}
	case status == http.StatusUnsupportedMediaType:
		return &Error{Code: CodeUnsupportedFormat, Message: string(body)}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		var wire response
		if json.Unmarshal(body, &wire) == nil && wire.ErrorCode != "" {
			return &Error{Code: knownCode(wire.ErrorCode), Message: wire.ErrorMessage}
		}
		return &Error{Code: CodeInvalidInput, Message: string(body)}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &Error{Code: CodeTimeout, Message: http.StatusText(status)}
	case status >= 500:
		return &Error{Code: CodeServiceError, Message: fmt.Sprintf("status %d", status)}
	default:
		return &Error{Code: CodeUnknown, Message: fmt.Sprintf("status %d", status)}
	}
}

func knownCode(code string) Code {
	switch c := Code(code); c {
	case CodeInvalidInput, CodeNetworkError, CodeServiceError, CodeTimeout,
		CodeUnsupportedFormat, CodeFileTooLarge:
		return c
	}
	return CodeUnknown
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
