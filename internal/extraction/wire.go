package extraction

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/JaimeStill/manifest/pkg/formatting"
)

type response struct {
	Success         bool               `json:"success"`
	ErrorCode       string             `json:"errorCode"`
	ErrorMessage    string             `json:"errorMessage"`
	ExtractedText   string             `json:"extractedText"`
	InvoiceData     *invoiceData       `json:"invoiceData"`
	PageCount       int                `json:"pageCount"`
	Confidence      float64            `json:"confidence"`
	FieldConfidence map[string]float64 `json:"fieldConfidence"`
}

type invoiceData struct {
	VendorName   value  `json:"vendorName"`
	InvoiceID    value  `json:"invoiceId"`
	InvoiceDate  value  `json:"invoiceDate"`
	InvoiceTotal value  `json:"invoiceTotal"`
	Currency     value  `json:"currency"`
	Items        []item `json:"items"`
}

type item struct {
	Description value `json:"description"`
	Quantity    value `json:"quantity"`
	Unit        value `json:"unit"`
	UnitPrice   value `json:"unitPrice"`
	Amount      value `json:"amount"`
}

// value accepts the shapes the OCR service emits for a field: a string, a
// number, or a currency object {"amount": ..., "currencyCode": ...}.
type value struct {
	text     string
	currency string
}

func (v *value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '"':
		return json.Unmarshal(b, &v.text)
	case '{':
		var obj struct {
			Amount       value  `json:"amount"`
			CurrencyCode string `json:"currencyCode"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		v.text = obj.Amount.text
		v.currency = obj.CurrencyCode
		return nil
	case 't', 'f':
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		v.text = n.String()
		return nil
	}
}

func (v value) String() string {
	return strings.TrimSpace(v.text)
}

func (v value) number() *float64 {
	if v.String() == "" {
		return nil
	}
	n, err := formatting.ParseAmount(v.text)
	if err != nil {
		return nil
	}
	return &n
}

func (r *response) result() *Result {
	result := &Result{
		Text:       r.ExtractedText,
		PageCount:  r.PageCount,
		Confidence: r.overall(),
	}
	if r.InvoiceData == nil {
		return result
	}
	d := r.InvoiceData

	result.VendorName = r.field("vendorName", d.VendorName.String())
	result.InvoiceNumber = r.field("invoiceId", d.InvoiceID.String())
	result.InvoiceDate = r.field("invoiceDate", normalizeDate(d.InvoiceDate.String()))
	result.Total = r.field("invoiceTotal", normalizeAmount(d.InvoiceTotal.String()))

	currency := d.Currency.String()
	if currency == "" {
		currency = d.InvoiceTotal.currency
	}
	result.Currency = r.field("currency", strings.ToUpper(currency))

	result.LineItems = make([]LineItem, 0, len(d.Items))
	for _, it := range d.Items {
		result.LineItems = append(result.LineItems, LineItem{
			Description: it.Description.String(),
			Amount:      it.Amount.number(),
			Quantity:    it.Quantity.number(),
			Unit:        it.Unit.String(),
			UnitPrice:   it.UnitPrice.number(),
		})
	}

	return result
}

// overall is the service's confidence, or the mean of its field confidences
// when it reports none.
func (r *response) overall() float64 {
	if r.Confidence > 0 || len(r.FieldConfidence) == 0 {
		return clamp(r.Confidence)
	}
	var sum float64
	for _, c := range r.FieldConfidence {
		sum += clamp(c)
	}
	return sum / float64(len(r.FieldConfidence))
}

func (r *response) field(key, v string) Field {
	if v == "" {
		return Field{}
	}
	if c, ok := r.FieldConfidence[key]; ok {
		return Field{Value: v, Confidence: clamp(c)}
	}
	return Field{Value: v, Confidence: r.overall()}
}

func normalizeDate(s string) string {
	if d, err := formatting.NormalizeDate(s); err == nil {
		return d
	}
	return s
}

func normalizeAmount(s string) string {
	if n, err := formatting.ParseAmount(s); err == nil {
		return strconv.FormatFloat(n, 'f', 2, 64)
	}
	return s
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
