package gateway

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payment-reconciliation/internal/domain"
)

var stripeTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04"}

var squareTimeLayouts = []string{"2006-01-02 15:04:05", "01/02/2006 15:04:05", "2006-01-02 15:04", "01/02/2006 15:04", time.DateOnly}

// CSVPaymentReader turns Stripe and Square CSV exports into payment documents.
type CSVPaymentReader struct {
	// Currency is used for exports that do not name one.
	Currency string
}

// NewCSVPaymentReader creates a new reader instance.
func NewCSVPaymentReader() *CSVPaymentReader {
	return &CSVPaymentReader{Currency: "AUD"}
}

// ReadPayments reads and parses every export file. Rows without a
// transaction id are skipped. Each document's _id is derived from its
// source and transaction id, so importing a file twice yields the same ids.
func (r *CSVPaymentReader) ReadPayments(ctx context.Context, paths []string) ([]domain.Document, error) {
	var payments []domain.Document
	for _, path := range paths {
		docs, err := r.readFile(ctx, path)
		if err != nil {
			return nil, err
		}
		payments = append(payments, docs...)
	}
	return payments, nil
}

func (r *CSVPaymentReader) readFile(ctx context.Context, path string) ([]domain.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open payment export %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	origin := detectExport(filepath.Base(path), header)
	if origin == domain.OriginGeneric {
		return nil, fmt.Errorf("unrecognised payment export %s", path)
	}

	var payments []domain.Document
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record from %s: %w", path, err)
		}

		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = strings.TrimSpace(record[i])
			}
		}

		var doc domain.Document
		if origin == domain.OriginStripe {
			doc, err = r.stripePayment(row)
		} else {
			doc, err = r.squarePayment(row)
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if doc == nil {
			continue
		}
		doc["sourceFile"] = filepath.Base(path)
		payments = append(payments, doc)
	}
	return payments, nil
}

func (r *CSVPaymentReader) stripePayment(row map[string]string) (domain.Document, error) {
	txID := row["id"]
	if txID == "" {
		return nil, nil
	}
	original := make(map[string]any, len(row))
	metadata := make(map[string]any)
	for k, v := range row {
		original[k] = v
		if strings.HasPrefix(k, "metadata[") && strings.HasSuffix(k, "]") {
			metadata[k[len("metadata["):len(k)-1]] = v
		}
	}
	if len(metadata) > 0 {
		original["metadata"] = metadata
	}

	gross, err := parseAmount(row["Amount"])
	if err != nil {
		return nil, err
	}
	fee, err := parseAmount(row["Fee"])
	if err != nil {
		return nil, err
	}
	refunded, err := parseAmount(row["Amount Refunded"])
	if err != nil {
		return nil, err
	}

	doc := domain.Document{
		domain.IDField:           "stripe:" + txID,
		"transactionId":          txID,
		"status":                 mapStatus(row["Status"]),
		"grossAmount":            gross.InexactFloat64(),
		"netAmount":              gross.Sub(fee).InexactFloat64(),
		"feeAmount":              fee.InexactFloat64(),
		"refundAmount":           refunded.InexactFloat64(),
		"currency":               firstNonEmpty(strings.ToUpper(row["Currency"]), r.Currency),
		"source":                 string(domain.OriginStripe),
		domain.OriginalDataField: original,
	}
	setIfPresent(doc, "paymentId", row["PaymentIntent ID"])
	setIfPresent(doc, "customerName", firstNonEmpty(row["Card Name"], row["Customer Description"]))
	setIfPresent(doc, "customerEmail", row["Customer Email"])
	setIfPresent(doc, "customerId", row["Customer ID"])
	setIfPresent(doc, "cardBrand", row["Card Brand"])
	setIfPresent(doc, "cardLast4", row["Card Last4"])
	setIfPresent(doc, "eventDescription", row["Description"])

	if created := firstNonEmpty(row["Created date (UTC)"], row["Created (UTC)"]); created != "" {
		ts, err := parseTime(created, stripeTimeLayouts)
		if err != nil {
			return nil, err
		}
		doc["timestamp"] = ts
	}
	return doc, nil
}

func (r *CSVPaymentReader) squarePayment(row map[string]string) (domain.Document, error) {
	txID := row["Transaction ID"]
	if txID == "" {
		return nil, nil
	}
	original := make(map[string]any, len(row))
	for k, v := range row {
		original[k] = v
	}

	gross, err := parseAmount(firstNonEmpty(row["Gross Sales"], row["Gross Amount"]))
	if err != nil {
		return nil, err
	}
	net, err := parseAmount(firstNonEmpty(row["Net Total"], row["Net Sales"]))
	if err != nil {
		return nil, err
	}
	fee, err := parseAmount(row["Fees"])
	if err != nil {
		return nil, err
	}
	refunded, err := parseAmount(row["Partial Refunds"])
	if err != nil {
		return nil, err
	}

	doc := domain.Document{
		domain.IDField:           "square:" + txID,
		"transactionId":          txID,
		"status":                 mapStatus(row["Transaction Status"]),
		"grossAmount":            gross.InexactFloat64(),
		"netAmount":              net.InexactFloat64(),
		"feeAmount":              fee.InexactFloat64(),
		"refundAmount":           refunded.InexactFloat64(),
		"currency":               r.Currency,
		"source":                 string(domain.OriginSquare),
		domain.OriginalDataField: original,
	}
	setIfPresent(doc, "paymentId", row["Payment ID"])
	setIfPresent(doc, "customerName", row["Customer Name"])
	setIfPresent(doc, "customerId", row["Customer ID"])
	setIfPresent(doc, "cardBrand", row["Card Brand"])
	setIfPresent(doc, "cardLast4", row["PAN Suffix"])
	setIfPresent(doc, "eventDescription", firstNonEmpty(row["Description"], row["Details"]))
	setIfPresent(doc, "organisation", row["Location"])

	if row["Date"] != "" {
		ts, err := parseTime(strings.TrimSpace(row["Date"]+" "+row["Time"]), squareTimeLayouts)
		if err != nil {
			return nil, err
		}
		doc["timestamp"] = ts
	}
	return doc, nil
}

// detectExport tells Stripe and Square exports apart by file name first and
// by their characteristic columns second.
func detectExport(name string, header []string) domain.PaymentOrigin {
	if strings.Contains(name, "items-") || strings.Contains(name, "transactions-") {
		return domain.OriginSquare
	}
	cols := make(map[string]bool, len(header))
	for _, h := range header {
		cols[h] = true
	}
	switch {
	case cols["PaymentIntent ID"], cols["id"] && cols["Amount"]:
		return domain.OriginStripe
	case cols["Transaction ID"]:
		return domain.OriginSquare
	default:
		return domain.OriginGeneric
	}
}

// parseAmount accepts "$1,234.50" and accounting-style "(12.00)"; the
// magnitude is returned. An empty cell is zero.
func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("(", "", ")", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return decimal.Zero, nil
	}
	d, ok := domain.ToDecimal(cleaned)
	if !ok {
		return decimal.Zero, fmt.Errorf("could not parse amount '%s'", s)
	}
	return d.Abs(), nil
}

func parseTime(s string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse timestamp '%s'", s)
}

func mapStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "complete", "completed", "paid", "succeeded":
		return "paid"
	case "failed":
		return "failed"
	case "refunded":
		return "refunded"
	default:
		return "pending"
	}
}

func setIfPresent(doc domain.Document, field, value string) {
	if value != "" {
		doc[field] = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
