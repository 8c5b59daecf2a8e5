// Package csvimport turns uploaded contact sheets into bulk dialing entries.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/phone"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

// numberColumns are tried in order before falling back to sniffing every cell.
var numberColumns = []string{"number", "phone", "telephone", "contact", "mobile", "phonenumber"}

var nameColumns = []string{"name", "fullname", "contact name"}

// minSniffDigits is how many digits a cell needs before it is taken for a phone number.
const minSniffDigits = 7

// ErrNoNumbers is returned when a sheet yields no dialable rows.
var ErrNoNumbers = fmt.Errorf("%w: no valid phone numbers found in CSV file", apperrors.ErrValidation)

// Rejection records a row whose number could not be normalized.
type Rejection struct {
	Row    int    `json:"row"`
	Number string `json:"number"`
	Reason string `json:"reason"`
}

// Result is the outcome of parsing one sheet.
type Result struct {
	Entries    []domain.BatchEntry `json:"-"`
	Rows       int                 `json:"rows"`
	Accepted   int                 `json:"accepted"`
	Rejected   int                 `json:"rejected"`
	Rejections []Rejection         `json:"rejections,omitempty"`
}

// Options bounds a parse.
type Options struct {
	// Source is stored in each entry's metadata, usually the uploaded file name.
	Source string
	// MaxRows caps the number of data rows read; zero means unlimited.
	MaxRows int
	// MaxRejections caps how many rejections are itemized in the result.
	MaxRejections int
}

// Parse reads a header row followed by contact rows. Each row contributes at most one
// entry; rows without a recognizable number are skipped and rows with a number that
// cannot be normalized are counted as rejected.
func Parse(r io.Reader, opts Options) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoNumbers
		}
		return nil, fmt.Errorf("%w: read csv header: %v", apperrors.ErrValidation, err)
	}
	columns := normalizeHeader(header)
	if opts.MaxRejections <= 0 {
		opts.MaxRejections = 50
	}

	res := &Result{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv row %d: %v", apperrors.ErrValidation, res.Rows+2, err)
		}
		if opts.MaxRows > 0 && res.Rows >= opts.MaxRows {
			return nil, fmt.Errorf("%w: csv exceeds %d rows", apperrors.ErrValidation, opts.MaxRows)
		}
		res.Rows++

		row := toRow(columns, record)
		raw, field := findNumber(columns, row)
		if raw == "" {
			continue
		}

		normalized, err := phone.Normalize(raw)
		if err != nil {
			res.Rejected++
			if len(res.Rejections) < opts.MaxRejections {
				res.Rejections = append(res.Rejections, Rejection{Row: res.Rows + 1, Number: raw, Reason: err.Error()})
			}
			continue
		}

		res.Entries = append(res.Entries, domain.BatchEntry{
			Number:   normalized,
			Metadata: metadataFor(row, len(res.Entries)+1, raw, field, opts.Source),
		})
	}

	res.Accepted = len(res.Entries)
	if res.Accepted == 0 {
		return res, ErrNoNumbers
	}
	return res, nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

func toRow(columns, record []string) map[string]string {
	row := make(map[string]string, len(columns))
	for i, col := range columns {
		if i >= len(record) || col == "" {
			continue
		}
		if _, dup := row[col]; dup {
			continue
		}
		row[col] = strings.TrimSpace(record[i])
	}
	return row
}

// findNumber returns the first preferred column with a value, else the first cell in
// column order holding enough digits to be a phone number.
func findNumber(columns []string, row map[string]string) (string, string) {
	for _, col := range numberColumns {
		if v := row[col]; v != "" {
			return v, col
		}
	}
	for _, col := range columns {
		v := row[col]
		if v != "" && len(phone.Digits(v)) >= minSniffDigits {
			return v, col
		}
	}
	return "", ""
}

func metadataFor(row map[string]string, position int, original, field, source string) map[string]any {
	name := ""
	for _, col := range nameColumns {
		if v := row[col]; v != "" {
			name = v
			break
		}
	}
	if name == "" && field != "contact" && row["contact"] != "" {
		name = row["contact"]
	}
	if name == "" {
		name = fmt.Sprintf("Contact %d", position)
	}

	md := map[string]any{
		"name":           name,
		"email":          row["email"],
		"company":        row["company"],
		"originalNumber": original,
		"sourceField":    field,
	}
	if source != "" {
		md["source"] = source
	}
	return md
}
