package validator

import (
	"fmt"
	"strings"

	"github.com/aliskhannn/image-compressor/internal/model"
)

const requiredScheme = "https://"

// ValidationError reports why an uploaded table was rejected.
// Row is 1-based over data rows; zero means the table as a whole.
type ValidationError struct {
	Row    int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row == 0 {
		return e.Reason
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// Validate checks every record of the table and returns the normalized rows.
//
// Validation is all-or-nothing: the first invalid row rejects the whole table.
// An empty table is valid and yields no rows.
func Validate(records []map[string]string) ([]model.Row, error) {
	rows := make([]model.Row, 0, len(records))

	for i, rec := range records {
		row, err := validateRecord(rec)
		if err != nil {
			return nil, &ValidationError{Row: i + 1, Reason: err.Error()}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func validateRecord(rec map[string]string) (model.Row, error) {
	serial := strings.TrimSpace(rec[model.ColumnSerialNumber])
	if serial == "" {
		return model.Row{}, fmt.Errorf("missing %q", model.ColumnSerialNumber)
	}

	name := strings.TrimSpace(rec[model.ColumnProductName])
	if name == "" {
		return model.Row{}, fmt.Errorf("missing %q", model.ColumnProductName)
	}

	rawURLs := rec[model.ColumnInputURLs]
	if strings.TrimSpace(rawURLs) == "" {
		return model.Row{}, fmt.Errorf("missing %q", model.ColumnInputURLs)
	}

	urls := SplitURLs(rawURLs)
	for _, u := range urls {
		if !strings.HasPrefix(u, requiredScheme) {
			return model.Row{}, fmt.Errorf("invalid image url %q: must start with %s", u, requiredScheme)
		}
	}

	return model.Row{SerialNumber: serial, Name: name, InputURLs: urls}, nil
}

// SplitURLs splits a comma-delimited URL list and trims every entry.
// Empty entries are kept so that callers can reject them.
func SplitURLs(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
