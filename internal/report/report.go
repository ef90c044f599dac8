package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aliskhannn/image-compressor/internal/model"
)

const reportsDir = "reports"

// Header is the column order of every generated report.
var Header = []string{
	model.ColumnSerialNumber,
	model.ColumnProductName,
	model.ColumnInputURLs,
	model.ColumnOutputURLs,
}

// ErrMalformed is returned by Parse for a table that does not follow Header.
var ErrMalformed = errors.New("malformed report")

// fileStorage defines the interface for storing generated reports.
type fileStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	URL(path string) string
}

// Generator writes reports to file storage.
type Generator struct {
	fileStorage fileStorage
	now         func() time.Time
}

// NewGenerator creates a new Generator backed by fs.
func NewGenerator(fs fileStorage) *Generator {
	return &Generator{fileStorage: fs, now: time.Now}
}

// Generate encodes rows as CSV, stores the file and returns its public URL.
// Names carry the request ID and a timestamp so no two generations collide.
func (g *Generator) Generate(ctx context.Context, requestID uuid.UUID, rows []model.ResultRow) (string, error) {
	buf := bytes.NewBuffer(nil)
	if err := Encode(buf, rows); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	name := fmt.Sprintf("output_%s_%d.csv", requestID, g.now().UnixNano())

	dst, err := g.fileStorage.Save(ctx, reportsDir, name, buf)
	if err != nil {
		return "", fmt.Errorf("generate: failed to save report: %w", err)
	}

	return g.fileStorage.URL(dst), nil
}

// Encode writes the header and one line per row. Output is byte-for-byte
// identical for identical input.
func Encode(w io.Writer, rows []model.ResultRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.SerialNumber,
			r.Name,
			strings.Join(r.InputURLs, ","),
			strings.Join(r.OutputURLs, ","),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %q: %w", r.SerialNumber, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}

	return nil
}

// Parse reads a report written by Encode back into rows.
func Parse(r io.Reader) ([]model.ResultRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}

	for i, h := range Header {
		if records[0][i] != h {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrMalformed, i+1, records[0][i], h)
		}
	}

	rows := make([]model.ResultRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, model.ResultRow{
			SerialNumber: rec[0],
			Name:         rec[1],
			InputURLs:    splitList(rec[2]),
			OutputURLs:   splitList(rec[3]),
		})
	}

	return rows, nil
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
