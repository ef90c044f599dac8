package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/model"
)

// Mode selects how a failed image affects the rest of its request.
type Mode string

const (
	// FailFast stops the request at the first failed image. Remaining images
	// stay pending and the request ends failed.
	FailFast Mode = "fail_fast"
	// Isolate attempts every image. Failed images are marked failed and the
	// request still ends failed, without a report.
	Isolate Mode = "isolate"
)

// ParseMode converts a configuration value to a Mode. Empty means FailFast.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailFast:
		return FailFast, nil
	case Isolate:
		return Isolate, nil
	default:
		return "", fmt.Errorf("unknown failure mode %q", s)
	}
}

// store defines the status updates the pipeline performs.
type store interface {
	SetRequestStatus(ctx context.Context, id uuid.UUID, status model.RequestStatus) error
	SetImageStatus(ctx context.Context, requestID uuid.UUID, inputURL string, status model.ImageStatus, outputURL string) error
}

// transformer compresses a single remote image.
type transformer interface {
	Compress(ctx context.Context, url string) (string, error)
}

// reporter writes the final report and returns its location.
type reporter interface {
	Generate(ctx context.Context, requestID uuid.UUID, rows []model.ResultRow) (string, error)
}

// notifier announces a completed request.
type notifier interface {
	Notify(ctx context.Context, requestID uuid.UUID, outputURL string)
}

// Pipeline drives one request from validated rows to a completed report.
type Pipeline struct {
	store       store
	transformer transformer
	reporter    reporter
	notifier    notifier
	mode        Mode
}

// New creates a new Pipeline.
func New(s store, t transformer, r reporter, n notifier, mode Mode) *Pipeline {
	if mode == "" {
		mode = FailFast
	}
	return &Pipeline{store: s, transformer: t, reporter: r, notifier: n, mode: mode}
}

// Run processes every URL of every row in order, generates the report,
// completes the request and sends the notification.
//
// Any failure moves the request to failed and is returned. Images are
// processed sequentially, so the request status only ever moves forward.
func (p *Pipeline) Run(ctx context.Context, requestID uuid.UUID, rows []model.Row) error {
	if err := p.store.SetRequestStatus(ctx, requestID, model.RequestProcessing); err != nil {
		return fmt.Errorf("start request %s: %w", requestID, err)
	}

	zlog.Logger.Info().
		Str("request_id", requestID.String()).
		Int("rows", len(rows)).
		Str("mode", string(p.mode)).
		Msg("processing started")

	results, err := p.compressAll(ctx, requestID, rows)
	if err != nil {
		return p.fail(ctx, requestID, err)
	}

	outputURL, err := p.reporter.Generate(ctx, requestID, results)
	if err != nil {
		return p.fail(ctx, requestID, fmt.Errorf("generate report: %w", err))
	}

	if err := p.store.SetRequestStatus(ctx, requestID, model.RequestCompleted); err != nil {
		return fmt.Errorf("complete request %s: %w", requestID, err)
	}

	zlog.Logger.Info().
		Str("request_id", requestID.String()).
		Str("output_url", outputURL).
		Msg("processing completed")

	p.notifier.Notify(ctx, requestID, outputURL)

	return nil
}

func (p *Pipeline) compressAll(ctx context.Context, requestID uuid.UUID, rows []model.Row) ([]model.ResultRow, error) {
	results := make([]model.ResultRow, 0, len(rows))
	var failures []error

	for _, row := range rows {
		res := model.ResultRow{
			SerialNumber: row.SerialNumber,
			Name:         row.Name,
			InputURLs:    row.InputURLs,
			OutputURLs:   make([]string, 0, len(row.InputURLs)),
		}

		for _, inputURL := range row.InputURLs {
			outputURL, err := p.compressOne(ctx, requestID, inputURL)
			if err != nil {
				if p.mode == FailFast {
					return nil, err
				}
				failures = append(failures, err)
				continue
			}
			res.OutputURLs = append(res.OutputURLs, outputURL)
		}

		results = append(results, res)
	}

	if len(failures) > 0 {
		return nil, errors.Join(failures...)
	}

	return results, nil
}

func (p *Pipeline) compressOne(ctx context.Context, requestID uuid.UUID, inputURL string) (string, error) {
	outputURL, err := p.transformer.Compress(ctx, inputURL)
	if err != nil {
		if serr := p.store.SetImageStatus(ctx, requestID, inputURL, model.ImageFailed, ""); serr != nil {
			return "", errors.Join(fmt.Errorf("compress %s: %w", inputURL, err), serr)
		}
		return "", fmt.Errorf("compress %s: %w", inputURL, err)
	}

	if err := p.store.SetImageStatus(ctx, requestID, inputURL, model.ImageCompleted, outputURL); err != nil {
		return "", fmt.Errorf("record %s: %w", inputURL, err)
	}

	return outputURL, nil
}

func (p *Pipeline) fail(ctx context.Context, requestID uuid.UUID, cause error) error {
	zlog.Logger.Err(cause).Str("request_id", requestID.String()).Msg("processing failed")

	// Record the failure even when ctx was cancelled mid-run.
	if err := p.store.SetRequestStatus(context.WithoutCancel(ctx), requestID, model.RequestFailed); err != nil {
		return errors.Join(cause, fmt.Errorf("fail request %s: %w", requestID, err))
	}

	return cause
}
