package request

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/model"
	"github.com/aliskhannn/image-compressor/internal/table"
	"github.com/aliskhannn/image-compressor/internal/validator"
)

// ErrEnqueue is returned when a created request could not be handed to
// background processing.
var ErrEnqueue = errors.New("failed to enqueue request")

// repository defines the persistence operations the service needs.
type repository interface {
	CreateRequestWithProducts(ctx context.Context, rows []model.Row) (uuid.UUID, error)
	SetRequestStatus(ctx context.Context, id uuid.UUID, status model.RequestStatus) error
	GetRequestStatus(ctx context.Context, id uuid.UUID) (model.RequestStatus, error)
	ListImages(ctx context.Context, requestID uuid.UUID) ([]model.Image, error)
}

// producer defines the interface for enqueueing tasks into a queue (Kafka, Redis or in-process).
type producer interface {
	Enqueue(ctx context.Context, task model.Task) error
}

// pipeline runs a request to completion.
type pipeline interface {
	Run(ctx context.Context, requestID uuid.UUID, rows []model.Row) error
}

// Service accepts uploaded tables, answers status lookups and
// processes queued tasks.
type Service struct {
	repo     repository
	producer producer
	pipeline pipeline
}

// NewService creates a new Service.
func NewService(r repository, p producer, pl pipeline) *Service {
	return &Service{repo: r, producer: p, pipeline: pl}
}

// Upload reads and validates the table, stores the request with all of its
// products and images, and enqueues it for processing.
//
// Nothing is persisted when the table is invalid. If the task cannot be
// enqueued the stored request is moved to failed.
func (s *Service) Upload(ctx context.Context, filename string, file io.Reader) (uuid.UUID, error) {
	records, err := table.Read(filename, file)
	if err != nil {
		return uuid.Nil, err
	}

	rows, err := validator.Validate(records)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := s.repo.CreateRequestWithProducts(ctx, rows)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upload: failed to create request: %w", err)
	}

	if err := s.producer.Enqueue(ctx, model.Task{RequestID: id, Rows: rows}); err != nil {
		zlog.Logger.Err(err).Str("request_id", id.String()).Msg("failed to enqueue request")

		if serr := s.repo.SetRequestStatus(context.WithoutCancel(ctx), id, model.RequestFailed); serr != nil {
			zlog.Logger.Err(serr).Str("request_id", id.String()).Msg("failed to mark request as failed")
		}

		return uuid.Nil, fmt.Errorf("upload: %w: %w", ErrEnqueue, err)
	}

	zlog.Logger.Info().
		Str("request_id", id.String()).
		Int("rows", len(rows)).
		Msg("request enqueued")

	return id, nil
}

// GetStatus returns the current status of a request.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (model.StatusView, error) {
	status, err := s.repo.GetRequestStatus(ctx, id)
	if err != nil {
		return model.StatusView{}, fmt.Errorf("get status: %w", err)
	}

	return model.StatusView{RequestID: id, Status: status}, nil
}

// GetImages returns the per-URL progress of a request.
func (s *Service) GetImages(ctx context.Context, id uuid.UUID) ([]model.Image, error) {
	if _, err := s.repo.GetRequestStatus(ctx, id); err != nil {
		return nil, fmt.Errorf("get images: %w", err)
	}

	images, err := s.repo.ListImages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get images: %w", err)
	}

	return images, nil
}

// ProcessTask runs the pipeline for a queued task.
func (s *Service) ProcessTask(ctx context.Context, task model.Task) error {
	if err := s.pipeline.Run(ctx, task.RequestID, task.Rows); err != nil {
		return fmt.Errorf("process request %s: %w", task.RequestID, err)
	}
	return nil
}
