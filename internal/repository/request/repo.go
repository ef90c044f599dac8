package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/image-compressor/internal/model"
)

var (
	ErrRequestNotFound  = errors.New("request not found")
	ErrImageNotFound    = errors.New("image not found")
	ErrStatusTransition = errors.New("status transition not allowed")
)

// Repository persists requests, their products and the images of every product.
//
// All queries go to the master node: a status written by the pipeline must be
// visible to the very next status lookup.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// CreateRequest inserts a new request in status pending and returns its ID.
func (r *Repository) CreateRequest(ctx context.Context) (uuid.UUID, error) {
	return insertRequest(ctx, r.db.Master)
}

// CreateProducts inserts all products of a request together with one image row
// per input URL. Either every row is stored or none is.
func (r *Repository) CreateProducts(ctx context.Context, requestID uuid.UUID, rows []model.Row) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create products: failed to begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertProducts(ctx, tx, requestID, rows); err != nil {
		return fmt.Errorf("create products: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create products: failed to commit: %w", err)
	}

	return nil
}

// CreateRequestWithProducts stores a request and all of its products and images
// in a single transaction, so a request never exists without its items.
func (r *Repository) CreateRequestWithProducts(ctx context.Context, rows []model.Row) (uuid.UUID, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create request: failed to begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	id, err := insertRequest(ctx, tx)
	if err != nil {
		return uuid.Nil, err
	}

	if err := insertProducts(ctx, tx, id, rows); err != nil {
		return uuid.Nil, fmt.Errorf("create request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("create request: failed to commit: %w", err)
	}

	return id, nil
}

// SetRequestStatus moves a request to status.
//
// Only transitions allowed by the request state machine are applied; anything
// else, including leaving a terminal status, returns ErrStatusTransition.
func (r *Repository) SetRequestStatus(ctx context.Context, id uuid.UUID, status model.RequestStatus) error {
	query := `
		UPDATE requests
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`

	sources := make([]string, 0, len(status.Sources()))
	for _, s := range status.Sources() {
		sources = append(sources, string(s))
	}

	res, err := r.db.Master.ExecContext(ctx, query, string(status), id, pq.Array(sources))
	if err != nil {
		return fmt.Errorf("set status: failed to update request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set status: failed to get number of rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	current, err := r.GetRequestStatus(ctx, id)
	if err != nil {
		return err
	}

	return fmt.Errorf("%w: %s -> %s", ErrStatusTransition, current, status)
}

// SetImageStatus records the outcome for an input URL of a request.
//
// Images are matched by (request, input URL): when the same URL appears in
// several products of one request, all of them are updated together.
func (r *Repository) SetImageStatus(
	ctx context.Context, requestID uuid.UUID, inputURL string, status model.ImageStatus, outputURL string,
) error {
	query := `
		UPDATE images
		SET status = $1, output_url = NULLIF($2, ''), updated_at = now()
		WHERE request_id = $3 AND input_url = $4
	`

	res, err := r.db.Master.ExecContext(ctx, query, string(status), outputURL, requestID, inputURL)
	if err != nil {
		return fmt.Errorf("set image status: failed to update image: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set image status: failed to get number of rows affected: %w", err)
	}
	if n == 0 {
		return ErrImageNotFound
	}

	return nil
}

// GetRequestStatus returns the current status of a request.
func (r *Repository) GetRequestStatus(ctx context.Context, id uuid.UUID) (model.RequestStatus, error) {
	query := `
		SELECT status
		FROM requests
		WHERE id = $1
	`

	var status string
	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRequestNotFound
		}

		return "", fmt.Errorf("get status: failed to get request: %w", err)
	}

	return model.RequestStatus(status), nil
}

// ListImages returns every image of a request in upload order.
func (r *Repository) ListImages(ctx context.Context, requestID uuid.UUID) ([]model.Image, error) {
	query := `
		SELECT id, product_id, request_id, input_url, COALESCE(output_url, ''), status
		FROM images
		WHERE request_id = $1
		ORDER BY position
	`

	rows, err := r.db.Master.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list images: failed to query images: %w", err)
	}
	defer rows.Close()

	var images []model.Image
	for rows.Next() {
		var (
			img    model.Image
			status string
		)
		if err := rows.Scan(&img.ID, &img.ProductID, &img.RequestID, &img.InputURL, &img.OutputURL, &status); err != nil {
			return nil, fmt.Errorf("list images: failed to scan image: %w", err)
		}
		img.Status = model.ImageStatus(status)
		images = append(images, img)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list images: failed to iterate images: %w", err)
	}

	return images, nil
}

// querier is the subset of *sql.DB and *sql.Tx used by the insert helpers.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertRequest(ctx context.Context, q querier) (uuid.UUID, error) {
	query := `
		INSERT INTO requests (status)
		VALUES ($1)
		RETURNING id
	`

	var id uuid.UUID
	if err := q.QueryRowContext(ctx, query, string(model.RequestPending)).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("create request: failed to save request: %w", err)
	}

	return id, nil
}

func insertProducts(ctx context.Context, q querier, requestID uuid.UUID, rows []model.Row) error {
	productQuery := `
		INSERT INTO products (request_id, serial_number, name, input_urls)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	imageQuery := `
		INSERT INTO images (product_id, request_id, input_url, status, position)
		VALUES ($1, $2, $3, $4, $5)
	`

	position := 0
	for _, row := range rows {
		var productID uuid.UUID
		err := q.QueryRowContext(
			ctx, productQuery, requestID, row.SerialNumber, row.Name, pq.Array(row.InputURLs),
		).Scan(&productID)
		if err != nil {
			return fmt.Errorf("failed to save product %q: %w", row.SerialNumber, err)
		}

		for _, u := range row.InputURLs {
			if _, err := q.ExecContext(ctx, imageQuery, productID, requestID, u, string(model.ImagePending), position); err != nil {
				return fmt.Errorf("failed to save image %q: %w", u, err)
			}
			position++
		}
	}

	return nil
}
