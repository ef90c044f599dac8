package request

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/api/respond"
	"github.com/aliskhannn/image-compressor/internal/model"
	repo "github.com/aliskhannn/image-compressor/internal/repository/request"
	"github.com/aliskhannn/image-compressor/internal/validator"
)

const (
	fileField = "file"

	// DefaultMaxUploadSize caps the request body of an upload.
	DefaultMaxUploadSize int64 = 10 << 20

	msgInternal = "Internal server error"
	msgNotFound = "Request not found"
)

// service defines the request operations used by the HTTP layer.
type service interface {
	Upload(ctx context.Context, filename string, file io.Reader) (uuid.UUID, error)
	GetStatus(ctx context.Context, id uuid.UUID) (model.StatusView, error)
	GetImages(ctx context.Context, id uuid.UUID) ([]model.Image, error)
}

// Handler provides HTTP handlers for upload and status endpoints.
type Handler struct {
	service       service
	maxUploadSize int64
}

// NewHandler creates a new Handler. A non-positive maxUploadSize uses DefaultMaxUploadSize.
func NewHandler(s service, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &Handler{service: s, maxUploadSize: maxUploadSize}
}

// ImagesResponse lists the per-URL progress of a request.
type ImagesResponse struct {
	RequestID uuid.UUID     `json:"requestId"`
	Images    []model.Image `json:"images"`
}

// Upload accepts a CSV or XLSX table in the multipart field "file".
// The file part is streamed to the service without being buffered to disk.
func (h *Handler) Upload(c *ginext.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	mr, err := c.Request.MultipartReader()
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("upload is not a multipart form")
		respond.Fail(c, http.StatusBadRequest, "expected multipart/form-data with a file field")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			zlog.Logger.Warn().Err(err).Msg("failed to read multipart form")
			respond.Fail(c, http.StatusBadRequest, "failed to read multipart form")
			return
		}

		if part.FormName() != fileField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		zlog.Logger.Info().Str("filename", part.FileName()).Msg("upload received")

		id, err := h.service.Upload(c.Request.Context(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			h.uploadFailed(c, err)
			return
		}

		respond.Queued(c, id.String())
		return
	}

	respond.Fail(c, http.StatusBadRequest, "file is required")
}

func (h *Handler) uploadFailed(c *ginext.Context, err error) {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		zlog.Logger.Warn().Err(err).Msg("upload rejected")
		respond.Fail(c, http.StatusBadRequest, verr.Error())
		return
	}

	zlog.Logger.Err(err).Msg("failed to accept upload")
	respond.Fail(c, http.StatusInternalServerError, msgInternal)
}

// Status returns the current status of a request.
func (h *Handler) Status(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	view, err := h.service.GetStatus(c.Request.Context(), id)
	if err != nil {
		lookupFailed(c, err)
		return
	}

	respond.OK(c, view)
}

// Images returns the progress of every input URL of a request.
func (h *Handler) Images(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	images, err := h.service.GetImages(c.Request.Context(), id)
	if err != nil {
		lookupFailed(c, err)
		return
	}

	if images == nil {
		images = []model.Image{}
	}

	respond.OK(c, ImagesResponse{RequestID: id, Images: images})
}

func parseID(c *ginext.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		zlog.Logger.Warn().Str("id", c.Param("id")).Msg("invalid request id")
		respond.Fail(c, http.StatusBadRequest, "invalid request id")
		return uuid.Nil, false
	}
	return id, true
}

func lookupFailed(c *ginext.Context, err error) {
	if errors.Is(err, repo.ErrRequestNotFound) {
		respond.Fail(c, http.StatusNotFound, msgNotFound)
		return
	}

	zlog.Logger.Err(err).Msg("failed to get request")
	respond.Fail(c, http.StatusInternalServerError, msgInternal)
}
