package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	DefaultQuality      = 50
	DefaultFetchTimeout = 30 * time.Second

	compressedDir = "compressed"
)

// Transformation failures. Each one is final for the URL it happened on.
var (
	ErrFetch  = errors.New("failed to fetch image")
	ErrDecode = errors.New("failed to decode image")
	ErrEncode = errors.New("failed to encode image")
	ErrStore  = errors.New("failed to store image")
)

// fileStorage defines the interface for file storage.
// It saves compressed images and resolves their public address.
type fileStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	URL(path string) string
}

// Processor downloads remote images, recompresses them as JPEG and stores the result.
type Processor struct {
	fileStorage fileStorage
	client      *http.Client
	quality     int
}

// Option configures a Processor.
type Option func(*Processor)

// WithQuality sets the JPEG quality in the range 1..100.
func WithQuality(q int) Option {
	return func(p *Processor) {
		if q >= 1 && q <= 100 {
			p.quality = q
		}
	}
}

// WithHTTPClient replaces the client used to download images.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Processor) {
		if c != nil {
			p.client = c
		}
	}
}

// New creates a new Processor with the given file storage backend.
func New(fs fileStorage, opts ...Option) *Processor {
	p := &Processor{
		fileStorage: fs,
		client:      &http.Client{Timeout: DefaultFetchTimeout},
		quality:     DefaultQuality,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Compress fetches the image at url, re-encodes it and returns the public URL
// of the stored copy. Every call stores a new object under a fresh name.
func (p *Processor) Compress(ctx context.Context, url string) (string, error) {
	// Download the original image.
	body, err := p.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()

	// Decode into an image object.
	img, err := imaging.Decode(body, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// Encode at the target quality into buffer for storage.
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}

	// Save compressed version.
	dst, err := p.fileStorage.Save(ctx, compressedDir, uuid.NewString()+".jpg", buf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStore, err)
	}

	return p.fileStorage.URL(dst), nil
}

func (p *Processor) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetch, url, resp.Status)
	}

	return resp.Body, nil
}
