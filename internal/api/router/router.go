package router

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-compressor/internal/api/handlers/request"
	"github.com/aliskhannn/image-compressor/internal/middleware"
)

// Options tunes the middleware installed by Setup.
type Options struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Setup registers all HTTP routes.
func Setup(h *request.Handler, opts Options) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins...))
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/health", func(c *ginext.Context) {
		c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := r.Group("/api")

	api.POST("/upload", middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst), h.Upload) // uploading a product table
	api.GET("/status/:id", h.Status)                                                              // request status
	api.GET("/status/:id/images", h.Images)                                                       // per-image progress

	return r
}
