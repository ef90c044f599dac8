package respond

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"
)

// Error represents a standard structure for error responses.
type Error struct {
	Message string `json:"message"`
}

// Accepted is the answer to a request that was queued for processing.
type Accepted struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// JSON sends a JSON response with the specified HTTP status code and data.
func JSON(c *ginext.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// OK sends a 200 OK JSON response.
func OK(c *ginext.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

// Queued sends a 202 Accepted JSON response for the given request id.
func Queued(c *ginext.Context, requestID string) {
	JSON(c, http.StatusAccepted, Accepted{Message: "Processing started", RequestID: requestID})
}

// Fail sends an error JSON response with the specified HTTP status code.
func Fail(c *ginext.Context, status int, message string) {
	JSON(c, status, Error{Message: message})
}
