package request

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/model"
)

// service defines the interface for processing queued requests.
type service interface {
	ProcessTask(ctx context.Context, task model.Task) error
}

// TaskHandler handles Kafka messages carrying processing tasks.
type TaskHandler struct {
	service service
}

// NewTaskHandler creates a new handler with the given service.
func NewTaskHandler(s service) *TaskHandler {
	return &TaskHandler{service: s}
}

// Handle unmarshals the task and runs it through the service.
func (h *TaskHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var task model.Task
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		return fmt.Errorf("unmarshal task: %w", err)
	}

	if err := h.service.ProcessTask(ctx, task); err != nil {
		return fmt.Errorf("process task: %w", err)
	}

	zlog.Logger.Info().Str("request_id", task.RequestID.String()).Msg("request processed")

	return nil
}
