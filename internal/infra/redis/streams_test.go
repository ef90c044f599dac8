package redis

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aliskhannn/image-compressor/internal/model"
)

func TestParseMessage(t *testing.T) {
	task := model.Task{
		RequestID: uuid.New(),
		Rows:      []model.Row{{SerialNumber: "1", Name: "SKU1", InputURLs: []string{"https://a.example/1.jpg"}}},
	}
	payload, err := json.Marshal(task)
	if err != nil {
		t.Fatal(err)
	}

	for _, value := range []any{string(payload), payload} {
		got, err := parseMessage(redis.XMessage{ID: "1-0", Values: map[string]any{fieldPayload: value}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.RequestID != task.RequestID || len(got.Rows) != 1 || got.Rows[0].Name != "SKU1" {
			t.Fatalf("unexpected task %+v", got)
		}
	}
}

func TestParseMessageRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{name: "missing payload", values: map[string]any{fieldRequestID: uuid.NewString()}},
		{name: "not json", values: map[string]any{fieldPayload: "{"}},
		{name: "wrong type", values: map[string]any{fieldPayload: 42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseMessage(redis.XMessage{ID: "1-0", Values: tt.values}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
