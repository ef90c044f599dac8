package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/config"
	"github.com/aliskhannn/image-compressor/internal/model"
)

const (
	fieldRequestID = "request_id"
	fieldPayload   = "payload"

	readBlock   = 5 * time.Second
	readBackoff = 500 * time.Millisecond
)

// service processes a dequeued task.
type service interface {
	ProcessTask(ctx context.Context, task model.Task) error
}

// StreamsQueue publishes and consumes processing tasks over a Redis stream
// with a consumer group.
type StreamsQueue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
}

// NewStreamsQueue connects to Redis and makes sure the consumer group exists.
func NewStreamsQueue(ctx context.Context, cfg *config.Redis) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	q := &StreamsQueue{
		client:   client,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: cfg.Consumer,
	}
	if err := q.ensureGroup(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return q, nil
}

// Close closes the Redis client.
func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

// Enqueue appends the task to the stream.
func (q *StreamsQueue) Enqueue(ctx context.Context, task model.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			fieldRequestID: task.RequestID.String(),
			fieldPayload:   string(payload),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue to stream: %w", err)
	}

	return nil
}

// Consume reads the stream until ctx is cancelled. Every message is
// acknowledged and deleted once handled, whatever the outcome.
func (q *StreamsQueue) Consume(ctx context.Context, wg *sync.WaitGroup, s service) {
	defer wg.Done()

	zlog.Logger.Info().
		Str("stream", q.stream).
		Str("group", q.group).
		Msg("starting stream consumer")

	for {
		if ctx.Err() != nil {
			zlog.Logger.Info().Msg("shutdown signal received, stopping stream consumer")
			return
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			zlog.Logger.Err(err).Msg("failed to read stream")
			time.Sleep(readBackoff)
			continue
		}

		for _, stream := range streams {
			for _, item := range stream.Messages {
				q.handle(ctx, item, s)
			}
		}
	}
}

func (q *StreamsQueue) handle(ctx context.Context, item redis.XMessage, s service) {
	task, err := parseMessage(item)
	if err != nil {
		zlog.Logger.Err(err).Str("stream_id", item.ID).Msg("dropping malformed message")
	} else if err := s.ProcessTask(ctx, task); err != nil {
		zlog.Logger.Err(err).Str("request_id", task.RequestID.String()).Msg("failed to process request")
	}

	if err := q.ackAndDelete(context.WithoutCancel(ctx), item.ID); err != nil {
		zlog.Logger.Err(err).Str("stream_id", item.ID).Msg("failed to ack message")
	}
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, streamID string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.client.XDel(ctx, q.stream, streamID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func parseMessage(item redis.XMessage) (model.Task, error) {
	raw, ok := item.Values[fieldPayload]
	if !ok {
		return model.Task{}, fmt.Errorf("missing field %s", fieldPayload)
	}

	var payload []byte
	switch v := raw.(type) {
	case string:
		payload = []byte(v)
	case []byte:
		payload = v
	default:
		return model.Task{}, fmt.Errorf("unexpected %s type %T", fieldPayload, raw)
	}

	var task model.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return model.Task{}, fmt.Errorf("unmarshal task: %w", err)
	}

	return task, nil
}
