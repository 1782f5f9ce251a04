package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultStreamMaxLen = 10000

// RedisDispatcher publishes jobs to a Redis Stream. Workers consume the
// stream with a consumer group and report back over the internal endpoints.
type RedisDispatcher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisDispatcher builds a stream-backed dispatcher.
func NewRedisDispatcher(client *redis.Client, stream string, maxLen int64) (*RedisDispatcher, error) {
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return nil, errors.New("dispatch stream required")
	}
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &RedisDispatcher{client: client, stream: stream, maxLen: maxLen}, nil
}

// Dispatch appends the job to the stream, trimming approximately at maxLen.
func (d *RedisDispatcher) Dispatch(ctx context.Context, msg JobMessage) error {
	return d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		MaxLen: d.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":          msg.JobID,
			"scene_id":        msg.SceneID,
			"user_id":         msg.UserID,
			"prompt":          msg.Prompt,
			"negative_prompt": msg.NegativePrompt,
			"style":           msg.Style,
			"aspect_ratio":    msg.AspectRatio,
			"attempt":         msg.Attempt,
		},
	}).Err()
}

func (d *RedisDispatcher) Close() error {
	return d.client.Close()
}
