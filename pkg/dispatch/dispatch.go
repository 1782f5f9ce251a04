package dispatch

import (
	"context"

	"storyboard/pkg/domain"
)

// JobMessage is the payload handed to image workers.
type JobMessage struct {
	JobID          string `json:"jobId"`
	SceneID        string `json:"sceneId"`
	UserID         string `json:"userId"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
	Style          string `json:"style"`
	AspectRatio    string `json:"aspectRatio"`
	Attempt        int    `json:"attempt"`
}

// Dispatcher publishes generation jobs to the worker broker.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg JobMessage) error
	Close() error
}

// MessageFromJob builds the broker payload for a job row.
func MessageFromJob(job domain.GenerationJob) JobMessage {
	return JobMessage{
		JobID:          job.ID,
		SceneID:        job.SceneID,
		UserID:         job.UserID,
		Prompt:         job.Prompt,
		NegativePrompt: job.NegativePrompt,
		Style:          job.Style,
		AspectRatio:    job.AspectRatio,
		Attempt:        job.Attempts,
	}
}

// NoopDispatcher drops messages; tests and dev mode use it so job rows can
// be advanced by hand.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(ctx context.Context, msg JobMessage) error { return nil }

func (NoopDispatcher) Close() error { return nil }
