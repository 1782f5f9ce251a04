package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storyboard/internal/util"
	"storyboard/pkg/dispatch"
	"storyboard/pkg/domain"
	"storyboard/pkg/store"
)

// GenerationRequest carries the fields for a new image generation job.
type GenerationRequest struct {
	SceneID        string
	Prompt         string
	NegativePrompt string
	Style          string
	AspectRatio    string
}

// RequestGeneration validates ownership and credits, records a queued job,
// marks the scene generating, and hands the job to the broker. Credits are
// debited when the worker reports completion, not here.
func (a *App) RequestGeneration(ctx context.Context, userID string, req GenerationRequest) (domain.GenerationJob, error) {
	req.SceneID = strings.TrimSpace(req.SceneID)
	req.Prompt = strings.TrimSpace(req.Prompt)
	if details := validateGenerationRequest(req); details != nil {
		return domain.GenerationJob{}, BadRequest("Invalid generation request", details)
	}
	scene, err := a.GetScene(userID, req.SceneID)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	user, found, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("lookup user: %w", err)
	}
	if !found {
		return domain.GenerationJob{}, ErrSessionRequired
	}
	if user.Credits < GenerationCost {
		return domain.GenerationJob{}, Forbidden("Insufficient credits")
	}
	job := domain.GenerationJob{
		ID:             util.NewID(),
		SceneID:        scene.ID,
		UserID:         userID,
		Status:         domain.JobQueued,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Style:          req.Style,
		AspectRatio:    req.AspectRatio,
		CreatedAt:      a.now().UTC(),
	}
	return a.enqueueJob(ctx, job)
}

// Regenerate creates a fresh queued job copying the prompt of an earlier
// one. The old job row stays untouched so history is preserved.
func (a *App) Regenerate(ctx context.Context, userID, jobID string) (domain.GenerationJob, error) {
	prev, err := a.GetJob(userID, jobID)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	if _, err := a.GetScene(userID, prev.SceneID); err != nil {
		return domain.GenerationJob{}, err
	}
	user, found, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("lookup user: %w", err)
	}
	if !found {
		return domain.GenerationJob{}, ErrSessionRequired
	}
	if user.Credits < GenerationCost {
		return domain.GenerationJob{}, Forbidden("Insufficient credits")
	}
	job := domain.GenerationJob{
		ID:             util.NewID(),
		SceneID:        prev.SceneID,
		UserID:         userID,
		Status:         domain.JobQueued,
		Prompt:         prev.Prompt,
		NegativePrompt: prev.NegativePrompt,
		Style:          prev.Style,
		AspectRatio:    prev.AspectRatio,
		CreatedAt:      a.now().UTC(),
	}
	return a.enqueueJob(ctx, job)
}

func (a *App) enqueueJob(ctx context.Context, job domain.GenerationJob) (domain.GenerationJob, error) {
	if err := a.store.SaveJob(job); err != nil {
		return domain.GenerationJob{}, fmt.Errorf("save job: %w", err)
	}
	if err := a.store.SetSceneStatus(job.SceneID, domain.SceneGenerating, ""); err != nil {
		return domain.GenerationJob{}, fmt.Errorf("mark scene generating: %w", err)
	}
	if err := a.dispatcher.Dispatch(ctx, dispatch.MessageFromJob(job)); err != nil {
		// The row stays queued; a worker sweep or manual redispatch can
		// recover it.
		slog.Warn("job_dispatch_failed", "job_id", job.ID, "error", err)
	}
	return job, nil
}

// GetJob returns a job owned by the user. Foreign jobs read as missing.
func (a *App) GetJob(userID, jobID string) (domain.GenerationJob, error) {
	job, found, err := a.store.GetJob(strings.TrimSpace(jobID))
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("get job: %w", err)
	}
	if !found || job.UserID != userID {
		return domain.GenerationJob{}, NotFound("Job not found")
	}
	return job, nil
}

// ListJobs returns the user's jobs, newest first, capped at JobListLimit.
func (a *App) ListJobs(userID string) ([]domain.GenerationJob, error) {
	jobs, err := a.store.ListJobsByUser(userID, JobListLimit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// AwaitJob polls an owned job with capped backoff until it reaches a
// terminal state or the wait window closes, returning the latest snapshot
// either way.
func (a *App) AwaitJob(ctx context.Context, userID, jobID string, wait time.Duration) (domain.GenerationJob, error) {
	job, err := a.GetJob(userID, jobID)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	deadline := a.now().Add(wait)
	backoff := 50 * time.Millisecond
	for !job.Terminal() && a.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
		job, err = a.GetJob(userID, jobID)
		if err != nil {
			return domain.GenerationJob{}, err
		}
	}
	return job, nil
}

// StartJob moves a queued job to processing on behalf of a worker.
func (a *App) StartJob(jobID string) (domain.GenerationJob, error) {
	if _, _, err := a.requireJob(jobID); err != nil {
		return domain.GenerationJob{}, err
	}
	now := a.now().UTC()
	ok, err := a.store.TransitionJob(jobID, domain.JobQueued, domain.JobProcessing, store.JobTransition{
		StartedAt:  &now,
		AddAttempt: true,
	})
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("start job: %w", err)
	}
	if !ok {
		return domain.GenerationJob{}, Conflict("Job is not queued")
	}
	job, _, err := a.store.GetJob(jobID)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// CompleteJob finishes a processing job: it records the image, updates the
// scene, and debits the generation cost. The guarded transition makes the
// debit happen at most once even when a worker retries the callback.
func (a *App) CompleteJob(jobID, imageURL string) (domain.GenerationJob, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return domain.GenerationJob{}, BadRequest("imageUrl is required", nil)
	}
	job, _, err := a.requireJob(jobID)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	now := a.now().UTC()
	ok, err := a.store.TransitionJob(jobID, domain.JobProcessing, domain.JobCompleted, store.JobTransition{
		ImageURL:    imageURL,
		CompletedAt: &now,
	})
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("complete job: %w", err)
	}
	if !ok {
		return domain.GenerationJob{}, Conflict("Job is not processing")
	}
	if err := a.store.SetSceneStatus(job.SceneID, domain.SceneCompleted, imageURL); err != nil {
		return domain.GenerationJob{}, fmt.Errorf("mark scene completed: %w", err)
	}
	a.debitGeneration(job)
	job, _, err = a.store.GetJob(jobID)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FailJob marks a queued or processing job failed. No credit is debited.
func (a *App) FailJob(jobID, message string) (domain.GenerationJob, error) {
	job, _, err := a.requireJob(jobID)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	now := a.now().UTC()
	tr := store.JobTransition{ErrorMessage: message, CompletedAt: &now}
	ok, err := a.store.TransitionJob(jobID, domain.JobProcessing, domain.JobFailed, tr)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("fail job: %w", err)
	}
	if !ok {
		ok, err = a.store.TransitionJob(jobID, domain.JobQueued, domain.JobFailed, tr)
		if err != nil {
			return domain.GenerationJob{}, fmt.Errorf("fail job: %w", err)
		}
	}
	if !ok {
		return domain.GenerationJob{}, Conflict("Job already finished")
	}
	if err := a.store.SetSceneStatus(job.SceneID, domain.SceneFailed, ""); err != nil {
		return domain.GenerationJob{}, fmt.Errorf("mark scene failed: %w", err)
	}
	job, _, err = a.store.GetJob(jobID)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (a *App) requireJob(jobID string) (domain.GenerationJob, bool, error) {
	job, found, err := a.store.GetJob(strings.TrimSpace(jobID))
	if err != nil {
		return domain.GenerationJob{}, false, fmt.Errorf("get job: %w", err)
	}
	if !found {
		return domain.GenerationJob{}, false, NotFound("Job not found")
	}
	return job, true, nil
}

func (a *App) debitGeneration(job domain.GenerationJob) {
	balance, err := a.store.AdjustCredits(job.UserID, -GenerationCost)
	if err != nil {
		// Completion wins over the ledger: keep the image, log the miss.
		slog.Warn("credit_debit_failed", "job_id", job.ID, "user_id", job.UserID, "error", err)
		return
	}
	if err := a.store.AppendCreditTransaction(domain.CreditTransaction{
		ID:           util.NewID(),
		UserID:       job.UserID,
		Amount:       -GenerationCost,
		Type:         domain.TxUsage,
		Description:  "Image generation",
		BalanceAfter: balance,
		Metadata:     map[string]string{"jobId": job.ID, "sceneId": job.SceneID},
		CreatedAt:    a.now().UTC(),
	}); err != nil {
		slog.Warn("credit_ledger_append_failed", "job_id", job.ID, "error", err)
	}
}

// minPromptLen rejects prompts too short to steer the model.
const minPromptLen = 10

func validateGenerationRequest(req GenerationRequest) map[string]string {
	details := map[string]string{}
	if req.SceneID == "" {
		details["sceneId"] = "sceneId is required"
	}
	if len(req.Prompt) < minPromptLen {
		details["prompt"] = "prompt must be at least 10 characters"
	}
	if !domain.ValidStyle(req.Style) {
		details["style"] = "unknown style"
	}
	if !domain.ValidAspectRatio(req.AspectRatio) {
		details["aspectRatio"] = "unknown aspect ratio"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
