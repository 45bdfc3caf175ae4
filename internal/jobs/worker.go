package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"diary/internal/body"
)

// Worker retries body reclamation that could not finish when a note was
// deleted.
type Worker struct {
	ID       string
	Repo     *Repo
	Bodies   body.Store
	Interval time.Duration
	Log      *slog.Logger
}

func NewWorker(repo *Repo, bodies body.Store, interval time.Duration, log *slog.Logger) *Worker {
	return &Worker{
		ID:       "worker-" + uuid.NewString(),
		Repo:     repo,
		Bodies:   bodies,
		Interval: interval,
		Log:      log,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
				w.Log.Error("worker claim error", "worker", w.ID, "error", err)
			}
		}
	}
}

// Drain handles due jobs until none are left and reports how many it ran.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		ok, err := w.RunOnce(ctx)
		if err != nil || !ok {
			return n, err
		}
		n++
	}
}

// RunOnce claims and handles a single job. It reports false when nothing was due.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.Repo.Claim(ctx, w.ID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.handle(ctx, job)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	switch job.Type {
	case TypeBodyReclaim:
		w.handleReclaim(ctx, job)
	default:
		w.fail(ctx, job, "unknown job type")
	}
}

func (w *Worker) handleReclaim(ctx context.Context, job *Job) {
	var p ReclaimPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil || p.Locator == "" {
		w.fail(ctx, job, "bad payload")
		return
	}

	if err := w.Bodies.Remove(ctx, p.Locator); err != nil {
		w.retry(ctx, job, err.Error())
		return
	}

	if err := w.Repo.MarkDone(ctx, job.ID); err != nil {
		w.Log.Error("mark job done", "job_id", job.ID, "error", err)
		return
	}
	w.Log.Debug("body reclaimed", "job_id", job.ID, "note_id", p.NoteID)
}

func (w *Worker) fail(ctx context.Context, job *Job, errMsg string) {
	w.Log.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", errMsg)
	if err := w.Repo.MarkFailed(ctx, job.ID, errMsg); err != nil {
		w.Log.Error("mark job failed", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) retry(ctx context.Context, job *Job, errMsg string) {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		w.fail(ctx, job, errMsg)
		return
	}

	next := w.Repo.now().Add(Backoff(attempts))
	if err := w.Repo.RetryLater(ctx, job.ID, attempts, next, errMsg); err != nil {
		w.Log.Error("reschedule job", "job_id", job.ID, "error", err)
	}
}

// Backoff is 2^attempts seconds, capped at ten minutes.
func Backoff(attempts int) time.Duration {
	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	return time.Duration(sec) * time.Second
}
