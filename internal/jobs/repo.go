package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	defaultMaxAttempts = 8
	stuckAfter         = 5 * time.Minute
	claimBatch         = 8
)

type Repo struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (r *Repo) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// EnqueueReclaim records that a body must be removed. It runs on tx so the
// job commits or rolls back together with the row that referenced the body.
func (r *Repo) EnqueueReclaim(tx *gorm.DB, userID, noteID uint64, locator string) (uint64, error) {
	payload, err := json.Marshal(ReclaimPayload{NoteID: noteID, Locator: locator})
	if err != nil {
		return 0, err
	}
	now := r.now()
	j := Job{
		UserID:      userID,
		Type:        TypeBodyReclaim,
		Payload:     payload,
		RunAt:       now,
		Status:      StatusPending,
		MaxAttempts: defaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Create(&j).Error; err != nil {
		return 0, err
	}
	return j.ID, nil
}

// Claim takes one due job. The status flip is conditional on the row still
// being PENDING, so two workers can never both win the same job.
func (r *Repo) Claim(ctx context.Context, workerID string) (*Job, error) {
	var claimed *Job
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()

		// requeue RUNNING jobs whose worker died
		if err := tx.Model(&Job{}).
			Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", StatusRunning, now.Add(-stuckAfter)).
			Updates(map[string]any{"status": StatusPending, "locked_by": nil, "locked_at": nil, "updated_at": now}).
			Error; err != nil {
			return err
		}

		var due []Job
		if err := tx.Where("status = ? AND run_at <= ?", StatusPending, now).
			Order("run_at asc").Order("id asc").
			Limit(claimBatch).
			Find(&due).Error; err != nil {
			return err
		}

		for i := range due {
			res := tx.Model(&Job{}).
				Where("id = ? AND status = ?", due[i].ID, StatusPending).
				Updates(map[string]any{"status": StatusRunning, "locked_by": workerID, "locked_at": now, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				j := due[i]
				j.Status = StatusRunning
				j.LockedBy = &workerID
				j.LockedAt = &now
				claimed = &j
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *Repo) Get(ctx context.Context, id uint64) (*Job, error) {
	var j Job
	err := r.DB.WithContext(ctx).First(&j, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) MarkDone(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).
		Updates(map[string]any{"status": StatusDone, "locked_by": nil, "locked_at": nil, "updated_at": r.now()}).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).
		Updates(map[string]any{"status": StatusFailed, "last_error": errMsg, "locked_by": nil, "locked_at": nil, "updated_at": r.now()}).Error
}

func (r *Repo) RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error {
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":     StatusPending,
			"attempts":   attempts,
			"run_at":     runAt.UTC(),
			"locked_by":  nil,
			"locked_at":  nil,
			"last_error": errMsg,
			"updated_at": r.now(),
		}).Error
}
