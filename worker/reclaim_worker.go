package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"songlead/models"
)

// ReclaimWorker requeues songs stuck in processing longer than the
// threshold. A submission whose callback never arrived gets a fresh task
// instead of waiting forever.
type ReclaimWorker struct {
	DB        *gorm.DB
	Logger    *logrus.Entry
	Threshold time.Duration
	Interval  time.Duration

	mu sync.Mutex
}

func NewReclaimWorker(db *gorm.DB, threshold time.Duration, logger *logrus.Entry) *ReclaimWorker {
	return &ReclaimWorker{
		DB:        db,
		Threshold: threshold,
		Logger:    logger.WithField("worker", "reclaim"),
		Interval:  time.Minute,
	}
}

func (w *ReclaimWorker) Start(ctx context.Context) {
	w.Logger.Info("Reclaim worker started")
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Reclaim worker shutting down...")
			return
		case <-ticker.C:
			w.ReclaimStuck()
		}
	}
}

// ReclaimStuck resets expired processing songs back to the submission
// queue, clearing the stale task handle so the callback for the dead
// task can no longer match.
func (w *ReclaimWorker) ReclaimStuck() {
	if !w.mu.TryLock() {
		return
	}
	defer w.mu.Unlock()

	cutoff := time.Now().Add(-w.Threshold)
	res := w.DB.Model(&models.Song{}).
		Where("status = ? AND generated_at IS NOT NULL AND generated_at <= ?", models.SongProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":    models.SongNoTask,
			"task_id":   "",
			"error_msg": "",
		})
	if res.Error != nil {
		w.Logger.WithError(res.Error).Error("Failed to reclaim stuck songs")
		return
	}
	if res.RowsAffected > 0 {
		w.Logger.WithField("count", res.RowsAffected).Warn("Reclaimed stuck songs back to submission queue")
	}
}
