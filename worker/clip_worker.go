package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"songlead/models"
	"songlead/utils"
)

const clipDuration = 60 * time.Second

// ClipWorker turns full generated tracks into short watermarked preview
// clips and stages them for delivery.
type ClipWorker struct {
	DB           *gorm.DB
	Media        MediaProcessor
	Store        BlobStore
	Logger       *logrus.Entry
	Alerts       *utils.AlertMailer
	WatermarkURL string
	Interval     time.Duration

	mu        sync.Mutex
	watermark []byte
}

func NewClipWorker(db *gorm.DB, media MediaProcessor, store BlobStore, alerts *utils.AlertMailer, watermarkURL string, logger *logrus.Entry) *ClipWorker {
	return &ClipWorker{
		DB:           db,
		Media:        media,
		Store:        store,
		Alerts:       alerts,
		WatermarkURL: watermarkURL,
		Logger:       logger.WithField("worker", "clip"),
		Interval:     30 * time.Second,
	}
}

func (w *ClipWorker) Start(ctx context.Context) {
	w.Logger.Info("Clip worker started")
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Clip worker shutting down...")
			return
		case <-ticker.C:
			w.ProcessAll(ctx)
		}
	}
}

// ProcessAll claims every song with a finished full track and produces
// its clip. One failing song parks itself and never blocks the rest.
func (w *ClipWorker) ProcessAll(ctx context.Context) {
	if !w.mu.TryLock() {
		return
	}
	defer w.mu.Unlock()

	var songs []models.Song
	if err := w.DB.Where("status = ?", models.SongAudioReady).
		Order("created_at ASC").Find(&songs).Error; err != nil {
		w.Logger.WithError(err).Error("Failed to fetch songs awaiting clip")
		return
	}

	for i := range songs {
		w.processClip(ctx, &songs[i])
	}
}

func (w *ClipWorker) processClip(ctx context.Context, song *models.Song) {
	log := w.Logger.WithField("song_id", song.ID)

	if err := utils.TransitionSong(w.DB, song, models.SongClipGenerating, nil); err != nil {
		if errors.Is(err, utils.ErrSongClaimLost) {
			return
		}
		log.WithError(err).Error("Failed to claim song for clip generation")
		return
	}

	full, err := w.Store.Download(ctx, song.FullURL)
	if err != nil {
		w.park(log, song, models.SongErrorClip, "download", err)
		return
	}

	clip, err := w.Media.Trim(ctx, full, 0, clipDuration)
	if err != nil {
		w.park(log, song, models.SongErrorClip, "trim", err)
		return
	}

	wm, err := w.watermarkBytes(ctx)
	if err != nil {
		w.park(log, song, models.SongErrorWatermark, "watermark", err)
		return
	}

	mixed, err := w.Media.MixOverlay(ctx, clip, wm, 1000, 0.3)
	if err != nil {
		w.park(log, song, models.SongErrorWatermark, "mix", err)
		return
	}

	final, err := w.Media.Transcode(ctx, mixed, "aac", "m4a")
	if err != nil {
		w.park(log, song, models.SongErrorClip, "transcode", err)
		return
	}

	key := fmt.Sprintf("songs/clip/%d-clip.m4a", song.ID)
	clipURL, err := w.Store.Upload(ctx, key, "audio/mp4", final)
	if err != nil {
		w.park(log, song, models.SongErrorUpload, "upload", err)
		return
	}

	if err := utils.TransitionSong(w.DB, song, models.SongClipReady, map[string]interface{}{
		"clip_url": clipURL,
	}); err != nil {
		log.WithError(err).Error("Failed to store clip URL")
		return
	}
	if err := utils.TransitionSong(w.DB, song, models.SongDeliveryPending, nil); err != nil {
		log.WithError(err).Error("Failed to stage song for delivery")
		return
	}
	log.Info("Clip generated and staged for delivery")
}

func (w *ClipWorker) park(log *logrus.Entry, song *models.Song, status models.SongStatus, stage string, cause error) {
	log.WithError(cause).WithField("stage", stage).Error("Clip generation failed")
	if err := utils.TransitionSong(w.DB, song, status, map[string]interface{}{
		"error_msg": cause.Error(),
	}); err != nil {
		log.WithError(err).Error("Failed to park song")
	}
	reportParkedSong(log, w.Alerts, song, stage, cause)
}

// watermarkBytes downloads the watermark track once and reuses it for
// every clip in the process lifetime. Callers hold w.mu.
func (w *ClipWorker) watermarkBytes(ctx context.Context) ([]byte, error) {
	if w.watermark != nil {
		return w.watermark, nil
	}
	body, err := w.Store.Download(ctx, w.WatermarkURL)
	if err != nil {
		return nil, err
	}
	w.watermark = body
	return body, nil
}
