package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"songlead/models"
	"songlead/utils"
)

// DeliveryWorker sends finished clips to their leads once the cooldown
// since task submission has passed, then kicks off the follow-up
// sequence.
type DeliveryWorker struct {
	DB               *gorm.DB
	Transport        Transport
	Catalog          *utils.SequenceCatalog
	Logger           *logrus.Entry
	Cooldown         time.Duration
	DeliveredTrigger string
	Interval         time.Duration

	mu sync.Mutex
}

func NewDeliveryWorker(db *gorm.DB, transport Transport, catalog *utils.SequenceCatalog, cooldown time.Duration, deliveredTrigger string, logger *logrus.Entry) *DeliveryWorker {
	return &DeliveryWorker{
		DB:               db,
		Transport:        transport,
		Catalog:          catalog,
		Cooldown:         cooldown,
		DeliveredTrigger: deliveredTrigger,
		Logger:           logger.WithField("worker", "delivery"),
		Interval:         time.Minute,
	}
}

func (w *DeliveryWorker) Start(ctx context.Context) {
	w.Logger.Info("Delivery worker started")
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Delivery worker shutting down...")
			return
		case <-ticker.C:
			w.DeliverAll(ctx)
		}
	}
}

// DeliverAll sends every due clip. Songs still inside the cooldown window
// stay pending and are picked up on a later pass.
func (w *DeliveryWorker) DeliverAll(ctx context.Context) {
	if !w.mu.TryLock() {
		return
	}
	defer w.mu.Unlock()

	var songs []models.Song
	if err := w.DB.Where("status = ?", models.SongDeliveryPending).
		Order("created_at ASC").Find(&songs).Error; err != nil {
		w.Logger.WithError(err).Error("Failed to fetch songs pending delivery")
		return
	}

	now := time.Now()
	for i := range songs {
		song := &songs[i]
		if song.GeneratedAt == nil || now.Sub(*song.GeneratedAt) < w.Cooldown {
			continue
		}
		w.deliver(ctx, song, now)
	}
}

func (w *DeliveryWorker) deliver(ctx context.Context, song *models.Song, now time.Time) {
	log := w.Logger.WithField("song_id", song.ID)

	if song.Lyrics == "" || song.ClipURL == "" {
		log.Warn("Song pending delivery is missing lyrics or clip, skipping")
		return
	}
	if !w.Transport.IsConnected() {
		log.Warn("Transport disconnected, postponing delivery")
		return
	}

	var lead models.Lead
	if err := w.DB.First(&lead, "id = ?", song.LeadID).Error; err != nil {
		log.WithError(err).Error("Failed to load lead for delivery")
		return
	}
	target := utils.LeadJID(&lead)
	if target == "" {
		log.Warn("Lead has no sendable address, skipping delivery")
		return
	}

	greeting := fmt.Sprintf("Hi %s! Your song is ready. These are the lyrics:\n\n%s",
		utils.FirstName(lead.Name), song.Lyrics)
	followUp := "And here is a preview of how it sounds. What do you think?"

	if err := w.Transport.SendText(ctx, target, greeting); err != nil {
		log.WithError(err).Error("Failed to send lyrics message, will retry")
		return
	}
	if err := w.Transport.SendText(ctx, target, followUp); err != nil {
		log.WithError(err).Error("Failed to send follow-up message, will retry")
		return
	}
	if err := w.Transport.SendClip(ctx, target, song.ClipURL); err != nil {
		log.WithError(err).Error("Failed to send clip, will retry")
		return
	}

	if err := utils.TransitionSong(w.DB, song, models.SongDelivered, map[string]interface{}{
		"sent_at": now,
	}); err != nil {
		log.WithError(err).Error("Failed to mark song as delivered")
		return
	}

	for _, content := range []string{greeting, followUp, "[audio] " + song.ClipURL} {
		msg := models.LeadMessage{
			LeadID:    lead.ID,
			Content:   content,
			Sender:    models.SenderBusiness,
			Timestamp: now,
		}
		if err := w.DB.Create(&msg).Error; err != nil {
			log.WithError(err).Warn("Failed to record delivery message")
		}
	}

	if err := appendLeadTrigger(w.DB, w.Catalog, lead.ID, w.DeliveredTrigger, now); err != nil {
		log.WithError(err).Error("Failed to start post-delivery sequence")
	}
	log.Info("Song delivered")
}
