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

const (
	scriptSystemPrompt = "You are an expert writer of short persuasive video ad scripts for small businesses. " +
		"Write in a friendly, direct tone a person would actually say on camera."

	scriptUserPrompt = "Write a 60 second video ad script for this business.\n" +
		"Business name: %s.\n" +
		"What it does: %s.\n" +
		"Goal of the video: %s.\n" +
		"Current promotion: %s.\n" +
		"Structure it as hook, problem, solution, offer and call to action. " +
		"Return only the spoken script, no scene directions."
)

// ScriptWorker generates ad scripts for leads that requested one and
// sends them after a dwell period, together with an explainer voice note.
type ScriptWorker struct {
	DB           *gorm.DB
	Text         TextGenerator
	Transport    Transport
	Catalog      *utils.SequenceCatalog
	Logger       *logrus.Entry
	VoiceNoteURL string
	SentTrigger  string
	Dwell        time.Duration
	Interval     time.Duration

	genMu  sync.Mutex
	sendMu sync.Mutex
}

func NewScriptWorker(db *gorm.DB, text TextGenerator, transport Transport, catalog *utils.SequenceCatalog, voiceNoteURL, sentTrigger string, dwell time.Duration, logger *logrus.Entry) *ScriptWorker {
	return &ScriptWorker{
		DB:           db,
		Text:         text,
		Transport:    transport,
		Catalog:      catalog,
		VoiceNoteURL: voiceNoteURL,
		SentTrigger:  sentTrigger,
		Dwell:        dwell,
		Logger:       logger.WithField("worker", "script"),
		Interval:     time.Minute,
	}
}

func (w *ScriptWorker) Start(ctx context.Context) {
	w.Logger.Info("Script worker started")
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Script worker shutting down...")
			return
		case <-ticker.C:
			w.GenerateScripts(ctx)
			w.SendScripts(ctx)
		}
	}
}

// GenerateScripts writes the ad script for every pending request. A
// failed generation leaves the record untouched for the next pass.
func (w *ScriptWorker) GenerateScripts(ctx context.Context) {
	if !w.genMu.TryLock() {
		return
	}
	defer w.genMu.Unlock()

	var scripts []models.Script
	if err := w.DB.Where("status = ?", models.ScriptNoScript).
		Order("created_at ASC").Find(&scripts).Error; err != nil {
		w.Logger.WithError(err).Error("Failed to fetch pending script requests")
		return
	}

	for i := range scripts {
		script := &scripts[i]
		log := w.Logger.WithField("script_id", script.ID)

		prompt := fmt.Sprintf(scriptUserPrompt,
			script.BusinessName, script.Description, script.Purpose, script.Promo)
		content, err := w.Text.Complete(ctx, scriptSystemPrompt, prompt, 0)
		if err == nil && content == "" {
			err = errEmptyCompletion
		}
		if err != nil {
			log.WithError(err).Error("Script generation failed, will retry")
			continue
		}

		now := time.Now()
		res := w.DB.Model(&models.Script{}).
			Where("id = ? AND status = ?", script.ID, models.ScriptNoScript).
			Updates(map[string]interface{}{
				"content":      content,
				"status":       models.ScriptReadyToSend,
				"generated_at": now,
			})
		if res.Error != nil {
			log.WithError(res.Error).Error("Failed to store generated script")
			continue
		}
		if res.RowsAffected > 0 {
			log.Info("Script generated")
		}
	}
}

// SendScripts delivers scripts whose dwell period has elapsed. Each
// script is marked sent before any message goes out so a mid-send crash
// can never deliver it twice.
func (w *ScriptWorker) SendScripts(ctx context.Context) {
	if !w.sendMu.TryLock() {
		return
	}
	defer w.sendMu.Unlock()

	var scripts []models.Script
	if err := w.DB.Where("status = ?", models.ScriptReadyToSend).
		Order("created_at ASC").Find(&scripts).Error; err != nil {
		w.Logger.WithError(err).Error("Failed to fetch scripts ready to send")
		return
	}

	now := time.Now()
	for i := range scripts {
		script := &scripts[i]
		if script.GeneratedAt == nil || now.Sub(*script.GeneratedAt) < w.Dwell {
			continue
		}
		if err := w.sendScript(ctx, script, now); err != nil &&
			!errors.Is(err, errScriptAlreadySent) {
			w.Logger.WithError(err).WithField("script_id", script.ID).Error("Failed to send script")
		}
	}
}

var errScriptAlreadySent = errors.New("script already sent")

func (w *ScriptWorker) sendScript(ctx context.Context, script *models.Script, now time.Time) error {
	log := w.Logger.WithField("script_id", script.ID)

	if script.Content == "" {
		log.Warn("Script ready to send has no content, skipping")
		return nil
	}
	if !w.Transport.IsConnected() {
		log.Warn("Transport disconnected, postponing script send")
		return nil
	}

	var lead models.Lead
	if err := w.DB.First(&lead, "id = ?", script.LeadID).Error; err != nil {
		return err
	}
	target := utils.LeadJID(&lead)
	if target == "" {
		log.Warn("Lead has no sendable address, skipping script send")
		return nil
	}

	res := w.DB.Model(&models.Script{}).
		Where("id = ? AND status = ?", script.ID, models.ScriptReadyToSend).
		Updates(map[string]interface{}{
			"status":  models.ScriptSent,
			"sent_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errScriptAlreadySent
	}

	notice := fmt.Sprintf("All set, %s! Your video script is ready. Read it through and tell me what you think.",
		utils.FirstName(lead.Name))
	messages := []string{notice, script.Content}
	for _, text := range messages {
		if err := w.Transport.SendText(ctx, target, text); err != nil {
			log.WithError(err).Error("Failed to send script message")
			return nil
		}
	}
	if w.VoiceNoteURL != "" {
		if err := w.Transport.SendAudio(ctx, target, w.VoiceNoteURL, true); err != nil {
			log.WithError(err).Warn("Failed to send explainer voice note")
		}
	}

	for _, content := range messages {
		msg := models.LeadMessage{
			LeadID:    lead.ID,
			Content:   content,
			Sender:    models.SenderBusiness,
			Timestamp: now,
		}
		if err := w.DB.Create(&msg).Error; err != nil {
			log.WithError(err).Warn("Failed to record script message")
		}
	}

	if err := appendLeadTrigger(w.DB, w.Catalog, lead.ID, w.SentTrigger, now); err != nil {
		log.WithError(err).Error("Failed to start post-script sequence")
	}
	log.Info("Script sent")
	return nil
}
