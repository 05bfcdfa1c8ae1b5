package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"songlead/models"
	"songlead/utils"
)

// DripWorker walks every lead's active sequence instances on a fixed
// interval and sends the steps whose delay has elapsed.
type DripWorker struct {
	DB        *gorm.DB
	Transport Transport
	Catalog   *utils.SequenceCatalog
	Logger    *logrus.Entry
	Interval  time.Duration

	mu sync.Mutex
}

func NewDripWorker(db *gorm.DB, transport Transport, catalog *utils.SequenceCatalog, logger *logrus.Entry) *DripWorker {
	return &DripWorker{
		DB:        db,
		Transport: transport,
		Catalog:   catalog,
		Logger:    logger.WithField("worker", "drip"),
		Interval:  30 * time.Second,
	}
}

func (w *DripWorker) Start(ctx context.Context) {
	w.Logger.Info("Drip worker started")
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Drip worker shutting down...")
			return
		case <-ticker.C:
			w.AdvanceAll(ctx)
		}
	}
}

// AdvanceAll runs one scheduler pass. A pass that finds the previous one
// still running skips instead of piling up behind a slow transport.
func (w *DripWorker) AdvanceAll(ctx context.Context) {
	if !w.mu.TryLock() {
		w.Logger.Warn("Previous drip pass still running, skipping")
		return
	}
	defer w.mu.Unlock()

	var leads []models.Lead
	if err := w.DB.
		Where("active_sequences IS NOT NULL AND active_sequences != '[]'").
		Find(&leads).Error; err != nil {
		w.Logger.WithError(err).Error("Failed to fetch leads with active sequences")
		return
	}

	now := time.Now()
	for i := range leads {
		if err := w.advanceLead(ctx, &leads[i], now); err != nil {
			w.Logger.WithError(err).WithField("lead_id", leads[i].ID).Error("Failed to advance lead sequences")
		}
	}
}

func (w *DripWorker) advanceLead(ctx context.Context, lead *models.Lead, now time.Time) error {
	dirty := false

	for i := range lead.ActiveSequences {
		inst := &lead.ActiveSequences[i]
		if inst.Completed {
			continue
		}

		def, err := w.Catalog.Get(inst.Trigger)
		if err != nil {
			// Skip this instance so advances already made for the
			// lead's other sequences still get persisted below.
			w.Logger.WithError(err).WithFields(logrus.Fields{
				"lead_id": lead.ID,
				"trigger": inst.Trigger,
			}).Error("Failed to load sequence definition")
			continue
		}
		if def == nil {
			// Unknown trigger. Leave the instance untouched so it
			// resumes if the sequence is created later.
			continue
		}

		if inst.Index >= len(def.Steps) {
			inst.Completed = true
			dirty = true
			continue
		}

		step := def.Steps[inst.Index]
		due := inst.StartTime.Add(time.Duration(step.DelayMinutes) * time.Minute)
		if now.Before(due) {
			continue
		}

		w.sendStep(ctx, lead, step)

		audit := models.LeadMessage{
			LeadID:    lead.ID,
			Content:   fmt.Sprintf("Sent %s step %d of sequence %s", step.Type, inst.Index+1, inst.Trigger),
			Sender:    models.SenderSystem,
			Timestamp: now,
		}
		if err := w.DB.Create(&audit).Error; err != nil {
			w.Logger.WithError(err).WithField("lead_id", lead.ID).Error("Failed to record sequence audit message")
		}

		inst.Index++
		if inst.Index >= len(def.Steps) {
			inst.Completed = true
		}
		dirty = true
	}

	if !dirty {
		return nil
	}

	remaining := make([]models.SequenceInstance, 0, len(lead.ActiveSequences))
	for _, inst := range lead.ActiveSequences {
		if !inst.Completed {
			remaining = append(remaining, inst)
		}
	}
	if err := w.DB.Model(&models.Lead{}).Where("id = ?", lead.ID).
		Update("active_sequences", remaining).Error; err != nil {
		return err
	}
	return utils.SyncLeadNextSequence(w.DB, w.Catalog, lead.ID, remaining)
}

// sendStep renders and sends one step. Send errors are logged and
// swallowed so a failing target never stalls the rest of the pass, and a
// disconnected transport skips the send without blocking the schedule.
func (w *DripWorker) sendStep(ctx context.Context, lead *models.Lead, step models.SequenceStep) {
	if !w.Transport.IsConnected() {
		w.Logger.WithField("lead_id", lead.ID).Warn("Transport disconnected, skipping sequence send")
		return
	}

	target := utils.LeadJID(lead)
	if target == "" {
		w.Logger.WithField("lead_id", lead.ID).Warn("Lead has no sendable address")
		return
	}

	var err error
	switch step.Type {
	case models.StepText:
		text := strings.TrimSpace(utils.RenderTemplate(step.Content, lead))
		if text == "" {
			return
		}
		err = w.Transport.SendText(ctx, target, text)
	case models.StepForm:
		text := utils.RenderFormContent(step.Content, lead)
		if text == "" {
			return
		}
		err = w.Transport.SendText(ctx, target, text)
	case models.StepAudio:
		err = w.Transport.SendAudio(ctx, target, strings.TrimSpace(utils.RenderTemplate(step.Content, lead)), true)
	case models.StepImage:
		err = w.Transport.SendImage(ctx, target, strings.TrimSpace(utils.RenderTemplate(step.Content, lead)))
	case models.StepVideo:
		err = w.Transport.SendVideo(ctx, target, strings.TrimSpace(utils.RenderTemplate(step.Content, lead)))
	default:
		w.Logger.WithField("step_type", step.Type).Warn("Unknown sequence step type")
		return
	}
	if err != nil {
		w.Logger.WithError(err).WithFields(logrus.Fields{
			"lead_id":   lead.ID,
			"step_type": step.Type,
		}).Error("Failed to send sequence step")
	}
}
