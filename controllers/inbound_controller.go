package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"songlead/config"
	"songlead/models"
	"songlead/utils"
)

// MediaMirror copies inbound media off the gateway's short-lived URLs
// into our own bucket. utils.MediaStorage is the production
// implementation.
type MediaMirror interface {
	Download(ctx context.Context, url string) ([]byte, error)
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type InboundController struct {
	DB      *gorm.DB
	Catalog *utils.SequenceCatalog
	Media   MediaMirror
	Logger  *logrus.Entry
}

func NewInboundController(db *gorm.DB, catalog *utils.SequenceCatalog, media MediaMirror, logger *logrus.Entry) *InboundController {
	return &InboundController{
		DB:      db,
		Catalog: catalog,
		Media:   media,
		Logger:  logger.WithField("controller", "inbound"),
	}
}

type inboundEvent struct {
	JID         string `json:"jid" validate:"required"`
	ResolvedJID string `json:"resolvedJid"`
	PushName    string `json:"pushName"`
	FromMe      bool   `json:"fromMe"`
	Timestamp   int64  `json:"timestamp"`
	Message     struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		MediaURL string `json:"mediaUrl"`
		MimeType string `json:"mimeType"`
	} `json:"message"`
}

// HandleEvent ingests one message event from the WhatsApp gateway. Group
// chats are dropped, identities are resolved to a canonical JID, and
// first contact starts the configured welcome sequence.
func (ic *InboundController) HandleEvent(c *fiber.Ctx) error {
	var input inboundEvent
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if utils.IsGroupJID(input.JID) {
		return c.JSON(utils.SuccessResponse(fiber.Map{"ignored": "group"}))
	}

	canonical := utils.NormalizeJID(input.JID)
	resolved := utils.NormalizeJID(input.ResolvedJID)
	if canonical == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Event has no usable JID", nil)
	}

	// The resolved JID is the phone authority when the sender writes
	// from a LID address.
	phoneSource := canonical
	if resolved != "" && !utils.IsLIDJID(resolved) {
		phoneSource = resolved
	}
	phone := utils.PhoneFromJID(phoneSource)

	addressingMode := models.AddressingPN
	lidRemote := false
	if utils.IsLIDJID(canonical) {
		addressingMode = models.AddressingLID
		lidRemote = true
	}

	text := strings.TrimSpace(input.Message.Text)
	now := time.Now()
	eventTime := now
	if input.Timestamp > 0 {
		eventTime = time.Unix(input.Timestamp, 0)
	}

	lead, created, err := ic.findOrCreateLead(canonical, resolved, phone, input.PushName, addressingMode, lidRemote, text, now)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resolve lead", err)
	}

	if err := ic.recordMessage(c.Context(), lead, &input, text, eventTime); err != nil {
		ic.Logger.WithError(err).WithField("lead_id", lead.ID).Error("Failed to record inbound message")
	}

	if err := ic.touchLead(lead.ID, !input.FromMe, eventTime); err != nil {
		ic.Logger.WithError(err).WithField("lead_id", lead.ID).Error("Failed to update lead counters")
	}

	// A restart command counts even when the business sends it from its
	// own phone; everything else only reacts to the lead's messages.
	if !created && (!input.FromMe || isRestartCommand(text)) {
		if err := ic.applyTriggers(lead, text, now); err != nil {
			ic.Logger.WithError(err).WithField("lead_id", lead.ID).Error("Failed to apply message triggers")
		}
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"lead_id": lead.ID,
		"created": created,
	}))
}

func (ic *InboundController) findOrCreateLead(canonical, resolved, phone, pushName, mode string, lidRemote bool, text string, now time.Time) (*models.Lead, bool, error) {
	var lead models.Lead
	err := ic.DB.First(&lead, "id = ?", canonical).Error
	if err == nil {
		return &lead, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	// A LID sender may already exist under its phone JID.
	if resolved != "" && resolved != canonical {
		if err := ic.DB.First(&lead, "id = ?", resolved).Error; err == nil {
			if !lead.LIDRemote && lidRemote {
				updates := map[string]interface{}{
					"lid_remote":      lidRemote,
					"addressing_mode": mode,
				}
				if uerr := ic.DB.Model(&models.Lead{}).Where("id = ?", lead.ID).Updates(updates).Error; uerr != nil {
					ic.Logger.WithError(uerr).WithField("lead_id", lead.ID).Warn("Failed to record LID mapping")
				}
			}
			return &lead, false, nil
		} else if err != gorm.ErrRecordNotFound {
			return nil, false, err
		}
	}

	name := strings.TrimSpace(pushName)
	if name == "" {
		name = phone
	}

	trigger := sniffTrigger(text)

	lead = models.Lead{
		ID:             canonical,
		ResolvedJID:    resolved,
		Phone:          phone,
		Name:           name,
		Source:         "whatsapp",
		State:          models.LeadStateNew,
		AddressingMode: mode,
		LIDRemote:      lidRemote,
		Tags:           []string{trigger},
		ActiveSequences: []models.SequenceInstance{{
			Trigger:   trigger,
			StartTime: now,
			Index:     0,
		}},
	}

	if err := ic.DB.Create(&lead).Error; err != nil {
		return nil, false, err
	}
	if err := utils.SyncLeadNextSequence(ic.DB, ic.Catalog, lead.ID, lead.ActiveSequences); err != nil {
		ic.Logger.WithError(err).WithField("lead_id", lead.ID).Warn("Failed to sync next sequence time")
	}
	return &lead, true, nil
}

// containsFold reports whether text contains needle, case-insensitively.
func containsFold(text, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(needle))
}

// sniffTrigger picks the campaign a message asks for: the keyword
// campaign when the keyword appears anywhere in the text, the default
// campaign otherwise.
func sniffTrigger(text string) string {
	cfg := config.AppConfig
	if containsFold(text, cfg.TriggerKeyword) {
		return cfg.KeywordTrigger
	}
	return cfg.DefaultTrigger
}

func isRestartCommand(text string) bool {
	return containsFold(text, config.AppConfig.RestartCommand)
}

// applyTriggers runs the sniffed trigger against a lead we already
// know: a restart command resets that trigger's instance, otherwise a
// fresh instance is appended unless one is already running. The lead is
// always tagged with the trigger.
func (ic *InboundController) applyTriggers(lead *models.Lead, text string, now time.Time) error {
	trigger := sniffTrigger(text)
	restart := isRestartCommand(text)

	// Re-read so concurrent sequence updates are not clobbered.
	var fresh models.Lead
	if err := ic.DB.First(&fresh, "id = ?", lead.ID).Error; err != nil {
		return err
	}

	instances := fresh.ActiveSequences
	appended := true
	if restart {
		kept := make([]models.SequenceInstance, 0, len(instances))
		for _, inst := range instances {
			if inst.Trigger != trigger {
				kept = append(kept, inst)
			}
		}
		instances = kept
	} else if fresh.HasActiveTrigger(trigger) {
		appended = false
	}

	updates := map[string]interface{}{}
	if appended {
		instances = append(instances, models.SequenceInstance{
			Trigger:   trigger,
			StartTime: now,
			Index:     0,
		})
		updates["active_sequences"] = instances
	}
	if !fresh.HasTag(trigger) {
		updates["tags"] = append(fresh.Tags, trigger)
	}
	if len(updates) == 0 {
		return nil
	}
	if err := ic.DB.Model(&models.Lead{}).Where("id = ?", fresh.ID).Updates(updates).Error; err != nil {
		return err
	}
	if !appended {
		return nil
	}
	return utils.SyncLeadNextSequence(ic.DB, ic.Catalog, fresh.ID, instances)
}

func (ic *InboundController) recordMessage(ctx context.Context, lead *models.Lead, input *inboundEvent, text string, eventTime time.Time) error {
	sender := models.SenderLead
	if input.FromMe {
		sender = models.SenderBusiness
	}

	msg := models.LeadMessage{
		LeadID:    lead.ID,
		Content:   text,
		MediaType: input.Message.Type,
		Sender:    sender,
		Timestamp: eventTime,
	}

	if input.Message.MediaURL != "" {
		url, err := ic.mirrorMedia(ctx, lead.ID, input.Message.MediaURL, input.Message.MimeType, eventTime)
		if err != nil {
			ic.Logger.WithError(err).WithField("lead_id", lead.ID).Warn("Failed to mirror inbound media")
			url = input.Message.MediaURL
		}
		msg.MediaURL = url
		if msg.Content == "" {
			msg.Content = "[" + input.Message.Type + "]"
		}
	}
	if msg.Content == "" && msg.MediaURL == "" {
		return nil
	}
	return ic.DB.Create(&msg).Error
}

// mirrorMedia copies a gateway media URL into our bucket. Gateway URLs
// expire, the mirrored copy does not.
func (ic *InboundController) mirrorMedia(ctx context.Context, leadID, mediaURL, mimeType string, eventTime time.Time) (string, error) {
	body, err := ic.Media.Download(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	ext := "bin"
	if parts := strings.SplitN(mimeType, "/", 2); len(parts) == 2 && parts[1] != "" {
		ext = strings.SplitN(parts[1], ";", 2)[0]
	}
	key := fmt.Sprintf("inbound/%s/%d.%s", utils.DigitsOnly(leadID), eventTime.UnixNano(), ext)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return ic.Media.Upload(ctx, key, mimeType, body)
}

// touchLead stamps the conversation time on every event; only messages
// from the lead count toward the unread badge.
func (ic *InboundController) touchLead(leadID string, fromLead bool, eventTime time.Time) error {
	updates := map[string]interface{}{
		"last_message_at": eventTime,
	}
	if fromLead {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
	}
	return ic.DB.Model(&models.Lead{}).Where("id = ?", leadID).Updates(updates).Error
}
