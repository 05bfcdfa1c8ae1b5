package controller

import (
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"songlead/models"
	"songlead/utils"
)

type eventPayload struct {
	JID         string `json:"jid"`
	ResolvedJID string `json:"resolvedJid,omitempty"`
	PushName    string `json:"pushName,omitempty"`
	FromMe      bool   `json:"fromMe,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
	Message     struct {
		Type     string `json:"type"`
		Text     string `json:"text,omitempty"`
		MediaURL string `json:"mediaUrl,omitempty"`
		MimeType string `json:"mimeType,omitempty"`
	} `json:"message"`
}

func textEvent(jid, text string) eventPayload {
	var e eventPayload
	e.JID = jid
	e.PushName = "Maria Fernanda"
	e.Message.Type = "text"
	e.Message.Text = text
	return e
}

func newInboundApp(t *testing.T) (*fiber.App, *gorm.DB, *fakeMirror) {
	t.Helper()
	setTestConfig()
	db := newTestDB(t)
	mirror := &fakeMirror{}
	ic := NewInboundController(db, utils.NewSequenceCatalog(db), mirror, testLogger())

	app := fiber.New()
	app.Post("/", ic.HandleEvent)
	return app, db, mirror
}

func TestInboundIgnoresGroups(t *testing.T) {
	app, db, _ := newInboundApp(t)

	resp, err := app.Test(postJSON(t, textEvent("1203634@g.us", "hello")))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var count int64
	db.Model(&models.Lead{}).Count(&count)
	if count != 0 {
		t.Fatalf("group event created %d leads", count)
	}
}

func TestInboundKeywordCreatesLeadWithCampaign(t *testing.T) {
	app, db, _ := newInboundApp(t)

	resp, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "#webpro1490")))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not created: %v", err)
	}
	if lead.Phone != "5215512345678" || lead.Name != "Maria" && lead.Name != "Maria Fernanda" {
		t.Fatalf("lead = %+v", lead)
	}
	if !lead.HasActiveTrigger("LeadWeb1490") {
		t.Fatalf("keyword campaign not started: %+v", lead.ActiveSequences)
	}
	if !lead.HasTag("LeadWeb1490") {
		t.Fatalf("keyword tag missing: %+v", lead.Tags)
	}
	if lead.UnreadCount != 1 {
		t.Fatalf("unread_count = %d, want 1", lead.UnreadCount)
	}

	var messages []models.LeadMessage
	db.Where("lead_id = ?", lead.ID).Find(&messages)
	if len(messages) != 1 || messages[0].Sender != models.SenderLead {
		t.Fatalf("messages = %+v", messages)
	}
}

func TestInboundPlainMessageStartsDefaultCampaign(t *testing.T) {
	app, db, _ := newInboundApp(t)

	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "hola, me interesa"))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not created: %v", err)
	}
	if !lead.HasActiveTrigger("NewLead") {
		t.Fatalf("default campaign not started: %+v", lead.ActiveSequences)
	}
}

func TestInboundKeywordNotDuplicated(t *testing.T) {
	app, db, _ := newInboundApp(t)

	for i := 0; i < 3; i++ {
		if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "#webpro1490"))); err != nil {
			t.Fatalf("request failed: %v", err)
		}
	}

	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not found: %v", err)
	}

	count := 0
	for _, inst := range lead.ActiveSequences {
		if inst.Trigger == "LeadWeb1490" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("keyword campaign running %d times, want 1", count)
	}
	if lead.UnreadCount != 3 {
		t.Fatalf("unread_count = %d, want 3", lead.UnreadCount)
	}
}

func TestInboundRestartCommandResetsCampaign(t *testing.T) {
	app, db, _ := newInboundApp(t)

	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "#webpro1490"))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// Have the instance progress so the reset is observable.
	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not found: %v", err)
	}
	lead.ActiveSequences[0].Index = 2
	if err := db.Model(&models.Lead{}).Where("id = ?", lead.ID).
		Update("active_sequences", lead.ActiveSequences).Error; err != nil {
		t.Fatalf("updating instance: %v", err)
	}

	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "#link #webpro1490"))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if err := db.First(&lead, "id = ?", lead.ID).Error; err != nil {
		t.Fatalf("lead not found: %v", err)
	}
	count := 0
	for _, inst := range lead.ActiveSequences {
		if inst.Trigger == "LeadWeb1490" {
			count++
			if inst.Index != 0 {
				t.Fatalf("restarted instance index = %d, want 0", inst.Index)
			}
		}
	}
	if count != 1 {
		t.Fatalf("keyword campaign running %d times after restart, want 1", count)
	}
}

func TestInboundRestartAloneResetsDefaultCampaign(t *testing.T) {
	app, db, _ := newInboundApp(t)

	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "hola"))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not found: %v", err)
	}
	lead.ActiveSequences[0].Index = 3
	if err := db.Model(&models.Lead{}).Where("id = ?", lead.ID).
		Update("active_sequences", lead.ActiveSequences).Error; err != nil {
		t.Fatalf("updating instance: %v", err)
	}

	// Without the keyword, the restart command targets the default
	// campaign.
	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "#link"))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if err := db.First(&lead, "id = ?", lead.ID).Error; err != nil {
		t.Fatalf("lead not found: %v", err)
	}
	if len(lead.ActiveSequences) != 1 {
		t.Fatalf("instances = %+v, want a single restarted instance", lead.ActiveSequences)
	}
	if lead.ActiveSequences[0].Trigger != "NewLead" || lead.ActiveSequences[0].Index != 0 {
		t.Fatalf("instance = %+v, want NewLead at index 0", lead.ActiveSequences[0])
	}
}

func TestInboundRestartHonoredOnOwnMessage(t *testing.T) {
	app, db, _ := newInboundApp(t)

	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "hola"))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not found: %v", err)
	}
	lead.ActiveSequences[0].Index = 2
	if err := db.Model(&models.Lead{}).Where("id = ?", lead.ID).
		Update("active_sequences", lead.ActiveSequences).Error; err != nil {
		t.Fatalf("updating instance: %v", err)
	}

	restart := textEvent("5215512345678@s.whatsapp.net", "#link")
	restart.FromMe = true
	if _, err := app.Test(postJSON(t, restart)); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if err := db.First(&lead, "id = ?", lead.ID).Error; err != nil {
		t.Fatalf("lead not found: %v", err)
	}
	if len(lead.ActiveSequences) != 1 || lead.ActiveSequences[0].Index != 0 {
		t.Fatalf("instances = %+v, want restarted instance", lead.ActiveSequences)
	}
	if lead.UnreadCount != 1 {
		t.Fatalf("unread_count = %d, want own restart not counted", lead.UnreadCount)
	}
}

func TestInboundFromMeDoesNotCountUnread(t *testing.T) {
	app, db, _ := newInboundApp(t)

	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "hola"))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	reply := textEvent("5215512345678@s.whatsapp.net", "claro, te cuento")
	reply.FromMe = true
	if _, err := app.Test(postJSON(t, reply)); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not found: %v", err)
	}
	if lead.UnreadCount != 1 {
		t.Fatalf("unread_count = %d, want 1 after own reply", lead.UnreadCount)
	}

	var messages []models.LeadMessage
	db.Where("lead_id = ? AND sender = ?", lead.ID, models.SenderBusiness).Find(&messages)
	if len(messages) != 1 {
		t.Fatalf("business messages = %d, want 1", len(messages))
	}
}

func TestInboundLIDRoutedToResolvedLead(t *testing.T) {
	app, db, _ := newInboundApp(t)

	// First contact arrives under the phone JID.
	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "hola"))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// Later messages arrive under a lid address with the phone resolved.
	lidEvent := textEvent("98765432101@lid", "sigo aqui")
	lidEvent.ResolvedJID = "5215512345678@s.whatsapp.net"
	if _, err := app.Test(postJSON(t, lidEvent)); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var count int64
	db.Model(&models.Lead{}).Count(&count)
	if count != 1 {
		t.Fatalf("lid event created a second lead: %d leads", count)
	}

	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not found: %v", err)
	}
	if lead.UnreadCount != 2 {
		t.Fatalf("unread_count = %d, want 2", lead.UnreadCount)
	}
}

func TestInboundKeywordSniffedInsideText(t *testing.T) {
	app, db, _ := newInboundApp(t)

	text := "Hola, vi su anuncio #webPro1490"
	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", text))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not created: %v", err)
	}
	if !lead.HasActiveTrigger("LeadWeb1490") {
		t.Fatalf("keyword inside text not sniffed: %+v", lead.ActiveSequences)
	}
	if lead.HasActiveTrigger("NewLead") {
		t.Fatalf("default campaign started alongside the keyword: %+v", lead.ActiveSequences)
	}
	if !lead.HasTag("LeadWeb1490") {
		t.Fatalf("tags = %+v", lead.Tags)
	}
}

func TestInboundLeadMessageReseedsDefaultCampaign(t *testing.T) {
	app, db, _ := newInboundApp(t)

	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "hola"))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// The seeded campaign ran to completion and was removed.
	if err := db.Model(&models.Lead{}).Where("id = ?", "5215512345678@s.whatsapp.net").
		Update("active_sequences", []models.SequenceInstance{}).Error; err != nil {
		t.Fatalf("clearing instances: %v", err)
	}

	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "hola, me interesa"))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not found: %v", err)
	}
	if !lead.HasActiveTrigger("NewLead") {
		t.Fatalf("instances = %+v, want default campaign re-seeded", lead.ActiveSequences)
	}
}

func TestInboundDefaultCampaignTagsLead(t *testing.T) {
	app, db, _ := newInboundApp(t)

	if _, err := app.Test(postJSON(t, textEvent("5215512345678@s.whatsapp.net", "hola"))); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not created: %v", err)
	}
	if !lead.HasTag("NewLead") {
		t.Fatalf("tags = %+v, want NewLead", lead.Tags)
	}
}

func TestInboundOwnReplyStampsConversationTime(t *testing.T) {
	app, db, _ := newInboundApp(t)

	first := textEvent("5215512345678@s.whatsapp.net", "hola")
	first.Timestamp = time.Now().Add(-time.Hour).Unix()
	if _, err := app.Test(postJSON(t, first)); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	reply := textEvent("5215512345678@s.whatsapp.net", "claro, te cuento")
	reply.FromMe = true
	reply.Timestamp = time.Now().Unix()
	if _, err := app.Test(postJSON(t, reply)); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var lead models.Lead
	if err := db.First(&lead, "id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("lead not found: %v", err)
	}
	if lead.LastMessageAt == nil || lead.LastMessageAt.Unix() != reply.Timestamp {
		t.Fatalf("last_message_at = %v, want the own reply's time", lead.LastMessageAt)
	}
	if lead.UnreadCount != 1 {
		t.Fatalf("unread_count = %d, want 1", lead.UnreadCount)
	}
}

func TestInboundMirrorsMedia(t *testing.T) {
	app, db, mirror := newInboundApp(t)

	event := textEvent("5215512345678@s.whatsapp.net", "")
	event.Message.Type = "image"
	event.Message.MediaURL = "https://gateway.test/media/abc"
	event.Message.MimeType = "image/jpeg"

	if _, err := app.Test(postJSON(t, event)); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if len(mirror.downloads) != 1 || mirror.downloads[0] != "https://gateway.test/media/abc" {
		t.Fatalf("downloads = %+v", mirror.downloads)
	}
	if len(mirror.uploads) != 1 || mirror.uploads[0].ContentType != "image/jpeg" {
		t.Fatalf("uploads = %+v", mirror.uploads)
	}

	var msg models.LeadMessage
	if err := db.First(&msg, "lead_id = ?", "5215512345678@s.whatsapp.net").Error; err != nil {
		t.Fatalf("message not recorded: %v", err)
	}
	if msg.MediaURL == "https://gateway.test/media/abc" {
		t.Fatal("message kept the gateway URL instead of the mirrored one")
	}
	if msg.MediaType != "image" || msg.Content != "[image]" {
		t.Fatalf("message = %+v", msg)
	}
}
