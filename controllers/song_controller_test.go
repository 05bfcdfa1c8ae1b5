package controller

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"songlead/models"
)

func newSongApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	sc := NewSongController(db, testLogger())

	app := fiber.New()
	app.Post("/", sc.CreateSong)
	app.Post("/:id/retry", sc.RetrySong)
	return app, db
}

func TestCreateSongSnapshotsLead(t *testing.T) {
	app, db := newSongApp(t)

	lead := models.Lead{
		ID:    "5215512345678@s.whatsapp.net",
		Phone: "5215512345678",
		Name:  "Maria Fernanda",
	}
	if err := db.Create(&lead).Error; err != nil {
		t.Fatalf("seeding lead: %v", err)
	}

	payload := map[string]interface{}{
		"lead_id":      lead.ID,
		"purpose":      "Birthday song for her mother",
		"include_name": "Carmen",
		"genre":        "mariachi",
		"voice_type":   "female",
	}
	resp, err := app.Test(postJSON(t, payload))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var song models.Song
	if err := db.Where("lead_id = ?", lead.ID).First(&song).Error; err != nil {
		t.Fatalf("song not persisted: %v", err)
	}
	if song.Status != models.SongNoLyrics {
		t.Fatalf("status = %s, want no_lyrics", song.Status)
	}
	if song.LeadPhone != lead.Phone || song.LeadName != lead.Name {
		t.Fatalf("lead snapshot = (%q, %q)", song.LeadPhone, song.LeadName)
	}
}

func TestCreateSongUnknownLead(t *testing.T) {
	app, _ := newSongApp(t)

	payload := map[string]interface{}{
		"lead_id": "nobody@s.whatsapp.net",
		"purpose": "A song",
	}
	resp, err := app.Test(postJSON(t, payload))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRetrySongResetsToStageEntry(t *testing.T) {
	app, db := newSongApp(t)

	song := models.Song{
		LeadID:   "x@s.whatsapp.net",
		Status:   models.SongErrorClip,
		FullURL:  "https://cdn.test/songs/full/task-1.mp3",
		ErrorMsg: "trim failed",
	}
	if err := db.Create(&song).Error; err != nil {
		t.Fatalf("seeding song: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/%d/retry", song.ID), nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got models.Song
	if err := db.First(&got, song.ID).Error; err != nil {
		t.Fatalf("reloading song: %v", err)
	}
	if got.Status != models.SongAudioReady {
		t.Fatalf("status = %s, want audio_ready", got.Status)
	}
	if got.ErrorMsg != "" {
		t.Fatalf("error_msg = %q, want cleared", got.ErrorMsg)
	}
}

func TestRetrySongRejectsHealthyStatus(t *testing.T) {
	app, db := newSongApp(t)

	song := models.Song{
		LeadID: "x@s.whatsapp.net",
		Status: models.SongDelivered,
	}
	if err := db.Create(&song).Error; err != nil {
		t.Fatalf("seeding song: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/%d/retry", song.ID), nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}
