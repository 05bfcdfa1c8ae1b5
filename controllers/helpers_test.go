package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"songlead/config"
	"songlead/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Lead{},
		&models.LeadMessage{},
		&models.Sequence{},
		&models.Song{},
		&models.Script{},
	); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func setTestConfig() {
	config.AppConfig = config.Config{
		DefaultTrigger:   "NewLead",
		TriggerKeyword:   "#webpro1490",
		KeywordTrigger:   "LeadWeb1490",
		RestartCommand:   "#link",
		DeliveredTrigger: "SongDelivered",
	}
}

type mirrorCall struct {
	Key         string
	ContentType string
}

type fakeMirror struct {
	downloadErr error
	uploadErr   error
	uploads     []mirrorCall
	downloads   []string
}

func (f *fakeMirror) Download(_ context.Context, url string) ([]byte, error) {
	f.downloads = append(f.downloads, url)
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return []byte("content-of:" + url), nil
}

func (f *fakeMirror) Upload(_ context.Context, key, contentType string, _ []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, mirrorCall{key, contentType})
	return "https://cdn.test/" + key, nil
}

func postJSON(t *testing.T, payload interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshaling payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
