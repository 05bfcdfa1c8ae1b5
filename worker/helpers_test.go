package worker

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

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

type sentItem struct {
	Target string
	Body   string
}

type fakeTransport struct {
	disconnected bool
	sendErr      error

	texts  []sentItem
	audios []sentItem
	images []sentItem
	videos []sentItem
	clips  []sentItem
}

func (f *fakeTransport) IsConnected() bool { return !f.disconnected }

func (f *fakeTransport) SendText(_ context.Context, target, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.texts = append(f.texts, sentItem{target, text})
	return nil
}

func (f *fakeTransport) SendAudio(_ context.Context, target, url string, _ bool) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.audios = append(f.audios, sentItem{target, url})
	return nil
}

func (f *fakeTransport) SendImage(_ context.Context, target, url string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.images = append(f.images, sentItem{target, url})
	return nil
}

func (f *fakeTransport) SendVideo(_ context.Context, target, url string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.videos = append(f.videos, sentItem{target, url})
	return nil
}

func (f *fakeTransport) SendClip(_ context.Context, target, url string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.clips = append(f.clips, sentItem{target, url})
	return nil
}

type textCall struct {
	System string
	User   string
}

type fakeText struct {
	responses []string
	err       error
	calls     []textCall
}

func (f *fakeText) Complete(_ context.Context, systemPrompt, userPrompt string, _ int) (string, error) {
	f.calls = append(f.calls, textCall{systemPrompt, userPrompt})
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

type submitCall struct {
	Title  string
	Style  string
	Lyrics string
}

type fakeSubmitter struct {
	taskID string
	err    error
	calls  []submitCall
}

func (f *fakeSubmitter) SubmitTask(_ context.Context, title, stylePrompt, lyrics string) (string, error) {
	f.calls = append(f.calls, submitCall{title, stylePrompt, lyrics})
	if f.err != nil {
		return "", f.err
	}
	return f.taskID, nil
}

type fakeMedia struct {
	trimErr      error
	mixErr       error
	transcodeErr error

	trims      int
	mixes      int
	transcodes int
}

func (f *fakeMedia) Trim(_ context.Context, in []byte, _, _ time.Duration) ([]byte, error) {
	f.trims++
	if f.trimErr != nil {
		return nil, f.trimErr
	}
	return append([]byte("trimmed:"), in...), nil
}

func (f *fakeMedia) MixOverlay(_ context.Context, base, _ []byte, _ int, _ float64) ([]byte, error) {
	f.mixes++
	if f.mixErr != nil {
		return nil, f.mixErr
	}
	return append([]byte("mixed:"), base...), nil
}

func (f *fakeMedia) Transcode(_ context.Context, in []byte, _, _ string) ([]byte, error) {
	f.transcodes++
	if f.transcodeErr != nil {
		return nil, f.transcodeErr
	}
	return append([]byte("m4a:"), in...), nil
}

type fakeStore struct {
	downloadErr error
	uploadErr   error

	objects   map[string][]byte // url -> content
	uploads   map[string][]byte // key -> content
	downloads map[string]int
	failURLs  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:   make(map[string][]byte),
		uploads:   make(map[string][]byte),
		downloads: make(map[string]int),
		failURLs:  make(map[string]error),
	}
}

func (f *fakeStore) Download(_ context.Context, url string) ([]byte, error) {
	f.downloads[url]++
	if err, ok := f.failURLs[url]; ok {
		return nil, err
	}
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	if body, ok := f.objects[url]; ok {
		return body, nil
	}
	return []byte("content-of:" + url), nil
}

func (f *fakeStore) Upload(_ context.Context, key, _ string, body []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads[key] = body
	return "https://cdn.test/" + key, nil
}
