package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"songlead/models"
)

const watermarkURL = "https://cdn.test/watermark.mp3"

func newClipWorker(t *testing.T, media *fakeMedia, store *fakeStore) *ClipWorker {
	t.Helper()
	return NewClipWorker(newTestDB(t), media, store, nil, watermarkURL, testLogger())
}

func seedAudioReadySong(t *testing.T, w *ClipWorker) *models.Song {
	t.Helper()
	song := &models.Song{
		LeadID:  "5215512345678@s.whatsapp.net",
		Status:  models.SongAudioReady,
		FullURL: "https://cdn.test/songs/full/task-1.mp3",
		Lyrics:  "la la la",
	}
	if err := w.DB.Create(song).Error; err != nil {
		t.Fatalf("creating song: %v", err)
	}
	return song
}

func TestClipPipelineSuccess(t *testing.T) {
	media := &fakeMedia{}
	store := newFakeStore()
	w := newClipWorker(t, media, store)
	song := seedAudioReadySong(t, w)

	w.ProcessAll(context.Background())

	var got models.Song
	if err := w.DB.First(&got, song.ID).Error; err != nil {
		t.Fatalf("reloading song: %v", err)
	}
	if got.Status != models.SongDeliveryPending {
		t.Fatalf("status = %s, want delivery_pending", got.Status)
	}

	key := fmt.Sprintf("songs/clip/%d-clip.m4a", song.ID)
	if got.ClipURL != "https://cdn.test/"+key {
		t.Fatalf("clip_url = %q", got.ClipURL)
	}
	if _, ok := store.uploads[key]; !ok {
		t.Fatalf("clip not uploaded under %q, uploads: %v", key, store.uploads)
	}
	if media.trims != 1 || media.mixes != 1 || media.transcodes != 1 {
		t.Fatalf("media ops trims=%d mixes=%d transcodes=%d", media.trims, media.mixes, media.transcodes)
	}
}

func TestClipTrimFailureParksSong(t *testing.T) {
	media := &fakeMedia{trimErr: errors.New("corrupt audio")}
	w := newClipWorker(t, media, newFakeStore())
	song := seedAudioReadySong(t, w)

	w.ProcessAll(context.Background())

	var got models.Song
	if err := w.DB.First(&got, song.ID).Error; err != nil {
		t.Fatalf("reloading song: %v", err)
	}
	if got.Status != models.SongErrorClip {
		t.Fatalf("status = %s, want error_clip", got.Status)
	}
	if got.ErrorMsg == "" {
		t.Fatal("error_msg not recorded")
	}
}

func TestClipMixFailureParksSong(t *testing.T) {
	media := &fakeMedia{mixErr: errors.New("filter failed")}
	w := newClipWorker(t, media, newFakeStore())
	song := seedAudioReadySong(t, w)

	w.ProcessAll(context.Background())

	var got models.Song
	if err := w.DB.First(&got, song.ID).Error; err != nil {
		t.Fatalf("reloading song: %v", err)
	}
	if got.Status != models.SongErrorWatermark {
		t.Fatalf("status = %s, want error_watermark", got.Status)
	}
}

func TestClipUploadFailureParksSong(t *testing.T) {
	store := newFakeStore()
	store.uploadErr = errors.New("bucket unavailable")
	w := newClipWorker(t, &fakeMedia{}, store)
	song := seedAudioReadySong(t, w)

	w.ProcessAll(context.Background())

	var got models.Song
	if err := w.DB.First(&got, song.ID).Error; err != nil {
		t.Fatalf("reloading song: %v", err)
	}
	if got.Status != models.SongErrorUpload {
		t.Fatalf("status = %s, want error_upload", got.Status)
	}
}

func TestClipWatermarkDownloadedOnce(t *testing.T) {
	store := newFakeStore()
	w := newClipWorker(t, &fakeMedia{}, store)
	seedAudioReadySong(t, w)
	second := &models.Song{
		LeadID:  "5210000000000@s.whatsapp.net",
		Status:  models.SongAudioReady,
		FullURL: "https://cdn.test/songs/full/task-2.mp3",
	}
	if err := w.DB.Create(second).Error; err != nil {
		t.Fatalf("creating song: %v", err)
	}

	w.ProcessAll(context.Background())

	if store.downloads[watermarkURL] != 1 {
		t.Fatalf("watermark downloaded %d times, want 1", store.downloads[watermarkURL])
	}
}

func TestClipFailureDoesNotBlockOthers(t *testing.T) {
	store := newFakeStore()
	w := newClipWorker(t, &fakeMedia{}, store)

	broken := seedAudioReadySong(t, w)
	store.failURLs[broken.FullURL] = errors.New("expired link")
	healthy := &models.Song{
		LeadID:  "5210000000000@s.whatsapp.net",
		Status:  models.SongAudioReady,
		FullURL: "https://cdn.test/songs/full/task-2.mp3",
	}
	if err := w.DB.Create(healthy).Error; err != nil {
		t.Fatalf("creating song: %v", err)
	}

	w.ProcessAll(context.Background())

	var got models.Song
	if err := w.DB.First(&got, broken.ID).Error; err != nil {
		t.Fatalf("reloading song: %v", err)
	}
	if got.Status != models.SongErrorClip {
		t.Fatalf("broken song status = %s, want error_clip", got.Status)
	}
	got = models.Song{}
	if err := w.DB.First(&got, healthy.ID).Error; err != nil {
		t.Fatalf("reloading song: %v", err)
	}
	if got.Status != models.SongDeliveryPending {
		t.Fatalf("healthy song status = %s, want delivery_pending", got.Status)
	}
}
