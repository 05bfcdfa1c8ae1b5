package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"songlead/models"
	"songlead/utils"
)

// Transport is the outbound messaging capability the workers depend on.
// utils.WhatsAppGateway is the production implementation.
type Transport interface {
	IsConnected() bool
	SendText(ctx context.Context, target, text string) error
	SendAudio(ctx context.Context, target, url string, ptt bool) error
	SendImage(ctx context.Context, target, url string) error
	SendVideo(ctx context.Context, target, url string) error
	SendClip(ctx context.Context, target, url string) error
}

// TextGenerator produces free-form text from a pair of prompts.
type TextGenerator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// TaskSubmitter hands a finished lyric sheet to the audio generation
// service and returns the remote task handle.
type TaskSubmitter interface {
	SubmitTask(ctx context.Context, title, stylePrompt, lyrics string) (string, error)
}

// MediaProcessor covers the audio manipulation the clip stage needs.
type MediaProcessor interface {
	Trim(ctx context.Context, in []byte, start, duration time.Duration) ([]byte, error)
	MixOverlay(ctx context.Context, base, overlay []byte, delayMs int, overlayVolume float64) ([]byte, error)
	Transcode(ctx context.Context, in []byte, codec, container string) ([]byte, error)
}

// BlobStore stores and fetches media assets by URL.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// reportParkedSong records a pipeline failure with Sentry and, when an
// alert mailer is configured, notifies the operator that the song needs
// a manual retry.
func reportParkedSong(logger *logrus.Entry, alerts *utils.AlertMailer, song *models.Song, stage string, cause error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("stage", stage)
		scope.SetTag("song_id", fmt.Sprint(song.ID))
		scope.SetTag("song_status", string(song.Status))
		sentry.CaptureException(cause)
	})
	if alerts == nil {
		return
	}
	if err := alerts.SongParked(song, stage, cause); err != nil {
		logger.WithError(err).Warn("Failed to send operator alert")
	}
}
