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
	lyricsSystemPrompt = "You are a creative songwriter who writes warm, personal lyrics in simple everyday language."

	lyricsUserPrompt = "Write song lyrics with this structure: verse 1, verse 2, chorus, verse 3, verse 4, chorus. " +
		"Start with a short bold title on its own line.\n" +
		"Purpose of the song: %s.\n" +
		"Name to include: %s.\n" +
		"Anecdotes to weave in: %s."

	stylePromptSystem = "You write style prompts for a music generation service. Answer with the prompt only, no commentary."

	stylePromptDraft = "Describe the musical style for a song inspired by %s, genre %s, with a %s voice. " +
		"List only musical elements separated by commas."

	stylePromptCompress = "Compress the following style description to fewer than %d characters, keeping only the most " +
		"distinctive elements, still comma separated:\n%s"

	stylePromptMaxLen = 120
	songTitleMaxLen   = 30
)

var errEmptyCompletion = errors.New("text generation returned empty output")

// SongWorker drives the three text-side stages of the song pipeline:
// lyrics generation, style prompt generation and task submission. Each
// stage runs on its own ticker and claims at most one song per pass.
type SongWorker struct {
	DB     *gorm.DB
	Text   TextGenerator
	Audio  TaskSubmitter
	Logger *logrus.Entry
	Alerts *utils.AlertMailer

	LyricsInterval time.Duration
	PromptInterval time.Duration
	SubmitInterval time.Duration

	lyricsMu sync.Mutex
	promptMu sync.Mutex
	submitMu sync.Mutex
}

func NewSongWorker(db *gorm.DB, text TextGenerator, audio TaskSubmitter, alerts *utils.AlertMailer, logger *logrus.Entry) *SongWorker {
	return &SongWorker{
		DB:             db,
		Text:           text,
		Audio:          audio,
		Alerts:         alerts,
		Logger:         logger.WithField("worker", "song"),
		LyricsInterval: 20 * time.Second,
		PromptInterval: 20 * time.Second,
		SubmitInterval: 20 * time.Second,
	}
}

// Start blocks until ctx is cancelled, running the three stage loops.
func (w *SongWorker) Start(ctx context.Context) {
	w.Logger.Info("Song pipeline worker started")

	var wg sync.WaitGroup
	for _, stage := range []struct {
		interval time.Duration
		run      func(context.Context)
	}{
		{w.LyricsInterval, w.GenerateLyrics},
		{w.PromptInterval, w.GenerateStylePrompts},
		{w.SubmitInterval, w.SubmitTasks},
	} {
		wg.Add(1)
		go func(interval time.Duration, run func(context.Context)) {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					run(ctx)
				}
			}
		}(stage.interval, stage.run)
	}
	wg.Wait()
	w.Logger.Info("Song pipeline worker shutting down...")
}

// GenerateLyrics claims the oldest song waiting for lyrics and writes
// them. A failed generation leaves the song in place so the next pass
// retries it.
func (w *SongWorker) GenerateLyrics(ctx context.Context) {
	if !w.lyricsMu.TryLock() {
		return
	}
	defer w.lyricsMu.Unlock()

	song, err := utils.ClaimSong(w.DB, models.SongNoLyrics)
	if err != nil {
		w.Logger.WithError(err).Error("Failed to claim song for lyrics")
		return
	}
	if song == nil {
		return
	}
	log := w.Logger.WithField("song_id", song.ID)

	name := song.IncludeName
	if name == "" {
		name = song.LeadName
	}
	prompt := fmt.Sprintf(lyricsUserPrompt, song.Purpose, name, song.Anecdotes)

	lyrics, err := w.Text.Complete(ctx, lyricsSystemPrompt, prompt, 0)
	if err == nil && lyrics == "" {
		err = errEmptyCompletion
	}
	if err != nil {
		log.WithError(err).Error("Lyrics generation failed, will retry")
		return
	}

	if err := utils.TransitionSong(w.DB, song, models.SongNoPrompt, map[string]interface{}{
		"lyrics": lyrics,
	}); err != nil {
		log.WithError(err).Error("Failed to store lyrics")
		return
	}
	// Mirror onto the lead so the panel shows them next to the chat.
	if err := w.DB.Model(&models.Lead{}).Where("id = ?", song.LeadID).
		Update("lyrics", lyrics).Error; err != nil {
		log.WithError(err).Warn("Failed to mirror lyrics onto lead")
	}
	log.Info("Lyrics generated")
}

// GenerateStylePrompts drafts a style description and compresses it under
// the provider's length limit.
func (w *SongWorker) GenerateStylePrompts(ctx context.Context) {
	if !w.promptMu.TryLock() {
		return
	}
	defer w.promptMu.Unlock()

	song, err := utils.ClaimSong(w.DB, models.SongNoPrompt)
	if err != nil {
		w.Logger.WithError(err).Error("Failed to claim song for style prompt")
		return
	}
	if song == nil {
		return
	}
	log := w.Logger.WithField("song_id", song.ID)

	draft, err := w.Text.Complete(ctx, stylePromptSystem,
		fmt.Sprintf(stylePromptDraft, song.Artist, song.Genre, song.VoiceType), 0)
	if err == nil && draft == "" {
		err = errEmptyCompletion
	}
	if err != nil {
		log.WithError(err).Error("Style prompt draft failed, will retry")
		return
	}

	style := draft
	if len(style) > stylePromptMaxLen {
		style, err = w.Text.Complete(ctx, stylePromptSystem,
			fmt.Sprintf(stylePromptCompress, stylePromptMaxLen, draft), 0)
		if err == nil && style == "" {
			err = errEmptyCompletion
		}
		if err != nil {
			log.WithError(err).Error("Style prompt compression failed, will retry")
			return
		}
	}
	// The provider rejects long prompts outright, so enforce the limit
	// even when the model ignored the instruction.
	style = utils.TruncateRunes(style, stylePromptMaxLen)

	if err := utils.TransitionSong(w.DB, song, models.SongNoTask, map[string]interface{}{
		"style_prompt": style,
	}); err != nil {
		log.WithError(err).Error("Failed to store style prompt")
		return
	}
	log.Info("Style prompt generated")
}

// SubmitTasks hands a prepared song to the audio service. The song is
// marked as processing before the call so a crash mid-submit is caught by
// the reclaimer instead of producing a duplicate task.
func (w *SongWorker) SubmitTasks(ctx context.Context) {
	if !w.submitMu.TryLock() {
		return
	}
	defer w.submitMu.Unlock()

	song, err := utils.ClaimSong(w.DB, models.SongNoTask)
	if err != nil {
		w.Logger.WithError(err).Error("Failed to claim song for submission")
		return
	}
	if song == nil {
		return
	}
	log := w.Logger.WithField("song_id", song.ID)

	now := time.Now()
	if err := utils.TransitionSong(w.DB, song, models.SongProcessing, map[string]interface{}{
		"generated_at": now,
		"error_msg":    "",
	}); err != nil {
		if errors.Is(err, utils.ErrSongClaimLost) {
			return
		}
		log.WithError(err).Error("Failed to mark song as processing")
		return
	}

	title := utils.TruncateRunes(song.Purpose, songTitleMaxLen)
	taskID, err := w.Audio.SubmitTask(ctx, title, song.StylePrompt, song.Lyrics)
	if err != nil {
		log.WithError(err).Error("Audio task submission failed")
		if terr := utils.TransitionSong(w.DB, song, models.SongErrorGeneration, map[string]interface{}{
			"error_msg": err.Error(),
		}); terr != nil {
			log.WithError(terr).Error("Failed to park song after submission failure")
		}
		reportParkedSong(log, w.Alerts, song, "submit", err)
		return
	}

	if err := w.DB.Model(&models.Song{}).Where("id = ?", song.ID).
		Update("task_id", taskID).Error; err != nil {
		log.WithError(err).Error("Failed to store task handle")
		return
	}
	log.WithField("task_id", taskID).Info("Audio task submitted")
}
