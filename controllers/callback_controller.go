package controller

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"songlead/models"
	"songlead/utils"
)

type CallbackController struct {
	DB     *gorm.DB
	Media  MediaMirror
	Logger *logrus.Entry
}

func NewCallbackController(db *gorm.DB, media MediaMirror, logger *logrus.Entry) *CallbackController {
	return &CallbackController{
		DB:     db,
		Media:  media,
		Logger: logger.WithField("controller", "callback"),
	}
}

type sunoCallbackPayload struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	TaskID string `json:"taskId"`
	Data   struct {
		CallbackType string              `json:"callbackType"`
		TaskID       string              `json:"taskId"`
		TaskIDSnake  string              `json:"task_id"`
		Data         []sunoCallbackTrack `json:"data"`
	} `json:"data"`
}

type sunoCallbackTrack struct {
	AudioURL       string  `json:"audio_url"`
	SourceAudioURL string  `json:"source_audio_url"`
	Title          string  `json:"title"`
	Duration       float64 `json:"duration"`
}

// taskID tolerates the vendor's mixed casing: submissions answer with
// camelCase, callbacks have been seen with either.
func (p *sunoCallbackPayload) taskID() string {
	if p.TaskID != "" {
		return p.TaskID
	}
	if p.Data.TaskID != "" {
		return p.Data.TaskID
	}
	return p.Data.TaskIDSnake
}

func (t *sunoCallbackTrack) url() string {
	if t.AudioURL != "" {
		return t.AudioURL
	}
	return t.SourceAudioURL
}

// HandleSunoCallback receives completion notifications from the audio
// generation service. A handle that matches no processing song is
// acknowledged and dropped; the task may have been reclaimed already.
func (cc *CallbackController) HandleSunoCallback(c *fiber.Ctx) error {
	var payload sunoCallbackPayload
	if err := c.BodyParser(&payload); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid callback body", err)
	}
	taskID := payload.taskID()
	if taskID == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Callback has no task handle", nil)
	}

	log := cc.Logger.WithField("task_id", taskID)

	var song models.Song
	err := cc.DB.Where("task_id = ? AND status = ?", taskID, models.SongProcessing).
		First(&song).Error
	if err == gorm.ErrRecordNotFound {
		log.Warn("Callback for unknown or already handled task, ignoring")
		return c.JSON(utils.SuccessResponse(fiber.Map{"ignored": true}))
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to look up song", err)
	}
	log = log.WithField("song_id", song.ID)

	// Intermediate notifications ("text", "first") arrive before the
	// audio is final. Only "complete" carries the full track.
	if payload.Data.CallbackType != "complete" && payload.Code == 200 {
		return c.JSON(utils.SuccessResponse(fiber.Map{"pending": payload.Data.CallbackType}))
	}

	if payload.Code != 200 || len(payload.Data.Data) == 0 || payload.Data.Data[0].url() == "" {
		cause := payload.Msg
		if cause == "" {
			cause = "generation failed without detail"
		}
		if terr := utils.TransitionSong(cc.DB, &song, models.SongErrorGeneration, map[string]interface{}{
			"error_msg": cause,
		}); terr != nil {
			log.WithError(terr).Error("Failed to park song after provider failure")
		}
		log.WithField("provider_msg", cause).Error("Audio generation failed")
		return c.JSON(utils.SuccessResponse(fiber.Map{"failed": true}))
	}

	audioURL := payload.Data.Data[0].url()
	body, err := cc.Media.Download(c.Context(), audioURL)
	if err != nil {
		log.WithError(err).Error("Failed to download generated track")
		if terr := utils.TransitionSong(cc.DB, &song, models.SongErrorGeneration, map[string]interface{}{
			"error_msg": "download failed: " + err.Error(),
		}); terr != nil {
			log.WithError(terr).Error("Failed to park song after download failure")
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to download generated track", err)
	}

	key := fmt.Sprintf("songs/full/%s.mp3", taskID)
	fullURL, err := cc.Media.Upload(c.Context(), key, "audio/mpeg", body)
	if err != nil {
		log.WithError(err).Error("Failed to store generated track")
		if terr := utils.TransitionSong(cc.DB, &song, models.SongErrorGeneration, map[string]interface{}{
			"error_msg": "upload failed: " + err.Error(),
		}); terr != nil {
			log.WithError(terr).Error("Failed to park song after upload failure")
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store generated track", err)
	}

	if err := utils.TransitionSong(cc.DB, &song, models.SongAudioReady, map[string]interface{}{
		"full_url":  fullURL,
		"error_msg": "",
	}); err != nil {
		log.WithError(err).Error("Failed to mark song as audio ready")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update song", err)
	}

	log.Info("Full track stored, song ready for clipping")
	return c.JSON(utils.SuccessResponse(fiber.Map{"stored": true}))
}
