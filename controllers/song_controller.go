package controller

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"songlead/models"
	"songlead/utils"
)

type SongController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewSongController(db *gorm.DB, logger *logrus.Entry) *SongController {
	return &SongController{
		DB:     db,
		Logger: logger.WithField("controller", "song"),
	}
}

// CreateSong enqueues a new song generation job for a lead. The job
// enters the pipeline at the lyrics stage.
func (sc *SongController) CreateSong(c *fiber.Ctx) error {
	var input struct {
		LeadID      string `json:"lead_id" validate:"required"`
		Purpose     string `json:"purpose" validate:"required,max=1000"`
		IncludeName string `json:"include_name" validate:"omitempty,max=100"`
		Anecdotes   string `json:"anecdotes" validate:"omitempty,max=2000"`
		Artist      string `json:"artist" validate:"omitempty,max=100"`
		Genre       string `json:"genre" validate:"omitempty,max=100"`
		VoiceType   string `json:"voice_type" validate:"omitempty,oneof=male female"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var lead models.Lead
	if err := sc.DB.First(&lead, "id = ?", input.LeadID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
	}

	song := models.Song{
		LeadID:      lead.ID,
		LeadPhone:   lead.Phone,
		LeadName:    lead.Name,
		Purpose:     input.Purpose,
		IncludeName: input.IncludeName,
		Anecdotes:   input.Anecdotes,
		Artist:      input.Artist,
		Genre:       input.Genre,
		VoiceType:   input.VoiceType,
		Status:      models.SongNoLyrics,
	}
	if err := sc.DB.Create(&song).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create song", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(song))
}

// GetSongs returns paginated songs, optionally filtered by status or
// lead.
func (sc *SongController) GetSongs(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := sc.DB.Model(&models.Song{})

	if status := c.Query("status"); status != "" {
		if !models.SongStatus(status).Valid() {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown song status", nil)
		}
		query = query.Where("status = ?", status)
	}
	if leadID := c.Query("lead_id"); leadID != "" {
		query = query.Where("lead_id = ?", leadID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count songs", err)
	}

	var songs []models.Song
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&songs).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch songs", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  songs,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetSong returns a single song by ID.
func (sc *SongController) GetSong(c *fiber.Ctx) error {
	songID := c.Params("id")

	var song models.Song
	if err := sc.DB.First(&song, "id = ?", songID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Song not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch song", err)
	}
	return c.JSON(utils.SuccessResponse(song))
}

// RetrySong resets a parked song back to the entry status of the stage
// that failed.
func (sc *SongController) RetrySong(c *fiber.Ctx) error {
	songID := c.Params("id")

	var song models.Song
	if err := sc.DB.First(&song, "id = ?", songID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Song not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch song", err)
	}

	entry := models.SongRetryEntry(song.Status)
	if entry == "" {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Song is not in a retryable status", nil)
	}

	if err := utils.TransitionSong(sc.DB, &song, entry, map[string]interface{}{
		"error_msg": "",
	}); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retry song", err)
	}

	sc.Logger.WithFields(logrus.Fields{
		"song_id": song.ID,
		"status":  song.Status,
	}).Info("Song reset for retry")

	return c.JSON(utils.SuccessResponse(song))
}
