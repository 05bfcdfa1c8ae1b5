package controller

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"songlead/models"
	"songlead/utils"
)

type ScriptController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewScriptController(db *gorm.DB, logger *logrus.Entry) *ScriptController {
	return &ScriptController{
		DB:     db,
		Logger: logger.WithField("controller", "script"),
	}
}

// CreateScript enqueues an ad script request for a lead.
func (sc *ScriptController) CreateScript(c *fiber.Ctx) error {
	var input struct {
		LeadID       string `json:"lead_id" validate:"required"`
		SenderName   string `json:"sender_name" validate:"omitempty,max=100"`
		BusinessName string `json:"business_name" validate:"required,max=200"`
		Description  string `json:"description" validate:"required,max=2000"`
		Purpose      string `json:"purpose" validate:"omitempty,max=1000"`
		Promo        string `json:"promo" validate:"omitempty,max=500"`
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

	script := models.Script{
		LeadID:       lead.ID,
		LeadPhone:    lead.Phone,
		SenderName:   input.SenderName,
		BusinessName: input.BusinessName,
		Description:  input.Description,
		Purpose:      input.Purpose,
		Promo:        input.Promo,
		Status:       models.ScriptNoScript,
	}
	if err := sc.DB.Create(&script).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create script request", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(script))
}

// GetScripts returns paginated script requests, optionally filtered by
// status or lead.
func (sc *ScriptController) GetScripts(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := sc.DB.Model(&models.Script{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if leadID := c.Query("lead_id"); leadID != "" {
		query = query.Where("lead_id = ?", leadID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count scripts", err)
	}

	var scripts []models.Script
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&scripts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch scripts", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  scripts,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetScript returns a single script request by ID.
func (sc *ScriptController) GetScript(c *fiber.Ctx) error {
	scriptID := c.Params("id")

	var script models.Script
	if err := sc.DB.First(&script, "id = ?", scriptID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Script not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch script", err)
	}
	return c.JSON(utils.SuccessResponse(script))
}
