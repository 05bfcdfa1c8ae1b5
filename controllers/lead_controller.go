package controller

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"songlead/models"
	"songlead/utils"
)

type LeadController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewLeadController(db *gorm.DB, logger *logrus.Entry) *LeadController {
	return &LeadController{
		DB:     db,
		Logger: logger.WithField("controller", "lead"),
	}
}

// GetLeads returns paginated leads with filters, most recent
// conversation first.
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := lc.DB.Model(&models.Lead{})

	if state := c.Query("state"); state != "" {
		query = query.Where("state = ?", state)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("name LIKE ? OR phone LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if c.Query("unread") == "true" {
		query = query.Where("unread_count > 0")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count leads", err)
	}

	var leads []models.Lead
	if err := query.Order("last_message_at DESC NULLS LAST").
		Offset(offset).Limit(limit).Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  leads,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetLead returns a single lead by canonical JID.
func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	leadID := c.Params("id")

	var lead models.Lead
	if err := lc.DB.First(&lead, "id = ?", leadID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
	}
	return c.JSON(utils.SuccessResponse(lead))
}

// GetLeadMessages returns the lead's conversation log, oldest first.
func (lc *LeadController) GetLeadMessages(c *fiber.Ctx) error {
	leadID := c.Params("id")

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit > 200 {
		limit = 200
	}
	offset := (page - 1) * limit

	var lead models.Lead
	if err := lc.DB.First(&lead, "id = ?", leadID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
	}

	var total int64
	if err := lc.DB.Model(&models.LeadMessage{}).Where("lead_id = ?", leadID).Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count messages", err)
	}

	var messages []models.LeadMessage
	if err := lc.DB.Where("lead_id = ?", leadID).
		Order("timestamp ASC").Offset(offset).Limit(limit).Find(&messages).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch messages", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  messages,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// UpdateLead updates the lead's editable fields.
func (lc *LeadController) UpdateLead(c *fiber.Ctx) error {
	leadID := c.Params("id")

	var input struct {
		Name  string   `json:"name" validate:"omitempty,max=200"`
		State string   `json:"state" validate:"omitempty,oneof=new engaged customer discarded"`
		Tags  []string `json:"tags"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var lead models.Lead
	if err := lc.DB.First(&lead, "id = ?", leadID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
	}

	if input.Name != "" {
		lead.Name = input.Name
	}
	if input.State != "" {
		lead.State = input.State
	}
	if input.Tags != nil {
		lead.Tags = input.Tags
	}

	if err := lc.DB.Save(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update lead", err)
	}
	return c.JSON(utils.SuccessResponse(lead))
}

// DeleteLead removes a lead and its conversation log.
func (lc *LeadController) DeleteLead(c *fiber.Ctx) error {
	leadID := c.Params("id")

	tx := lc.DB.Begin()

	if err := tx.Where("lead_id = ?", leadID).Delete(&models.LeadMessage{}).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete lead messages", err)
	}

	result := tx.Where("id = ?", leadID).Delete(&models.Lead{})
	if result.Error != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete lead", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	tx.Commit()

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Lead deleted successfully",
	}))
}
