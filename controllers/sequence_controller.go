package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"songlead/models"
	"songlead/utils"
)

type SequenceController struct {
	DB      *gorm.DB
	Catalog *utils.SequenceCatalog
	Logger  *logrus.Entry
}

func NewSequenceController(db *gorm.DB, catalog *utils.SequenceCatalog, logger *logrus.Entry) *SequenceController {
	return &SequenceController{
		DB:      db,
		Catalog: catalog,
		Logger:  logger.WithField("controller", "sequence"),
	}
}

type sequenceInput struct {
	Trigger     string `json:"trigger" validate:"required,max=100"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=500"`
	Steps       []struct {
		Type         string `json:"type" validate:"required"`
		Content      string `json:"content" validate:"required"`
		DelayMinutes int    `json:"delay_minutes" validate:"min=0"`
	} `json:"steps" validate:"required,min=1,dive"`
}

func (si *sequenceInput) steps() ([]models.SequenceStep, bool) {
	steps := make([]models.SequenceStep, 0, len(si.Steps))
	for _, s := range si.Steps {
		step := models.SequenceStep{
			Type:         models.StepType(s.Type),
			Content:      s.Content,
			DelayMinutes: s.DelayMinutes,
		}
		if !step.Type.Valid() {
			return nil, false
		}
		steps = append(steps, step)
	}
	return steps, true
}

// CreateSequence creates a sequence definition. The trigger name is the
// key leads subscribe under, so it must be unique.
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	steps, ok := input.steps()
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown step type", nil)
	}

	var existing models.Sequence
	if err := sc.DB.Where("trigger = ?", input.Trigger).First(&existing).Error; err == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Sequence with this trigger already exists", nil)
	}

	seq := models.Sequence{
		Trigger:     input.Trigger,
		Name:        input.Name,
		Description: input.Description,
		Steps:       steps,
	}
	if err := sc.DB.Create(&seq).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", err)
	}

	// A negative cache entry for this trigger may exist.
	sc.Catalog.Invalidate(seq.Trigger)

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(seq))
}

// GetSequences returns all sequence definitions.
func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	var sequences []models.Sequence
	if err := sc.DB.Order("trigger ASC").Find(&sequences).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequences", err)
	}
	return c.JSON(utils.SuccessResponse(sequences))
}

// GetSequence returns a single sequence by trigger.
func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	trigger := c.Params("trigger")

	var seq models.Sequence
	if err := sc.DB.Where("trigger = ?", trigger).First(&seq).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequence", err)
	}
	return c.JSON(utils.SuccessResponse(seq))
}

// UpdateSequence replaces a sequence's name, description and steps. The
// trigger itself is immutable; leads reference it by name.
func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	trigger := c.Params("trigger")

	var input struct {
		Name        string `json:"name" validate:"omitempty,max=200"`
		Description string `json:"description" validate:"max=500"`
		Steps       []struct {
			Type         string `json:"type" validate:"required"`
			Content      string `json:"content" validate:"required"`
			DelayMinutes int    `json:"delay_minutes" validate:"min=0"`
		} `json:"steps" validate:"omitempty,min=1,dive"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var seq models.Sequence
	if err := sc.DB.Where("trigger = ?", trigger).First(&seq).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequence", err)
	}

	if input.Name != "" {
		seq.Name = input.Name
	}
	seq.Description = input.Description
	if input.Steps != nil {
		steps := make([]models.SequenceStep, 0, len(input.Steps))
		for _, s := range input.Steps {
			step := models.SequenceStep{
				Type:         models.StepType(s.Type),
				Content:      s.Content,
				DelayMinutes: s.DelayMinutes,
			}
			if !step.Type.Valid() {
				return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown step type", nil)
			}
			steps = append(steps, step)
		}
		seq.Steps = steps
	}

	if err := sc.DB.Save(&seq).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence", err)
	}

	sc.Catalog.Invalidate(seq.Trigger)

	return c.JSON(utils.SuccessResponse(seq))
}

// DeleteSequence removes a sequence definition. Leads still holding an
// instance of the trigger simply stop advancing.
func (sc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	trigger := c.Params("trigger")

	result := sc.DB.Where("trigger = ?", trigger).Delete(&models.Sequence{})
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete sequence", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	sc.Catalog.Invalidate(trigger)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Sequence deleted successfully",
	}))
}

// FlushCache empties the sequence catalog cache.
func (sc *SequenceController) FlushCache(c *fiber.Ctx) error {
	sc.Catalog.Flush()
	return c.JSON(utils.SuccessResponse(fiber.Map{"flushed": true}))
}
