package controller

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"songlead/models"
	"songlead/utils"
)

// Gateway is the slice of the WhatsApp gateway the control surface
// needs.
type Gateway interface {
	Status(ctx context.Context) (*utils.GatewayStatus, error)
	IsConnected() bool
	SendText(ctx context.Context, target, text string) error
	SendAudio(ctx context.Context, target, url string, ptt bool) error
}

type WhatsAppController struct {
	DB      *gorm.DB
	Gateway Gateway
	FFmpeg  *utils.FFmpeg
	Media   MediaMirror
	Logger  *logrus.Entry
}

func NewWhatsAppController(db *gorm.DB, gateway Gateway, ffmpeg *utils.FFmpeg, media MediaMirror, logger *logrus.Entry) *WhatsAppController {
	return &WhatsAppController{
		DB:      db,
		Gateway: gateway,
		FFmpeg:  ffmpeg,
		Media:   media,
		Logger:  logger.WithField("controller", "whatsapp"),
	}
}

// GetStatus reports the gateway connection state, including the pairing
// QR code while disconnected.
func (wc *WhatsAppController) GetStatus(c *fiber.Ctx) error {
	status, err := wc.Gateway.Status(c.Context())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Gateway unreachable", err)
	}
	return c.JSON(utils.SuccessResponse(status))
}

// GetNumber returns the connected account's phone number.
func (wc *WhatsAppController) GetNumber(c *fiber.Ctx) error {
	status, err := wc.Gateway.Status(c.Context())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Gateway unreachable", err)
	}
	if !status.Connected {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "WhatsApp is not connected", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"phone": status.Phone}))
}

// SendMessage sends a manual text message to a lead and records it in
// the conversation log.
func (wc *WhatsAppController) SendMessage(c *fiber.Ctx) error {
	var input struct {
		Target string `json:"target" validate:"required"`
		Text   string `json:"text" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	target := utils.TargetJID(input.Target)
	if target == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Target is not a valid JID or phone number", nil)
	}
	if !wc.Gateway.IsConnected() {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "WhatsApp is not connected", nil)
	}

	if err := wc.Gateway.SendText(c.Context(), target, input.Text); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to send message", err)
	}

	wc.logOutbound(target, input.Text, "text", "")

	return c.JSON(utils.SuccessResponse(fiber.Map{"sent": true}))
}

// SendAudio accepts an uploaded audio file, converts it to the voice
// note format, stores it and sends it as a push-to-talk message.
func (wc *WhatsAppController) SendAudio(c *fiber.Ctx) error {
	target := utils.TargetJID(c.FormValue("target"))
	if target == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Target is not a valid JID or phone number", nil)
	}
	if !wc.Gateway.IsConnected() {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "WhatsApp is not connected", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File upload error", err)
	}
	if file.Size > 16<<20 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File too large (max 16MB)", nil)
	}

	src, err := file.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to open uploaded file", err)
	}
	defer src.Close()

	body, err := io.ReadAll(src)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to read uploaded file", err)
	}

	// WhatsApp voice notes want AAC in an m4a container.
	converted, err := wc.FFmpeg.Transcode(c.Context(), body, "aac", "m4a")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to convert audio", err)
	}

	key := fmt.Sprintf("outbound/%s/%d.m4a", utils.DigitsOnly(target), time.Now().UnixNano())
	url, err := wc.Media.Upload(c.Context(), key, "audio/mp4", converted)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store audio", err)
	}

	if err := wc.Gateway.SendAudio(c.Context(), target, url, true); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to send voice note", err)
	}

	wc.logOutbound(target, "[audio] "+url, "audio", url)

	return c.JSON(utils.SuccessResponse(fiber.Map{"sent": true, "url": url}))
}

// MarkRead clears the unread counter for a lead.
func (wc *WhatsAppController) MarkRead(c *fiber.Ctx) error {
	leadID := c.Params("id")

	res := wc.DB.Model(&models.Lead{}).Where("id = ?", leadID).Update("unread_count", 0)
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to mark conversation read", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"read": true}))
}

// logOutbound records a manual send against the lead's conversation when
// the target maps to a known lead. Sends to unknown numbers are legal
// and simply not logged.
func (wc *WhatsAppController) logOutbound(target, content, mediaType, mediaURL string) {
	now := time.Now()

	var lead models.Lead
	err := wc.DB.Where("id = ? OR resolved_jid = ?", target, target).First(&lead).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			wc.Logger.WithError(err).Warn("Failed to look up lead for outbound log")
		}
		return
	}

	msg := models.LeadMessage{
		LeadID:    lead.ID,
		Content:   content,
		MediaType: mediaType,
		MediaURL:  mediaURL,
		Sender:    models.SenderBusiness,
		Timestamp: now,
	}
	if err := wc.DB.Create(&msg).Error; err != nil {
		wc.Logger.WithError(err).Warn("Failed to record outbound message")
	}
	if err := wc.DB.Model(&models.Lead{}).Where("id = ?", lead.ID).
		Update("last_message_at", now).Error; err != nil {
		wc.Logger.WithError(err).Warn("Failed to update last message time")
	}
}

// HandleStatusWS streams gateway connection state over a websocket so
// the panel can show the pairing QR live.
func (wc *WhatsAppController) HandleStatusWS(conn *websocket.Conn) {
	defer conn.Close()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		status, err := wc.Gateway.Status(ctx)
		cancel()
		if err != nil {
			status = &utils.GatewayStatus{Connected: false, Status: "unreachable"}
		}
		if err := conn.WriteJSON(status); err != nil {
			return
		}
		<-ticker.C
	}
}
