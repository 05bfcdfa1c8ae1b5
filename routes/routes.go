package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	controller "songlead/controllers"
	"songlead/middleware"
	"songlead/utils"
)

// Deps carries the shared collaborators the controllers need.
type Deps struct {
	DB      *gorm.DB
	Catalog *utils.SequenceCatalog
	Gateway *utils.WhatsAppGateway
	Media   *utils.MediaStorage
	FFmpeg  *utils.FFmpeg
	Logger  *logrus.Entry
}

func SetupRoutes(app *fiber.App, deps Deps) {
	inboundController := controller.NewInboundController(deps.DB, deps.Catalog, deps.Media, deps.Logger)
	callbackController := controller.NewCallbackController(deps.DB, deps.Media, deps.Logger)
	whatsappController := controller.NewWhatsAppController(deps.DB, deps.Gateway, deps.FFmpeg, deps.Media, deps.Logger)
	sequenceController := controller.NewSequenceController(deps.DB, deps.Catalog, deps.Logger)
	songController := controller.NewSongController(deps.DB, deps.Logger)
	scriptController := controller.NewScriptController(deps.DB, deps.Logger)
	leadController := controller.NewLeadController(deps.DB, deps.Logger)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Gateway-facing endpoints
	api.Post("/whatsapp/events", inboundController.HandleEvent)
	api.Post("/suno/callback", middleware.CallbackRateLimiter(), callbackController.HandleSunoCallback)

	// WhatsApp control surface
	whatsapp := api.Group("/whatsapp")
	whatsapp.Get("/status", whatsappController.GetStatus)
	whatsapp.Get("/number", whatsappController.GetNumber)
	whatsapp.Post("/send", whatsappController.SendMessage)
	whatsapp.Post("/send-audio", whatsappController.SendAudio)
	whatsapp.Post("/read/:id", whatsappController.MarkRead)

	app.Get("/api/whatsapp/status/ws", websocket.New(func(c *websocket.Conn) {
		whatsappController.HandleStatusWS(c)
	}))

	// Lead routes
	lead := api.Group("/leads")
	lead.Get("/", leadController.GetLeads)
	lead.Get("/:id", leadController.GetLead)
	lead.Get("/:id/messages", leadController.GetLeadMessages)
	lead.Put("/:id", leadController.UpdateLead)
	lead.Delete("/:id", leadController.DeleteLead)

	// Sequence routes
	sequence := api.Group("/sequences")
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/", sequenceController.GetSequences)
	sequence.Get("/:trigger", sequenceController.GetSequence)
	sequence.Put("/:trigger", sequenceController.UpdateSequence)
	sequence.Delete("/:trigger", sequenceController.DeleteSequence)
	sequence.Post("/cache/flush", sequenceController.FlushCache)

	// Song routes
	song := api.Group("/songs")
	song.Post("/", songController.CreateSong)
	song.Get("/", songController.GetSongs)
	song.Get("/:id", songController.GetSong)
	song.Post("/:id/retry", songController.RetrySong)

	// Script routes
	script := api.Group("/scripts")
	script.Post("/", scriptController.CreateScript)
	script.Get("/", scriptController.GetScripts)
	script.Get("/:id", scriptController.GetScript)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	deps.Logger.Info("API routes initialized successfully")
}
