package api

import (
	"gastoflow/internal/api/handlers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func SetupRouter(
	receiptHandler *handlers.ReceiptHandler,
	expenseHandler *handlers.ExpenseHandler,
) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: 32 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Receipt ingestion pipeline
	api.Post("/ocr", receiptHandler.IngestReceipt)

	// Expense records and attachments
	expenses := api.Group("/expenses")
	expenses.Get("", expenseHandler.ListExpenses)
	expenses.Post("/llm", expenseHandler.CreateFromClassifier)
	expenses.Post("/:id/file", expenseHandler.AttachFile)
	expenses.Get("/:id/file", expenseHandler.DownloadFile)
	expenses.Delete("/:id/file", expenseHandler.DetachFile)
	expenses.Get("/:id/file/url", expenseHandler.TempFileURL)

	return app
}
