package handlers

import (
	"errors"
	"io"

	"gastoflow/internal/dto"
	"gastoflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ReceiptHandler struct {
	expenseService *service.ExpenseService
	logger         *zap.Logger
}

func NewReceiptHandler(expenseService *service.ExpenseService, logger *zap.Logger) *ReceiptHandler {
	return &ReceiptHandler{
		expenseService: expenseService,
		logger:         logger,
	}
}

// IngestReceipt accepts a receipt image plus the event it belongs to, runs
// the full analysis pipeline and returns the created expense together with
// the intermediate artifacts.
func (h *ReceiptHandler) IngestReceipt(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}

	eventID, err := formInt64(c, "event_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "event_id is required and must be an integer",
		})
	}
	categoryID := optionalFormInt64(c, "category_id")
	cardID := optionalFormInt64(c, "card_id")

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to open file",
		})
	}
	defer src.Close()

	imageBytes, err := io.ReadAll(src)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read file",
		})
	}

	result, err := h.expenseService.IngestReceipt(c.Context(), imageBytes, eventID, categoryID, cardID)
	if err != nil {
		return h.mapIngestError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.IngestResponse{
		ExtractedText:    result.ExtractedText,
		ClassifierOutput: result.ClassifierOutput,
		Expense:          dto.NewExpenseResponse(result.Expense),
	})
}

func (h *ReceiptHandler) mapIngestError(c *fiber.Ctx, err error) error {
	var validationErr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrAnalysisRejected):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrAnalysisTimedOut):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrAnalysisFailed):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.logger.Error("Failed to ingest receipt", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to ingest receipt",
	})
}
