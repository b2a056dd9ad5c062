package handlers

import (
	"errors"
	"io"
	"strconv"

	"gastoflow/internal/dto"
	"gastoflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ExpenseHandler struct {
	expenseService *service.ExpenseService
	logger         *zap.Logger
}

func NewExpenseHandler(expenseService *service.ExpenseService, logger *zap.Logger) *ExpenseHandler {
	return &ExpenseHandler{
		expenseService: expenseService,
		logger:         logger,
	}
}

// ListExpenses returns every persisted expense, newest first.
func (h *ExpenseHandler) ListExpenses(c *fiber.Ctx) error {
	expenses, err := h.expenseService.List(c.Context())
	if err != nil {
		h.logger.Error("Failed to list expenses", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list expenses",
		})
	}

	responses := make([]dto.ExpenseResponse, 0, len(expenses))
	for _, item := range expenses {
		resp := dto.NewExpenseResponse(item.Expense)
		resp.ReadURL = item.ReadURL
		responses = append(responses, resp)
	}
	return c.JSON(responses)
}

// CreateFromClassifier persists an expense from a classifier JSON payload
// the client already obtained elsewhere.
func (h *ExpenseHandler) CreateFromClassifier(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Request body is required",
		})
	}

	expense, err := h.expenseService.CreateFromClassifierJSON(c.Context(), string(body))
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("Failed to create expense", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to create expense",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.NewExpenseResponse(expense))
}

// AttachFile stores the uploaded file in the primary blob store and
// replicates it to the document archive.
func (h *ExpenseHandler) AttachFile(c *fiber.Ctx) error {
	expenseID, err := pathID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid expense ID",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}

	userName := c.FormValue("user")

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to open file",
		})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read file",
		})
	}

	contentType := file.Header.Get("Content-Type")

	expense, err := h.expenseService.AttachFile(c.Context(), expenseID, data, file.Filename, contentType, userName)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Expense not found",
			})
		}
		h.logger.Error("Failed to attach file", zap.Int64("expense_id", expenseID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to attach file",
		})
	}

	resp := dto.AttachResponse{
		ID:          expense.ID,
		OpenKMDocID: expense.OpenKMDocID,
	}
	if expense.BlobName != nil {
		resp.BlobName = *expense.BlobName
	}
	if expense.BlobURL != nil {
		resp.BlobURL = *expense.BlobURL
	}
	if expense.FileContentType != nil {
		resp.ContentType = *expense.FileContentType
	}
	if expense.FileSizeBytes != nil {
		resp.FileSizeBytes = *expense.FileSizeBytes
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// DownloadFile streams the primary copy of the expense's file.
func (h *ExpenseHandler) DownloadFile(c *fiber.Ctx) error {
	expenseID, err := pathID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid expense ID",
		})
	}

	data, contentType, err := h.expenseService.DownloadFile(c.Context(), expenseID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "File not found",
			})
		}
		h.logger.Error("Failed to download file", zap.Int64("expense_id", expenseID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to download file",
		})
	}

	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(data)
}

// DetachFile removes the primary copy and clears the expense's attachment
// metadata. The archive replica is kept.
func (h *ExpenseHandler) DetachFile(c *fiber.Ctx) error {
	expenseID, err := pathID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid expense ID",
		})
	}

	deleted, err := h.expenseService.RemoveFile(c.Context(), expenseID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Expense not found",
			})
		}
		h.logger.Error("Failed to detach file", zap.Int64("expense_id", expenseID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to detach file",
		})
	}

	return c.JSON(dto.DetachResponse{Deleted: deleted})
}

// TempFileURL issues a time-boxed read-only URL for the file.
func (h *ExpenseHandler) TempFileURL(c *fiber.Ctx) error {
	expenseID, err := pathID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid expense ID",
		})
	}

	minutes := c.QueryInt("min", 10)
	if minutes < 1 {
		minutes = 1
	}

	url, err := h.expenseService.BuildTempReadURL(c.Context(), expenseID, minutes)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "File not found",
			})
		}
		h.logger.Error("Failed to presign file URL", zap.Int64("expense_id", expenseID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build file URL",
		})
	}

	return c.JSON(dto.TempURLResponse{
		ReadURL:          url,
		ExpiresInMinutes: minutes,
	})
}

func pathID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

func formInt64(c *fiber.Ctx, key string) (int64, error) {
	return strconv.ParseInt(c.FormValue(key), 10, 64)
}

func optionalFormInt64(c *fiber.Ctx, key string) *int64 {
	raw := c.FormValue(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &value
}
