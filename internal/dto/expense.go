package dto

import (
	"time"

	"gastoflow/internal/models"
)

// ExpenseResponse is the JSON shape of a persisted expense record.
type ExpenseResponse struct {
	ID            int64   `json:"id"`
	EventID       int64   `json:"event_id"`
	CategoryID    *int64  `json:"category_id,omitempty"`
	CardID        *int64  `json:"card_id,omitempty"`
	Description   string  `json:"description"`
	Place         string  `json:"place"`
	Date          *string `json:"date"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	BlobName      *string `json:"blob_name,omitempty"`
	BlobURL       *string `json:"blob_url,omitempty"`
	ContentType   *string `json:"content_type,omitempty"`
	FileSizeBytes *int64  `json:"file_size_bytes,omitempty"`
	OpenKMDocID   *string `json:"openkm_doc_id,omitempty"`
	ReadURL       string  `json:"read_url,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func NewExpenseResponse(exp *models.Expense) ExpenseResponse {
	resp := ExpenseResponse{
		ID:            exp.ID,
		EventID:       exp.EventID,
		CategoryID:    exp.CategoryID,
		CardID:        exp.CardID,
		Description:   exp.Description,
		Place:         exp.Place,
		Amount:        exp.Amount.StringFixed(2),
		Currency:      exp.Currency,
		BlobName:      exp.BlobName,
		BlobURL:       exp.BlobURL,
		ContentType:   exp.FileContentType,
		FileSizeBytes: exp.FileSizeBytes,
		OpenKMDocID:   exp.OpenKMDocID,
		CreatedAt:     exp.CreatedAt.Format(time.RFC3339),
	}
	if exp.Date != nil {
		date := exp.Date.Format("2006-01-02")
		resp.Date = &date
	}
	return resp
}

// IngestResponse carries the full pipeline output: the raw analysis text,
// the classifier's answer (possibly a sentinel error object), and the saved
// expense.
type IngestResponse struct {
	ExtractedText    string          `json:"extracted_text"`
	ClassifierOutput string          `json:"classifier_output"`
	Expense          ExpenseResponse `json:"expense"`
}

type AttachResponse struct {
	ID            int64   `json:"id"`
	BlobName      string  `json:"blob_name"`
	BlobURL       string  `json:"blob_url"`
	ContentType   string  `json:"content_type"`
	FileSizeBytes int64   `json:"file_size_bytes"`
	OpenKMDocID   *string `json:"openkm_doc_id,omitempty"`
}

type DetachResponse struct {
	Deleted bool `json:"deleted"`
}

type TempURLResponse struct {
	ReadURL          string `json:"read_url"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}
