package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is the persisted expense record. The attachment columns
// (BlobName..OpenKMDocID) stay nil until a receipt file is attached;
// a successful primary upload always sets BlobName and BlobURL together,
// while OpenKMDocID may remain nil because the secondary replica is
// best-effort.
type Expense struct {
	ID              int64            `db:"id"`
	EventID         int64            `db:"event_id"`
	CategoryID      *int64           `db:"category_id"`
	CardID          *int64           `db:"card_id"`
	Description     string           `db:"description"`
	Place           string           `db:"place"`
	Date            *time.Time       `db:"expense_date"`
	Amount          decimal.Decimal  `db:"amount"`
	Currency        string           `db:"currency"`
	AmountUSD       *decimal.Decimal `db:"amount_usd"`
	ExchangeRate    *decimal.Decimal `db:"exchange_rate"`
	BlobName        *string          `db:"blob_name"`
	BlobURL         *string          `db:"blob_url"`
	FileContentType *string          `db:"file_content_type"`
	FileSizeBytes   *int64           `db:"file_size_bytes"`
	OpenKMDocID     *string          `db:"openkm_doc_uuid"`
	CreatedAt       time.Time        `db:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at"`
}

// HasAttachment reports whether a receipt file is linked to the expense.
func (e *Expense) HasAttachment() bool {
	return e.BlobName != nil && *e.BlobName != ""
}

// ClearAttachment resets every attachment column. The secondary-store copy
// is not touched; documents are never removed from the archive.
func (e *Expense) ClearAttachment() {
	e.BlobName = nil
	e.BlobURL = nil
	e.FileContentType = nil
	e.FileSizeBytes = nil
	e.OpenKMDocID = nil
}
