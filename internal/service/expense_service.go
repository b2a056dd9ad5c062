package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gastoflow/internal/models"
	"gastoflow/internal/repository"

	"go.uber.org/zap"
)

// Collaborator contracts, narrowed to what the expense pipeline needs.

type ExpenseStore interface {
	Create(ctx context.Context, exp *models.Expense) error
	GetByID(ctx context.Context, id int64) (*models.Expense, error)
	List(ctx context.Context) ([]*models.Expense, error)
	UpdateAttachment(ctx context.Context, exp *models.Expense) error
}

type DocumentAnalyzer interface {
	Submit(ctx context.Context, imageBytes []byte) (string, error)
	AwaitResult(ctx context.Context, opLocation string) (*AnalysisResult, error)
	ExtractPlainText(result *AnalysisResult) string
}

type Classifier interface {
	Classify(ctx context.Context, plainText string) string
}

type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	PresignReadURL(ctx context.Context, key string, minutes int) (string, error)
}

type DocumentArchive interface {
	Store(ctx context.Context, expenseID int64, fileName string, data []byte, contentType, userFolder string, dateSegments [2]string) (string, error)
}

// sentinelClassifierError replaces classifier output that is not valid JSON.
// It is a well-formed object, so downstream normalization sees empty fields
// instead of a parse failure.
const sentinelClassifierError = `{"error": "classifier response is not valid JSON"}`

const defaultMerchant = "Desconocido"

// ExpenseService is the ingestion orchestrator and dual-store replicator: it
// runs analysis -> classification -> normalization -> persistence, and later
// fans an attached file out to the blob store and the OpenKM archive.
type ExpenseService struct {
	repo       ExpenseStore
	analyzer   DocumentAnalyzer
	classifier Classifier
	blobs      BlobStore
	archive    DocumentArchive
	blobPrefix string
	logger     *zap.Logger
}

func NewExpenseService(
	repo ExpenseStore,
	analyzer DocumentAnalyzer,
	classifier Classifier,
	blobs BlobStore,
	archive DocumentArchive,
	blobPrefix string,
	logger *zap.Logger,
) *ExpenseService {
	return &ExpenseService{
		repo:       repo,
		analyzer:   analyzer,
		classifier: classifier,
		blobs:      blobs,
		archive:    archive,
		blobPrefix: blobPrefix,
		logger:     logger,
	}
}

// IngestResult is everything the pipeline produced for one receipt.
type IngestResult struct {
	Expense          *models.Expense
	ExtractedText    string
	ClassifierOutput string
}

// IngestReceipt runs the full pipeline for one receipt image. It blocks for
// as long as the analysis poll loop runs (tens of seconds); callers own the
// timeout via ctx. The caller-supplied ids are merged over the classifier's
// fields before normalization.
func (s *ExpenseService) IngestReceipt(ctx context.Context, imageBytes []byte, eventID int64, categoryID, cardID *int64) (*IngestResult, error) {
	opLocation, err := s.analyzer.Submit(ctx, imageBytes)
	if err != nil {
		return nil, err
	}

	result, err := s.analyzer.AwaitResult(ctx, opLocation)
	if err != nil {
		return nil, err
	}

	extractedText := s.analyzer.ExtractPlainText(result)
	s.logger.Info("Receipt text extracted", zap.Int("text_length", len(extractedText)))

	classifierOutput := strings.TrimSpace(s.classifier.Classify(ctx, extractedText))

	fields := map[string]any{}
	if err := json.Unmarshal([]byte(classifierOutput), &fields); err != nil || len(fields) == 0 {
		s.logger.Warn("Classifier returned non-JSON output, substituting sentinel",
			zap.String("output", classifierOutput),
		)
		classifierOutput = sentinelClassifierError
		fields = map[string]any{}
		_ = json.Unmarshal([]byte(sentinelClassifierError), &fields)
	}

	fields["IdEvento"] = eventID
	if categoryID != nil {
		fields["IdCategoria"] = *categoryID
	}
	if cardID != nil {
		fields["IdTarjeta"] = *cardID
	}

	expense, err := s.createFromFields(ctx, fields)
	if err != nil {
		return nil, err
	}

	return &IngestResult{
		Expense:          expense,
		ExtractedText:    extractedText,
		ClassifierOutput: classifierOutput,
	}, nil
}

// CreateFromClassifierJSON persists an expense straight from classifier JSON,
// for clients that ran the pipeline elsewhere and only need the record saved.
func (s *ExpenseService) CreateFromClassifierJSON(ctx context.Context, rawJSON string) (*models.Expense, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(rawJSON), &fields); err != nil {
		return nil, fmt.Errorf("invalid classifier JSON: %w", err)
	}
	return s.createFromFields(ctx, fields)
}

// rawExtraction is the loosely-typed view over the classifier's JSON before
// normalization. Every field is optional except the event id.
type rawExtraction struct {
	Merchant    string
	Description string
	AmountRaw   string
	CurrencyRaw string
	DateRaw     string
	EventID     int64
	CategoryID  *int64
	CardID      *int64
}

func (s *ExpenseService) createFromFields(ctx context.Context, fields map[string]any) (*models.Expense, error) {
	raw, err := decodeExtraction(fields)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.CurrencyRaw))
	if currency == "" {
		currency = "USD"
	}

	now := time.Now()
	expense := &models.Expense{
		EventID:     raw.EventID,
		CategoryID:  raw.CategoryID,
		CardID:      raw.CardID,
		Description: truncateDescription(sanitizeUTF8(raw.Description)),
		Place:       sanitizeUTF8(raw.Merchant),
		Date:        ParseDate(raw.DateRaw),
		Amount:      ParseAmount(raw.AmountRaw),
		Currency:    currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, expense); err != nil {
		return nil, fmt.Errorf("failed to persist expense: %w", err)
	}

	s.logger.Info("Expense created",
		zap.Int64("expense_id", expense.ID),
		zap.Int64("event_id", expense.EventID),
		zap.String("amount", expense.Amount.String()),
	)

	return expense, nil
}

// decodeExtraction maps the classifier JSON onto a typed struct, resolving
// each logical field across its historical key aliases in order.
func decodeExtraction(fields map[string]any) (*rawExtraction, error) {
	merchant := stringField(fields, "NombreEmpresa")
	if merchant == "" {
		// The oldest template used a sentence-style key whose value may
		// trail branch names after a comma.
		if v := stringField(fields, "Nombre de la empresa"); v != "" {
			merchant = strings.TrimSpace(strings.SplitN(v, ",", 2)[0])
		}
	}
	if merchant == "" {
		merchant = defaultMerchant
	}

	eventID, err := intField(fields, true, "IdEvento", "idEvento")
	if err != nil {
		return nil, err
	}
	categoryID, _ := intField(fields, false, "IdCategoria", "idCategoria")
	cardID, _ := intField(fields, false, "IdTarjeta", "idTarjeta")

	return &rawExtraction{
		Merchant:    merchant,
		Description: stringField(fields, "Descripcion", "descripcion"),
		AmountRaw:   stringField(fields, "MontoTotal", "montoTotal"),
		CurrencyRaw: stringField(fields, "Moneda", "moneda"),
		DateRaw:     stringField(fields, "Fecha", "fecha"),
		EventID:     *eventID,
		CategoryID:  categoryID,
		CardID:      cardID,
	}, nil
}

// stringField returns the first non-empty string value among the candidate
// keys, in order.
func stringField(fields map[string]any, names ...string) string {
	for _, name := range names {
		if v, ok := fields[name]; ok {
			if str, ok := v.(string); ok && strings.TrimSpace(str) != "" {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

// intField returns the first parsable integer among the candidate keys.
// A required field absent under every alias is a ValidationError naming the
// first alias tried.
func intField(fields map[string]any, required bool, names ...string) (*int64, error) {
	for _, name := range names {
		v, ok := fields[name]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			value := int64(n)
			return &value, nil
		case int64:
			value := n
			return &value, nil
		case json.Number:
			if value, err := n.Int64(); err == nil {
				return &value, nil
			}
		case string:
			trimmed := strings.TrimSpace(n)
			if trimmed == "" {
				continue
			}
			var value int64
			if _, err := fmt.Sscanf(trimmed, "%d", &value); err == nil {
				return &value, nil
			}
		}
	}
	if required {
		return nil, &ValidationError{Field: names[0]}
	}
	return nil, nil
}

// Descriptions longer than 50 characters are cut at creation time, never at
// display time.
func truncateDescription(description string) string {
	runes := []rune(description)
	if len(runes) <= 50 {
		return description
	}
	return string(runes[:47]) + "..."
}

// AttachFile uploads the receipt bytes to the primary blob store and
// replicates them, best-effort, into the OpenKM archive. The expense record
// ends up with whatever subset of attachment metadata was actually obtained;
// only a primary-store failure aborts.
func (s *ExpenseService) AttachFile(ctx context.Context, expenseID int64, data []byte, originalFileName, contentType, userName string) (*models.Expense, error) {
	expense, err := s.getExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	segments := BuildStoragePath(userName, expense.Date, originalFileName, expenseID)
	blobName := s.blobPrefix + "/" + strings.Join(segments, "/")
	ct := normalizeContentType(contentType)

	blobURL, err := s.blobs.Upload(ctx, blobName, data, ct)
	if err != nil {
		return nil, fmt.Errorf("failed to upload receipt file: %w", err)
	}

	size := int64(len(data))
	expense.BlobName = &blobName
	expense.BlobURL = &blobURL
	expense.FileContentType = &ct
	expense.FileSizeBytes = &size
	expense.OpenKMDocID = nil

	userFolder := segments[0]
	dateSegments := [2]string{segments[1], segments[2]}
	fileSegment := segments[3]

	docID, err := s.archive.Store(ctx, expenseID, fileSegment, data, ct, userFolder, dateSegments)
	if err != nil {
		return nil, err
	}
	if docID != "" {
		expense.OpenKMDocID = &docID
	}

	if err := s.repo.UpdateAttachment(ctx, expense); err != nil {
		return nil, fmt.Errorf("failed to persist attachment metadata: %w", err)
	}

	return expense, nil
}

// DownloadFile returns the primary copy's bytes and content type.
func (s *ExpenseService) DownloadFile(ctx context.Context, expenseID int64) ([]byte, string, error) {
	expense, err := s.getExpense(ctx, expenseID)
	if err != nil {
		return nil, "", err
	}
	if !expense.HasAttachment() {
		return nil, "", fmt.Errorf("%w: expense %d has no file", ErrNotFound, expenseID)
	}

	data, err := s.blobs.Download(ctx, *expense.BlobName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download receipt file: %w", err)
	}

	contentType := "application/octet-stream"
	if expense.FileContentType != nil {
		contentType = *expense.FileContentType
	}
	return data, contentType, nil
}

// RemoveFile deletes the primary blob and clears the attachment columns.
// The OpenKM replica is deliberately left in place: the archive never
// forgets a document.
func (s *ExpenseService) RemoveFile(ctx context.Context, expenseID int64) (bool, error) {
	expense, err := s.getExpense(ctx, expenseID)
	if err != nil {
		return false, err
	}
	if !expense.HasAttachment() {
		return false, nil
	}

	deleted, err := s.blobs.Delete(ctx, *expense.BlobName)
	if err != nil {
		s.logger.Warn("Failed to delete primary blob",
			zap.Int64("expense_id", expenseID),
			zap.Error(err),
		)
		deleted = false
	}

	expense.ClearAttachment()
	if err := s.repo.UpdateAttachment(ctx, expense); err != nil {
		return deleted, fmt.Errorf("failed to clear attachment metadata: %w", err)
	}

	return deleted, nil
}

// BuildTempReadURL issues a time-boxed read-only URL for the primary copy.
func (s *ExpenseService) BuildTempReadURL(ctx context.Context, expenseID int64, minutes int) (string, error) {
	expense, err := s.getExpense(ctx, expenseID)
	if err != nil {
		return "", err
	}
	if !expense.HasAttachment() {
		return "", fmt.Errorf("%w: expense %d has no file", ErrNotFound, expenseID)
	}

	return s.blobs.PresignReadURL(ctx, *expense.BlobName, minutes)
}

const listReadURLMinutes = 60

// ListedExpense pairs an expense with a short-lived read URL for its
// attachment, when one exists.
type ListedExpense struct {
	Expense *models.Expense
	ReadURL string
}

// List returns every expense; attached ones get a 60-minute presigned read
// URL. A presign failure degrades to an empty URL, it never fails the list.
func (s *ExpenseService) List(ctx context.Context) ([]ListedExpense, error) {
	expenses, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	listed := make([]ListedExpense, 0, len(expenses))
	for _, exp := range expenses {
		item := ListedExpense{Expense: exp}
		if exp.HasAttachment() {
			url, err := s.blobs.PresignReadURL(ctx, *exp.BlobName, listReadURLMinutes)
			if err != nil {
				s.logger.Warn("Failed to presign read URL for listing",
					zap.Int64("expense_id", exp.ID),
					zap.Error(err),
				)
			} else {
				item.ReadURL = url
			}
		}
		listed = append(listed, item)
	}
	return listed, nil
}

func (s *ExpenseService) getExpense(ctx context.Context, expenseID int64) (*models.Expense, error) {
	expense, err := s.repo.GetByID(ctx, expenseID)
	if errors.Is(err, repository.ErrExpenseNotFound) {
		return nil, fmt.Errorf("%w: expense %d", ErrNotFound, expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load expense %d: %w", expenseID, err)
	}
	return expense, nil
}
