package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gastoflow/internal/api/handlers"
	"gastoflow/internal/dto"
	"gastoflow/internal/models"
	"gastoflow/internal/repository"
	"gastoflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	expenses map[int64]*models.Expense
	nextID   int64
}

func (m *memStore) Create(_ context.Context, exp *models.Expense) error {
	m.nextID++
	exp.ID = m.nextID
	stored := *exp
	m.expenses[exp.ID] = &stored
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*models.Expense, error) {
	exp, ok := m.expenses[id]
	if !ok {
		return nil, repository.ErrExpenseNotFound
	}
	copied := *exp
	return &copied, nil
}

func (m *memStore) List(_ context.Context) ([]*models.Expense, error) {
	var out []*models.Expense
	for _, exp := range m.expenses {
		copied := *exp
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memStore) UpdateAttachment(_ context.Context, exp *models.Expense) error {
	stored := *exp
	m.expenses[exp.ID] = &stored
	return nil
}

type stubAnalyzer struct{ text string }

func (s *stubAnalyzer) Submit(_ context.Context, imageBytes []byte) (string, error) {
	if len(imageBytes) == 0 {
		return "", service.ErrAnalysisRejected
	}
	return "op", nil
}

func (s *stubAnalyzer) AwaitResult(context.Context, string) (*service.AnalysisResult, error) {
	return &service.AnalysisResult{Status: "succeeded"}, nil
}

func (s *stubAnalyzer) ExtractPlainText(*service.AnalysisResult) string { return s.text }

type stubClassifier struct{ output string }

func (s *stubClassifier) Classify(context.Context, string) string { return s.output }

type memBlobStore struct {
	objects map[string][]byte
}

func (m *memBlobStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.objects[key] = data
	return "http://blobs.local/" + key, nil
}

func (m *memBlobStore) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (m *memBlobStore) Delete(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	delete(m.objects, key)
	return ok, nil
}

func (m *memBlobStore) PresignReadURL(_ context.Context, key string, _ int) (string, error) {
	return "http://blobs.local/signed/" + key, nil
}

type noopArchive struct{}

func (noopArchive) Store(context.Context, int64, string, []byte, string, string, [2]string) (string, error) {
	return "", nil
}

func newTestApp(classifierOutput string) *fiber.App {
	logger := zap.NewNop()
	svc := service.NewExpenseService(
		&memStore{expenses: map[int64]*models.Expense{}},
		&stubAnalyzer{text: "TOTAL 34.25"},
		&stubClassifier{output: classifierOutput},
		&memBlobStore{objects: map[string][]byte{}},
		noopArchive{},
		"gastos",
		logger,
	)
	return SetupRouter(
		handlers.NewReceiptHandler(svc, logger),
		handlers.NewExpenseHandler(svc, logger),
	)
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = part.Write(fileData)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp("{}")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIngestEndpoint(t *testing.T) {
	app := newTestApp(`{"NombreEmpresa": "Texaco", "MontoTotal": "34.25", "Fecha": "21/09/25"}`)

	body, contentType := multipartBody(t, map[string]string{"event_id": "10"}, "file", "receipt.jpg", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var got dto.IngestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "TOTAL 34.25", got.ExtractedText)
	assert.Equal(t, "Texaco", got.Expense.Place)
	assert.Equal(t, "34.25", got.Expense.Amount)
	assert.Equal(t, int64(10), got.Expense.EventID)
}

func TestIngestEndpointMissingFile(t *testing.T) {
	app := newTestApp("{}")

	body, contentType := multipartBody(t, map[string]string{"event_id": "10"}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestEndpointMissingEventID(t *testing.T) {
	app := newTestApp("{}")

	body, contentType := multipartBody(t, nil, "file", "receipt.jpg", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateFromClassifierEndpoint(t *testing.T) {
	app := newTestApp("{}")

	payload := `{"IdEvento": 1, "NombreEmpresa": "Texaco", "MontoTotal": "17.70"}`
	req := httptest.NewRequest(http.MethodPost, "/api/expenses/llm", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var got dto.ExpenseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "Texaco", got.Place)
	assert.Equal(t, "17.70", got.Amount)
}

func TestCreateFromClassifierEndpointMissingEvent(t *testing.T) {
	app := newTestApp("{}")

	req := httptest.NewRequest(http.MethodPost, "/api/expenses/llm", strings.NewReader(`{"MontoTotal": "1.00"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "IdEvento")
}

func TestListExpensesEndpoint(t *testing.T) {
	app := newTestApp("{}")

	req := httptest.NewRequest(http.MethodPost, "/api/expenses/llm", strings.NewReader(`{"IdEvento": 1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/expenses", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got []dto.ExpenseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Len(t, got, 1)
}

func TestFileLifecycleEndpoints(t *testing.T) {
	app := newTestApp("{}")

	req := httptest.NewRequest(http.MethodPost, "/api/expenses/llm", strings.NewReader(`{"IdEvento": 1, "Fecha": "2025-03-01"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Attach
	body, contentType := multipartBody(t, map[string]string{"user": "juan"}, "file", "ticket.jpg", []byte("payload"))
	req = httptest.NewRequest(http.MethodPost, "/api/expenses/1/file", body)
	req.Header.Set("Content-Type", contentType)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var attach dto.AttachResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&attach))
	assert.Equal(t, "gastos/juan/2025/Marzo/1-ticket.jpg", attach.BlobName)
	assert.Equal(t, int64(7), attach.FileSizeBytes)
	assert.Nil(t, attach.OpenKMDocID)

	// Download
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/expenses/1/file", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, []byte("payload"), data)

	// Presigned URL
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/expenses/1/file/url?min=5", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var signed dto.TempURLResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&signed))
	assert.Contains(t, signed.ReadURL, "signed")
	assert.Equal(t, 5, signed.ExpiresInMinutes)

	// Detach
	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/expenses/1/file", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detach dto.DetachResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detach))
	assert.True(t, detach.Deleted)

	// Idempotent detach
	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/expenses/1/file", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detach))
	assert.False(t, detach.Deleted)

	// Download after detach
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/expenses/1/file", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFileEndpointsUnknownExpense(t *testing.T) {
	app := newTestApp("{}")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/expenses/99/file", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/expenses/99/file", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
