package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gastoflow/pkg/config"

	"go.uber.org/zap"
)

// LLMService turns free OCR text into a structured invoice JSON via a remote
// chat-completions endpoint. Classification is best-effort by contract: any
// failure is reported as a human-readable string instead of an error, and the
// orchestrator degrades it into a sentinel payload downstream.
type LLMService struct {
	cfg        *config.ClassifierConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewLLMService(cfg *config.ClassifierConfig, logger *zap.Logger) *LLMService {
	return &LLMService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model        string        `json:"model"`
	Messages     []chatMessage `json:"messages"`
	MaxTokens    int           `json:"max_tokens"`
	MaxNewTokens int           `json:"max_new_tokens"`
	Temperature  float64       `json:"temperature"`
	Stream       bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// buildClassificationPrompt is the fixed extraction template. Receipts are
// Spanish-language, so the instructions are too; the field names are the wire
// contract the orchestrator decodes.
func buildClassificationPrompt(ocrText string) string {
	return "A partir del siguiente resultado de OCR de una factura, extrae y formatea la información en un objeto JSON válido " +
		"con los siguientes campos: 'NombreEmpresa', 'Descripcion', 'MontoTotal' y 'Fecha'.\n\n" +
		"Reglas:\n" +
		"- La respuesta DEBE ser un JSON válido\n" +
		"- Los nombres de los campos deben ser exactamente los mostrados arriba\n" +
		"- Ejemplos de formatos aceptados:\n" +
		"  MontoTotal: debe ser número sin símbolo de moneda (ej: '25.00' o '1215.00' o '17.70') no omitas los ceros de la derecha, usa la palabra 'total' como referencia para identificar el total\n" +
		"  Fecha: puede ser en formato '21/09/25', si el formato viene en ingles mes/dia/año (04/22/25) pasala a español dia/mes/año (22/04/25), revisa muy bien la fecha que sea la misma que recibes del ocr\n" +
		"  NombreEmpresa: solo el nombre principal, sin sucursales\n" +
		"  Descripcion: breve descripción de la transacción\n\n" +
		"Ejemplo de respuesta esperada:\n" +
		"{\n" +
		"  \"NombreEmpresa\": \"Texaco\",\n" +
		"  \"Descripcion\": \"Compra de combustible\",\n" +
		"  \"MontoTotal\": \"25.00\",\n" +
		"  \"Fecha\": \"21/09/25\"\n" +
		"}\n\n" +
		"OCR a procesar:\n" + ocrText
}

// Classify sends the extracted text through the fixed template and returns the
// first choice's content, trimmed. Non-2xx statuses and transport failures map
// to descriptive strings; the caller decides what a non-JSON answer means.
func (s *LLMService) Classify(ctx context.Context, plainText string) string {
	reqBody := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "Eres un asistente que extrae y resume información de facturas a partir de texto OCR. Responde SOLO en el formato solicitado, sin explicaciones adicionales."},
			{Role: "user", Content: buildClassificationPrompt(plainText)},
		},
		MaxTokens:    s.cfg.MaxTokens,
		MaxNewTokens: s.cfg.MaxTokens,
		Temperature:  s.cfg.Temperature,
		Stream:       false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Sprintf("failed to build classification request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RouterURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("failed to build classification request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Sprintf("classification request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var cr chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return fmt.Sprintf("failed to decode classification response: %v", err)
		}
		if len(cr.Choices) == 0 {
			return "(no content)"
		}
		content := strings.TrimSpace(cr.Choices[0].Message.Content)
		if content == "" {
			return "(no content)"
		}
		return content
	}

	respBody, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return "(404) The model is not available on the router or the name is wrong: " + s.cfg.Model
	case http.StatusUnauthorized:
		return "(401) Invalid token or no permission for the router."
	default:
		return fmt.Sprintf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}
}
