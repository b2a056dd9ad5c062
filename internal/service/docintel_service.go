package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"gastoflow/pkg/config"

	"go.uber.org/zap"
)

const docIntelAPIVersion = "2024-02-29-preview"

// DocIntelService submits receipt images to the asynchronous document-analysis
// engine and polls the returned operation until a terminal status.
// Each submission goes Submitted -> Polling -> Succeeded|Failed|TimedOut.
type DocIntelService struct {
	cfg        *config.DocIntelConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewDocIntelService(cfg *config.DocIntelConfig, logger *zap.Logger) *DocIntelService {
	return &DocIntelService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// AnalysisResult is the engine's operation payload. Only the page/line
// hierarchy is decoded; everything else in analyzeResult is ignored.
type AnalysisResult struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		Pages []struct {
			Lines []struct {
				Content string `json:"content"`
			} `json:"lines"`
		} `json:"pages"`
	} `json:"analyzeResult"`
}

// Submit posts the base64-encoded image for analysis and returns the opaque
// operation location to poll. A non-2xx response is terminal: the input
// itself is presumed invalid and is never retried.
func (s *DocIntelService) Submit(ctx context.Context, imageBytes []byte) (string, error) {
	if len(imageBytes) == 0 {
		return "", fmt.Errorf("%w: the uploaded file is empty or unreadable", ErrAnalysisRejected)
	}

	analyzeURL := strings.TrimSuffix(s.cfg.Endpoint, "/") +
		"/documentintelligence/documentModels/prebuilt-read:analyze?api-version=" + docIntelAPIVersion

	body, err := json.Marshal(map[string]string{
		"base64Source": base64.StdEncoding.EncodeToString(imageBytes),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analyzeURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create analyze request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrAnalysisRejected, resp.StatusCode, string(respBody))
	}

	opLocation := resp.Header.Get("Operation-Location")
	if opLocation == "" {
		return "", fmt.Errorf("%w: missing operation-location header", ErrAnalysisRejected)
	}

	s.logger.Debug("Analyze operation accepted", zap.String("operation", opLocation))
	return opLocation, nil
}

// AwaitResult polls the operation until it succeeds, fails, or the attempt
// budget runs out. The delay grows linearly from the initial value up to the
// configured cap, so slow analyses back off without a runaway wait.
func (s *DocIntelService) AwaitResult(ctx context.Context, opLocation string) (*AnalysisResult, error) {
	var totalDelay time.Duration
	for attempt := 0; attempt < s.cfg.MaxPollAttempts; attempt++ {
		delay := s.cfg.InitialPollDelay + time.Duration(attempt)*s.cfg.PollDelayStep
		if delay > s.cfg.MaxPollDelay {
			delay = s.cfg.MaxPollDelay
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		totalDelay += delay

		result, raw, err := s.pollOnce(ctx, opLocation)
		if err != nil {
			return nil, err
		}

		switch strings.ToLower(result.Status) {
		case "succeeded":
			return result, nil
		case "failed":
			return nil, fmt.Errorf("%w: %s", ErrAnalysisFailed, string(raw))
		}
	}

	waitedSeconds := int64(math.Ceil(totalDelay.Seconds()))
	return nil, fmt.Errorf("%w (waited %ds)", ErrAnalysisTimedOut, waitedSeconds)
}

func (s *DocIntelService) pollOnce(ctx context.Context, opLocation string) (*AnalysisResult, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opLocation, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to poll analyze operation: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read poll response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("%w: status %d: %s", ErrAnalysisFailed, resp.StatusCode, string(raw))
	}

	var result AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, nil, fmt.Errorf("failed to decode poll response: %w", err)
	}
	return &result, raw, nil
}

// ExtractPlainText flattens the page/line hierarchy into newline-separated
// text. An absent or empty hierarchy yields an empty string, not an error.
func (s *DocIntelService) ExtractPlainText(result *AnalysisResult) string {
	if result == nil {
		return ""
	}

	var text strings.Builder
	for _, page := range result.AnalyzeResult.Pages {
		for _, line := range page.Lines {
			text.WriteString(line.Content)
			text.WriteString("\n")
		}
	}
	return text.String()
}
