package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gastoflow/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDocIntelService(endpoint string) *DocIntelService {
	return NewDocIntelService(&config.DocIntelConfig{
		Endpoint:         endpoint,
		APIKey:           "test-key",
		MaxPollAttempts:  5,
		InitialPollDelay: time.Millisecond,
		PollDelayStep:    time.Millisecond,
		MaxPollDelay:     5 * time.Millisecond,
	}, zap.NewNop())
}

func TestSubmitEmptyImageRejected(t *testing.T) {
	svc := newDocIntelService("http://unused.invalid")

	_, err := svc.Submit(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisRejected)
}

func TestSubmitReturnsOperationLocation(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		assert.Contains(t, r.URL.String(), "prebuilt-read:analyze")
		assert.Contains(t, r.URL.RawQuery, "api-version=")
		w.Header().Set("Operation-Location", "http://example.invalid/op/1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	svc := newDocIntelService(srv.URL)
	opLocation, err := svc.Submit(context.Background(), []byte("fake-image"))
	require.NoError(t, err)
	assert.Equal(t, "http://example.invalid/op/1", opLocation)
	assert.Equal(t, "test-key", gotKey)
}

func TestSubmitServerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
	}))
	defer srv.Close()

	svc := newDocIntelService(srv.URL)
	_, err := svc.Submit(context.Background(), []byte("not-an-image"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisRejected)
	assert.Contains(t, err.Error(), "415")
}

func TestSubmitMissingOperationLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	svc := newDocIntelService(srv.URL)
	_, err := svc.Submit(context.Background(), []byte("fake-image"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisRejected)
}

func TestAwaitResultSucceedsAfterRunning(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if polls.Add(1) < 3 {
			w.Write([]byte(`{"status": "running"}`))
			return
		}
		w.Write([]byte(`{
			"status": "succeeded",
			"analyzeResult": {
				"pages": [{"lines": [{"content": "TOTAL"}, {"content": "34.25"}]}]
			}
		}`))
	}))
	defer srv.Close()

	svc := newDocIntelService(srv.URL)
	result, err := svc.AwaitResult(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", result.Status)
	assert.Equal(t, int32(3), polls.Load())

	assert.Equal(t, "TOTAL\n34.25\n", svc.ExtractPlainText(result))
}

func TestAwaitResultFailedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "failed", "error": {"code": "InvalidImage"}}`))
	}))
	defer srv.Close()

	svc := newDocIntelService(srv.URL)
	_, err := svc.AwaitResult(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.Contains(t, err.Error(), "InvalidImage")
}

func TestAwaitResultPollErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "operation not found", http.StatusNotFound)
	}))
	defer srv.Close()

	svc := newDocIntelService(srv.URL)
	_, err := svc.AwaitResult(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisFailed)
}

func TestAwaitResultTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "running"}`))
	}))
	defer srv.Close()

	svc := newDocIntelService(srv.URL)
	_, err := svc.AwaitResult(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisTimedOut)
	assert.Contains(t, err.Error(), "waited")
}

func TestAwaitResultRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "running"}`))
	}))
	defer srv.Close()

	svc := newDocIntelService(srv.URL)
	svc.cfg.InitialPollDelay = time.Hour
	svc.cfg.MaxPollDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.AwaitResult(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractPlainTextEmpty(t *testing.T) {
	svc := newDocIntelService("http://unused.invalid")
	assert.Equal(t, "", svc.ExtractPlainText(nil))
	assert.Equal(t, "", svc.ExtractPlainText(&AnalysisResult{Status: "succeeded"}))
}
