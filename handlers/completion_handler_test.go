package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/model-relay/model-relay/services/dispatch"
	"github.com/model-relay/model-relay/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubDispatchService returns canned results and records the requests it saw
type stubDispatchService struct {
	result       *dispatch.Result
	err          error
	translated   *dispatch.Result
	translateErr error
	requests     []*providers.Request
	texts        []string
}

func (s *stubDispatchService) Dispatch(_ context.Context, req *providers.Request) (*dispatch.Result, error) {
	s.requests = append(s.requests, req)
	return s.result, s.err
}

func (s *stubDispatchService) DispatchBatch(ctx context.Context, reqs []*providers.Request) []dispatch.BatchResult {
	results := make([]dispatch.BatchResult, len(reqs))
	for i, req := range reqs {
		result, err := s.Dispatch(ctx, req)
		results[i] = dispatch.BatchResult{Index: i, Result: result, Err: err}
	}
	return results
}

func (s *stubDispatchService) Translate(_ context.Context, text string) (*dispatch.Result, error) {
	s.texts = append(s.texts, text)
	return s.translated, s.translateErr
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestHandleCompletion(t *testing.T) {
	logger := zap.NewNop()

	t.Run("successful dispatch", func(t *testing.T) {
		service := &stubDispatchService{
			result: &dispatch.Result{
				Content:  "the answer",
				Provider: "google/gemma-3-27b-it:free",
				Usage:    providers.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
				Latency:  820 * time.Millisecond,
			},
		}
		handler := NewCompletionHandler(service, logger)

		w := postJSON(t, handler.HandleCompletion, "/api/v1/completions", CompletionRequest{
			Messages: []ChatMessage{{Role: "user", Content: "hello"}},
		})

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data CompletionResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "the answer", response.Data.Content)
		assert.Equal(t, "google/gemma-3-27b-it:free", response.Data.Provider)
		assert.Equal(t, 15, response.Data.Usage.TotalTokens)
		assert.Equal(t, 820, response.Data.LatencyMs)

		require.Len(t, service.requests, 1)
		assert.Equal(t, providers.CapabilityText, service.requests[0].Capability)
	})

	t.Run("media defaults capability to vision", func(t *testing.T) {
		service := &stubDispatchService{result: &dispatch.Result{Content: "a cat", Provider: "p"}}
		handler := NewCompletionHandler(service, logger)

		w := postJSON(t, handler.HandleCompletion, "/api/v1/completions", CompletionRequest{
			Messages: []ChatMessage{{Role: "user", Content: "describe"}},
			Media:    &MediaRef{Kind: "image", URL: "https://example.com/a.jpg"},
		})

		assert.Equal(t, http.StatusOK, w.Code)
		require.Len(t, service.requests, 1)
		assert.Equal(t, providers.CapabilityVision, service.requests[0].Capability)
		require.NotNil(t, service.requests[0].Media)
		assert.Equal(t, "https://example.com/a.jpg", service.requests[0].Media.URL)
	})

	t.Run("inline media data is decoded", func(t *testing.T) {
		service := &stubDispatchService{result: &dispatch.Result{Content: "ok", Provider: "p"}}
		handler := NewCompletionHandler(service, logger)

		w := postJSON(t, handler.HandleCompletion, "/api/v1/completions", CompletionRequest{
			Messages: []ChatMessage{{Role: "user", Content: "describe"}},
			Media:    &MediaRef{Kind: "image", Data: "AQID", MIMEType: "image/png"},
		})

		assert.Equal(t, http.StatusOK, w.Code)
		require.Len(t, service.requests, 1)
		assert.Equal(t, []byte{1, 2, 3}, service.requests[0].Media.Data)
	})

	t.Run("invalid body", func(t *testing.T) {
		handler := NewCompletionHandler(&stubDispatchService{}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/completions", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		handler.HandleCompletion(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing messages", func(t *testing.T) {
		handler := NewCompletionHandler(&stubDispatchService{}, logger)

		w := postJSON(t, handler.HandleCompletion, "/api/v1/completions", CompletionRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("vision without media", func(t *testing.T) {
		handler := NewCompletionHandler(&stubDispatchService{}, logger)

		w := postJSON(t, handler.HandleCompletion, "/api/v1/completions", CompletionRequest{
			Capability: "vision",
			Messages:   []ChatMessage{{Role: "user", Content: "describe"}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("media url and data together", func(t *testing.T) {
		handler := NewCompletionHandler(&stubDispatchService{}, logger)

		w := postJSON(t, handler.HandleCompletion, "/api/v1/completions", CompletionRequest{
			Messages: []ChatMessage{{Role: "user", Content: "describe"}},
			Media:    &MediaRef{Kind: "image", URL: "https://example.com/a.jpg", Data: "AQID"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("all providers exhausted maps to 502", func(t *testing.T) {
		service := &stubDispatchService{
			err: &dispatch.Error{Kind: dispatch.ErrKindAllExhausted, Message: "all providers exhausted"},
		}
		handler := NewCompletionHandler(service, logger)

		w := postJSON(t, handler.HandleCompletion, "/api/v1/completions", CompletionRequest{
			Messages: []ChatMessage{{Role: "user", Content: "hello"}},
		})
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("configuration error maps to 503", func(t *testing.T) {
		service := &stubDispatchService{
			err: &dispatch.Error{Kind: dispatch.ErrKindConfiguration, Message: "no providers"},
		}
		handler := NewCompletionHandler(service, logger)

		w := postJSON(t, handler.HandleCompletion, "/api/v1/completions", CompletionRequest{
			Messages: []ChatMessage{{Role: "user", Content: "hello"}},
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHandleBatch(t *testing.T) {
	logger := zap.NewNop()

	t.Run("mixed outcomes keep input order", func(t *testing.T) {
		service := &stubDispatchService{result: &dispatch.Result{Content: "ok", Provider: "p"}}
		handler := NewCompletionHandler(service, logger)

		w := postJSON(t, handler.HandleBatch, "/api/v1/completions/batch", BatchRequest{
			Requests: []CompletionRequest{
				{Messages: []ChatMessage{{Role: "user", Content: "one"}}},
				{Messages: []ChatMessage{{Role: "user", Content: "two"}}},
			},
		})

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data []BatchItem `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		require.Len(t, response.Data, 2)
		assert.Equal(t, 0, response.Data[0].Index)
		assert.True(t, response.Data[0].Success)
		assert.Equal(t, 1, response.Data[1].Index)
	})

	t.Run("empty batch rejected", func(t *testing.T) {
		handler := NewCompletionHandler(&stubDispatchService{}, logger)

		w := postJSON(t, handler.HandleBatch, "/api/v1/completions/batch", BatchRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleTranslation(t *testing.T) {
	logger := zap.NewNop()

	t.Run("successful translation", func(t *testing.T) {
		service := &stubDispatchService{
			translated: &dispatch.Result{Content: "hola", Provider: "google/gemma-3-27b-it:free"},
		}
		handler := NewCompletionHandler(service, logger)

		w := postJSON(t, handler.HandleTranslation, "/api/v1/translations", TranslationRequest{Text: "hello"})

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data CompletionResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "hola", response.Data.Content)
		assert.Equal(t, []string{"hello"}, service.texts)
	})

	t.Run("missing text", func(t *testing.T) {
		handler := NewCompletionHandler(&stubDispatchService{}, logger)

		w := postJSON(t, handler.HandleTranslation, "/api/v1/translations", TranslationRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
