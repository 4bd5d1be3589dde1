package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/model-relay/model-relay/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestAdapter(t *testing.T, serverURL string) *Adapter {
	t.Helper()
	return New(Config{
		APIKey:  "test-key",
		Model:   "gemini-2.0-flash-lite",
		BaseURL: serverURL,
	}, zaptest.NewLogger(t))
}

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "models/gemini-2.0-flash-lite:generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "hel"}, {"text": "lo"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 2, "totalTokenCount": 7}
		}`))
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	res, err := a.Complete(context.Background(), &providers.Request{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Content)
	assert.Equal(t, 5, res.Usage.PromptTokens)
	assert.Equal(t, 2, res.Usage.CompletionTokens)
	assert.Equal(t, 7, res.Usage.TotalTokens)
}

func TestComplete_ErrorMessageExtracted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "model overloaded", "status": "UNAVAILABLE"}}`))
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	_, err := a.Complete(context.Background(), &providers.Request{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, providers.ErrKindProvider, providers.KindOf(err))
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestComplete_MissingAPIKey(t *testing.T) {
	a := New(Config{Model: "gemini-2.0-flash-lite"}, zaptest.NewLogger(t))
	_, err := a.Complete(context.Background(), &providers.Request{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, providers.ErrKindConfiguration, providers.KindOf(err))
}

func TestBuildGenerateRequest_SystemInstructionAndMedia(t *testing.T) {
	req := &providers.Request{
		Capability: providers.CapabilityVideo,
		Messages: []providers.Message{
			{Role: "system", Content: "you analyze cooking videos"},
			{Role: "user", Content: "extract the recipe"},
		},
		Media:       &providers.Media{Kind: "video", URL: "https://cdn.example/v.mp4", MIMEType: "video/mp4"},
		MaxTokens:   2048,
		Temperature: 0.3,
	}

	wire := buildGenerateRequest(req)

	require.NotNil(t, wire.SystemInstruction)
	assert.Equal(t, "you analyze cooking videos", wire.SystemInstruction.Parts[0].Text)

	require.Len(t, wire.Contents, 1)
	require.Len(t, wire.Contents[0].Parts, 2)
	assert.Equal(t, "extract the recipe", wire.Contents[0].Parts[0].Text)
	require.NotNil(t, wire.Contents[0].Parts[1].FileData)
	assert.Equal(t, "https://cdn.example/v.mp4", wire.Contents[0].Parts[1].FileData.FileURI)

	assert.Equal(t, 2048, wire.GenerationConfig.MaxOutputTokens)
	assert.InDelta(t, 0.3, wire.GenerationConfig.Temperature, 1e-9)

	// Round-trips as valid JSON.
	_, err := json.Marshal(wire)
	require.NoError(t, err)
}

func TestBuildGenerateRequest_InlineData(t *testing.T) {
	req := &providers.Request{
		Messages: []providers.Message{{Role: "user", Content: "what is this"}},
		Media:    &providers.Media{Kind: "image", Data: []byte{0xFF}, MIMEType: "image/jpeg"},
	}

	wire := buildGenerateRequest(req)
	require.Len(t, wire.Contents, 1)
	require.NotNil(t, wire.Contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/jpeg", wire.Contents[0].Parts[1].InlineData.MIMEType)
	assert.Equal(t, "/w==", wire.Contents[0].Parts[1].InlineData.Data)
}
