package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/model-relay/model-relay/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testDescriptor(id string) providers.Descriptor {
	return providers.Descriptor{
		ID:           id,
		Capabilities: providers.CapabilitySet{providers.CapabilityText},
	}
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Referer: "https://example.test",
		Title:   "model-relay",
	}, zaptest.NewLogger(t))
}

func TestComplete_Success(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.test", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "model-relay", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "gen-1",
			"model": "google/gemma-3-27b-it:free",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`))
	}))
	defer server.Close()

	p := newTestClient(t, server.URL).Provider(testDescriptor("google/gemma-3-27b-it:free"))
	res, err := p.Complete(context.Background(), &providers.Request{
		Capability:  providers.CapabilityText,
		Messages:    []providers.Message{{Role: "user", Content: "hi"}},
		MaxTokens:   256,
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello", res.Content)
	assert.Equal(t, 7, res.Usage.PromptTokens)
	assert.Equal(t, 3, res.Usage.CompletionTokens)
	assert.Equal(t, 10, res.Usage.TotalTokens)

	assert.Equal(t, "google/gemma-3-27b-it:free", captured["model"])
	assert.Equal(t, float64(256), captured["max_tokens"])
}

func TestComplete_MissingUsageDefaultsToZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`))
	}))
	defer server.Close()

	p := newTestClient(t, server.URL).Provider(testDescriptor("m"))
	res, err := p.Complete(context.Background(), &providers.Request{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, providers.Usage{}, res.Usage)
}

func TestComplete_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := newTestClient(t, server.URL).Provider(testDescriptor("m"))
	_, err := p.Complete(context.Background(), &providers.Request{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, providers.ErrKindRateLimited, providers.KindOf(err))
}

func TestComplete_ErrorMessageExtracted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad request", "code": 400}}`))
	}))
	defer server.Close()

	p := newTestClient(t, server.URL).Provider(testDescriptor("m"))
	_, err := p.Complete(context.Background(), &providers.Request{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, providers.ErrKindProvider, providers.KindOf(err))
	assert.Contains(t, err.Error(), "bad request")
}

func TestComplete_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := newTestClient(t, server.URL).Provider(testDescriptor("m"))
	_, err := p.Complete(ctx, &providers.Request{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, providers.ErrKindTimeout, providers.KindOf(err))
}

func TestComplete_MissingAPIKey(t *testing.T) {
	client := NewClient(Config{}, zaptest.NewLogger(t))
	p := client.Provider(testDescriptor("m"))

	_, err := p.Complete(context.Background(), &providers.Request{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, providers.ErrKindConfiguration, providers.KindOf(err))
	assert.False(t, providers.IsRetryable(err))
}

func TestBuildChatRequest_AttachesMediaToFirstUserMessage(t *testing.T) {
	req := &providers.Request{
		Capability: providers.CapabilityVideo,
		Messages: []providers.Message{
			{Role: "system", Content: "you are a video analyst"},
			{Role: "user", Content: "describe this video"},
		},
		Media: &providers.Media{Kind: "video", URL: "https://cdn.example/v.mp4"},
	}

	wire := buildChatRequest("m", req)
	require.Len(t, wire.Messages, 2)

	_, isString := wire.Messages[0].Content.(string)
	assert.True(t, isString, "system message must stay plain text")

	parts, ok := wire.Messages[1].Content.([]contentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "video_url", parts[1].Type)
	assert.Equal(t, "https://cdn.example/v.mp4", parts[1].VideoURL.URL)
}

func TestBuildChatRequest_InlineImageBecomesDataURL(t *testing.T) {
	req := &providers.Request{
		Capability: providers.CapabilityVision,
		Messages:   []providers.Message{{Role: "user", Content: "what is this"}},
		Media:      &providers.Media{Kind: "image", Data: []byte{0x1, 0x2}, MIMEType: "image/png"},
	}

	wire := buildChatRequest("m", req)
	parts, ok := wire.Messages[0].Content.([]contentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Equal(t, "data:image/png;base64,AQI=", parts[1].ImageURL.URL)
}
