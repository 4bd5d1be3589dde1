package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/model-relay/model-relay/services/providers"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://openrouter.ai/api/v1/chat/completions"

// Config holds the OpenRouter client configuration shared by all models
// served through it.
type Config struct {
	// APIKey for authentication.
	APIKey string

	// BaseURL of the chat completions endpoint.
	BaseURL string

	// Referer and Title are OpenRouter attribution headers.
	Referer string
	Title   string
}

// Client is a single HTTP client for the OpenRouter API. Every model in the
// fallback ladder binds to the same client; only the model name differs per
// attempt.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an OpenRouter client.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	return &Client{
		config: config,
		// No client-level timeout: the dispatcher owns the per-attempt
		// deadline through the request context.
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Provider binds one model descriptor to this client, producing a ladder
// entry.
func (c *Client) Provider(desc providers.Descriptor) providers.Provider {
	return &modelProvider{client: c, desc: desc}
}

type modelProvider struct {
	client *Client
	desc   providers.Descriptor
}

func (p *modelProvider) Descriptor() providers.Descriptor {
	return p.desc
}

func (p *modelProvider) Complete(ctx context.Context, req *providers.Request) (*providers.Result, error) {
	return p.client.complete(ctx, p.desc.ID, req)
}

func (c *Client) complete(ctx context.Context, model string, req *providers.Request) (*providers.Result, error) {
	if c.config.APIKey == "" {
		return nil, providers.NewConfigurationError(model, "OPENROUTER_API_KEY not set")
	}

	start := time.Now()

	body, err := json.Marshal(buildChatRequest(model, req))
	if err != nil {
		return nil, providers.NewProviderError(model, 0, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(model, 0, "failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if c.config.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.config.Referer)
	}
	if c.config.Title != "" {
		httpReq.Header.Set("X-Title", c.config.Title)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if providers.KindOf(err) == providers.ErrKindTimeout {
			return nil, providers.NewTimeoutError(model, err)
		}
		return nil, providers.NewProviderError(model, 0, "request failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(model, httpResp.StatusCode, "failed to read response", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, providers.NewRateLimitError(model)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(model, httpResp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewProviderError(model, httpResp.StatusCode, "malformed response body", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, providers.NewProviderError(model, httpResp.StatusCode, "response contained no choices", nil)
	}

	return &providers.Result{
		Content: chatResp.Choices[0].Message.Content,
		Usage: providers.Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// errorFromResponse extracts OpenRouter's error.message/error.code for logs
// and the recorded error text, falling back to the raw body.
func (c *Client) errorFromResponse(model string, statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(model, statusCode, string(body), nil)
	}

	c.logger.Warn("openrouter error response",
		zap.String("model", model),
		zap.Int("status", statusCode),
		zap.String("code", string(errResp.Error.Code)),
		zap.String("message", errResp.Error.Message))

	return providers.NewProviderError(model, statusCode, errResp.Error.Message, nil)
}

// buildChatRequest converts the unified request to the OpenRouter wire
// format. Media is attached as a content-part array on the first user
// message; plain text requests use string content.
func buildChatRequest(model string, req *providers.Request) *chatRequest {
	out := &chatRequest{
		Model:       model,
		Messages:    make([]chatMessage, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	mediaAttached := req.Media == nil
	for i, msg := range req.Messages {
		if !mediaAttached && msg.Role == "user" {
			out.Messages[i] = chatMessage{
				Role:    msg.Role,
				Content: mediaParts(msg.Content, req.Media),
			}
			mediaAttached = true
			continue
		}
		out.Messages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}

	return out
}

func mediaParts(text string, media *providers.Media) []contentPart {
	parts := []contentPart{{Type: "text", Text: text}}

	url := media.URL
	if url == "" && len(media.Data) > 0 {
		url = fmt.Sprintf("data:%s;base64,%s", media.MIMEType, base64.StdEncoding.EncodeToString(media.Data))
	}

	switch media.Kind {
	case "video":
		parts = append(parts, contentPart{Type: "video_url", VideoURL: &mediaURL{URL: url}})
	default:
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &mediaURL{URL: url}})
	}
	return parts
}

// OpenRouter wire types (OpenAI-compatible chat completions).

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role string `json:"role"`
	// Content is a string for plain text or []contentPart for media.
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *mediaURL `json:"image_url,omitempty"`
	VideoURL *mediaURL `json:"video_url,omitempty"`
}

type mediaURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type responseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}
