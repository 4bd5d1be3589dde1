package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/model-relay/model-relay/services/providers"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Config holds the Gemini API configuration.
type Config struct {
	// APIKey for the Generative Language API.
	APIKey string

	// Model identifier, e.g. "gemini-2.0-flash-lite".
	Model string

	// BaseURL of the API (override for tests).
	BaseURL string
}

// Adapter is the reserved secondary provider. It speaks a different vendor
// API than the OpenRouter ladder, which is the point: it stays viable when
// the whole primary pool is rate limited.
type Adapter struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
	desc       providers.Descriptor
}

// New creates a Gemini adapter.
func New(config Config, logger *zap.Logger) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	return &Adapter{
		config:     config,
		httpClient: &http.Client{},
		logger:     logger,
		desc: providers.Descriptor{
			ID:           config.Model,
			Capabilities: providers.CapabilitySet{providers.CapabilityText, providers.CapabilityVision, providers.CapabilityVideo},
		},
	}
}

// Descriptor returns the static description of this provider.
func (a *Adapter) Descriptor() providers.Descriptor {
	return a.desc
}

// Complete performs one generateContent call.
func (a *Adapter) Complete(ctx context.Context, req *providers.Request) (*providers.Result, error) {
	if a.config.APIKey == "" {
		return nil, providers.NewConfigurationError(a.desc.ID, "GEMINI_API_KEY not set")
	}

	start := time.Now()

	body, err := json.Marshal(buildGenerateRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.desc.ID, 0, "failed to marshal request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.config.BaseURL, a.config.Model, a.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(a.desc.ID, 0, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if providers.KindOf(err) == providers.ErrKindTimeout {
			return nil, providers.NewTimeoutError(a.desc.ID, err)
		}
		return nil, providers.NewProviderError(a.desc.ID, 0, "request failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.desc.ID, httpResp.StatusCode, "failed to read response", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, providers.NewRateLimitError(a.desc.ID)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, a.errorFromResponse(httpResp.StatusCode, respBody)
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, providers.NewProviderError(a.desc.ID, httpResp.StatusCode, "malformed response body", err)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return nil, providers.NewProviderError(a.desc.ID, httpResp.StatusCode, "response contained no candidates", nil)
	}

	var text strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return &providers.Result{
		Content: text.String(),
		Usage: providers.Usage{
			PromptTokens:     genResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: genResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      genResp.UsageMetadata.TotalTokenCount,
		},
		Latency: time.Since(start),
	}, nil
}

func (a *Adapter) errorFromResponse(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.desc.ID, statusCode, string(body), nil)
	}

	a.logger.Warn("gemini error response",
		zap.Int("status_code", statusCode),
		zap.String("status", errResp.Error.Status),
		zap.String("message", errResp.Error.Message))

	return providers.NewProviderError(a.desc.ID, statusCode, errResp.Error.Message, nil)
}

// buildGenerateRequest maps the unified request to the Gemini wire format.
// System messages collapse into systemInstruction; user messages become
// contents, with media parts attached to the first one.
func buildGenerateRequest(req *providers.Request) *generateRequest {
	out := &generateRequest{
		GenerationConfig: generationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}

	var systemParts []part
	mediaAttached := req.Media == nil

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, part{Text: msg.Content})
			continue
		}

		parts := []part{{Text: msg.Content}}
		if !mediaAttached {
			parts = append(parts, mediaPart(req.Media))
			mediaAttached = true
		}
		out.Contents = append(out.Contents, content{Role: "user", Parts: parts})
	}

	if len(systemParts) > 0 {
		out.SystemInstruction = &content{Parts: systemParts}
	}
	return out
}

func mediaPart(media *providers.Media) part {
	if len(media.Data) > 0 {
		return part{InlineData: &inlineData{
			MIMEType: media.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(media.Data),
		}}
	}
	return part{FileData: &fileData{
		MIMEType: media.MIMEType,
		FileURI:  media.URL,
	}}
}

// Gemini generateContent wire types.

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
	FileData   *fileData   `json:"fileData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type fileData struct {
	MIMEType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}
