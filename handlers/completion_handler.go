package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/model-relay/model-relay/services/dispatch"
	"github.com/model-relay/model-relay/services/providers"
	"github.com/model-relay/model-relay/utils"
	"go.uber.org/zap"
)

// CompletionRequest is the unified completion request body
type CompletionRequest struct {
	Capability  string        `json:"capability,omitempty" validate:"omitempty,oneof=text vision video"`
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Media       *MediaRef     `json:"media,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// ChatMessage represents a single chat message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user"`
	Content string `json:"content" validate:"required"`
}

// MediaRef references an image or video by URL or inline base64 data
type MediaRef struct {
	Kind     string `json:"kind" validate:"required,oneof=image video"`
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// ChatUsage represents token usage information
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the response body for a successful completion
type CompletionResponse struct {
	Content             string    `json:"content"`
	Provider            string    `json:"provider"`
	Usage               ChatUsage `json:"usage"`
	LatencyMs           int       `json:"latency_ms"`
	Translated          bool      `json:"translated,omitempty"`
	TranslationProvider string    `json:"translation_provider,omitempty"`
}

// BatchRequest carries multiple completion requests
type BatchRequest struct {
	Requests []CompletionRequest `json:"requests" validate:"required,min=1,max=50,dive"`
}

// BatchItem is the outcome of one request in a batch, in input order
type BatchItem struct {
	Index   int                 `json:"index"`
	Success bool                `json:"success"`
	Data    *CompletionResponse `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// TranslationRequest is the request body for the translation endpoint
type TranslationRequest struct {
	Text string `json:"text" validate:"required"`
}

// DispatchService defines the dispatch operations the handler needs
type DispatchService interface {
	Dispatch(ctx context.Context, req *providers.Request) (*dispatch.Result, error)
	DispatchBatch(ctx context.Context, reqs []*providers.Request) []dispatch.BatchResult
	Translate(ctx context.Context, text string) (*dispatch.Result, error)
}

// CompletionHandler handles completion-related HTTP requests
type CompletionHandler struct {
	service DispatchService
	logger  *zap.Logger
}

// NewCompletionHandler creates a new CompletionHandler
func NewCompletionHandler(service DispatchService, logger *zap.Logger) *CompletionHandler {
	return &CompletionHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCompletion handles POST /api/v1/completions
func (h *CompletionHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	var compReq CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&compReq); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&compReq); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	req, err := compReq.toProviderRequest()
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	result, err := h.service.Dispatch(ctx, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, toCompletionResponse(result))
}

// HandleBatch handles POST /api/v1/completions/batch
func (h *CompletionHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	var batchReq BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&batchReq); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&batchReq); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	reqs := make([]*providers.Request, len(batchReq.Requests))
	for i := range batchReq.Requests {
		req, err := batchReq.Requests[i].toProviderRequest()
		if err != nil {
			_ = utils.WriteBadRequest(w, fmt.Sprintf("request %d: %s", i, err), nil)
			return
		}
		reqs[i] = req
	}

	results := h.service.DispatchBatch(ctx, reqs)

	items := make([]BatchItem, len(results))
	for i, res := range results {
		item := BatchItem{Index: res.Index}
		if res.Err != nil {
			item.Error = res.Err.Error()
		} else {
			item.Success = true
			item.Data = toCompletionResponse(res.Result)
		}
		items[i] = item
	}

	_ = utils.WriteOK(w, items)
}

// HandleTranslation handles POST /api/v1/translations
func (h *CompletionHandler) HandleTranslation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	var transReq TranslationRequest
	if err := json.NewDecoder(r.Body).Decode(&transReq); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&transReq); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.service.Translate(ctx, transReq.Text)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, toCompletionResponse(result))
}

// toProviderRequest converts the HTTP request body into a provider request.
// The capability defaults to the attached media kind, or text.
func (r *CompletionRequest) toProviderRequest() (*providers.Request, error) {
	capability := providers.CapabilityText
	if r.Capability != "" {
		c, ok := providers.ParseCapability(r.Capability)
		if !ok {
			return nil, fmt.Errorf("unknown capability %q", r.Capability)
		}
		capability = c
	} else if r.Media != nil {
		switch r.Media.Kind {
		case "video":
			capability = providers.CapabilityVideo
		default:
			capability = providers.CapabilityVision
		}
	}

	if capability != providers.CapabilityText && r.Media == nil {
		return nil, fmt.Errorf("capability %q requires media", capability)
	}

	req := &providers.Request{
		Capability: capability,
		Messages:   make([]providers.Message, len(r.Messages)),
	}
	for i, m := range r.Messages {
		req.Messages[i] = providers.Message{Role: m.Role, Content: m.Content}
	}

	if r.MaxTokens != nil {
		req.MaxTokens = *r.MaxTokens
	}
	if r.Temperature != nil {
		req.Temperature = *r.Temperature
	}

	if r.Media != nil {
		if r.Media.URL == "" && r.Media.Data == "" {
			return nil, fmt.Errorf("media requires url or data")
		}
		if r.Media.URL != "" && r.Media.Data != "" {
			return nil, fmt.Errorf("media url and data are mutually exclusive")
		}

		media := &providers.Media{
			Kind:     r.Media.Kind,
			URL:      r.Media.URL,
			MIMEType: r.Media.MIMEType,
		}
		if r.Media.Data != "" {
			data, err := base64.StdEncoding.DecodeString(r.Media.Data)
			if err != nil {
				return nil, fmt.Errorf("media data is not valid base64")
			}
			media.Data = data
		}
		req.Media = media
	}

	return req, nil
}

func toCompletionResponse(result *dispatch.Result) *CompletionResponse {
	return &CompletionResponse{
		Content:  result.Content,
		Provider: result.Provider,
		Usage: ChatUsage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
		LatencyMs:           int(result.Latency.Milliseconds()),
		Translated:          result.Translated,
		TranslationProvider: result.TranslationProvider,
	}
}
