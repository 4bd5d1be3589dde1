package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/model-relay/model-relay/services/providers"
	"go.uber.org/zap"
)

// UsageRecorder receives the outcome of every provider attempt.
type UsageRecorder interface {
	RecordSuccess(modelName string, u providers.Usage, latency time.Duration) error
	RecordError(modelName, message string, latency time.Duration) error
}

// Config holds dispatcher tuning
type Config struct {
	TextTimeout    time.Duration // Per-attempt deadline for text requests
	MediaTimeout   time.Duration // Per-attempt deadline for vision/video requests
	RateLimitDelay time.Duration // Pause before the next provider after a 429
	BatchWorkers   int           // Concurrent workers for batch dispatch
}

// DefaultConfig returns the default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		TextTimeout:    120 * time.Second,
		MediaTimeout:   180 * time.Second,
		RateLimitDelay: 500 * time.Millisecond,
		BatchWorkers:   5,
	}
}

// TranslationConfig pins translation to a single provider.
// Translation never walks the fallback ladder: a partial translation from a
// weaker model is worse than an error.
type TranslationConfig struct {
	// Model is the registered provider ID used for translation.
	Model string

	// Language is the target language, e.g. "Spanish".
	Language string

	// Temperature for translation requests.
	Temperature float64
}

// Result is the outcome of a successful dispatch.
type Result struct {
	// Content is the completion text, post-translated when applicable.
	Content string `json:"content"`

	// Provider that produced the completion.
	Provider string `json:"provider"`

	// Usage reported by the winning provider.
	Usage providers.Usage `json:"usage"`

	// Latency of the winning attempt.
	Latency time.Duration `json:"-"`

	// Translated is true when translation post-processing ran.
	Translated bool `json:"translated,omitempty"`

	// TranslationProvider names the model that translated the content.
	TranslationProvider string `json:"translation_provider,omitempty"`
}

// state of one dispatch walk. The walk is a small explicit machine so every
// transition has exactly one place where it is decided and logged.
type state int

const (
	stateTrying state = iota
	stateSucceeded
	stateExhaustedPrimary
	stateTryingSecondary
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateTrying:
		return "trying"
	case stateSucceeded:
		return "succeeded"
	case stateExhaustedPrimary:
		return "exhausted_primary"
	case stateTryingSecondary:
		return "trying_secondary"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// Dispatcher walks the provider ladder in order for each request.
type Dispatcher struct {
	registry    *providers.Registry
	usage       UsageRecorder
	logger      *zap.Logger
	config      Config
	translation TranslationConfig
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(registry *providers.Registry, recorder UsageRecorder, logger *zap.Logger, config Config, translation TranslationConfig) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		usage:       recorder,
		logger:      logger,
		config:      config,
		translation: translation,
	}
}

// Dispatch tries each eligible provider in ladder order and returns the
// first success. After the primary ladder is exhausted the secondary
// provider is tried exactly once. The last provider error is surfaced when
// everything fails.
func (d *Dispatcher) Dispatch(ctx context.Context, req *providers.Request) (*Result, error) {
	ladder := d.registry.ForCapability(req.Capability)
	secondary := d.registry.Secondary()
	if secondary != nil && !secondary.Descriptor().Capabilities.Has(req.Capability) {
		secondary = nil
	}

	if len(ladder) == 0 && secondary == nil {
		return nil, newConfigurationError(
			fmt.Sprintf("no providers support capability %q", req.Capability), nil)
	}

	var (
		st      = stateTrying
		idx     = 0
		lastErr error
	)

	for {
		switch st {
		case stateTrying:
			if idx >= len(ladder) {
				st = stateExhaustedPrimary
				continue
			}

			provider := ladder[idx]
			result, err := d.attempt(ctx, provider, req)
			if err == nil {
				return d.finish(ctx, provider, req, result)
			}

			lastErr = err
			st, idx = d.nextAfterFailure(ctx, provider, err, idx)
			if st == stateFailed && !providers.IsRetryable(err) {
				return nil, newConfigurationError("provider configuration invalid", err)
			}

		case stateExhaustedPrimary:
			if secondary == nil {
				st = stateFailed
				continue
			}
			d.logger.Info("primary ladder exhausted, trying secondary",
				zap.String("secondary", secondary.Descriptor().ID),
				zap.Error(lastErr))
			st = stateTryingSecondary

		case stateTryingSecondary:
			result, err := d.attempt(ctx, secondary, req)
			if err == nil {
				return d.finish(ctx, secondary, req, result)
			}
			lastErr = err
			if !providers.IsRetryable(err) {
				return nil, newConfigurationError("provider configuration invalid", err)
			}
			st = stateFailed

		case stateFailed:
			d.logger.Error("dispatch failed",
				zap.String("capability", string(req.Capability)),
				zap.Error(lastErr))
			return nil, newAllExhaustedError(lastErr)
		}
	}
}

// nextAfterFailure decides the transition out of a failed primary attempt.
func (d *Dispatcher) nextAfterFailure(ctx context.Context, p providers.Provider, err error, idx int) (state, int) {
	if !providers.IsRetryable(err) {
		return stateFailed, idx
	}

	kind := providers.KindOf(err)
	d.logger.Warn("provider attempt failed, falling through",
		zap.String("provider", p.Descriptor().ID),
		zap.String("kind", string(kind)),
		zap.Error(err))

	if kind == providers.ErrKindRateLimited && d.config.RateLimitDelay > 0 {
		select {
		case <-time.After(d.config.RateLimitDelay):
		case <-ctx.Done():
			return stateFailed, idx
		}
	}

	if ctx.Err() != nil {
		return stateFailed, idx
	}

	return stateTrying, idx + 1
}

// attempt runs one provider call under the per-attempt deadline and records
// its outcome in the usage log.
func (d *Dispatcher) attempt(ctx context.Context, p providers.Provider, req *providers.Request) (*providers.Result, error) {
	timeout := d.config.TextTimeout
	if req.Media != nil {
		timeout = d.config.MediaTimeout
	}

	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	desc := p.Descriptor()
	start := time.Now()
	result, err := p.Complete(attemptCtx, req)
	latency := time.Since(start)

	if err != nil {
		if recErr := d.usage.RecordError(desc.ID, err.Error(), latency); recErr != nil {
			d.logger.Debug("usage record dropped", zap.Error(recErr))
		}
		return nil, err
	}

	if recErr := d.usage.RecordSuccess(desc.ID, result.Usage, latency); recErr != nil {
		d.logger.Debug("usage record dropped", zap.Error(recErr))
	}

	d.logger.Info("provider attempt succeeded",
		zap.String("provider", desc.ID),
		zap.Duration("latency", latency),
		zap.Int("total_tokens", result.Usage.TotalTokens))

	return result, nil
}

// finish assembles the dispatch result, running translation post-processing
// for media providers whose target-language output is marked weak.
func (d *Dispatcher) finish(ctx context.Context, p providers.Provider, req *providers.Request, result *providers.Result) (*Result, error) {
	desc := p.Descriptor()
	out := &Result{
		Content:  result.Content,
		Provider: desc.ID,
		Usage:    result.Usage,
		Latency:  result.Latency,
	}

	if desc.NeedsTranslation && req.Capability != providers.CapabilityText && d.translation.Model != "" {
		translated, err := d.Translate(ctx, result.Content)
		if err != nil {
			// The completion itself succeeded; return it untranslated
			d.logger.Warn("translation post-processing failed, returning original content",
				zap.String("provider", desc.ID),
				zap.Error(err))
			return out, nil
		}
		out.Content = translated.Content
		out.Translated = true
		out.TranslationProvider = translated.Provider
	}

	return out, nil
}

// Translate sends text to the pinned translation provider.
func (d *Dispatcher) Translate(ctx context.Context, text string) (*Result, error) {
	if d.translation.Model == "" {
		return nil, newConfigurationError("no translation provider configured", nil)
	}

	provider, err := d.registry.Lookup(d.translation.Model)
	if err != nil {
		return nil, newConfigurationError(
			fmt.Sprintf("translation provider %q is not registered", d.translation.Model), err)
	}

	req := &providers.Request{
		Capability: providers.CapabilityText,
		Messages: []providers.Message{
			{Role: "system", Content: translationPrompt(d.translation.Language)},
			{Role: "user", Content: text},
		},
		Temperature: d.translation.Temperature,
	}

	result, err := d.attempt(ctx, provider, req)
	if err != nil {
		return nil, newAllExhaustedError(err)
	}

	return &Result{
		Content:  result.Content,
		Provider: provider.Descriptor().ID,
		Usage:    result.Usage,
		Latency:  result.Latency,
	}, nil
}

func translationPrompt(language string) string {
	return fmt.Sprintf(
		"You are a translator. Translate the user's text into %s. "+
			"Preserve formatting and do not add commentary. Respond with the translation only.",
		language)
}
