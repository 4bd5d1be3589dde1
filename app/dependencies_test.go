package app

import (
	"context"
	"testing"
	"time"

	"github.com/model-relay/model-relay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testAppConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		OpenRouter: config.OpenRouterConfig{
			APIKey: "sk-or-test",
			Ladder: []config.LadderEntry{
				{Model: "google/gemma-3-27b-it:free", Capabilities: []string{"text", "vision"}},
				{Model: "google/gemma-3-12b-it:free", Capabilities: []string{"text", "vision"}, NeedsTranslation: true},
			},
		},
		Gemini: config.GeminiConfig{
			APIKey: "test-key",
			Model:  "gemini-2.0-flash-lite",
		},
		Dispatch: config.DispatchConfig{
			TextTimeout:    time.Second,
			MediaTimeout:   time.Second,
			RateLimitDelay: time.Millisecond,
			BatchWorkers:   2,
		},
		Translation: config.TranslationConfig{
			Model:       "google/gemma-3-27b-it:free",
			Language:    "Spanish",
			Temperature: 0.3,
		},
		Usage: config.UsageConfig{
			BufferSize:  16,
			WorkerCount: 1,
			Retention:   24 * time.Hour,
		},
		Observability: config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("wires the full graph in memory", func(t *testing.T) {
		cfg := testAppConfig()

		deps, err := NewDependencies(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)
		defer func() { _ = deps.Shutdown(time.Second) }()

		assert.Nil(t, deps.DB)
		require.NotNil(t, deps.UsageRepo)
		require.NotNil(t, deps.Usage)
		require.NotNil(t, deps.Dispatcher)

		require.NotNil(t, deps.Registry)
		assert.Equal(t, 2, deps.Registry.Count())

		descriptors := deps.Registry.Descriptors()
		assert.Equal(t, "google/gemma-3-27b-it:free", descriptors[0].ID)
		assert.Equal(t, "google/gemma-3-12b-it:free", descriptors[1].ID)
		assert.True(t, descriptors[1].NeedsTranslation)

		secondary := deps.Registry.Secondary()
		require.NotNil(t, secondary)
		assert.Equal(t, "gemini-2.0-flash-lite", secondary.Descriptor().ID)
	})

	t.Run("gemini only", func(t *testing.T) {
		cfg := testAppConfig()
		cfg.OpenRouter.Ladder = nil

		deps, err := NewDependencies(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)
		defer func() { _ = deps.Shutdown(time.Second) }()

		assert.Equal(t, 0, deps.Registry.Count())
		assert.NotNil(t, deps.Registry.Secondary())
	})

	t.Run("no providers at all", func(t *testing.T) {
		cfg := testAppConfig()
		cfg.OpenRouter.Ladder = nil
		cfg.Gemini.APIKey = ""

		_, err := NewDependencies(context.Background(), cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no providers configured")
	})

	t.Run("unknown ladder capability", func(t *testing.T) {
		cfg := testAppConfig()
		cfg.OpenRouter.Ladder[0].Capabilities = []string{"audio"}

		_, err := NewDependencies(context.Background(), cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown capability")
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		logger, err := NewLogger(config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("text format", func(t *testing.T) {
		logger, err := NewLogger(config.ObservabilityConfig{LogLevel: "debug", LogFormat: "text"})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := NewLogger(config.ObservabilityConfig{LogLevel: "loud", LogFormat: "json"})
		assert.Error(t, err)
	})
}
