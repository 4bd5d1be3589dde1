package providers

import (
	"context"
	"time"
)

// Capability classifies what kind of payload a provider can handle.
type Capability string

const (
	CapabilityText   Capability = "text"
	CapabilityVision Capability = "vision"
	CapabilityVideo  Capability = "video"
)

// ParseCapability validates a capability string from config or a request.
func ParseCapability(s string) (Capability, bool) {
	switch Capability(s) {
	case CapabilityText, CapabilityVision, CapabilityVideo:
		return Capability(s), true
	}
	return "", false
}

// CapabilitySet is the set of capabilities a provider supports.
type CapabilitySet []Capability

// Has reports whether the set contains the given capability.
func (s CapabilitySet) Has(c Capability) bool {
	for _, have := range s {
		if have == c {
			return true
		}
	}
	return false
}

// Strings returns the capabilities as plain strings for JSON responses.
func (s CapabilitySet) Strings() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = string(c)
	}
	return out
}

// Descriptor describes one entry in a fallback ladder.
//
// NeedsTranslation is configuration data, never inferred: it marks providers
// whose target-language output is weak enough that successful vision/video
// results must be run through the translation path before being returned.
type Descriptor struct {
	// ID is the model identifier as the upstream API knows it
	// (e.g. "google/gemma-3-27b-it:free").
	ID string

	// Capabilities this provider is eligible for.
	Capabilities CapabilitySet

	// NeedsTranslation marks providers requiring translation post-processing.
	NeedsTranslation bool
}

// Provider is a single named completion endpoint.
type Provider interface {
	// Descriptor returns the static description of this provider.
	Descriptor() Descriptor

	// Complete performs one completion attempt. The context carries the
	// per-attempt deadline; implementations must not retry internally.
	Complete(ctx context.Context, req *Request) (*Result, error)
}

// Message is a single role-tagged message in a completion request.
type Message struct {
	// Role is "system" or "user".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// Media is an optional image or video reference attached to a request.
// Either URL or Data must be set, not both.
type Media struct {
	// Kind is "image" or "video".
	Kind string `json:"kind"`

	// URL points at the media file.
	URL string `json:"url,omitempty"`

	// Data holds inline media bytes (base64 on the wire).
	Data []byte `json:"data,omitempty"`

	// MIMEType of the inline data (e.g. "image/jpeg").
	MIMEType string `json:"mime_type,omitempty"`
}

// Request is the unified completion request handed to a provider.
type Request struct {
	// Capability class the request needs.
	Capability Capability

	// Messages in the conversation, in order.
	Messages []Message

	// Media is attached to the first user message when present.
	Media *Media

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls sampling randomness (typically 0.0 to 1.0).
	Temperature float64
}

// Usage holds token counts reported by a provider. All fields default to
// zero when the provider does not report usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a successful completion from one provider attempt.
type Result struct {
	// Content is the response text.
	Content string

	// Usage reported by the provider.
	Usage Usage

	// Latency of the attempt.
	Latency time.Duration
}
