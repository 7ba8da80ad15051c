package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/steveyegge/mediasift/internal/media"
	"github.com/steveyegge/mediasift/internal/types"
)

// ProviderAnthropic is the tier provider name served by AnthropicCapability
const ProviderAnthropic = "anthropic"

// messageCreator is the part of the Anthropic client we use
type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicCapability analyses images with Claude vision models
type AnthropicCapability struct {
	messages messageCreator
}

// NewAnthropicCapability creates a capability using apiKey, or
// ANTHROPIC_API_KEY when apiKey is empty. Retries are left to the
// coordinator, so the SDK's own retries are disabled.
func NewAnthropicCapability(apiKey string) (*AnthropicCapability, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return &AnthropicCapability{messages: &client.Messages}, nil
}

// Invoke sends the image and instructions as one user message
func (a *AnthropicCapability) Invoke(ctx context.Context, tier types.Tier, image []byte, instructions string) (*Response, error) {
	mediaType, data, err := anthropicImage(image)
	if err != nil {
		return nil, &CapabilityError{Type: ErrorFatal, Provider: ProviderAnthropic, Err: err}
	}

	maxTokens := tier.OutputTokens()

	msg, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(tier.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)),
				anthropic.NewTextBlock(instructions),
			),
		},
	})
	if err != nil {
		capErr := Classify(err)
		capErr.Provider = ProviderAnthropic
		return nil, capErr
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	resp, err := parseAnalysis(text.String())
	cost := tier.Pricing.Cost(msg.Usage.InputTokens, msg.Usage.OutputTokens)
	if err != nil {
		capErr := Classify(err)
		capErr.Provider = ProviderAnthropic
		capErr.Cost = cost
		return nil, capErr
	}
	resp.Cost = cost
	resp.InputTokens = msg.Usage.InputTokens
	resp.OutputTokens = msg.Usage.OutputTokens
	return resp, nil
}

// anthropicImage returns the image in a media type the Messages API accepts,
// re-encoding anything else as PNG
func anthropicImage(image []byte) (string, []byte, error) {
	mediaType := media.DetectMediaType(image)
	switch mediaType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return mediaType, image, nil
	}
	converted, err := media.ToPNG(image)
	if err != nil {
		return "", nil, fmt.Errorf("unsupported image type %s: %w", mediaType, err)
	}
	return "image/png", converted, nil
}
