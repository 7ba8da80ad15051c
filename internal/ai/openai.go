package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/steveyegge/mediasift/internal/media"
	"github.com/steveyegge/mediasift/internal/types"
)

// ProviderOpenAI is the tier provider name served by OpenAICapability
const ProviderOpenAI = "openai"

// completionCreator is the part of the OpenAI client we use
type completionCreator interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAICapability analyses images with OpenAI chat completion models
type OpenAICapability struct {
	completions completionCreator
}

// NewOpenAICapability creates a capability using apiKey, or OPENAI_API_KEY
// when apiKey is empty. baseURL is optional and allows compatible endpoints.
func NewOpenAICapability(apiKey, baseURL string) (*OpenAICapability, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAICapability{completions: &client.Chat.Completions}, nil
}

// Invoke sends the image as a data URL followed by the instructions
func (o *OpenAICapability) Invoke(ctx context.Context, tier types.Tier, image []byte, instructions string) (*Response, error) {
	mediaType := media.DetectMediaType(image)
	if mediaType != "image/jpeg" && mediaType != "image/png" && mediaType != "image/gif" && mediaType != "image/webp" {
		converted, err := media.ToPNG(image)
		if err != nil {
			return nil, &CapabilityError{Type: ErrorFatal, Provider: ProviderOpenAI,
				Err: fmt.Errorf("unsupported image type %s: %w", mediaType, err)}
		}
		mediaType, image = "image/png", converted
	}
	dataURL := "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(image)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(tier.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
				openai.TextContentPart(instructions),
			}),
		},
	}
	maxTokens := tier.OutputTokens()
	params.MaxCompletionTokens = openai.Int(int64(maxTokens))

	completion, err := o.completions.New(ctx, params)
	if err != nil {
		capErr := Classify(err)
		capErr.Provider = ProviderOpenAI
		return nil, capErr
	}
	if len(completion.Choices) == 0 {
		return nil, &CapabilityError{Type: ErrorTransient, Provider: ProviderOpenAI,
			Cost: tier.Pricing.Cost(completion.Usage.PromptTokens, completion.Usage.CompletionTokens),
			Err:  fmt.Errorf("%w: no choices returned", ErrMalformedResponse)}
	}

	cost := tier.Pricing.Cost(completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	resp, err := parseAnalysis(completion.Choices[0].Message.Content)
	if err != nil {
		capErr := Classify(err)
		capErr.Provider = ProviderOpenAI
		capErr.Cost = cost
		return nil, capErr
	}
	resp.InputTokens = completion.Usage.PromptTokens
	resp.OutputTokens = completion.Usage.CompletionTokens
	resp.Cost = cost
	return resp, nil
}
