package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Completion is the text returned by a model together with its token usage.
type Completion struct {
	Text        string
	TotalTokens int
}

// Client generates JSON completions. GeminiClient is the production
// implementation; tests substitute their own.
type Client interface {
	// GenerateJSON runs one prompt and returns the model's JSON text.
	GenerateJSON(ctx context.Context, model, system, prompt string) (*Completion, error)
	// StreamJSON does the same over a streaming call, invoking onChunk
	// once per received chunk.
	StreamJSON(ctx context.Context, model, system, prompt string, onChunk func()) (*Completion, error)
	// Close releases any resources held by the client
	Close() error
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

func (c *GeminiClient) model(name, system string) *genai.GenerativeModel {
	model := c.client.GenerativeModel(name)
	model.SetTemperature(c.config.Temperature)
	model.ResponseMIMEType = "application/json"
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return model
}

// GenerateJSON generates JSON content with the named model.
func (c *GeminiClient) GenerateJSON(ctx context.Context, model, system, prompt string) (*Completion, error) {
	resp, err := c.model(model, system).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return nil, err
	}

	return &Completion{Text: ExtractJSON(text), TotalTokens: totalTokens(resp)}, nil
}

// StreamJSON generates JSON content over a streaming call.
func (c *GeminiClient) StreamJSON(ctx context.Context, model, system, prompt string, onChunk func()) (*Completion, error) {
	iter := c.model(model, system).GenerateContentStream(ctx, genai.Text(prompt))

	var (
		sb     strings.Builder
		tokens int
	)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stream content: %w", err)
		}

		text, err := extractTextFromResponse(resp)
		if err == nil {
			sb.WriteString(text)
		}
		// usage metadata on the last chunk covers the whole call
		if n := totalTokens(resp); n > 0 {
			tokens = n
		}
		if onChunk != nil {
			onChunk()
		}
	}

	if sb.Len() == 0 {
		return nil, fmt.Errorf("no text parts in response")
	}
	return &Completion{Text: ExtractJSON(sb.String()), TotalTokens: tokens}, nil
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func totalTokens(resp *genai.GenerateContentResponse) int {
	if resp == nil || resp.UsageMetadata == nil {
		return 0
	}
	return int(resp.UsageMetadata.TotalTokenCount)
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
