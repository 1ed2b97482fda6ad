package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiNarrator implements Narrator using Google's Gemini models.
type GeminiNarrator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiNarrator initializes a new Gemini client. apiKey should be
// provided from environment variables.
func NewGeminiNarrator(ctx context.Context, apiKey string) (*GeminiNarrator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Flash keeps latency and cost low for a one-line narrative.
	model := client.GenerativeModel("gemini-2.0-flash")
	model.SetTemperature(0.6)

	return &GeminiNarrator{client: client, model: model}, nil
}

// Close cleans up the Gemini client resources.
func (n *GeminiNarrator) Close() {
	n.client.Close()
}

func (n *GeminiNarrator) DeliveryNarrative(ctx context.Context, status string, etaMinutes int) (string, error) {
	prompt := fmt.Sprintf(
		`You write one short, friendly sentence for a food-delivery tracking screen.
Order status: %s. Estimated minutes until arrival: %d (0 means unknown).
Rules: plain text, no emoji, no markdown, at most 20 words, do not mention internal status codes.`,
		status, etaMinutes)

	resp, err := n.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates from Gemini")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(out.String()), nil
}
