// Package inference asks a hosted model to describe images and embed text.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

const maxColors = 5

const analyzePrompt = `Analyze this image and provide:
1) A detailed description (2-3 sentences).
2) The 5 most dominant colors as hex codes.
Respond in JSON format: {"description": "...", "colors": ["#hex1", "#hex2", ...]}`

// Analysis is the structured reply of the vision model.
type Analysis struct {
	Description string   `json:"description"`
	Colors      []string `json:"colors"`
}

// Gateway is the AI inference service used by the processor.
type Gateway interface {
	AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*Analysis, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"description": {Type: genai.TypeString},
		"colors": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"description", "colors"},
}

// AnalyzeImage sends an image to the vision model and returns its description and palette.
func (g *GeminiClient) AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*Analysis, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.visionModel,
		[]*genai.Content{{
			Role: "user",
			Parts: []*genai.Part{
				{Text: analyzePrompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: imageData}},
			},
		}},
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(float32(0.2)),
			ResponseMIMEType: "application/json",
			ResponseSchema:   analysisSchema,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return parseAnalysis(resp.Text())
}

// Embed returns the embedding vector of text.
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}

func parseAnalysis(text string) (*Analysis, error) {
	if text == "" {
		return nil, errors.New("empty gemini response")
	}
	var a Analysis
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		return nil, fmt.Errorf("parse analysis JSON: %w\nraw response: %s", err, text)
	}
	a.Description = strings.TrimSpace(a.Description)
	if a.Description == "" {
		return nil, errors.New("analysis has no description")
	}
	a.Colors = normalizeColors(a.Colors)
	return &a, nil
}

var hexColor = regexp.MustCompile(`^#?([0-9a-fA-F]{6}|[0-9a-fA-F]{3})$`)

// normalizeColors keeps at most five well-formed hex colors as upper-case "#RRGGBB".
func normalizeColors(in []string) []string {
	out := make([]string, 0, maxColors)
	for _, c := range in {
		m := hexColor.FindStringSubmatch(strings.TrimSpace(c))
		if m == nil {
			continue
		}
		hex := strings.ToUpper(m[1])
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		out = append(out, "#"+hex)
		if len(out) == maxColors {
			break
		}
	}
	return out
}
