package inference

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	defaultLocation       = "europe-west1"
	defaultVisionModel    = "gemini-2.5-flash"
	defaultEmbeddingModel = "text-embedding-004"
)

type Config struct {
	// Backend is "gemini" (API key) or "vertex" (Application Default Credentials).
	Backend        string
	APIKey         string
	Project        string
	Location       string
	VisionModel    string
	EmbeddingModel string
}

// GeminiClient wraps the Google GenAI client.
type GeminiClient struct {
	client         *genai.Client
	visionModel    string
	embeddingModel string
}

func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}
	switch cfg.Backend {
	case "vertex":
		if cfg.Location == "" {
			cfg.Location = defaultLocation
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	case "gemini", "":
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	default:
		return nil, fmt.Errorf("unknown inference backend %q", cfg.Backend)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	g := &GeminiClient{
		client:         client,
		visionModel:    cfg.VisionModel,
		embeddingModel: cfg.EmbeddingModel,
	}
	if g.visionModel == "" {
		g.visionModel = defaultVisionModel
	}
	if g.embeddingModel == "" {
		g.embeddingModel = defaultEmbeddingModel
	}
	return g, nil
}
