package llm

import (
	"context"
	"encoding/json"

	genai "google.golang.org/genai"

	"pageforge/internal/util/jsonutil"
)

// GeminiClient is a thin wrapper around the official genai client.
// Cross-cutting concerns (rate limiting, retries, logging) are applied
// via Middleware.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

// GenerateJSON sends the instruction as the system prompt and the marshaled
// input as the user turn, requesting application/json. A stable system
// instruction lets the backend reuse its cached prompt across calls. Input is
// encoded without HTML escaping so source URLs reach the model verbatim.
func (g *GeminiClient) GenerateJSON(ctx context.Context, instruction string, input any) (json.RawMessage, error) {
	in, err := jsonutil.MarshalNoEscape(input)
	if err != nil {
		return nil, err
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: string(in)}}}},
		&genai.GenerateContentConfig{
			ResponseMIMEType:  "application/json",
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: instruction}}},
		},
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(resp.Candidates[0].Content.Parts[0].Text), nil
}

// GeminiEmbedder embeds text through the Gemini embedding models.
type GeminiEmbedder struct {
	cli   *genai.Client
	model string
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{cli: cli, model: model}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: t}}})
	}
	resp, err := e.cli.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		out = append(out, emb.Values)
	}
	return out, nil
}

// GeminiImageClient synthesizes images through the Imagen models.
type GeminiImageClient struct {
	cli   *genai.Client
	model string
}

func NewGeminiImageClient(ctx context.Context, apiKey, model string) (*GeminiImageClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiImageClient{cli: cli, model: model}, nil
}

func (g *GeminiImageClient) Generate(ctx context.Context, prompt, aspectRatio string) ([]byte, error) {
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}
	resp, err := g.cli.Models.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectRatio,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, ErrInvalidJSON
	}
	return resp.GeneratedImages[0].Image.ImageBytes, nil
}
