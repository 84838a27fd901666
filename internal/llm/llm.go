package llm

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrInvalidJSON = errors.New("llm: invalid JSON from model")

// TextClient generates structured JSON from a system instruction plus a
// JSON-serializable input payload.
type TextClient interface {
	Name() string
	GenerateJSON(ctx context.Context, instruction string, input any) (json.RawMessage, error)
	Close() error
}

// Embedder turns text into embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ImageClient synthesizes an image for a prompt at the given aspect ratio.
type ImageClient interface {
	Generate(ctx context.Context, prompt, aspectRatio string) ([]byte, error)
}
