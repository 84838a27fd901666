package llm

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
)

// FakeTextClient returns deterministic canned JSON payloads per phase for
// offline use and tests. Responses can be overridden per phase.
type FakeTextClient struct {
	Responses map[string]json.RawMessage
	Err       error
	Calls     []string
}

func NewFakeTextClient() *FakeTextClient {
	return &FakeTextClient{Responses: map[string]json.RawMessage{}}
}

func (f *FakeTextClient) Name() string { return "FakeLLM" }
func (f *FakeTextClient) Close() error { return nil }

func (f *FakeTextClient) GenerateJSON(ctx context.Context, instruction string, input any) (json.RawMessage, error) {
	phase := PhaseFrom(ctx)
	f.Calls = append(f.Calls, phase)
	if f.Err != nil {
		return nil, f.Err
	}
	if raw, ok := f.Responses[phase]; ok {
		return raw, nil
	}
	return json.RawMessage(`{}`), nil
}

// FakeEmbedder produces stable pseudo-embeddings derived from the text hash,
// so identical inputs embed identically across runs.
type FakeEmbedder struct {
	Dim int
	Err error
}

func (f *FakeEmbedder) dim() int {
	if f.Dim <= 0 {
		return 16
	}
	return f.Dim
}

func (f *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, f.dim())
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33)%1000) / 1000
		norm += float64(vec[i]) * float64(vec[i])
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (f *FakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// FakeImageClient records prompts and returns a tiny fixed payload.
type FakeImageClient struct {
	Prompts []string
	Err     error
}

func (f *FakeImageClient) Generate(ctx context.Context, prompt, aspectRatio string) ([]byte, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.Prompts = append(f.Prompts, prompt)
	return []byte("fake-image-bytes"), nil
}
