package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pageforge/internal/content"
	"pageforge/internal/imageres"
	"pageforge/internal/layout"
	"pageforge/internal/llm"
	"pageforge/internal/orchestrator"
	"pageforge/internal/page"
	"pageforge/internal/progress"
	"pageforge/internal/retrieval"
)

const pageJSON = `{
  "content_type": "product",
  "metadata": {"title": "Vitamix A3500", "hero_prompt": "a blender"},
  "content_atoms": [
    {"type": "heading", "text": "Vitamix A3500", "level": 1},
    {"type": "paragraph", "text": "The flagship."}
  ]
}`

type nilEmbedder struct{}

func (nilEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func newTestHandler(t *testing.T) (*PageHandler, *page.MemoryStore) {
	t.Helper()
	fake := llm.NewFakeTextClient()
	fake.Responses["generate"] = json.RawMessage(pageJSON)

	store := page.NewMemoryStore()
	r := &retrieval.Retriever{
		Embedder: nilEmbedder{},
		Index:    retrieval.NewMemoryIndex(),
		Sources:  retrieval.NewMemorySourceStore(),
	}
	return &PageHandler{
		Orch: &orchestrator.Orchestrator{
			Retriever: r,
			Generator: &content.Generator{LLM: fake},
			Selector:  &layout.Selector{LLM: fake},
			Resolver:  &imageres.Resolver{Search: r},
			Pages:     store,
		},
		Pages:      store,
		Hub:        progress.NewHub(),
		RequestTTL: 10 * time.Second,
	}, store
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz returned %d", resp.StatusCode)
	}
}

func TestGenerateJSONRoundTrip(t *testing.T) {
	h, store := newTestHandler(t)
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	body := strings.NewReader(`{"query": "Vitamix A3500"}`)
	resp, err := http.Post(srv.URL+"/v1/pages/generate", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate returned %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Page == nil || out.Page.ID == "" {
		t.Fatalf("no page in response: %+v", out)
	}
	if out.Page.Metadata.Title != "Vitamix A3500" {
		t.Fatalf("unexpected title %q", out.Page.Metadata.Title)
	}
	if _, err := store.GetByID(context.Background(), out.Page.ID); err != nil {
		t.Fatalf("page not persisted: %v", err)
	}
}

func TestGenerateRejectsEmptyQuery(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/pages/generate", "application/json", strings.NewReader(`{"query": "   "}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGenerateStreamsSSE(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/pages/generate", strings.NewReader(`{"query": "Vitamix A3500"}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	buf := make([]byte, 64<<10)
	n, _ := resp.Body.Read(buf)
	for n < len(buf) {
		m, err := resp.Body.Read(buf[n:])
		n += m
		if err != nil {
			break
		}
	}
	streamText := string(buf[:n])
	for _, want := range []string{"event: step", "event: complete", "event: result", `"cache_hit":false`} {
		if !strings.Contains(streamText, want) {
			t.Fatalf("stream missing %q:\n%s", want, streamText)
		}
	}
}

func TestGetPage(t *testing.T) {
	h, store := newTestHandler(t)
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	p := &page.GeneratedPage{ID: "p1", Query: "q", NormalizedQuery: "q", CreatedAt: time.Now()}
	if err := store.Insert(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/v1/pages/p1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	missing, err := http.Get(srv.URL + "/v1/pages/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}
