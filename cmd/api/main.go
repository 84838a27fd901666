package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pageforge/internal/config"
	"pageforge/internal/content"
	"pageforge/internal/imageres"
	"pageforge/internal/imagesynth"
	"pageforge/internal/layout"
	"pageforge/internal/llm"
	"pageforge/internal/orchestrator"
	"pageforge/internal/page"
	"pageforge/internal/progress"
	"pageforge/internal/retrieval"
	"pageforge/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()

	text, embedder, images := initModels(ctx, cfg)
	defer text.Close()

	pages, vectorIndex, sources := initStores(cfg)

	retriever := &retrieval.Retriever{
		Embedder:   embedder,
		Index:      vectorIndex,
		Sources:    sources,
		Cache:      retrieval.NewCache(cfg.Cache.RetrievalSize, cfg.Cache.RetrievalTTL),
		EmbedWait:  cfg.Deadline.Embed,
		SearchWait: cfg.Deadline.Search,
	}

	synth := &imagesynth.Synthesizer{
		Images: images,
		Blobs:  initBlobStore(cfg),
		Pages:  pages,
	}

	hub := progress.NewHub()
	synth.OnDone = func(pageID string, status page.ImageStatus) {
		hub.Publish(pageID, progress.Event{
			Type:    progress.EventImagesDone,
			PageID:  pageID,
			Message: string(status),
			At:      time.Now(),
		})
	}

	orch := &orchestrator.Orchestrator{
		Retriever:   retriever,
		Generator:   &content.Generator{LLM: text},
		Selector:    &layout.Selector{LLM: text},
		Resolver:    &imageres.Resolver{Search: retriever},
		Pages:       pages,
		Synth:       synth,
		Freshness:   cfg.Cache.PageFreshness,
		GenerateTTL: cfg.Deadline.Generate,
		PersistTTL:  cfg.Deadline.Persist,
	}

	synthCtx, stopSynth := context.WithCancel(ctx)
	synth.Start(synthCtx)

	handler := &server.PageHandler{
		Orch:       orch,
		Pages:      pages,
		Hub:        hub,
		RequestTTL: cfg.Deadline.Request,
	}
	srv := server.New(cfg.Port, server.NewMux(handler))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	stopSynth()
	synth.Wait()
}

// initModels builds the Gemini clients, or offline fakes when no API key is
// configured.
func initModels(ctx context.Context, cfg *config.Config) (llm.TextClient, retrieval.Embedder, llm.ImageClient) {
	if cfg.Gemini.APIKey == "" {
		log.Printf("GEMINI_API_KEY not set, using offline fake models")
		return llm.NewFakeTextClient(), &llm.FakeEmbedder{}, &llm.FakeImageClient{}
	}

	text, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.TextModel)
	if err != nil {
		log.Fatalf("init gemini text client: %v", err)
	}
	wrapped := llm.Wrap(text,
		llm.WithLogging(nil),
		llm.Retry(3, 500*time.Millisecond),
		llm.RateLimit(2, 4),
	)

	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.Gemini.APIKey, cfg.Gemini.EmbedModel)
	if err != nil {
		log.Fatalf("init gemini embedder: %v", err)
	}
	images, err := llm.NewGeminiImageClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.ImageModel)
	if err != nil {
		log.Fatalf("init gemini image client: %v", err)
	}
	return wrapped, embedder, images
}

// initStores picks Postgres when DATABASE_URL is set, in-memory otherwise.
func initStores(cfg *config.Config) (page.Store, retrieval.VectorIndex, retrieval.SourceStore) {
	if dsn := cfg.DatabaseURL; dsn != "" {
		pages, err := page.NewPostgresStore(dsn, cfg.Cache.PageLookupSize)
		if err != nil {
			log.Fatalf("init page store: %v", err)
		}
		kb, err := retrieval.NewPostgresStore(dsn)
		if err != nil {
			log.Fatalf("init retrieval store: %v", err)
		}
		log.Printf("stores: postgres")
		return pages, kb, kb
	}
	log.Printf("stores: in-memory")
	return page.NewMemoryStore(), retrieval.NewMemoryIndex(), retrieval.NewMemorySourceStore()
}

func initBlobStore(cfg *config.Config) imagesynth.BlobStore {
	if !cfg.Blob.Enabled || cfg.Blob.AccessKey == "" || cfg.Blob.SecretKey == "" {
		log.Printf("blob store: in-memory (no object storage configured)")
		return imagesynth.NewMemoryBlobStore()
	}
	store, err := imagesynth.NewMinioStore(cfg.Blob)
	if err != nil {
		log.Fatalf("init blob store: %v", err)
	}
	log.Printf("blob store: s3 bucket=%s endpoint=%s", cfg.Blob.Bucket, cfg.Blob.Endpoint)
	return store
}
