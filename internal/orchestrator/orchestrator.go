// Package orchestrator drives a page-generation request through the pipeline
// states, emitting progress along the way. Concurrent requests for the same
// normalized query collapse into one pipeline run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"pageforge/internal/classify"
	"pageforge/internal/content"
	"pageforge/internal/imageres"
	"pageforge/internal/imagesynth"
	"pageforge/internal/layout"
	"pageforge/internal/page"
	"pageforge/internal/progress"
	"pageforge/internal/retrieval"
)

// State names one stage of the request lifecycle.
type State string

const (
	StateCacheCheck   State = "cache_check"
	StateClassify     State = "classify"
	StateRetrieve     State = "retrieve"
	StateGenerate     State = "generate"
	StateLayoutSelect State = "layout_select"
	StateImageResolve State = "image_resolve"
	StatePersist      State = "persist"
	StateComplete     State = "complete"
	StateFailed       State = "failed"
)

// percent is the coarse progress estimate reported on entering each state.
var percent = map[State]int{
	StateCacheCheck:   5,
	StateClassify:     10,
	StateRetrieve:     25,
	StateGenerate:     55,
	StateLayoutSelect: 70,
	StateImageResolve: 85,
	StatePersist:      95,
	StateComplete:     100,
}

type Request struct {
	Query     string
	SessionID string
	SkipCache bool
}

type Response struct {
	Page     *page.GeneratedPage
	CacheHit bool
}

// Orchestrator wires the pipeline stages together. Generation and persistence
// failures abort the request; retrieval, layout and image resolution degrade.
type Orchestrator struct {
	Retriever *retrieval.Retriever
	Generator *content.Generator
	Selector  *layout.Selector
	Resolver  *imageres.Resolver
	Pages     page.Store
	Synth     *imagesynth.Synthesizer

	Freshness   time.Duration
	GenerateTTL time.Duration
	PersistTTL  time.Duration

	Now   func() time.Time
	NewID func() string

	inflight singleflight.Group
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return uuid.NewString()
}

func (o *Orchestrator) freshness() time.Duration {
	if o.Freshness > 0 {
		return o.Freshness
	}
	return 24 * time.Hour
}

// GeneratePage serves one query end to end. A fresh persisted page for the
// same normalized query short-circuits the pipeline; otherwise concurrent
// callers share a single run via singleflight.
func (o *Orchestrator) GeneratePage(ctx context.Context, req Request) (*Response, error) {
	normalized := page.NormalizeQuery(req.Query)
	if normalized == "" {
		return nil, fmt.Errorf("orchestrator: empty query")
	}

	step(ctx, StateCacheCheck, "checking for a recent page")
	if !req.SkipCache {
		if p, err := o.Pages.FindByNormalizedQuery(ctx, normalized, o.now().Add(-o.freshness())); err == nil {
			go o.maybeKickBackfill(p)
			step(ctx, StateComplete, "serving cached page")
			progress.Send(ctx, progress.Event{Type: progress.EventComplete, PageID: p.ID, Percent: 100})
			return &Response{Page: p, CacheHit: true}, nil
		} else if !errors.Is(err, page.ErrNotFound) {
			log.Printf("orchestrator: cache lookup: %v", err)
		}
	}

	key := page.HashQuery(req.Query)
	v, err, shared := o.inflight.Do(key, func() (any, error) {
		// The run is detached from the caller: a disconnect must not abort
		// model work already paid for, nor fail followers sharing this run.
		// Context values (the progress emitter included) survive detachment.
		return o.run(context.WithoutCancel(ctx), req, normalized)
	})
	if err != nil {
		return nil, err
	}
	p := v.(*page.GeneratedPage)
	if shared {
		// Followers joined a leader's run; the page is theirs too.
		progress.Send(ctx, progress.Event{Type: progress.EventComplete, PageID: p.ID, Percent: 100})
	}
	return &Response{Page: p, CacheHit: false}, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, normalized string) (*page.GeneratedPage, error) {
	step(ctx, StateClassify, "classifying query")
	cls := classify.Classify(req.Query)
	progress.Payload(ctx, progress.EventClassification, string(StateClassify), percent[StateClassify], cls)

	step(ctx, StateRetrieve, "searching the knowledge base")
	ret := o.Retriever.Retrieve(ctx, req.Query)

	step(ctx, StateGenerate, "writing page content")
	genCtx, cancel := withTTL(ctx, o.GenerateTTL)
	gen, err := o.Generator.Generate(genCtx, req.Query, ret.Classification, ret.Context)
	cancel()
	if err != nil {
		return nil, o.fail(ctx, err)
	}
	emitContentPreview(ctx, gen)

	step(ctx, StateLayoutSelect, "choosing layout")
	lay := o.Selector.Select(ctx, gen.ContentAtoms, gen.ContentType, gen.Metadata)

	step(ctx, StateImageResolve, "resolving images")
	res := o.Resolver.Resolve(ctx, gen.ContentAtoms, gen.Metadata, ret.Classification, ret.SourceImages)
	emitImages(ctx, res)

	status := page.ImagesPending
	if res.ImagesReady {
		status = page.ImagesReady
	}
	p := &page.GeneratedPage{
		ID:              o.newID(),
		Query:           req.Query,
		NormalizedQuery: normalized,
		ContentType:     gen.ContentType,
		Metadata:        gen.Metadata,
		ContentAtoms:    res.Atoms,
		LayoutBlocks:    lay.Blocks,
		ImagesReady:     res.ImagesReady,
		ImageStatus:     status,
		RAGSourceIDs:    ret.SourceIDs,
		SessionID:       req.SessionID,
		CreatedAt:       o.now(),
	}

	step(ctx, StatePersist, "saving page")
	persistCtx, cancel := withTTL(ctx, o.PersistTTL)
	err = o.Pages.Insert(persistCtx, p)
	cancel()
	if err != nil {
		return nil, o.fail(ctx, fmt.Errorf("persist page: %w", err))
	}

	if len(res.Remaining) > 0 && o.Synth != nil {
		o.Synth.Enqueue(imagesynth.Task{PageID: p.ID, Prompts: res.Remaining})
	}

	step(ctx, StateComplete, "page ready")
	progress.Send(ctx, progress.Event{Type: progress.EventComplete, PageID: p.ID, Percent: 100})
	return p, nil
}

func (o *Orchestrator) fail(ctx context.Context, err error) error {
	progress.Send(ctx, progress.Event{Type: progress.EventFailed, Step: string(StateFailed), Message: err.Error()})
	return err
}

// maybeKickBackfill re-enqueues synthesis for a cached page stuck in pending,
// covering a restart that lost the in-memory queue. Runs off the request path;
// per-call embed/search deadlines still apply inside the retriever.
func (o *Orchestrator) maybeKickBackfill(p *page.GeneratedPage) {
	if o.Synth == nil || p.ImageStatus != page.ImagesPending {
		return
	}
	cls := classify.Classify(p.Query)
	out := o.Resolver.Resolve(context.Background(), p.ContentAtoms, p.Metadata, cls, nil)
	if len(out.Remaining) > 0 {
		o.Synth.Enqueue(imagesynth.Task{PageID: p.ID, Prompts: out.Remaining})
	}
}

func step(ctx context.Context, s State, msg string) {
	progress.Step(ctx, string(s), msg, percent[s])
}

func emitContentPreview(ctx context.Context, gen content.Result) {
	progress.Payload(ctx, progress.EventContentPreview, string(StateGenerate), percent[StateGenerate], map[string]string{
		"title":       gen.Metadata.Title,
		"description": gen.Metadata.Description,
	})
	if i := content.FindFirst(gen.ContentAtoms, content.AtomHeading); i >= 0 {
		progress.Payload(ctx, progress.EventHeroContent, string(StateGenerate), percent[StateGenerate], map[string]string{
			"text":    gen.ContentAtoms[i].Text,
			"subtext": gen.ContentAtoms[i].Subtext,
		})
	}
	if i := content.FindFirst(gen.ContentAtoms, content.AtomFeatureSet); i >= 0 {
		titles := make([]string, 0, len(gen.ContentAtoms[i].Items))
		for _, it := range gen.ContentAtoms[i].Items {
			titles = append(titles, it.Title)
		}
		progress.Payload(ctx, progress.EventFeatureList, string(StateGenerate), percent[StateGenerate], titles)
	}
}

func emitImages(ctx context.Context, res imageres.Outcome) {
	if i := content.FindFirst(res.Atoms, content.AtomHeading); i >= 0 && res.Atoms[i].ImageURL != "" {
		progress.Payload(ctx, progress.EventHeroImage, string(StateImageResolve), percent[StateImageResolve], map[string]string{
			"url": res.Atoms[i].ImageURL,
		})
	}
}

func withTTL(ctx context.Context, ttl time.Duration) (context.Context, context.CancelFunc) {
	if ttl <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ttl)
}
