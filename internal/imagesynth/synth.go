package imagesynth

import (
	"context"
	"fmt"
	"log"
	"time"

	"pageforge/internal/imageres"
	"pageforge/internal/llm"
	"pageforge/internal/page"
)

const (
	defaultRetries = 3
	defaultBackoff = 2 * time.Second
	defaultQueue   = 64
)

// Task is one page's worth of outstanding image prompts.
type Task struct {
	PageID  string
	Prompts []imageres.RemainingPrompt
}

// Synthesizer consumes tasks from a queue, generates each missing image with
// a bounded retry budget, uploads the bytes and backfills the page record.
// A page whose prompts cannot all be satisfied ends in the terminal given_up
// status; partial successes are still written back.
type Synthesizer struct {
	Images  llm.ImageClient
	Blobs   BlobStore
	Pages   page.Store
	Retries int
	Backoff time.Duration

	// OnDone is invoked after each task's backfill completes. Optional.
	OnDone func(pageID string, status page.ImageStatus)

	queue chan Task
	done  chan struct{}
}

// Start launches the single worker goroutine. The worker drains the queue
// until ctx is cancelled, then finishes the task in flight and exits.
func (s *Synthesizer) Start(ctx context.Context) {
	if s.queue == nil {
		s.queue = make(chan Task, defaultQueue)
	}
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case task := <-s.queue:
				s.run(ctx, task)
			}
		}
	}()
}

// Enqueue submits a task without blocking. A full queue drops the task and
// leaves the page pending; a later request for the same query regenerates it.
func (s *Synthesizer) Enqueue(task Task) bool {
	if s.queue == nil || task.PageID == "" || len(task.Prompts) == 0 {
		return false
	}
	select {
	case s.queue <- task:
		return true
	default:
		log.Printf("imagesynth: queue full, dropping task for page %s", task.PageID)
		return false
	}
}

// Wait blocks until the worker has exited after its context was cancelled.
func (s *Synthesizer) Wait() {
	if s.done != nil {
		<-s.done
	}
}

func (s *Synthesizer) run(ctx context.Context, task Task) {
	urls := make([]string, len(task.Prompts))
	failed := false
	for i, rp := range task.Prompts {
		url, err := s.synthesizeOne(ctx, task.PageID, i, rp)
		if err != nil {
			log.Printf("imagesynth: page %s prompt %d exhausted: %v", task.PageID, i, err)
			failed = true
			continue
		}
		urls[i] = url
	}
	s.backfill(ctx, task, urls, failed)
}

// synthesizeOne generates and uploads a single image, retrying generation up
// to the budget. Upload failures count against the same budget.
func (s *Synthesizer) synthesizeOne(ctx context.Context, pageID string, n int, rp imageres.RemainingPrompt) (string, error) {
	retries := s.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := s.Images.Generate(ctx, rp.Prompt, aspectFor(rp.Role))
		if err == nil {
			key := fmt.Sprintf("pages/%s/%d.png", pageID, n)
			url, putErr := s.Blobs.Put(ctx, key, data, "image/png")
			if putErr == nil {
				return url, nil
			}
			err = putErr
		}
		lastErr = err
		if attempt < retries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}
	}
	return "", lastErr
}

// backfill writes whatever was produced into the page and flips the image
// status exactly once: ready if every prompt succeeded, given_up otherwise.
func (s *Synthesizer) backfill(ctx context.Context, task Task, urls []string, failed bool) {
	status := page.ImagesReady
	if failed {
		status = page.ImagesGivenUp
	}

	p, err := s.Pages.GetByID(ctx, task.PageID)
	if err != nil {
		log.Printf("imagesynth: load page %s: %v", task.PageID, err)
		return
	}
	// The loaded page's atom slices alias store-owned memory; clone before
	// writing URLs so the store only ever changes through Update.
	atoms := imageres.CloneAtoms(p.ContentAtoms)
	for i, rp := range task.Prompts {
		if urls[i] == "" {
			continue
		}
		if err := imageres.ApplyGenerated(atoms, rp, urls[i]); err != nil {
			log.Printf("imagesynth: apply page %s: %v", task.PageID, err)
		}
	}
	ready := status == page.ImagesReady
	if err := s.Pages.Update(ctx, task.PageID, page.Update{
		ContentAtoms: &atoms,
		ImagesReady:  &ready,
		ImageStatus:  &status,
	}); err != nil {
		log.Printf("imagesynth: update page %s: %v", task.PageID, err)
		return
	}
	if s.OnDone != nil {
		s.OnDone(task.PageID, status)
	}
}

func aspectFor(role imageres.Role) string {
	if role == imageres.RoleHero {
		return "16:9"
	}
	return "1:1"
}
