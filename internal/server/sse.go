package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"pageforge/internal/progress"
)

// sseWriter streams progress events as server-sent events. Writes are
// serialized because the orchestrator may emit from multiple goroutines.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) Emit(event progress.Event) {
	s.WriteNamed(string(event.Type), event)
}

func (s *sseWriter) WriteNamed(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("server: marshal sse event: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	s.flusher.Flush()
}
