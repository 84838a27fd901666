package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"pageforge/internal/orchestrator"
	"pageforge/internal/page"
	"pageforge/internal/progress"
)

// PageHandler serves the page-generation endpoints.
type PageHandler struct {
	Orch       *orchestrator.Orchestrator
	Pages      page.Store
	Hub        *progress.Hub
	RequestTTL time.Duration
}

type generateRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	SkipCache bool   `json:"skip_cache,omitempty"`
}

type generateResponse struct {
	Page     *page.GeneratedPage `json:"page"`
	CacheHit bool                `json:"cache_hit"`
}

func NewMux(h *PageHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/pages/generate", h.HandleGenerate)
	mux.HandleFunc("GET /v1/pages", h.HandleFindPage)
	mux.HandleFunc("GET /v1/pages/{id}", h.HandleGetPage)
	mux.HandleFunc("GET /ws/progress", h.HandleProgressWS)
	mux.HandleFunc("GET /healthz", handleHealthz)
	return cors(mux)
}

func (h *PageHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ctx := r.Context()
	if h.RequestTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.RequestTTL)
		defer cancel()
	}

	// Progress always reaches websocket subscribers for this session; when the
	// client asked for SSE it is streamed on this response too.
	emitters := []progress.Emitter{h.Hub.Emitter(req.SessionID)}
	var stream *sseWriter
	if wantsSSE(r) {
		s, err := newSSEWriter(w)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		stream = s
		emitters = append(emitters, s)
	}
	ctx = progress.WithEmitter(ctx, multiEmitter(emitters))

	resp, err := h.Orch.GeneratePage(ctx, orchestrator.Request{
		Query:     req.Query,
		SessionID: req.SessionID,
		SkipCache: req.SkipCache,
	})
	if err != nil {
		if stream != nil {
			stream.WriteNamed("error", map[string]string{"error": err.Error()})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := generateResponse{Page: resp.Page, CacheHit: resp.CacheHit}
	if stream != nil {
		stream.WriteNamed("result", out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PageHandler) HandleGetPage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "page id is required")
		return
	}
	p, err := h.Pages.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, page.ErrNotFound) {
			writeError(w, http.StatusNotFound, "page not found")
			return
		}
		log.Printf("server: get page %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleFindPage looks up the freshest page for a query without generating
// anything. 404 means the caller should POST to generate.
func (h *PageHandler) HandleFindPage(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	p, err := h.Pages.FindByNormalizedQuery(r.Context(), page.NormalizeQuery(query), time.Time{})
	if err != nil {
		if errors.Is(err, page.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no page for query")
			return
		}
		log.Printf("server: find page: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type multiEmitter []progress.Emitter

func (m multiEmitter) Emit(event progress.Event) {
	for _, e := range m {
		e.Emit(event)
	}
}

func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
