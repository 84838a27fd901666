// Package progress carries pipeline progress events from the orchestrator to
// whichever transport the request arrived on. The emitter travels on the
// request context so pipeline stages stay transport-agnostic.
package progress

import (
	"context"
	"encoding/json"
	"time"
)

type EventType string

const (
	EventStep           EventType = "step"
	EventClassification EventType = "classification"
	EventContentPreview EventType = "content_preview"
	EventHeroContent    EventType = "hero_content"
	EventHeroImage      EventType = "hero_image"
	EventFeatureList    EventType = "feature_list"
	EventComplete       EventType = "complete"
	EventFailed         EventType = "failed"
	EventImagesDone     EventType = "images_done"
)

// Event is one progress update. Percent is a coarse 0-100 estimate; Data
// carries the type-specific payload already marshalled for the wire.
type Event struct {
	Type    EventType       `json:"type"`
	Step    string          `json:"step,omitempty"`
	Message string          `json:"message,omitempty"`
	Percent int             `json:"percent,omitempty"`
	PageID  string          `json:"page_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	At      time.Time       `json:"at"`
}

type Emitter interface {
	Emit(event Event)
}

type emitterKey struct{}

func WithEmitter(ctx context.Context, e Emitter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, emitterKey{}, e)
}

func EmitterFrom(ctx context.Context) Emitter {
	if ctx == nil {
		return nil
	}
	if e, ok := ctx.Value(emitterKey{}).(Emitter); ok {
		return e
	}
	return nil
}

// Send emits through the context-bound emitter, stamping the event time.
// Returns true when an emitter was present.
func Send(ctx context.Context, event Event) bool {
	e := EmitterFrom(ctx)
	if e == nil {
		return false
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	e.Emit(event)
	return true
}

// Step is the common case: a named stage with a human message and a percent.
func Step(ctx context.Context, step, message string, percent int) bool {
	return Send(ctx, Event{Type: EventStep, Step: step, Message: message, Percent: percent})
}

// Payload emits a typed event whose data is the JSON encoding of v. Marshal
// failures drop the payload but still deliver the event envelope.
func Payload(ctx context.Context, t EventType, step string, percent int, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		data = nil
	}
	return Send(ctx, Event{Type: t, Step: step, Percent: percent, Data: data})
}
