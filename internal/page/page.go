// Package page defines the persisted GeneratedPage aggregate and its stores.
// A page is immutable content-wise after creation; only image URLs and the
// image status may be backfilled afterwards.
package page

import (
	"time"

	"pageforge/internal/classify"
	"pageforge/internal/content"
	"pageforge/internal/layout"
)

// ImageStatus tracks the asynchronous image-synthesis lifecycle.
type ImageStatus string

const (
	ImagesPending ImageStatus = "pending"
	ImagesReady   ImageStatus = "ready"
	ImagesGivenUp ImageStatus = "given_up"
)

type GeneratedPage struct {
	ID              string               `json:"id"`
	Query           string               `json:"query"`
	NormalizedQuery string               `json:"normalized_query"`
	ContentType     classify.ContentType `json:"content_type"`
	Metadata        content.Metadata     `json:"metadata"`
	ContentAtoms    []content.Atom       `json:"content_atoms"`
	LayoutBlocks    []layout.Block       `json:"layout_blocks"`
	ImagesReady     bool                 `json:"images_ready"`
	ImageStatus     ImageStatus          `json:"image_status"`
	RAGSourceIDs    []string             `json:"rag_source_ids"`
	SessionID       string               `json:"session_id,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// Update is the partial-field write applied after creation. Nil fields are
// left untouched.
type Update struct {
	ContentAtoms *[]content.Atom
	ImagesReady  *bool
	ImageStatus  *ImageStatus
}
