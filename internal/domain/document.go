package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Document is a unit of ingested text with optional client-supplied metadata.
type Document struct {
	ID         string
	Text       string
	Metadata   map[string]any
	ReceivedAt time.Time
}

// NewDocument builds a document from raw request input. The text is
// trimmed and the ID derived so re-ingesting the same content is a no-op
// downstream.
func NewDocument(text string, metadata map[string]any) Document {
	text = strings.TrimSpace(text)
	return Document{
		ID:         DeriveID(text, metadata),
		Text:       text,
		Metadata:   metadata,
		ReceivedAt: time.Now().UTC(),
	}
}

// DeriveID returns a stable document ID. A client-supplied metadata
// doc_id wins; otherwise the ID is a content hash, so identical text
// always maps to the same document.
func DeriveID(text string, metadata map[string]any) string {
	if metadata != nil {
		if v, ok := metadata["doc_id"].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return fmt.Sprintf("doc-%016x", xxhash.Sum64String(text))
}

// EnrichedText returns the text prefixed with metadata context (summary
// and keywords, when present) so extraction sees the framing the client
// provided.
func (d Document) EnrichedText() string {
	if d.Metadata == nil {
		return d.Text
	}
	var prefix []string
	if v, ok := d.Metadata["summary"].(string); ok && v != "" {
		prefix = append(prefix, "Summary: "+v)
	}
	if v, ok := d.Metadata["keywords"].(string); ok && v != "" {
		prefix = append(prefix, "Keywords: "+v)
	}
	if kws, ok := d.Metadata["keywords"].([]any); ok && len(kws) > 0 {
		parts := make([]string, 0, len(kws))
		for _, kw := range kws {
			if s, ok := kw.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			prefix = append(prefix, "Keywords: "+strings.Join(parts, ", "))
		}
	}
	if len(prefix) == 0 {
		return d.Text
	}
	return strings.Join(prefix, "\n") + "\n\n" + d.Text
}

// QueryResult is the answer produced for a query.
type QueryResult struct {
	Answer   string
	Mode     Mode
	Sources  []Source
	Duration time.Duration
}

// Source is a retrieved fragment that contributed to an answer.
type Source struct {
	ID      string
	Content string
	Score   float64
}

// NoMatchAnswer is returned when retrieval finds nothing relevant,
// including queries issued before any document has been ingested.
const NoMatchAnswer = "No relevant information found."
