// Package validator checks a loaded corpus before it is indexed. It reports
// every offending document, keyed by document ID, instead of stopping at the
// first.
package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/indexer"
)

const (
	maxTitleLength = 1024
	maxTagLength   = 64
	// maxReported bounds the error message on badly broken corpora.
	maxReported = 20
)

// ValidationError holds per-document failure messages.
type ValidationError struct {
	Fields map[string]string
	Total  int
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	msg := strings.Join(parts, "; ")
	if e.Total > len(e.Fields) {
		msg += fmt.Sprintf(" (and %d more)", e.Total-len(e.Fields))
	}
	return msg
}

// ValidateDocuments rejects duplicate IDs, empty or over-long tags, and tags
// that collide with the universe tag name in any case.
func ValidateDocuments(docs []document.Document) error {
	verr := &ValidationError{Fields: make(map[string]string)}
	add := func(id int64, msg string) {
		verr.Total++
		if len(verr.Fields) < maxReported {
			key := fmt.Sprintf("id=%d", id)
			if prev, ok := verr.Fields[key]; ok {
				msg = prev + ", " + msg
			}
			verr.Fields[key] = msg
		}
	}

	seen := make(map[int64]struct{}, len(docs))
	for i := range docs {
		d := &docs[i]
		if _, dup := seen[d.ID]; dup {
			add(d.ID, "duplicate id")
		}
		seen[d.ID] = struct{}{}
		if len(d.Title) > maxTitleLength {
			add(d.ID, fmt.Sprintf("title must be at most %d characters", maxTitleLength))
		}
		for _, tag := range d.Tags {
			switch {
			case strings.TrimSpace(tag) == "":
				add(d.ID, "empty tag")
			case strings.EqualFold(tag, indexer.UniverseTag):
				add(d.ID, fmt.Sprintf("tag %q is reserved", tag))
			case len(tag) > maxTagLength:
				add(d.ID, fmt.Sprintf("tag %q longer than %d", tag, maxTagLength))
			}
		}
	}
	if verr.Total > 0 {
		return verr
	}
	return nil
}
