package document

import (
	"fmt"
	"slices"
)

// Store is the immutable array of documents. It is the only source of truth
// for attribute values.
type Store struct {
	docs []Document
}

// NewStore takes ownership of docs. Tag strings are interned so documents
// sharing a tag share its backing string, and duplicate tags within a
// document are dropped while keeping first-seen order.
func NewStore(docs []Document) *Store {
	interned := make(map[string]string)
	for i := range docs {
		tags := docs[i].Tags[:0:0]
		for _, t := range docs[i].Tags {
			s, ok := interned[t]
			if !ok {
				interned[t] = t
				s = t
			}
			if !slices.Contains(tags, s) {
				tags = append(tags, s)
			}
		}
		docs[i].Tags = tags
	}
	return &Store{docs: docs}
}

// Len returns the number of documents.
func (s *Store) Len() int {
	return len(s.docs)
}

// At returns the document at pos. It panics when pos is out of range, which
// means a position was produced for a different store.
func (s *Store) At(pos Position) *Document {
	if int(pos) >= len(s.docs) {
		panic(fmt.Sprintf("document: position %d out of range [0,%d)", pos, len(s.docs)))
	}
	return &s.docs[pos]
}

// Compare orders two positions with the field's comparator.
func (s *Store) Compare(field SortField, a, b Position) int {
	return field.Compare(&s.docs[a], &s.docs[b])
}

// Resolve copies the documents at the given positions, in order.
func (s *Store) Resolve(positions []Position) []Document {
	out := make([]Document, len(positions))
	for i, p := range positions {
		out[i] = *s.At(p)
	}
	return out
}
