// Package document defines the immutable question records the index is built
// over, the sortable fields and their comparators, and the Store that owns
// the records for the lifetime of the process.
package document

import "time"

// Position is a document's index in the Store. It is stable for the process
// lifetime and is the only way other structures refer to a document.
type Position uint32

// Document is a single tagged question. Optional numeric attributes are nil
// when absent; a zero time is treated as absent for the date fields.
type Document struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title,omitempty"`
	Tags             []string  `json:"tags"`
	CreationDate     time.Time `json:"creationDate"`
	LastActivityDate time.Time `json:"lastActivityDate"`
	Score            *int32    `json:"score,omitempty"`
	ViewCount        *int32    `json:"viewCount,omitempty"`
	AnswerCount      *int32    `json:"answerCount,omitempty"`
}

// HasTag reports whether the document carries tag.
func (d *Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Int32 returns a pointer to v, for building documents with optional fields.
func Int32(v int32) *int32 {
	return &v
}
