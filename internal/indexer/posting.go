package indexer

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/bitmap"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
)

// Postings is a tag's document positions in one sort field's order.
type Postings []document.Position

// Window returns postings[skip:skip+take], clamped to the available range.
func (p Postings) Window(skip, take int) Postings {
	if skip >= len(p) {
		return nil
	}
	return p[skip:min(skip+take, len(p))]
}

// TagEntry is everything the index holds for one tag. Postings and Bitmaps
// are indexed by SortField. Bit i of Bitmaps[f] is set when the document at
// rank i of the universe postings for f carries the tag. Members is the same
// set in position space, shared by all fields.
type TagEntry struct {
	Name     string
	Postings [document.NumSortFields]Postings
	Bitmaps  [document.NumSortFields]*bitmap.Bitmap
	Members  *roaring.Bitmap
}

// Count returns the number of documents carrying the tag.
func (e *TagEntry) Count() int {
	return len(e.Postings[0])
}

// Sorted returns the postings ordered by field.
func (e *TagEntry) Sorted(field document.SortField) Postings {
	return e.Postings[field]
}

// Bitmap returns the rank-space bitmap for field.
func (e *TagEntry) Bitmap(field document.SortField) *bitmap.Bitmap {
	return e.Bitmaps[field]
}

// Contains reports whether the document at pos carries the tag.
func (e *TagEntry) Contains(pos document.Position) bool {
	return e.Members.Contains(uint32(pos))
}
