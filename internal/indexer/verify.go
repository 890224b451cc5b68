package indexer

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/errors"
)

// Verify checks every entry of ix, universe included:
//   - each field's postings hold the same number of positions as Members,
//     all of them members, in strictly increasing comparator order;
//   - each field's bitmap has the corpus length, the same cardinality, and
//     decodes through the universe ranks to members only.
//
// Equal cardinality plus membership makes the postings and bitmap of every
// field the same set.
func Verify(ix *Index) error {
	n := uint64(ix.store.Len())
	for _, e := range ix.entries() {
		count := e.Members.GetCardinality()
		for _, f := range document.SortFields {
			if err := verifyPostings(ix, e, f, count); err != nil {
				return err
			}
			if err := verifyBitmap(ix, e, f, n, count); err != nil {
				return err
			}
		}
	}
	return nil
}

func verifyPostings(ix *Index, e *TagEntry, f document.SortField, count uint64) error {
	p := e.Postings[f]
	if uint64(len(p)) != count {
		return violation(e, f, "postings length %d, tag has %d documents", len(p), count)
	}
	for i, pos := range p {
		if !e.Contains(pos) {
			return violation(e, f, "position %d at %d does not carry the tag", pos, i)
		}
		if i > 0 && ix.store.Compare(f, p[i-1], pos) >= 0 {
			return violation(e, f, "positions %d and %d out of order at %d", p[i-1], pos, i)
		}
	}
	return nil
}

func verifyBitmap(ix *Index, e *TagEntry, f document.SortField, n, count uint64) error {
	bm := e.Bitmaps[f]
	if bm == nil {
		return violation(e, f, "missing bitmap")
	}
	if bm.Len() != n {
		return violation(e, f, "bitmap length %d, corpus has %d documents", bm.Len(), n)
	}
	if c := bm.Cardinality(); c != count {
		return violation(e, f, "bitmap cardinality %d, postings length %d", c, count)
	}
	ranks := ix.universe.Postings[f]
	for rank := range bm.All() {
		if rank >= uint64(len(ranks)) {
			return violation(e, f, "bit %d beyond universe of %d", rank, len(ranks))
		}
		if pos := ranks[rank]; !e.Contains(pos) {
			return violation(e, f, "bit %d maps to position %d without the tag", rank, pos)
		}
	}
	return nil
}

func violation(e *TagEntry, f document.SortField, format string, args ...any) error {
	return fmt.Errorf("tag %q field %s: %s: %w", e.Name, f, fmt.Sprintf(format, args...), apperrors.ErrBuildInvariant)
}
