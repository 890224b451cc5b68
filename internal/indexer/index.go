package indexer

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/bitmap"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/errors"
)

// UniverseTag names the pseudo-tag whose postings list every document.
const UniverseTag = "ALL"

// Index is the built, immutable tag index. It is safe for any number of
// concurrent readers.
type Index struct {
	store    *document.Store
	tags     map[string]*TagEntry
	names    []string
	universe *TagEntry
	maxCount int
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type Stats struct {
	Tags            int    `json:"tags"`
	Documents       int    `json:"documents"`
	PostingsEntries int    `json:"postings_entries"`
	BitmapBlocks    int    `json:"bitmap_blocks"`
	LiteralWords    uint64 `json:"literal_words"`
	MaxTagCount     int    `json:"max_tag_count"`
}

func (ix *Index) Store() *document.Store {
	return ix.store
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	return ix.store.Len()
}

// Universe returns the ALL entry.
func (ix *Index) Universe() *TagEntry {
	return ix.universe
}

// MaxTagCount is the document count of the largest real tag.
func (ix *Index) MaxTagCount() int {
	return ix.maxCount
}

// Tags returns every tag name in ascending order, excluding the universe.
func (ix *Index) Tags() []string {
	return slices.Clone(ix.names)
}

// Count returns how many documents carry tag.
func (ix *Index) Count(tag string) (int, bool) {
	e, ok := ix.entry(tag)
	if !ok {
		return 0, false
	}
	return e.Count(), true
}

// Lookup returns the entry for tag. UniverseTag resolves to the universe.
func (ix *Index) Lookup(tag string) (*TagEntry, error) {
	e, ok := ix.entry(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidTag, tag)
	}
	return e, nil
}

func (ix *Index) entry(tag string) (*TagEntry, bool) {
	if tag == UniverseTag {
		return ix.universe, true
	}
	e, ok := ix.tags[tag]
	return e, ok
}

// TagCounts pages through tag names in ascending order.
func (ix *Index) TagCounts(skip, take int) []TagCount {
	if skip < 0 || skip >= len(ix.names) || take <= 0 {
		return []TagCount{}
	}
	names := ix.names[skip:min(skip+take, len(ix.names))]
	out := make([]TagCount, len(names))
	for i, name := range names {
		out[i] = TagCount{Tag: name, Count: ix.tags[name].Count()}
	}
	return out
}

// ExclusionEntries resolves exclusion tag names to entries. Names that are
// not in the index exclude nothing and are skipped, as are repeats.
func (ix *Index) ExclusionEntries(tags []string) []*TagEntry {
	if len(tags) == 0 {
		return nil
	}
	out := make([]*TagEntry, 0, len(tags))
	for _, tag := range tags {
		e, ok := ix.entry(tag)
		if !ok || slices.Contains(out, e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ExcludedPositions returns every position carrying at least one of the
// given tags.
func ExcludedPositions(entries []*TagEntry) *roaring.Bitmap {
	switch len(entries) {
	case 0:
		return roaring.New()
	case 1:
		return entries[0].Members.Clone()
	}
	members := make([]*roaring.Bitmap, len(entries))
	for i, e := range entries {
		members[i] = e.Members
	}
	return roaring.FastOr(members...)
}

// ExclusionBitmap ORs the rank-space bitmaps of entries for field. It
// returns nil when entries is empty.
func ExclusionBitmap(field document.SortField, entries []*TagEntry) (*bitmap.Bitmap, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	mask := entries[0].Bitmaps[field].Clone()
	for _, e := range entries[1:] {
		if err := mask.Or(e.Bitmaps[field]); err != nil {
			return nil, fmt.Errorf("exclusion mask for %q: %w", e.Name, err)
		}
	}
	return mask, nil
}

// Stats summarises the index for logs, readiness and the indexer tool.
func (ix *Index) Stats() Stats {
	s := Stats{
		Tags:        len(ix.names),
		Documents:   ix.store.Len(),
		MaxTagCount: ix.maxCount,
	}
	for _, e := range ix.entries() {
		for f := range document.NumSortFields {
			s.PostingsEntries += len(e.Postings[f])
			blocks, literals := e.Bitmaps[f].Blocks()
			s.BitmapBlocks += blocks
			s.LiteralWords += literals
		}
	}
	return s
}

// Fingerprint identifies the indexed corpus: document IDs in store order and
// every tag's membership. Two builds of the same corpus agree; page caches
// mix it into their keys.
func (ix *Index) Fingerprint() string {
	h := xxhash.New()
	var buf [8]byte
	for i := range ix.store.Len() {
		binary.LittleEndian.PutUint64(buf[:], uint64(ix.store.At(document.Position(i)).ID))
		h.Write(buf[:])
	}
	for _, name := range ix.names {
		h.WriteString(name)
		for _, pos := range ix.tags[name].Postings[0] {
			binary.LittleEndian.PutUint32(buf[:4], uint32(pos))
			h.Write(buf[:4])
		}
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// entries returns every tag entry followed by the universe.
func (ix *Index) entries() []*TagEntry {
	out := make([]*TagEntry, 0, len(ix.names)+1)
	for _, name := range ix.names {
		out = append(out, ix.tags[name])
	}
	return append(out, ix.universe)
}
