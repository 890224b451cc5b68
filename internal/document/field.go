package document

import (
	"cmp"
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/errors"
)

// SortField selects both the attribute a postings list is ordered by and the
// comparator used to order it.
type SortField int

const (
	CreationDate SortField = iota
	LastActivityDate
	Score
	ViewCount
	AnswerCount
)

// NumSortFields is the number of SortField values; postings and bitmaps are
// kept in fixed-size arrays indexed by field.
const NumSortFields = 5

// SortFields lists every field in declaration order.
var SortFields = [NumSortFields]SortField{CreationDate, LastActivityDate, Score, ViewCount, AnswerCount}

var fieldNames = [NumSortFields]string{"creationDate", "lastActivityDate", "score", "viewCount", "answerCount"}

func (f SortField) String() string {
	if f.Valid() {
		return fieldNames[f]
	}
	return fmt.Sprintf("SortField(%d)", int(f))
}

func (f SortField) Valid() bool {
	return f >= 0 && int(f) < NumSortFields
}

// ParseSortField accepts the field names case-insensitively, with or without
// the camel-case hump (creationdate, creation_date and CreationDate all work).
func ParseSortField(s string) (SortField, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for i, name := range fieldNames {
		if strings.ToLower(name) == key {
			return SortField(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", apperrors.ErrInvalidSortField, s)
}

// value extracts the field's value as an int64. ok is false when the value is
// absent.
func (f SortField) value(d *Document) (v int64, ok bool) {
	switch f {
	case CreationDate:
		if d.CreationDate.IsZero() {
			return 0, false
		}
		return d.CreationDate.UnixNano(), true
	case LastActivityDate:
		if d.LastActivityDate.IsZero() {
			return 0, false
		}
		return d.LastActivityDate.UnixNano(), true
	case Score:
		return optional(d.Score)
	case ViewCount:
		return optional(d.ViewCount)
	case AnswerCount:
		return optional(d.AnswerCount)
	}
	return 0, false
}

func optional(p *int32) (int64, bool) {
	if p == nil {
		return 0, false
	}
	return int64(*p), true
}

// Compare orders a before b (negative result) when a's field value is
// greater, when only b's value is absent, or, on equal or both-absent values,
// when a's ID is smaller. Documents with distinct IDs never compare equal, so
// the order is total.
func (f SortField) Compare(a, b *Document) int {
	av, aok := f.value(a)
	bv, bok := f.value(b)
	switch {
	case aok && bok:
		if c := cmp.Compare(bv, av); c != 0 {
			return c
		}
	case aok:
		return -1
	case bok:
		return 1
	}
	return cmp.Compare(a.ID, b.ID)
}
