// Package ingestion loads the question corpus from a JSON-lines file or a
// PostgreSQL query and turns it into documents ready for the store.
package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
)

// Record is one line of the JSON-lines corpus.
type Record struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Tags             []string  `json:"tags"`
	CreationDate     Timestamp `json:"creationDate"`
	LastActivityDate Timestamp `json:"lastActivityDate"`
	Score            *int32    `json:"score"`
	ViewCount        *int32    `json:"viewCount"`
	AnswerCount      *int32    `json:"answerCount"`
}

// Timestamp decodes either an RFC 3339 string or integer Unix seconds. null
// and "" leave it zero, which the document model treats as absent.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	secs, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", data, err)
	}
	t.Time = time.Unix(secs, 0).UTC()
	return nil
}

// Document converts the record, normalising its tags.
func (r *Record) Document() document.Document {
	return document.Document{
		ID:               r.ID,
		Title:            r.Title,
		Tags:             NormalizeTags(r.Tags),
		CreationDate:     r.CreationDate.Time,
		LastActivityDate: r.LastActivityDate.Time,
		Score:            r.Score,
		ViewCount:        r.ViewCount,
		AnswerCount:      r.AnswerCount,
	}
}

// NormalizeTags trims and lower-cases tags and drops repeats, keeping
// first-seen order. Tags that end up empty are kept so validation can
// report them.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
