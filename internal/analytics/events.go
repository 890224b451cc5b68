// Package analytics records one event per answered query. Events are folded
// into an in-process Aggregator and, when Kafka is configured, published in
// batches through a bounded buffer that drops on overflow.
package analytics

import "time"

type EventType string

const (
	EventQuery   EventType = "query"
	EventBoolean EventType = "boolean"
)

type QueryEvent struct {
	Type       EventType `json:"type"`
	Tag        string    `json:"tag"`
	Tag2       string    `json:"tag2,omitempty"`
	Operator   string    `json:"operator,omitempty"`
	Field      string    `json:"field"`
	Strategy   string    `json:"strategy,omitempty"`
	Skip       int       `json:"skip"`
	PageSize   int       `json:"page_size"`
	Exclusions []string  `json:"exclusions,omitempty"`
	Scanned    int       `json:"scanned"`
	Excluded   int       `json:"excluded"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Error      string    `json:"error,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Key is the partition key: events for the same primary tag stay ordered.
func (e *QueryEvent) Key() string {
	return e.Tag
}
