package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/resilience"
)

// PostgresSource runs a SELECT returning id, title, tags (text[]),
// creation_date, last_activity_date, score, view_count, answer_count.
type PostgresSource struct {
	client *postgres.Client
	query  string
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func NewPostgresSource(client *postgres.Client, query string) *PostgresSource {
	return &PostgresSource{
		client: client,
		query:  query,
		retry:  resilience.RetryConfig{MaxAttempts: 4, InitialDelay: 500 * time.Millisecond},
		logger: logger.WithComponent("ingestion"),
	}
}

// Load reads the whole result set in one read-only transaction, retrying the
// transaction as a unit.
func (s *PostgresSource) Load(ctx context.Context) ([]document.Document, error) {
	var docs []document.Document
	err := resilience.Retry(ctx, "load-corpus", s.retry, func() error {
		docs = docs[:0]
		return s.client.InTx(ctx, func(tx *sql.Tx) error {
			rows, err := tx.QueryContext(ctx, s.query)
			if err != nil {
				return fmt.Errorf("querying corpus: %w", err)
			}
			defer rows.Close()
			for rows.Next() {
				doc, err := scanDocument(rows)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}
			return rows.Err()
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("corpus loaded", "source", "postgres", "documents", len(docs))
	return docs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (document.Document, error) {
	var (
		rec                   Record
		title                 sql.NullString
		tags                  []string
		created, lastActivity sql.NullTime
		score, views, answers sql.NullInt32
	)
	if err := row.Scan(&rec.ID, &title, pq.Array(&tags), &created, &lastActivity, &score, &views, &answers); err != nil {
		return document.Document{}, fmt.Errorf("scanning corpus row: %w", err)
	}
	rec.Title = title.String
	rec.Tags = tags
	if created.Valid {
		rec.CreationDate.Time = created.Time.UTC()
	}
	if lastActivity.Valid {
		rec.LastActivityDate.Time = lastActivity.Time.UTC()
	}
	rec.Score = nullInt32(score)
	rec.ViewCount = nullInt32(views)
	rec.AnswerCount = nullInt32(answers)
	return rec.Document(), nil
}

func nullInt32(v sql.NullInt32) *int32 {
	if !v.Valid {
		return nil
	}
	return document.Int32(v.Int32)
}
