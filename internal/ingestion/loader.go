package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/postgres"
)

const maxLineBytes = 4 << 20

// Source produces the whole corpus.
type Source interface {
	Load(ctx context.Context) ([]document.Document, error)
}

// Open picks the source named by cfg. pg is only needed for the postgres
// source.
func Open(cfg config.CorpusConfig, pg *postgres.Client) (Source, error) {
	switch cfg.Source {
	case "file":
		return &FileSource{Path: cfg.Path}, nil
	case "postgres":
		if pg == nil {
			return nil, fmt.Errorf("%w: postgres source without a postgres client", apperrors.ErrInvalidInput)
		}
		return NewPostgresSource(pg, cfg.Query), nil
	}
	return nil, fmt.Errorf("%w: unknown corpus source %q", apperrors.ErrInvalidInput, cfg.Source)
}

// LoadStore loads, validates and stores the corpus.
func LoadStore(ctx context.Context, src Source) (*document.Store, error) {
	docs, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateDocuments(docs); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	return document.NewStore(docs), nil
}

// FileSource reads one JSON record per line. Blank lines are skipped.
type FileSource struct {
	Path string
}

func (s *FileSource) Load(ctx context.Context) ([]document.Document, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", s.Path, err)
	}
	defer f.Close()
	docs, err := ReadJSONLines(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", s.Path, err)
	}
	logger.WithComponent("ingestion").Info("corpus loaded", "source", "file", "path", s.Path, "documents", len(docs))
	return docs, nil
}

// ReadJSONLines decodes records from r until EOF.
func ReadJSONLines(ctx context.Context, r io.Reader) ([]document.Document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	var docs []document.Document
	line := 0
	for sc.Scan() {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := sc.Bytes()
		if len(raw) == 0 || isBlank(raw) {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", apperrors.ErrInvalidInput, line, err)
		}
		docs = append(docs, rec.Document())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning line %d: %w", line+1, err)
	}
	return docs, nil
}

func isBlank(b []byte) bool {
	for _, c := range b {
		if c != ' ' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}
