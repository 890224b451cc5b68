package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/logger"
)

// Handler exposes the in-process query statistics over HTTP.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     logger.WithComponent("analytics-handler"),
	}
}

// Stats serves a snapshot of the query statistics. The optional "top"
// parameter sizes the tag rankings, within [1, MaxTopTags].
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top, err := parseTop(r.URL.Query().Get("top"))
	if err != nil {
		h.write(w, apperrors.HTTPStatusCode(err), map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	h.write(w, http.StatusOK, h.aggregator.Snapshot(top))
}

func parseTop(raw string) (int, error) {
	if raw == "" {
		return DefaultTopTags, nil
	}
	top, err := strconv.Atoi(raw)
	if err != nil || top < 1 || top > MaxTopTags {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "top must be an integer in [1,%d], got %q", MaxTopTags, raw)
	}
	return top, nil
}

func (h *Handler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
