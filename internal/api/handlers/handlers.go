// Package handlers provides HTTP handlers for the MediTrack API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	infra "github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/postgres"
	"github.com/Arham21-pixel/MediTrack.AI/pkg/idempotency"
)

// EventSink accepts outbox entries for asynchronous delivery. Handlers
// tolerate a nil sink; events are then simply not published.
type EventSink interface {
	Append(ctx context.Context, entry *infra.OutboxEntry) error
}

// Deduper provides exactly-once execution keyed by idempotency key.
// The postgres inbox implements it; a nil deduper runs handlers
// directly.
type Deduper interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error)
}

const dateLayout = "2006-01-02"

func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func jsonResponse(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// parseDateOr parses a YYYY-MM-DD query value, falling back when the
// value is absent or malformed.
func parseDateOr(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	d, err := time.ParseInLocation(dateLayout, value, fallback.Location())
	if err != nil {
		return fallback
	}
	return d
}
