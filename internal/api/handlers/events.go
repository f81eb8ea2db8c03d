package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/domain"
	"github.com/thinhdnn/ai-test-management/pkg/httputil"
)

// EventSource streams script events of one test case as JSON payloads
type EventSource interface {
	SubscribeScriptEvents(ctx context.Context, testCaseID uuid.UUID) (<-chan string, func() error, error)
}

// EventsHandler streams script rewrites to clients as server-sent events
type EventsHandler struct {
	source    EventSource
	logger    *zap.Logger
	keepalive time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(source EventSource, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{source: source, logger: logger, keepalive: 15 * time.Second}
}

// Stream handles GET /api/v1/test-cases/{id}/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.ErrorFromDomain(w, domain.ErrInternal("Streaming unsupported"))
		return
	}

	events, closeSub, err := h.source.SubscribeScriptEvents(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to subscribe to script events", zap.Error(err))
		httputil.ErrorFromDomain(w, domain.ErrExternalAPI("redis", err))
		return
	}
	defer closeSub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case payload, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: script\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
