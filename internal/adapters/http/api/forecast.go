package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/rivalry/internal/adapters/mq/progress"
	service "github.com/okian/rivalry/internal/app"
	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/pkg/logger"
	"github.com/okian/rivalry/pkg/metrics"
)

// ForecastDependencies defines the interface for forecast computation.
type ForecastDependencies interface {
	Predict(ctx context.Context, req service.Request) (model.ForecastResult, error)
}

// ForecastHandler streams forecast progress as server-sent events.
type ForecastHandler struct {
	deps           ForecastDependencies
	keepalive      time.Duration
	computeTimeout time.Duration
	bufferSize     int
	log            logger.Logger
}

// NewForecastHandler creates a new forecast handler.
func NewForecastHandler(deps ForecastDependencies, keepalive, computeTimeout time.Duration, bufferSize int, log logger.Logger) *ForecastHandler {
	return &ForecastHandler{
		deps:           deps,
		keepalive:      keepalive,
		computeTimeout: computeTimeout,
		bufferSize:     bufferSize,
		log:            log,
	}
}

// HandleForecast handles GET /forecast/{participant_id}[?refresh=true].
// Each event is one "data: <json>" line followed by a blank line; quiet
// periods carry ": keep-alive" comments. The stream ends after the record
// with "complete": true.
func (h *ForecastHandler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_forecast"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id, ok := pathID(r, "/forecast/")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	refresh := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		refresh = b
	}

	ch := progress.New(progress.WithBufferSize(h.bufferSize))
	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Stream-ID", ch.ID())
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	metrics.UpdateActiveStreams(1)
	defer metrics.UpdateActiveStreams(-1)

	// The computation does not stop when the client leaves, so its result
	// still reaches the cache for the next request.
	computeCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.computeTimeout)
	go func() {
		defer cancel()
		if _, err := h.deps.Predict(computeCtx, service.Request{
			ParticipantID: id,
			ForceRefresh:  refresh,
			Progress:      ch,
		}); err != nil {
			h.log.Warn(computeCtx, "forecast failed",
				logger.String("participant", id),
				logger.String("stream", ch.ID()),
				logger.Error(err))
		}
	}()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	events := ch.Events()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, e); err != nil {
				return
			}
			_ = rc.Flush()
			if e.Complete {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, e progress.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
