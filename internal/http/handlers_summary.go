package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"wydatki/internal/core"
	"wydatki/internal/log"
	"wydatki/internal/summary"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, ownerID string) {
	sum, err := s.deps.Summary.Current(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(sum).Write(w)
}

// streamEvent is the data of one "expenses" event. Error is set when the
// refresh behind this event failed; Expenses then repeats the last good set.
type streamEvent struct {
	Expenses []core.ExpenseRecord `json:"expenses"`
	Summary  *summary.Summary     `json:"summary,omitempty"`
	At       time.Time            `json:"at"`
	Error    *errorBody           `json:"error,omitempty"`
}

// handleStream holds a live subscription for the owner and emits an
// "expenses" event per delivery until the client goes away. The stream ends
// after a final error event when the change feed breaks.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, ownerID string) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, fmt.Errorf("streaming unsupported by response writer"))
		return
	}

	sub, err := s.deps.Records.Subscribe(ctx, ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Unsubscribe()

	s.activeStreams.Add(1)
	defer s.activeStreams.Add(-1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.InfoContext(ctx, "Expense stream opened", log.FieldOwnerID, ownerID)
	defer logger.InfoContext(ctx, "Expense stream closed", log.FieldOwnerID, ownerID)

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snap, ok := <-sub.Updates():
			if !ok {
				return
			}
			ev := streamEvent{Expenses: snap.Records, At: snap.At}
			if snap.Err != nil {
				_, code := errorStatus(snap.Err)
				ev.Error = &errorBody{Error: snap.Err.Error(), Code: code}
			}
			if sum, err := s.deps.Summary.ForSnapshot(ctx, ownerID, snap); err != nil {
				logger.WarnContext(ctx, "Failed to summarise stream delivery", log.FieldOwnerID, ownerID, log.FieldError, err)
				if ev.Error == nil {
					_, code := errorStatus(err)
					ev.Error = &errorBody{Error: err.Error(), Code: code}
				}
			} else {
				ev.Summary = &sum
			}

			seq++
			if err := writeEvent(w, seq, "expenses", ev); err != nil {
				logger.DebugContext(ctx, "Expense stream write failed", log.FieldError, err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, id int, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, name, data)
	return err
}
