package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"comanda/internal/httpx"
	"comanda/internal/microservices/notifier"
)

type StreamHandler struct {
	hub *notifier.Hub
	lg  *zap.SugaredLogger
}

func NewStreamHandler(hub *notifier.Hub, lg *zap.SugaredLogger) *StreamHandler {
	return &StreamHandler{hub: hub, lg: lg}
}

// Stream is the staff live channel: one SSE connection per terminal, joined
// to exactly one branch. Events published before the terminal connected are
// not replayed.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	branchID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || branchID <= 0 {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_id", "branch id must be an integer")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteProblem(w, http.StatusInternalServerError, "no_stream", "streaming unsupported")
		return
	}

	sub := h.hub.Subscribe(branchID)
	defer h.hub.Unsubscribe(sub)
	h.lg.Infow("terminal_connected", "branch", branchID)
	defer h.lg.Infow("terminal_disconnected", "branch", branchID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			// комментарий-пинг держит соединение живым через прокси
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-sub.C:
			body, err := json.Marshal(ev)
			if err != nil {
				h.lg.Errorw("event_marshal_failed", "branch", branchID, "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", ev.Type, ev.ID, body); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
