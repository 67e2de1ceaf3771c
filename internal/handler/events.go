package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/mmeshcher/goalsaver/internal/model"
	"github.com/mmeshcher/goalsaver/internal/service"
)

func queryInt(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

// ListEvents возвращает страницу журнала событий после ?after= по возрастанию идентификатора.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after, err := queryInt(r, "after")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.service.ListEvents(r.Context(), after, int(limit))
	if err != nil {
		h.writeError(w, "list events error", err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	h.writeJSON(w, http.StatusOK, events)
}

// StreamEvents отдаёт журнал событий по websocket: сначала накопленные после ?after=,
// затем новые по мере появления. Клиент только читает.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	after, err := queryInt(r, "after")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept error", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	err = h.streamEvents(ctx, conn, after)

	switch {
	case err == nil, errors.Is(err, context.Canceled), websocket.CloseStatus(err) != -1:
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		h.logger.Warn("event stream error", zap.Error(err), zap.Int64("after", after))
		conn.Close(websocket.StatusInternalError, "stream failed")
	}
}

func (h *Handler) streamEvents(ctx context.Context, conn *websocket.Conn, after int64) error {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		events, err := h.service.ListEvents(ctx, after, service.MaxEventsLimit)
		if err != nil {
			return err
		}
		for _, e := range events {
			if err := wsjson.Write(ctx, conn, e); err != nil {
				return err
			}
			after = e.ID
		}
		if len(events) == service.MaxEventsLimit {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
