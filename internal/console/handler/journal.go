package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/audit"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

type JournalHandler struct {
	reader audit.Reader
	logger *zap.Logger
}

func NewJournalHandler(reader audit.Reader, logger *zap.Logger) *JournalHandler {
	return &JournalHandler{reader: reader, logger: logger}
}

// Recent — GET /v1/journal?limit=N
func (h *JournalHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxJournalLimit)
	}

	events, err := h.reader.RecentEvents(r.Context(), limit)
	if err != nil {
		h.logger.Error("read journal", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
