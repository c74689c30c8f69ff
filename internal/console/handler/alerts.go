package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/domain"
)

type AlertHandler struct {
	store  domain.AlertStore
	logger *zap.Logger
}

func NewAlertHandler(store domain.AlertStore, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{store: store, logger: logger}
}

// Last — GET /v1/alerts/last. 404, если тревог еще не было.
func (h *AlertHandler) Last(w http.ResponseWriter, r *http.Request) {
	alert, err := h.store.LastAlert(r.Context())
	if err != nil {
		h.logger.Error("load last alert", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if alert == nil {
		writeError(w, http.StatusNotFound, "no alerts yet")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
