package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/connectors"
	"github.com/xela07ax/crisisguard-client/internal/domain"
)

// ConfigBridge — то, что handler берет у bridge.Bridge.
type ConfigBridge interface {
	PushConfig(ctx context.Context, rates domain.RateConfig) (*domain.ConfigAck, error)
	PullStatus(ctx context.Context) (*domain.AgentStatus, error)
}

type AgentHandler struct {
	bridge ConfigBridge
	logger *zap.Logger
}

func NewAgentHandler(b ConfigBridge, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{bridge: b, logger: logger}
}

// Status — GET /v1/agent/status
func (h *AgentHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.bridge.PullStatus(r.Context())
	if err != nil {
		h.writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PushConfig — POST /v1/agent/config, тело — RateConfig с ключами агента.
func (h *AgentHandler) PushConfig(w http.ResponseWriter, r *http.Request) {
	var rates domain.RateConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rates); err != nil {
		writeError(w, http.StatusBadRequest, "bad request: "+err.Error())
		return
	}

	ack, err := h.bridge.PushConfig(r.Context(), rates)
	if err != nil {
		h.writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (h *AgentHandler) writeAgentError(w http.ResponseWriter, err error) {
	var se *connectors.StatusError
	switch {
	case errors.Is(err, connectors.ErrAgentUnreachable):
		writeError(w, http.StatusServiceUnavailable, "agent unreachable: verify the agent is running")
	case errors.As(err, &se):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "agent rejected request", Status: se.Code, Body: se.Body})
	default:
		h.logger.Error("agent request failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
