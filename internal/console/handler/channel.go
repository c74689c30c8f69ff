package handler

import (
	"net/http"

	"github.com/xela07ax/crisisguard-client/internal/domain"
)

// ChannelSource — менеджер канала (или его заглушка в тестах).
type ChannelSource interface {
	Snapshot() domain.ChannelSnapshot
}

type ChannelHandler struct {
	src ChannelSource
}

func NewChannelHandler(src ChannelSource) *ChannelHandler {
	return &ChannelHandler{src: src}
}

func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.src.Snapshot())
}
