package handler

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/domain"
)

type PageScanner interface {
	ScanHTML(ctx context.Context, pageURL string, r io.Reader) (*domain.PageReport, error)
	FetchAndScan(ctx context.Context, pageURL string) (*domain.PageReport, error)
}

type PageHandler struct {
	svc    PageScanner
	logger *zap.Logger
}

func NewPageHandler(svc PageScanner, logger *zap.Logger) *PageHandler {
	return &PageHandler{svc: svc, logger: logger}
}

// Scan — POST /v1/pages/scan?url=<адрес страницы>.
// С телом (text/html) проверяется присланный HTML, без тела страница скачивается.
func (h *PageHandler) Scan(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err != nil || u.Host == "" {
			writeError(w, http.StatusBadRequest, "url must be absolute")
			return
		}
	}

	var (
		report *domain.PageReport
		err    error
	)
	if r.ContentLength != 0 {
		report, err = h.svc.ScanHTML(r.Context(), pageURL, r.Body)
	} else {
		if pageURL == "" {
			writeError(w, http.StatusBadRequest, "url or html body required")
			return
		}
		report, err = h.svc.FetchAndScan(r.Context(), pageURL)
	}
	if err != nil {
		h.logger.Warn("page scan failed", zap.String("url", pageURL), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
