package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/dom"
	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/scanner"
)

const maxPageSize = 5 << 20

// PageService — проверка страницы целиком: разбор HTML, сканирование
// ссылок, HTML после отключения опасных ссылок.
type PageService struct {
	scanner *scanner.Scanner
	http    *resty.Client
	logger  *zap.Logger
}

func NewPageService(s *scanner.Scanner, fetchTimeout time.Duration, logger *zap.Logger) *PageService {
	c := resty.New().
		SetTimeout(fetchTimeout).
		SetHeader("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8").
		SetHeader("User-Agent", "crisisguard-client/1.0").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &PageService{scanner: s, http: c, logger: logger.Named("page_service")}
}

// ScanHTML проверяет уже загруженную страницу.
func (s *PageService) ScanHTML(ctx context.Context, pageURL string, r io.Reader) (*domain.PageReport, error) {
	doc, err := dom.Parse(io.LimitReader(r, maxPageSize), pageURL)
	if err != nil {
		return nil, err
	}

	scanID := uuid.New().String()
	records, err := s.scanner.Scan(scanner.WithScanID(ctx, scanID), doc)
	if err != nil {
		return nil, fmt.Errorf("scan page: %w", err)
	}

	report := &domain.PageReport{ScanID: scanID, PageURL: pageURL, Links: make([]domain.LinkVerdict, 0, len(records))}
	for _, rec := range records {
		report.Links = append(report.Links, domain.LinkVerdict{URL: rec.URL, Verdict: rec.Verdict})
	}
	if report.HTML, err = doc.HTML(); err != nil {
		return nil, err
	}
	return report, nil
}

// FetchAndScan скачивает страницу и проверяет ее.
func (s *PageService) FetchAndScan(ctx context.Context, pageURL string) (*domain.PageReport, error) {
	resp, err := s.http.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", pageURL, resp.StatusCode())
	}

	// После редиректов ссылки разрешаются от итогового адреса
	finalURL := pageURL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}
	s.logger.Debug("page fetched", zap.String("url", finalURL), zap.Int("bytes", len(resp.Body())))
	return s.ScanHTML(ctx, finalURL, strings.NewReader(resp.String()))
}
