// Package scanner проверяет ссылки страницы по очереди и выключает
// опасные. Недоступный сервис классификации ссылку не выключает.
package scanner

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/audit"
	"github.com/xela07ax/crisisguard-client/internal/dom"
	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/engine"
	"github.com/xela07ax/crisisguard-client/internal/tooltip"
)

const DefaultFlash = 3 * time.Second

// LinkRecord — ссылка на момент проверки. Element живет не дольше страницы.
type LinkRecord struct {
	URL     string
	Element *dom.Element
	Verdict domain.Verdict
}

type scanIDKey struct{}

// WithScanID задает id проверки; им помечаются записи журнала.
func WithScanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scanIDKey{}, id)
}

func ScanIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(scanIDKey{}).(string)
	return id, ok && id != ""
}

type Options struct {
	FlashDuration time.Duration
	Tooltip       tooltip.Options
}

type Scanner struct {
	classifier engine.Classifier
	journal    audit.Recorder
	metrics    *engine.Metrics
	logger     *zap.Logger
	opts       Options
}

func New(classifier engine.Classifier, journal audit.Recorder, metrics *engine.Metrics, logger *zap.Logger, opts Options) *Scanner {
	if opts.FlashDuration <= 0 {
		opts.FlashDuration = DefaultFlash
	}
	if journal == nil {
		journal = audit.Discard{}
	}
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	return &Scanner{
		classifier: classifier,
		journal:    journal,
		metrics:    metrics,
		logger:     logger.Named("scanner"),
		opts:       opts,
	}
}

// Scan проверяет ссылки в порядке документа, строго по одной: следующий
// запрос уходит только после ответа на предыдущий. Ошибку возвращает только
// отмена ctx; непроверенные ссылки остаются PENDING.
func (s *Scanner) Scan(ctx context.Context, doc *dom.Document) ([]LinkRecord, error) {
	anchors := doc.Anchors()
	if len(anchors) == 0 {
		return nil, nil
	}

	scanID, ok := ScanIDFrom(ctx)
	if !ok {
		scanID = uuid.New().String()
	}
	log := s.logger.With(zap.String("scan_id", scanID), zap.String("page", doc.BaseURL()))
	enforcer := NewEnforcer(tooltip.For(doc, s.opts.Tooltip), s.opts.FlashDuration)

	records := make([]LinkRecord, len(anchors))
	for i, a := range anchors {
		records[i] = LinkRecord{URL: a.Href(), Element: a, Verdict: domain.VerdictPending}
	}

	for i := range records {
		if err := ctx.Err(); err != nil {
			log.Info("scan aborted", zap.Int("checked", i), zap.Int("total", len(records)))
			return records, err
		}
		rec := &records[i]
		status, errText := s.check(ctx, log, enforcer, rec)

		s.metrics.VerdictsTotal.WithLabelValues(string(rec.Verdict)).Inc()
		s.journal.Record(audit.Event{
			TraceID: scanID,
			Kind:    audit.KindVerdict,
			Subject: rec.URL,
			Verdict: string(rec.Verdict),
			Status:  status,
			Error:   errText,
		})
	}

	log.Debug("scan finished", zap.Int("links", len(records)))
	return records, nil
}

func (s *Scanner) check(ctx context.Context, log *zap.Logger, enforcer *Enforcer, rec *LinkRecord) (status, errText string) {
	u, err := url.Parse(rec.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		// mailto:, javascript: и якоря не сетевые ссылки
		return "SKIPPED", ""
	}

	if u.Scheme == "http" {
		rec.Verdict = domain.VerdictInsecure
		enforcer.Disable(rec.Element, rec.Verdict)
		enforcer.FlashInsecure(rec.Element)
		log.Info("insecure link disabled", zap.String("url", rec.URL))
		return "ENFORCED", ""
	}

	verdict, err := s.classifier.Classify(ctx, rec.URL)
	if err != nil {
		// fail-open: без вердикта ссылка остается рабочей
		log.Warn("link classification failed", zap.String("url", rec.URL), zap.Error(err))
		return "FAILED_OPEN", err.Error()
	}
	if verdict == domain.MaliciousSentinel {
		rec.Verdict = domain.VerdictMalicious
		enforcer.Disable(rec.Element, rec.Verdict)
		log.Warn("malicious link disabled", zap.String("url", rec.URL))
		return "ENFORCED", ""
	}
	rec.Verdict = domain.VerdictSafe
	return "ALLOWED", ""
}
