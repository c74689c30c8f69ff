/*
Журнал решений клиента: вердикты сканера, полученные тревоги, отправки
конфигурации. Горячий путь (сканер, чтение канала) только кладет событие в
буфер; запись в хранилище идет пачками из отдельного воркера.

- Load shedding: при переполнении буфера событие сбрасывается в лог.
- Batching: сброс по таймеру или при накоплении batchSize событий.
- Drain: Stop закрывает вход и ждет финального flush.
*/
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/engine"
)

const (
	defaultBufferSize = 10000
	batchSize         = 100
	flushInterval     = 500 * time.Millisecond
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

// Reader отдает последние события журнала, новые первыми.
type Reader interface {
	RecentEvents(ctx context.Context, limit int) ([]Event, error)
}

// Recorder — то, чем пользуются сканер и диспетчер тревог.
type Recorder interface {
	Record(event Event)
}

type Journal struct {
	ch      chan Event
	repo    StorageInterface
	metrics *engine.Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup

	// closed под mu: Record и Stop не должны гоняться за close(ch)
	mu     sync.RWMutex
	closed bool
}

func NewJournal(repo StorageInterface, bufferSize int, metrics *engine.Metrics, logger *zap.Logger) *Journal {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	return &Journal{
		ch:      make(chan Event, bufferSize),
		repo:    repo,
		metrics: metrics,
		logger:  logger.Named("journal"),
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.logger.Info("stopping journal: flushing buffer...")
	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

func (j *Journal) Record(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warn("journal event dropped: journal is stopping", zap.String("id", event.ID))
		return
	}

	select {
	case j.ch <- event:
		j.metrics.JournalBufferFill.Set(float64(len(j.ch)))
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.String("kind", string(event.Kind)),
			zap.String("subject", event.Subject),
			zap.String("trace_id", event.TraceID))
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]Event, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: контекст сервиса при остановке уже отменен
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := j.repo.WriteBatch(ctx, batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		j.metrics.JournalBufferFill.Set(float64(len(j.ch)))
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				// Канал закрыт в Stop: остатки уже вычитаны
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Discard — журнал, который ничего не пишет (guardctl, тесты).
type Discard struct{}

func (Discard) Record(Event) {}
