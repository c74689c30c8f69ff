package redisstore

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/audit"
	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/infra"
)

// Тесты ходят в настоящий Redis: CRISISGUARD_TEST_REDIS=localhost:6379
func testStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("CRISISGUARD_TEST_REDIS")
	if addr == "" {
		t.Skip("CRISISGUARD_TEST_REDIS not set")
	}
	rdb := NewClient(infra.RedisConfig{Addr: addr, DB: 15})
	s, err := NewStore(context.Background(), rdb)
	require.NoError(t, err)
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLastAlertAndFanOut(t *testing.T) {
	s := testStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := s.LastAlert(ctx)
	require.NoError(t, err)
	assert.Nil(t, a)

	var (
		mu       sync.Mutex
		received []string
	)
	ready := make(chan struct{})
	go ListenResilient(ctx, s.Client(), zap.NewNop(), infra.RedisChanAlerts,
		func(context.Context) error { close(ready); return nil },
		func(p string) {
			mu.Lock()
			received = append(received, p)
			mu.Unlock()
		})
	<-ready

	payload := json.RawMessage(`{"confidence":0.87,"message":"test"}`)
	require.NoError(t, s.SaveLastAlert(ctx, domain.NewAlert(payload, time.Unix(0, 42))))

	a, err = s.LastAlert(ctx)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, string(payload), string(a.RawPayload))
	assert.EqualValues(t, 42, a.ReceivedAt.UnixNano())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1 && received[0] == string(payload)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJournalList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteBatch(ctx, []audit.Event{
		{ID: "1", Kind: audit.KindVerdict, Verdict: "SAFE"},
		{ID: "2", Kind: audit.KindVerdict, Verdict: "MALICIOUS"},
	}))
	got, err := s.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
}
