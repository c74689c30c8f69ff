package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/domain"
)

const (
	pathSetRates = "/set_rates"
	pathStatus   = "/status"
)

// AgentClient — REST-клиент локального агента детекции.
// Повторов нет: каждая операция делает ровно один запрос.
type AgentClient struct {
	http   *resty.Client
	logger *zap.Logger
}

func NewAgentClient(baseURL string, timeout time.Duration, logger *zap.Logger) *AgentClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &AgentClient{http: c, logger: logger.Named("agent_client")}
}

// SetRates отправляет пороги агенту (POST /set_rates).
func (c *AgentClient) SetRates(ctx context.Context, rates domain.RateConfig) (*domain.ConfigAck, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(rates).
		Post(pathSetRates)
	if err != nil {
		return nil, fmt.Errorf("set rates: %w: %v", ErrAgentUnreachable, err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{Op: "set rates", Code: resp.StatusCode(), Body: resp.String()}
	}

	var ack domain.ConfigAck
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &ack); err != nil {
			// Агент применил пороги, просто ответил не JSON
			c.logger.Warn("set rates: unparseable ack", zap.Error(err))
		}
	}
	if ack.Status == "" {
		ack.Status = http.StatusText(resp.StatusCode())
	}
	return &ack, nil
}

// Status читает текущее состояние агента (GET /status).
func (c *AgentClient) Status(ctx context.Context) (*domain.AgentStatus, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(pathStatus)
	if err != nil {
		return nil, fmt.Errorf("status: %w: %v", ErrAgentUnreachable, err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{Op: "status", Code: resp.StatusCode(), Body: resp.String()}
	}

	var st domain.AgentStatus
	if err := json.Unmarshal(resp.Body(), &st); err != nil {
		return nil, fmt.Errorf("status: decode response: %w", err)
	}
	return &st, nil
}
