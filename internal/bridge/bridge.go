// Package bridge передает пороги детектора агенту и читает его статус
// по запросу UI. Повторов нет: политику повторов выбирает вызывающий.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/audit"
	"github.com/xela07ax/crisisguard-client/internal/connectors"
	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/notify"
)

const (
	TitleConfigApplied = "CrisisGuard: settings saved"
	TitleConfigFailed  = "CrisisGuard: settings not saved"
	TitleUnreachable   = "CrisisGuard: agent unreachable"
)

// AgentAPI — REST-сторона агента.
type AgentAPI interface {
	SetRates(ctx context.Context, rates domain.RateConfig) (*domain.ConfigAck, error)
	Status(ctx context.Context) (*domain.AgentStatus, error)
}

type Bridge struct {
	agent    AgentAPI
	agentURL string
	notifier notify.Notifier
	journal  audit.Recorder
	logger   *zap.Logger
}

func New(agent AgentAPI, agentURL string, notifier notify.Notifier, journal audit.Recorder, logger *zap.Logger) *Bridge {
	if journal == nil {
		journal = audit.Discard{}
	}
	return &Bridge{
		agent:    agent,
		agentURL: agentURL,
		notifier: notifier,
		journal:  journal,
		logger:   logger.Named("bridge"),
	}
}

// PushConfig — один POST /set_rates. Результат всегда сопровождается
// ровно одним уведомлением.
func (b *Bridge) PushConfig(ctx context.Context, rates domain.RateConfig) (*domain.ConfigAck, error) {
	ack, err := b.agent.SetRates(ctx, rates)
	if err != nil {
		b.logger.Error("push config failed", zap.Error(err))
		b.notifyFailure(ctx, err)
		b.record("FAILED", err)
		return nil, err
	}

	b.logger.Info("config pushed", zap.String("status", ack.Status), zap.Int("updated", len(ack.Updated)))
	b.notify(ctx, TitleConfigApplied, "Detection thresholds were applied by the agent.")
	b.record("APPLIED", nil)
	return ack, nil
}

// PullStatus — один GET /status. Уведомляет только о недоступном агенте.
func (b *Bridge) PullStatus(ctx context.Context) (*domain.AgentStatus, error) {
	st, err := b.agent.Status(ctx)
	if err != nil {
		b.logger.Warn("pull status failed", zap.Error(err))
		if errors.Is(err, connectors.ErrAgentUnreachable) {
			b.notify(ctx, TitleUnreachable, b.unreachableText())
		}
		return nil, err
	}
	return st, nil
}

func (b *Bridge) notifyFailure(ctx context.Context, err error) {
	var se *connectors.StatusError
	switch {
	case errors.Is(err, connectors.ErrAgentUnreachable):
		b.notify(ctx, TitleUnreachable, b.unreachableText())
	case errors.As(err, &se):
		b.notify(ctx, TitleConfigFailed, fmt.Sprintf("Agent responded with status %d: %s", se.Code, se.Body))
	default:
		b.notify(ctx, TitleConfigFailed, err.Error())
	}
}

func (b *Bridge) unreachableText() string {
	return fmt.Sprintf("Could not reach the CrisisGuard agent at %s. Verify the agent is running.", b.agentURL)
}

func (b *Bridge) notify(ctx context.Context, title, body string) {
	if _, err := b.notifier.Notify(ctx, title, body); err != nil {
		b.logger.Warn("notification failed", zap.String("title", title), zap.Error(err))
	}
}

func (b *Bridge) record(status string, err error) {
	ev := audit.Event{Kind: audit.KindConfigPush, Subject: b.agentURL, Status: status}
	if err != nil {
		ev.Error = err.Error()
	}
	b.journal.Record(ev)
}
