package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Alert — событие тревоги, полученное по каналу от агента.
// Создается один раз на кадр типа "alert" и больше не меняется.
type Alert struct {
	Confidence *float64        `json:"confidence"` // nil — агент не прислал число
	Message    string          `json:"message"`
	RawPayload json.RawMessage `json:"payload"` // Payload как пришел, байт в байт
	ReceivedAt time.Time       `json:"received_at"`
}

// AlertStore — долговременный слот "последняя тревога" (last-write-wins, без истории).
type AlertStore interface {
	SaveLastAlert(ctx context.Context, alert Alert) error
	// LastAlert возвращает nil, nil, если тревог еще не было
	LastAlert(ctx context.Context) (*Alert, error)
}

// NewAlert собирает Alert из payload. confidence учитывается только числом,
// все остальное (строка, null, отсутствие) дает "неизвестно".
func NewAlert(payload json.RawMessage, receivedAt time.Time) Alert {
	a := Alert{RawPayload: payload, ReceivedAt: receivedAt}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return a
	}
	if raw, ok := fields["confidence"]; ok && string(raw) != "null" {
		var c float64
		if err := json.Unmarshal(raw, &c); err == nil {
			a.Confidence = &c
		}
	}
	if raw, ok := fields["message"]; ok {
		_ = json.Unmarshal(raw, &a.Message)
	}
	return a
}
