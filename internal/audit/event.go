package audit

import (
	"encoding/json"
	"time"
)

// Kind — что именно записано в журнал.
type Kind string

const (
	KindVerdict    Kind = "verdict"     // решение сканера по ссылке
	KindAlert      Kind = "alert"       // тревога от агента
	KindConfigPush Kind = "config_push" // отправка порогов агенту
)

type Event struct {
	ID      string `json:"id"`       // UUID события
	TraceID string `json:"trace_id"` // scan_id страницы или trace_id запроса
	Kind    Kind   `json:"kind"`

	Subject string          `json:"subject"`           // URL ссылки, адрес агента
	Verdict string          `json:"verdict,omitempty"` // SAFE, MALICIOUS, INSECURE, PENDING
	Status  string          `json:"status"`            // ENFORCED, ALLOWED, FAILED_OPEN, DELIVERED, FAILED
	Payload json.RawMessage `json:"payload,omitempty"` // сырые данные (payload тревоги)
	Error   string          `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
