package domain

// ChannelState — состояние управляющего канала к локальному агенту.
type ChannelState int

const (
	ChannelClosed           ChannelState = iota // Исходное состояние процесса
	ChannelConnecting                           // Идет попытка подключения
	ChannelOpen                                 // Канал открыт, идут keepalive
	ChannelReconnectPending                     // Ждем таймер переподключения
)

func (s ChannelState) String() string {
	switch s {
	case ChannelClosed:
		return "CLOSED"
	case ChannelConnecting:
		return "CONNECTING"
	case ChannelOpen:
		return "OPEN"
	case ChannelReconnectPending:
		return "RECONNECT_PENDING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText позволяет отдавать состояние строкой в JSON (console API).
func (s ChannelState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ChannelSnapshot — срез состояния менеджера канала для внешних читателей.
type ChannelSnapshot struct {
	State            ChannelState `json:"state"`
	Backoff          int          `json:"backoff"`
	ReconnectPending bool         `json:"reconnect_pending"`
}
