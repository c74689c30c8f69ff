package domain

// RateConfig — пороги детектора, которые настраивает пользователь.
// Клиент только перевозит объект к агенту, не кэширует, не меняет и не
// проверяет его: допустимость значений решает агент.
// JSON-ключи в верхнем регистре: так их ждет /set_rates агента.
type RateConfig struct {
	FilesModifiedThreshold float64 `json:"FILES_MODIFIED_THRESHOLD" mapstructure:"files_modified_threshold"`
	TimeWindowSeconds      float64 `json:"TIME_WINDOW_SECONDS" mapstructure:"time_window_seconds"`
	BytesWrittenThreshold  float64 `json:"BYTES_WRITTEN_THRESHOLD" mapstructure:"bytes_written_threshold"`
	RenamesThreshold       float64 `json:"RENAMES_THRESHOLD" mapstructure:"renames_threshold"`
	EntropyThreshold       float64 `json:"ENTROPY_THRESHOLD" mapstructure:"entropy_threshold"`
}

// ConfigAck — подтверждение агента на /set_rates.
type ConfigAck struct {
	Status  string                 `json:"status"`
	Updated map[string]interface{} `json:"updated"`
}
