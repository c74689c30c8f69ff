package domain

// AgentStatus — ответ агента на GET /status.
type AgentStatus struct {
	CPUUsage   float64            `json:"cpu_usage"`
	DiskIOMB   float64            `json:"disk_io_mb"`
	Confidence float64            `json:"confidence"` // 0..1
	Alert      AlertState         `json:"alert"`
	Detectors  map[string]float64 `json:"detectors,omitempty"` // Частные оценки детекторов, 0..1

	// Текущие пороги агента (есть у агента, в UI только для отображения)
	RuntimeConfig map[string]interface{} `json:"runtime_config,omitempty"`
}

type AlertState struct {
	Active  bool   `json:"active"`
	Message string `json:"message"`
}
