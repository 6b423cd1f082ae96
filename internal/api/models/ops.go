package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus reports the upstream provider and the snapshot state.
type SystemStatus struct {
	Status   HealthStatus   `json:"status"`
	Time     Timestamp      `json:"time"`
	Provider ProviderStatus `json:"provider"`
}

// ProviderStatus represents the status of the upstream pollen provider.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState,omitempty"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	Readings      int          `json:"readings"`
	Stale         bool         `json:"stale"`
}
