package httpx

import (
	"net/http"
	"time"
)

type HealthStatus struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// Health answers liveness probes. It is public on every service.
func Health(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, http.StatusOK, HealthStatus{Status: "ok", Service: service, Timestamp: time.Now().UTC()})
	}
}
