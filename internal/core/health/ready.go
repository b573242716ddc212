package health

import (
	"encoding/json"
	"net/http"
)

// ReadinessReporter is ready once the controller has activated a generation.
type ReadinessReporter interface {
	Readiness() (ready bool, state string)
}

func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status string `json:"status"`
			State  string `json:"state,omitempty"`
		}
		ready, state := rr.Readiness()
		out := resp{Status: "not_ready", State: state}
		if ready {
			out.Status = "ready"
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
