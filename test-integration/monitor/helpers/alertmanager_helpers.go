package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// ReceivedAlert is an alert as posted to the Alertmanager v2 API
type ReceivedAlert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    string            `json:"startsAt"`
}

// Alertmanager records every alert posted to it
type Alertmanager struct {
	server *httptest.Server

	mu     sync.Mutex
	alerts []ReceivedAlert
}

// NewAlertmanager starts a fake Alertmanager. Call Close when done.
func NewAlertmanager() *Alertmanager {
	am := &Alertmanager{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"versionInfo":{"version":"0.27.0"}}`))
	})
	mux.HandleFunc("POST /api/v2/alerts", func(w http.ResponseWriter, r *http.Request) {
		var alerts []ReceivedAlert
		if err := json.NewDecoder(r.Body).Decode(&alerts); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		am.mu.Lock()
		am.alerts = append(am.alerts, alerts...)
		am.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	am.server = httptest.NewServer(mux)
	return am
}

// URL returns the base URL of the fake
func (am *Alertmanager) URL() string {
	return am.server.URL
}

// Close shuts the fake down
func (am *Alertmanager) Close() {
	am.server.Close()
}

// AlertsWithLabel returns the received alerts whose label key equals value
func (am *Alertmanager) AlertsWithLabel(key, value string) []ReceivedAlert {
	am.mu.Lock()
	defer am.mu.Unlock()
	var out []ReceivedAlert
	for _, a := range am.alerts {
		if a.Labels[key] == value {
			out = append(out, a)
		}
	}
	return out
}

// Reset forgets the alerts received so far
func (am *Alertmanager) Reset() {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.alerts = nil
}
