package handler

import (
	"encoding/json"
	"net/http"
)

type HealthHandler struct {
	calls *callRegistry
}

// Root reports that the service is up
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Twilio Media Stream Server is running!"})
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"active_calls": h.calls.Count(),
	})
}
