package server

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Index     string `json:"index"`
	Timestamp string `json:"timestamp"`
}

// NewHealthHandler reports whether the vector index is reachable and what it holds.
func NewHealthHandler(bot Chatbot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		st, err := bot.Status(ctx)

		response := HealthResponse{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err != nil {
			response.Status = "unhealthy"
			response.Index = "disconnected"
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}

		response.Status = "healthy"
		response.Index = st.State.String()
		writeJSON(w, http.StatusOK, response)
	}
}
