package api

import (
	"net/http"
)

type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// HealthHandler reports the model identifier fixed at startup. It never
// touches the provider, so it answers even while a transcription is running.
type HealthHandler struct {
	model string
}

func NewHealthHandler(model string) *HealthHandler {
	return &HealthHandler{model: model}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Model: h.model})
}
