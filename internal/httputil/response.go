package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/redmonkez12/authman/internal/logging"
)

// RespondJSON sends a JSON response with the given status code.
// Logs encoding errors to avoid silent failures.
func RespondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.NewLogger(false).Error("failed to encode JSON response", "error", err.Error())
	}
}
