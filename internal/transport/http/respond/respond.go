// Package respond writes JSON responses shared by handlers and middleware.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/emanuelef/ytstream-api/internal/domain"
)

// JSON writes data with the given status.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// Error writes an {error, code} body.
func Error(w http.ResponseWriter, status int, message string, code domain.ErrorKind) {
	JSON(w, status, &domain.ErrorResponse{
		Error: message,
		Code:  string(code),
	})
}

// DomainError maps err to its status and message. Unclassified errors become a generic
// 500 so internal details never reach clients.
func DomainError(w http.ResponseWriter, err error) {
	de := domain.AsError(err)
	Error(w, de.Status(), de.Message, de.Kind)
}
