package utils

import (
	"encoding/json"
	"net/http"

	"codesync/internal/models"
)

func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// Error writes the standard {error, message?, detail?} body.
func Error(w http.ResponseWriter, statusCode int, code, message string) {
	JSON(w, statusCode, models.ErrorResponse{Code: code, Message: message})
}
