package response

import (
	"encoding/json"
	"net/http"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// ErrorBody is the shape of every error response
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON sends data as a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends an error response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// OK sends a 200 OK response with data
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Success sends {"success": true}
func Success(w http.ResponseWriter) {
	OK(w, map[string]bool{"success": true})
}

// BadRequest sends a 400 Bad Request response
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, message)
}

// NotFound sends a 404 Not Found response
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

// TooManyRequests sends a 429 response
func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, http.StatusTooManyRequests, message)
}

// InternalError sends a 500 response with a generic message
func InternalError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "Internal server error")
}

// FromError writes err with the status of its kind. Unclassified errors are
// logged and answered with a generic 500.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.KindOf(err) {
	case domain.KindUnauthorized:
		Unauthorized(w, err.Error())
	case domain.KindValidation:
		BadRequest(w, err.Error())
	case domain.KindNotFound:
		NotFound(w, err.Error())
	case domain.KindRateLimited:
		TooManyRequests(w, err.Error())
	default:
		log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		InternalError(w)
	}
}
