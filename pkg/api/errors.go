package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

// Error codes returned in the "error" field of error responses.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeBadRequest      = "BAD_REQUEST"
	CodeNotFound        = "NOT_FOUND"
	CodeAlreadyVerified = "ALREADY_VERIFIED"
	CodeImmutableRecord = "IMMUTABLE_RECORD"
	CodeConflict        = "CONFLICT"
	CodeForbidden       = "FORBIDDEN"
	CodeInternal        = "INTERNAL"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Fields  []parcel.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeServiceError maps a registry error to its HTTP response. Unknown
// errors are logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *parcel.ValidationError
	var terr *parcel.TransitionError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   CodeValidation,
			Message: "One or more fields are invalid",
			Fields:  verr.Fields,
		})
	case errors.Is(err, parcel.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Parcel not found")
	case errors.Is(err, parcel.ErrAlreadyVerified):
		writeError(w, http.StatusBadRequest, CodeAlreadyVerified, "Parcel is already verified and immutable")
	case errors.Is(err, parcel.ErrImmutableRecord):
		writeError(w, http.StatusForbidden, CodeImmutableRecord, "Verified parcels cannot be edited or deleted")
	case errors.Is(err, parcel.ErrBadRequest):
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Provide a Land ID or SHA-256 hash")
	case errors.Is(err, parcel.ErrConflict):
		writeError(w, http.StatusConflict, CodeConflict, "Parcel was modified concurrently, retry the request")
	case errors.As(err, &terr):
		writeError(w, http.StatusBadRequest, terr.Code, terr.Message)
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}
