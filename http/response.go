package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/seabucks/dealer"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable code for programmatic handling.
type ErrorDetail struct {
	Code    dealer.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details map[string]any   `json:"details,omitempty"`
}

// StatusFor maps an error to its HTTP status: 400 for input errors, 503 when the dealer
// cannot sign, 500 otherwise.
func StatusFor(err error) int {
	switch {
	case dealer.IsInputError(err):
		return http.StatusBadRequest
	case dealer.CodeOf(err) == dealer.ErrCodeSigningUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) ErrorResponse {
	code := dealer.CodeOf(err)
	detail := ErrorDetail{Code: code}

	var de *dealer.DealerError
	if errors.As(err, &de) {
		detail.Message = de.Message
		detail.Details = de.Details
	}
	if detail.Message == "" {
		switch {
		case dealer.IsInputError(err):
			detail.Message = err.Error()
		case code == dealer.ErrCodeSigningUnavailable:
			detail.Message = "dealer key not configured"
		default:
			// Internal failures are logged, not echoed.
			detail.Message = "internal error"
		}
	}
	return ErrorResponse{Error: detail}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorBody(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding failure can only truncate the body.
	_ = json.NewEncoder(w).Encode(v)
}
