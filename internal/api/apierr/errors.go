package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/snakesgame/internal/message"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Codes beyond the game codes shared with the message protocol
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeAdminDisabled      = "ADMIN_DISABLED"
	CodeConnectionNotFound = "CONNECTION_NOT_FOUND"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status WriteError would use for err
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, model.ErrConnectionNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeConnectionNotFound, "Connection not found or expired"}}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid username or password"}}
	case errors.Is(err, auth.ErrAdminDisabled):
		return &httpError{http.StatusNotFound, APIError{CodeAdminDisabled, "Admin access is not configured"}}
	}

	// Game failures share their codes and wording with the message protocol
	reply := message.ErrorFor(err)
	return &httpError{statusFor(reply.Code), APIError{string(reply.Code), reply.Message}}
}

func statusFor(code message.Code) int {
	switch code {
	case message.CodeGameNotFound, message.CodePlayerNotFound:
		return http.StatusNotFound
	case message.CodeGameFull, message.CodeGameAlreadyStarted, message.CodeGameNotStarted:
		return http.StatusConflict
	case message.CodeNotGameCreator:
		return http.StatusForbidden
	case message.CodeInvalidMessage:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(msg string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, msg}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{string(message.CodeInternalError), message.InternalErrorMessage}}
}
