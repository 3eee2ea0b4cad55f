package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"wydatki/internal/core"
)

// JSONResponseBuilder assembles a JSON response with a fluent API.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a builder with a 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes none.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Warn("Failed to encode response", "component", "http", "error", err)
	}
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorStatus maps the ledger error taxonomy to a status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, core.ErrInvalidSettings):
		return http.StatusUnprocessableEntity, "invalid_settings"
	case errors.Is(err, core.ErrInvalidCategory):
		return http.StatusUnprocessableEntity, "invalid_category"
	case errors.Is(err, core.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not_authenticated"
	case errors.Is(err, core.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable, "remote_unavailable"
	case errors.Is(err, core.ErrCorruptRecord):
		return http.StatusInternalServerError, "corrupt_record"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// ErrorResponse builds the response for err. Internal failures do not leak
// their message.
func ErrorResponse(err error) *JSONResponseBuilder {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return NewJSONResponse().Status(status).Body(errorBody{Error: msg, Code: code})
}

// BadRequestError reports a malformed request body.
func BadRequestError(message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(http.StatusBadRequest).Body(errorBody{Error: message, Code: "bad_request"})
}

// TooManyRequestsError is sent by the rate limiter.
func TooManyRequestsError() *JSONResponseBuilder {
	return NewJSONResponse().Status(http.StatusTooManyRequests).Body(errorBody{Error: "rate limit exceeded", Code: "rate_limited"})
}
