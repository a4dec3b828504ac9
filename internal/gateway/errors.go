package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	ctxengine "github.com/flemzord/writenow/internal/context"
)

// errorBody is the JSON shape of every failed API call.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    ctxengine.Code `json:"code"`
	Message string         `json:"message"`
}

// statusFor maps an engine error code to an HTTP status.
func statusFor(code ctxengine.Code) int {
	switch code {
	case ctxengine.CodeNotFound:
		return http.StatusNotFound
	case ctxengine.CodeInvalidArgument, ctxengine.CodeParseError:
		return http.StatusBadRequest
	case ctxengine.CodeConflict:
		return http.StatusConflict
	case ctxengine.CodeAssemblyBudgetImpossible:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError renders err as an errorBody.
func writeError(w http.ResponseWriter, err error) {
	code := ctxengine.CodeOf(err)
	status := statusFor(code)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: err.Error()}})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into v. Malformed bodies are
// INVALID_ARGUMENT.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ctxengine.Wrap(ctxengine.CodeInvalidArgument, err, "invalid request body")
	}
	return nil
}
