package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tradedesk/internal/logger"
	"tradedesk/internal/model"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON error shape: {"detail": "...", "errors": [...]}.
type errorBody struct {
	Detail   string   `json:"detail"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// statusOf maps a service error to its HTTP status and client message.
// Unknown errors are 500 with a generic message.
func statusOf(err error) (int, errorBody) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		detail := "Validation failed"
		if len(ve.Errors) == 1 {
			detail = ve.Errors[0]
		}
		return http.StatusBadRequest, errorBody{Detail: detail, Errors: ve.Errors, Warnings: ve.Warnings}
	}

	status := http.StatusInternalServerError
	detail := "Internal server error"
	switch {
	case errors.Is(err, model.ErrNotFound):
		status, detail = http.StatusNotFound, "Not found"
	case errors.Is(err, model.ErrConflict):
		status, detail = http.StatusConflict, "Already exists"
	case errors.Is(err, model.ErrUnauthorized):
		status, detail = http.StatusUnauthorized, "Could not validate credentials"
	case errors.Is(err, model.ErrForbidden):
		status, detail = http.StatusForbidden, "Forbidden"
	case errors.Is(err, model.ErrInvalid):
		status, detail = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, model.ErrUnavailable):
		status, detail = http.StatusServiceUnavailable, "Service unavailable"
	}
	var me *model.Error
	if errors.As(err, &me) {
		detail = me.Msg
	}
	return status, errorBody{Detail: detail}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", append(logger.LogWithTrace(r.Context()),
			"method", r.Method, "path", r.URL.Path, "err", err)...)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into v. Unknown fields are ignored.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		msg := "Invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		writeDetail(w, http.StatusUnprocessableEntity, msg)
		return false
	}
	return true
}

// pathID parses an integer URL parameter, writing a 422 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s must be a positive integer", name))
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s must be an integer", name))
		return 0, false
	}
	return n, true
}
