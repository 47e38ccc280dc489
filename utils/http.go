package utils

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

// maxBodyBytes caps decoded request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrNotObject is returned by DecodeObject when the body is valid JSON but
// not an object
var ErrNotObject = errors.New("request body must be a JSON object")

// WriteJSON writes a JSON response with the given status code. A
// Content-Type already set on w is kept.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with data as the body
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a 201 Created response with data as the body
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, message, details)
}

// WriteUnauthorized writes a 401 Unauthorized response
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "unauthorized"
	}
	return WriteError(w, http.StatusUnauthorized, message, nil)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "not found"
	}
	return WriteError(w, http.StatusNotFound, message, nil)
}

// WriteTooManyRequests writes a 429 response with a Retry-After header in
// whole seconds, rounded up
func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfter time.Duration) error {
	if message == "" {
		message = "Too many requests"
	}
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 0 {
		secs = 0
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	return WriteError(w, http.StatusTooManyRequests, message, nil)
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return WriteError(w, http.StatusInternalServerError, message, nil)
}

// WriteBadGateway writes a 502 Bad Gateway response
func WriteBadGateway(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Upstream request failed"
	}
	return WriteError(w, http.StatusBadGateway, message, nil)
}

// WriteError writes {"error": message} with the given status
func WriteError(w http.ResponseWriter, status int, message string, details map[string]interface{}) error {
	return WriteJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// DecodeObject decodes the request body as a JSON object. Numbers are kept
// as float64 like any other generic decode.
func DecodeObject(r *http.Request) (map[string]any, error) {
	var v any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// DecodeJSON decodes the request body into dst
func DecodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}

// QueryInt parses an optional integer query parameter. Absent or empty
// values yield def.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return n, nil
}
