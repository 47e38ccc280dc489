package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"message": "test"}

		err := WriteJSON(w, http.StatusOK, data)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		err = json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err)
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusNoContent, nil)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteOK(w, map[string]bool{"ok": true})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteCreated(w, map[string]string{"id": "123"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":"123"}`, w.Body.String())
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name    string
		write   func(w http.ResponseWriter) error
		status  int
		message string
	}{
		{"bad request", func(w http.ResponseWriter) error { return WriteBadRequest(w, "toolName is required", nil) }, http.StatusBadRequest, "toolName is required"},
		{"unauthorized default", func(w http.ResponseWriter) error { return WriteUnauthorized(w, "") }, http.StatusUnauthorized, "unauthorized"},
		{"not found default", func(w http.ResponseWriter) error { return WriteNotFound(w, "") }, http.StatusNotFound, "not found"},
		{"not found custom", func(w http.ResponseWriter) error { return WriteNotFound(w, "Rule 'x' not found") }, http.StatusNotFound, "Rule 'x' not found"},
		{"internal default", func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") }, http.StatusInternalServerError, "Internal server error"},
		{"bad gateway", func(w http.ResponseWriter) error { return WriteBadGateway(w, "upstream request timed out") }, http.StatusBadGateway, "upstream request timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, decodeError(t, w).Error)
		})
	}
}

func TestWriteBadRequest_Details(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteBadRequest(w, "invalid", map[string]interface{}{"field": "id"}))

	resp := decodeError(t, w)
	assert.Equal(t, "id", resp.Details["field"])
}

func TestWriteTooManyRequests(t *testing.T) {
	tests := []struct {
		retry time.Duration
		want  string
	}{
		{1500 * time.Millisecond, "2"},
		{5 * time.Second, "5"},
		{-time.Second, "0"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		require.NoError(t, WriteTooManyRequests(w, "", tt.retry))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, tt.want, w.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"error":"Too many requests"}`, w.Body.String())
	}
}

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		anyErr  bool
	}{
		{name: "object", body: `{"toolName":"shell"}`},
		{name: "array", body: `[1,2]`, wantErr: ErrNotObject},
		{name: "string", body: `"x"`, wantErr: ErrNotObject},
		{name: "null", body: `null`, wantErr: ErrNotObject},
		{name: "malformed", body: `{`, anyErr: true},
		{name: "empty", body: ``, anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			obj, err := DecodeObject(r)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, "shell", obj["toolName"])
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		ToolName string `json:"toolName"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"toolName":"shell"}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, "shell", dst.ToolName)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"toolName":1}`))
	var typeErr *json.UnmarshalTypeError
	require.ErrorAs(t, DecodeJSON(r, &dst), &typeErr)
	assert.Equal(t, "toolName", typeErr.Field)
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=abc&empty=", nil)

	n, err := QueryInt(r, "limit", 100)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	n, err = QueryInt(r, "missing", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	n, err = QueryInt(r, "empty", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = QueryInt(r, "bad", 100)
	assert.Error(t, err)
}
