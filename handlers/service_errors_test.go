package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/upb/agent-control-plane/services"
	"github.com/upb/agent-control-plane/utils"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "not found error",
			err:            services.NewRuleNotFoundError("r1"),
			expectedStatus: http.StatusNotFound,
			expectedError:  "Rule 'r1' not found",
		},
		{
			name:           "validation error",
			err:            services.NewValidationError("toolName is required"),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "toolName is required",
		},
		{
			name:           "duplicate error",
			err:            services.NewDuplicateRuleError("r1"),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Rule with id 'r1' already exists",
		},
		{
			name:           "struct validation error",
			err:            &utils.ValidationError{Message: "Validation failed: port must be at least 1", Fields: map[string]string{"port": "port must be at least 1"}},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Validation failed: port must be at least 1",
		},
		{
			name:           "plain not found",
			err:            services.NewNotFoundError("not found"),
			expectedStatus: http.StatusNotFound,
			expectedError:  "not found",
		},
		{
			name:           "external error",
			err:            services.WrapExternal("upstream request timed out", errors.New("deadline")),
			expectedStatus: http.StatusBadGateway,
			expectedError:  "upstream request timed out",
		},
		{
			name:           "internal error hides cause",
			err:            services.WrapInternal("failed to persist approvals", errors.New("disk full")),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "An internal error occurred",
		},
		{
			name:           "unknown error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedError, decodeMap(t, w)["error"])
		})
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, nil, logger)
		assert.Equal(t, 0, w.Body.Len())
	})
}
