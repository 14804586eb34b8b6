package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/formrelay/internal/platform/logger"
	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name           string
		db             Pinger
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "database reachable",
			db:             pingFunc(func(context.Context) error { return nil }),
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"ok","database":"ok"}`,
		},
		{
			name:           "database unreachable",
			db:             pingFunc(func(context.Context) error { return errors.New("connection refused") }),
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"status":"unavailable","database":"unreachable"}`,
		},
		{
			name:           "no database",
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"ok","database":"not configured"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, logger.Discard())
			rr := httptest.NewRecorder()
			h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.JSONEq(t, tt.expectedBody, rr.Body.String())
		})
	}
}
