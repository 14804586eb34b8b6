package main

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/formrelay/internal/config"
	"github.com/phrazzld/formrelay/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(mode string) *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 0, LogLevel: "debug", Mode: mode},
		Database: config.DatabaseConfig{URL: "postgres://localhost/formrelay", MaxOpenConns: 1},
		Auth: config.AuthConfig{
			JWTSecret:          strings.Repeat("s", 32),
			TokenEncryptionKey: strings.Repeat("ab", 32),
		},
		Google: config.GoogleConfig{
			TokenURL:          "https://oauth2.example.test/token",
			RequestsPerSecond: 5,
		},
		Worker: config.WorkerConfig{
			TargetAgent:        "executor",
			PollInterval:       time.Hour,
			BatchSize:          4,
			MaxAttempts:        3,
			BaseBackoffDelay:   time.Second,
			BackoffCap:         time.Minute,
			StaleTaskThreshold: 10 * time.Minute,
			SweepInterval:      time.Hour,
			LockWait:           time.Second,
			LockTTL:            15 * time.Minute,
			ReplyToSource:      true,
		},
	}
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestNewApplicationModes(t *testing.T) {
	tests := []struct {
		mode       string
		wantAPI    bool
		wantWorker bool
	}{
		{mode: modeAll, wantAPI: true, wantWorker: true},
		{mode: modeAPI, wantAPI: true},
		{mode: modeWorker, wantWorker: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			db, _ := newMockDB(t)
			app, err := newApplication(context.Background(), testConfig(tt.mode), logger.Discard(), db)
			require.NoError(t, err)

			assert.Equal(t, tt.wantAPI, app.jwtService != nil)
			assert.Equal(t, tt.wantWorker, app.taskRunner != nil)
			assert.Equal(t, tt.wantWorker, app.sweeper != nil)
			assert.NotNil(t, app.taskService)
		})
	}
}

func TestNewApplicationRejectsBadEncryptionKey(t *testing.T) {
	db, _ := newMockDB(t)
	cfg := testConfig(modeWorker)
	cfg.Auth.TokenEncryptionKey = "not-hex"

	_, err := newApplication(context.Background(), cfg, logger.Discard(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token sealer")
}

func TestRouter(t *testing.T) {
	db, mock := newMockDB(t)
	app, err := newApplication(context.Background(), testConfig(modeAPI), logger.Discard(), db)
	require.NoError(t, err)
	router := app.setupRouter()

	t.Run("health pings the database", func(t *testing.T) {
		mock.ExpectPing()
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok","database":"ok"}`, rr.Body.String())
	})

	t.Run("api requires a token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("stats with a producer token", func(t *testing.T) {
		token, err := app.jwtService.GenerateToken(context.Background(), "planner", time.Minute)
		require.NoError(t, err)

		mock.ExpectQuery(`SELECT target_agent, status, COUNT\(\*\)`).
			WillReturnRows(sqlmock.NewRows([]string{"target_agent", "status", "count"}).
				AddRow("executor", "pending", int64(3)))

		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"counts":[{"target_agent":"executor","status":"pending","count":3}]}`, rr.Body.String())
	})

	t.Run("unknown route", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/cards", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "everything under /api is authenticated")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStopsOnCancel(t *testing.T) {
	db, mock := newMockDB(t)
	app, err := newApplication(context.Background(), testConfig(modeAPI), logger.Discard(), db)
	require.NoError(t, err)

	mock.ExpectClose()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
