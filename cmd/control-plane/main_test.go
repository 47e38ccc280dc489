package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/agent-control-plane/app"
	"github.com/upb/agent-control-plane/config"
	"github.com/upb/agent-control-plane/models"
	"go.uber.org/zap/zaptest"
)

func testDeps(t *testing.T, ttl time.Duration) *app.Dependencies {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Approvals.PersistPath = filepath.Join(dir, "approvals.json")
	cfg.Approvals.TTLMs = int(ttl.Milliseconds())
	cfg.Audit.PersistPath = filepath.Join(dir, "audit.log")
	cfg.PolicyOverridesPath = filepath.Join(dir, "overrides.json")
	cfg.Server.ShutdownTimeout = time.Second

	deps, err := app.NewDependencies(context.Background(), &cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })
	return deps
}

func TestServe(t *testing.T) {
	deps := testDeps(t, time.Minute)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, deps) }()

	base := "http://" + ln.Addr().String()

	t.Run("health check returns ok", func(t *testing.T) {
		resp, err := http.Get(base + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, true, body["ok"])
	})

	t.Run("intercept defaults to ask", func(t *testing.T) {
		resp, err := http.Post(base+"/v1/tool-calls/intercept", "application/json",
			strings.NewReader(`{"toolName":"exec","params":{"command":"ls"}}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ask", body["decision"])
		assert.NotEmpty(t, body["approvalId"])
	})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = http.Get(base + "/health")
	assert.Error(t, err)
}

func TestSweepApprovals(t *testing.T) {
	deps := testDeps(t, 20*time.Millisecond)
	created, err := deps.Approvals.Create(models.ToolCallRecord{ToolName: "exec", Params: map[string]any{}}, "review")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweepApprovals(ctx, deps, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return deps.Approvals.StatusCounts()[models.ApprovalStatusExpired] == 1
	}, 2*time.Second, 10*time.Millisecond)

	item, ok := deps.Approvals.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, models.ApprovalStatusExpired, item.Status)
}
