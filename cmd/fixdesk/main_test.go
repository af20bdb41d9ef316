package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	port := freePort(t)
	t.Setenv("FIXDESK_SERVER_HOST", "127.0.0.1")
	t.Setenv("FIXDESK_SERVER_PORT", fmt.Sprint(port))
	t.Setenv("FIXDESK_STORE_PATH", filepath.Join(t.TempDir(), "fixdesk.db"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "", modeHTTP)
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("FIXDESK_SERVER_PORT", "70000")
	t.Setenv("FIXDESK_STORE_PATH", filepath.Join(t.TempDir(), "fixdesk.db"))

	err := run(context.Background(), "", modeHTTP)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration")
}
