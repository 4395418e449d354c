package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCLITest(t *testing.T) {
	t.Helper()
	restoreDefaultLogger(t)
	clearRelayEnv(t)
}

func executeCLI(ctx context.Context, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	rootCmd := NewRelayCLI()
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestCLIConnectRefused(t *testing.T) {
	setupCLITest(t)
	port := strconv.Itoa(closedPort(t))

	_, stderr, err := executeCLI(context.Background(), "connect", "--port", port, "--username", "bob")
	require.Error(t, err)
	assert.Contains(t, stderr, "[CLIENT] Connection refused. Is the server running?")
}

func TestCLIRejectsInvalidConfig(t *testing.T) {
	setupCLITest(t)
	tests := [][]string{
		{"serve", "--port", "70000"},
		{"serve", "--chunk-size", "0"},
		{"connect", "--username", "bob", "--env-file", "/nonexistent/.env"},
		{"serve", "unexpected-arg"},
	}
	for _, args := range tests {
		_, _, err := executeCLI(context.Background(), args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestCLIServeUntilCancelled(t *testing.T) {
	setupCLITest(t)
	port := strconv.Itoa(closedPort(t))
	metricsAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(closedPort(t)))
	relayAddr := net.JoinHostPort("127.0.0.1", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		_, _, err := executeCLI(ctx, "serve", "--port", port, "--metrics-addr", metricsAddr, "--log-level", "error")
		errc <- err
	}()

	// untilServing turns an early return from serve into a reported failure
	// instead of a timeout.
	var (
		exited   bool
		serveErr error
	)
	untilServing := func(ready func() bool) func() bool {
		return func() bool {
			select {
			case serveErr = <-errc:
				exited = true
				return true
			default:
			}
			return ready()
		}
	}

	require.Eventually(t, untilServing(func() bool {
		conn, err := net.Dial("tcp", relayAddr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}), 10*time.Second, 20*time.Millisecond, "relay never started listening")
	require.False(t, exited, "serve returned early: %v", serveErr)

	var body []byte
	require.Eventually(t, untilServing(func() bool {
		resp, err := http.Get("http://" + metricsAddr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}), 10*time.Second, 20*time.Millisecond, "metrics endpoint never came up")
	require.False(t, exited, "serve returned early: %v", serveErr)
	assert.Contains(t, string(body), "relay_connected_peers")

	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}

	_, err := net.DialTimeout("tcp", relayAddr, time.Second)
	assert.Error(t, err)
}
