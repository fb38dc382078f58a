package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/medipals/internal/testutil"
)

func Test_run(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	// Nothing from the host environment leaks in
	getenv := func(string) string { return "" }
	getwd := func() (string, error) { return t.TempDir(), nil }

	t.Run("stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		err := run(ctx, getenv, getwd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--database", pg.DSN,
			"--secret-key", "secret",
			"--stripe-key", "sk_test_123",
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("stop with srv error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		// Try to run without secret key. Must fail
		err := run(ctx, getenv, getwd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--database", pg.DSN,
			"--stripe-key", "sk_test_123",
		})

		require.Error(t, err, "on incorrect stop should return error")
	})

	t.Run("unreachable redis", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		redisPort, err := testutil.RandomPort()
		require.NoError(t, err)

		err = run(ctx, getenv, getwd, []string{
			"--address", listenAddr,
			"--database", pg.DSN,
			"--secret-key", "secret",
			"--stripe-key", "sk_test_123",
			"--redis", fmt.Sprintf("localhost:%d", redisPort),
		})

		require.ErrorContains(t, err, "redis")
	})
}
