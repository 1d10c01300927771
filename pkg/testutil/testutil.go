// Package testutil provides testing utilities for multicore
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/multicore/pkg/config"
	"github.com/ajitpratap0/multicore/pkg/threadpool"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// TestConfig returns a configuration with small heap blocks and guard bands
// on, so heap growth and corruption checks happen early in tests.
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.Heap.BlockChunks = 64
	cfg.Heap.GuardBands = true
	cfg.Pool.SpinPolls = 16
	return cfg
}

// NewRegistry creates a registry whose settings report the given processor
// count. Every pool it created is shut down when the test completes.
func NewRegistry(t *testing.T, processors int) *threadpool.Registry {
	t.Helper()
	settings := threadpool.NewSettings()
	settings.SetLogicalProcessors(processors)
	reg := threadpool.NewRegistry(TestConfig(), settings, TestLogger(t))
	t.Cleanup(reg.ShutdownAll)
	return reg
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// RequireNoError fails the test immediately if err is not nil.
// The msg parameter provides additional context in the failure message.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}
