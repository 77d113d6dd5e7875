package runner_test

import (
	"bytes"
	"log/slog"
	"testing"

	"erpcore/pkg/runner"

	"github.com/stretchr/testify/assert"
)

func TestSlogLogger_WritesThroughToUnderlyingLogger(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := runner.NewSlogLogger(slog.New(handler))

	logger.Info("service started", "service", "job-executor")

	assert.Contains(t, buf.String(), "service started")
	assert.Contains(t, buf.String(), "job-executor")
}

func TestSlogLogger_NilFallsBackToDefault(t *testing.T) {
	logger := runner.NewSlogLogger(nil)
	assert.NotPanics(t, func() { logger.Info("hello") })
}

func TestNoopLogger_DiscardsEverything(t *testing.T) {
	logger := runner.NewNoopLogger()
	assert.NotPanics(t, func() {
		logger.Info("x")
		logger.Error("y")
		logger.Debug("z")
	})
}
