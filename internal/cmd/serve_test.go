package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piolab/piobridge/pkg/backend"
)

// stubCaller returns a canned result and records the path it was asked for.
type stubCaller struct {
	result backend.OperationResult
	path   string
}

func (c *stubCaller) Request(ctx context.Context, method, path string, body any) backend.OperationResult {
	c.path = path
	return c.result
}

func TestBackendHealthChecker(t *testing.T) {
	t.Run("healthy backend passes", func(t *testing.T) {
		caller := &stubCaller{result: backend.OperationResult{Success: true}}
		checker := backendHealthChecker{caller: caller}

		err := checker.CheckHealth(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "/experiments", caller.path)
	})

	t.Run("unreachable backend fails with code", func(t *testing.T) {
		caller := &stubCaller{result: backend.OperationResult{
			Success: false,
			Code:    "BACKEND_UNREACHABLE",
			Message: "dial tcp: connection refused",
		}}
		checker := backendHealthChecker{caller: caller}

		err := checker.CheckHealth(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "BACKEND_UNREACHABLE")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestSchemaHealthChecker(t *testing.T) {
	checker := schemaHealthChecker{}

	t.Run("embedded table loads", func(t *testing.T) {
		err := checker.CheckHealth(context.Background())
		assert.NoError(t, err)
	})
}
