package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitWithoutEndpointInstallsProviderAndShutdownIsSafe(t *testing.T) {
	prevProvider := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prevProvider) })

	provider, err := Init(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, provider.Shutdown())
}

func TestShutdownOnNilProviderIsNoOp(t *testing.T) {
	var p *Provider
	require.NoError(t, p.Shutdown())
}
