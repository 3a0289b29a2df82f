package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSpansAreWritten(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(&buf, "v1.2.3", "run-1")
	require.NoError(t, err)

	_, span := p.Tracer("test").Start(context.Background(), "reserve_slot")
	span.SetAttributes(attribute.String("facility", "PoolA"))
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `"Name": "reserve_slot"`)
	assert.Contains(t, out, "PoolA")
	assert.Contains(t, out, "run-1")
}
