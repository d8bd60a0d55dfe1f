package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/search"
	"github.com/Aman-CERP/amankb/internal/telemetry"
)

func TestReadChunk(t *testing.T) {
	s := newTestServer(t, &mockEngine{})
	ctx := context.Background()

	t.Run("with heading", func(t *testing.T) {
		res, err := s.readChunk(ctx, "chunk://c-usb-0")

		require.NoError(t, err)
		require.Len(t, res.Contents, 1)
		assert.Equal(t, "text/markdown", res.Contents[0].MIMEType)
		assert.Equal(t, "# USB Storage\n\nFlash drives are blocked.", res.Contents[0].Text)
	})

	t.Run("without heading", func(t *testing.T) {
		res, err := s.readChunk(ctx, "chunk://c-raw")

		require.NoError(t, err)
		assert.Equal(t, "No heading here.", res.Contents[0].Text)
	})

	t.Run("unknown chunk", func(t *testing.T) {
		_, err := s.readChunk(ctx, "chunk://missing")

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeNotFound, mcpErr.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		for _, uri := range []string{"file:///etc/passwd", "chunk://", ""} {
			_, err := s.readChunk(ctx, uri)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr, uri)
			assert.Equal(t, ErrCodeNotFound, mcpErr.Code)
		}
	})
}

func TestReadQueryMetrics(t *testing.T) {
	// Given: metrics that saw one hit and one zero-result search
	metrics := telemetry.NewMetrics()
	metrics.ObserveSearch(telemetry.QueryEvent{Query: "usb policy", Intent: "policy", Strategy: "hybrid", ResultCount: 3})
	metrics.ObserveSearch(telemetry.QueryEvent{Query: "printer toner", Intent: "unknown", Strategy: "hybrid", Degraded: true})
	s := newTestServer(t, &mockEngine{}, func(d *Dependencies) { d.Metrics = metrics })

	// When: the resource is read
	res, err := s.handleReadQueryMetrics(context.Background(), nil)

	// Then: the JSON body summarizes both searches
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, QueryMetricsURI, res.Contents[0].URI)

	var out QueryMetricsOutput
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &out))
	assert.Equal(t, int64(2), out.Summary.TotalQueries)
	assert.InDelta(t, 50.0, out.Summary.ZeroResultPct, 1e-9)
	assert.Equal(t, int64(1), out.Summary.DegradedCount)
	assert.Equal(t, int64(1), out.IntentCounts[string(search.IntentPolicy)])
	assert.Equal(t, int64(2), out.StrategyCounts["hybrid"])
	assert.Equal(t, []string{"printer toner"}, out.ZeroResultQueries)
	assert.NotEmpty(t, out.TopTerms)
}
