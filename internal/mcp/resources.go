package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	ChunkURIPrefix   = "chunk://"
	ChunkURITemplate = "chunk://{id}"
	QueryMetricsURI  = "amankb://query_metrics"
)

// QueryMetricsOutput is the JSON body of the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	IntentCounts        map[string]int64    `json:"intent_counts"`
	StrategyCounts      map[string]int64    `json:"strategy_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary gives overview statistics.
type QueryMetricsSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	Since         string  `json:"since"`
	ZeroResultPct float64 `json:"zero_result_pct"`
	DegradedCount int64   `json:"degraded_count"`
}

// QueryTermCount is a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "chunk",
		URITemplate: ChunkURITemplate,
		Description: "Full text of an indexed chunk, by the chunk_id returned from search",
		MIMEType:    "text/markdown",
	}, s.handleReadChunk)

	if s.deps.Metrics != nil {
		s.mcp.AddResource(&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Query telemetry since the server started",
			MIMEType:    "application/json",
		}, s.handleReadQueryMetrics)
	}
}

func (s *Server) handleReadChunk(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return s.readChunk(ctx, req.Params.URI)
}

// readChunk renders a chunk with its heading path as markdown.
func (s *Server) readChunk(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	id, ok := strings.CutPrefix(uri, ChunkURIPrefix)
	if !ok || id == "" {
		return nil, NewResourceNotFoundError(uri)
	}

	ch, err := s.deps.Catalog.GetChunk(ctx, id)
	if err != nil {
		return nil, MapError(err)
	}

	text := ch.Content
	if ch.HeadingPath != "" {
		text = fmt.Sprintf("# %s\n\n%s", ch.HeadingPath, ch.Content)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "text/markdown", Text: text}},
	}, nil
}

func (s *Server) handleReadQueryMetrics(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	queries := s.deps.Metrics.Queries()
	if queries == nil {
		return nil, NewResourceNotFoundError(QueryMetricsURI)
	}
	snapshot := queries.Snapshot()

	out := QueryMetricsOutput{
		Summary: QueryMetricsSummary{
			TotalQueries:  snapshot.TotalQueries,
			Since:         snapshot.Since.UTC().Format("2006-01-02T15:04:05Z"),
			ZeroResultPct: snapshot.ZeroResultPercentage(),
			DegradedCount: snapshot.DegradedCount,
		},
		IntentCounts:        maps.Clone(snapshot.IntentCounts),
		StrategyCounts:      maps.Clone(snapshot.StrategyCounts),
		TopTerms:            make([]QueryTermCount, 0, len(snapshot.TopTerms)),
		ZeroResultQueries:   snapshot.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snapshot.LatencyDistribution)),
	}
	for _, tc := range snapshot.TopTerms {
		out.TopTerms = append(out.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	for bucket, count := range snapshot.LatencyDistribution {
		out.LatencyDistribution[string(bucket)] = count
	}

	content, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: QueryMetricsURI, MIMEType: "application/json", Text: string(content)}},
	}, nil
}
