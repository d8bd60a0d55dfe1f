package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amankb/internal/async"
	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/embed"
	"github.com/Aman-CERP/amankb/internal/feedback"
	"github.com/Aman-CERP/amankb/internal/search"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/telemetry"
	"github.com/Aman-CERP/amankb/pkg/version"
)

// ServerName is reported to clients.
const ServerName = "amankb"

// Searcher runs ranked searches.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Response, error)
	Strategy() search.Strategy
}

// FeedbackRecorder records ratings.
type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, targetID, rating, comment string) (*feedback.Record, error)
	Quality(ctx context.Context, targetID string) (feedback.Quality, error)
}

// Catalog is the read side of the store the server needs.
type Catalog interface {
	ListNamespaces(ctx context.Context) ([]*store.Namespace, error)
	NamespaceStats(ctx context.Context, id string) (*store.NamespaceStats, error)
	GetChunk(ctx context.Context, id string) (*store.Chunk, error)
}

// Dependencies are the collaborators of a Server.
type Dependencies struct {
	Engine   Searcher         // required
	Feedback FeedbackRecorder // required
	Catalog  Catalog          // required
	Embedder embed.Embedder   // nil when running lexical-only
	Config   *config.Config
	Metrics  *telemetry.Metrics

	// Degraded explains why vector search is off, if it is.
	Degraded string
}

// Server bridges MCP clients and the knowledge base.
type Server struct {
	mcp    *mcp.Server
	deps   Dependencies
	logger *slog.Logger

	// nil unless a background ingest was started
	indexProgress *async.IndexProgress

	mu sync.RWMutex
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolDescriptions = map[string]string{
	ToolSearch: "Search the knowledge base. Combines keyword and semantic retrieval, detects whether " +
		"the question is about a policy, a procedure or reference material, and ranks matching " +
		"documents of that kind first. Returns chunk IDs that can be rated with the feedback tool.",
	ToolFeedback: "Rate a search result (by chunk_id or document_id) as helpful, not_helpful, incorrect, " +
		"or 1 to 5. Ratings adjust future ranking of that result within fixed bounds.",
	ToolIndexStatus: "Report what is indexed: namespaces, document, chunk and vector counts, the search " +
		"strategy in use and the progress of any background ingest.",
	ToolListNamespaces: "List the knowledge base namespaces with their document counts. Use a namespace " +
		"ID to scope the search tool.",
}

// NewServer creates an MCP server over deps.
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("search engine is required")
	}
	if deps.Feedback == nil {
		return nil, errors.New("feedback service is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if deps.Config == nil {
		deps.Config = config.NewConfig()
	}

	s := &Server{deps: deps, logger: slog.Default()}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version.Version}, nil)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// SetIndexProgress attaches the progress of a background ingest. While it
// runs, index_status reports it and search results carry a notice.
func (s *Server) SetIndexProgress(progress *async.IndexProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexProgress = progress
}

func (s *Server) progress() *async.IndexProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexProgress
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns the registered tools in registration order.
func (s *Server) ListTools() []ToolInfo {
	names := []string{ToolSearch, ToolFeedback, ToolIndexStatus, ToolListNamespaces}
	tools := make([]ToolInfo, 0, len(names))
	for _, name := range names {
		tools = append(tools, ToolInfo{Name: name, Description: toolDescriptions[name]})
	}
	return tools
}

// CallTool invokes a tool with loosely typed arguments, as decoded from JSON.
// search returns markdown; the other tools return their output struct.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearch:
		in := SearchInput{}
		in.Query, _ = args["query"].(string)
		in.Namespace, _ = args["namespace"].(string)
		if l, ok := args["limit"].(float64); ok {
			in.Limit = int(l)
		}
		resp, err := s.search(ctx, in)
		if err != nil {
			return nil, err
		}
		return s.formatWithNotice(resp), nil
	case ToolFeedback:
		in := FeedbackInput{}
		in.TargetID, _ = args["target_id"].(string)
		in.Rating, _ = args["rating"].(string)
		in.Comment, _ = args["comment"].(string)
		return s.recordFeedback(ctx, in)
	case ToolIndexStatus:
		return s.indexStatus(ctx)
	case ToolListNamespaces:
		return s.listNamespaces(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) search(ctx context.Context, in SearchInput) (*search.Response, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	limit := clampLimit(in.Limit, 10, 1, 50)

	s.logger.Info("search_started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.String("namespace", in.Namespace),
		slog.Int("limit", limit))

	resp, err := s.deps.Engine.Search(ctx, search.Query{Text: in.Query, Namespace: in.Namespace, Limit: limit})
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(resp.Results)),
		slog.String("intent", string(resp.Intent)),
		slog.Bool("degraded", resp.Degraded))
	return resp, nil
}

func (s *Server) formatWithNotice(resp *search.Response) string {
	text := FormatSearchResponse(resp)
	if p := s.progress(); p != nil && p.IsIndexing() {
		snap := p.Snapshot()
		text = fmt.Sprintf("> Ingest in progress: %.0f%% (%d/%d, stage %s). Results may be incomplete.\n\n%s",
			snap.ProgressPct, snap.Processed, snap.Total, snap.Stage, text)
	}
	return text
}

func (s *Server) recordFeedback(ctx context.Context, in FeedbackInput) (*FeedbackOutput, error) {
	rec, err := s.deps.Feedback.RecordFeedback(ctx, in.TargetID, in.Rating, in.Comment)
	if err != nil {
		return nil, MapError(err)
	}
	out := &FeedbackOutput{ID: rec.ID, TargetID: rec.TargetID, Rating: string(rec.Rating), Quality: 1}
	if q, err := s.deps.Feedback.Quality(ctx, rec.TargetID); err == nil {
		out.Quality, out.Samples = q.Multiplier, q.Samples
	}
	s.logger.Info("feedback_recorded",
		slog.String("target", rec.TargetID),
		slog.String("rating", string(rec.Rating)))
	return out, nil
}

func (s *Server) namespaces(ctx context.Context) ([]NamespaceOutput, error) {
	list, err := s.deps.Catalog.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]NamespaceOutput, 0, len(list))
	for _, ns := range list {
		n := NamespaceOutput{ID: ns.ID, DisplayName: ns.DisplayName}
		if st, err := s.deps.Catalog.NamespaceStats(ctx, ns.ID); err == nil {
			n.Documents, n.Chunks, n.Vectors = st.Documents, st.Chunks, st.Vectors
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Server) listNamespaces(ctx context.Context) (*ListNamespacesOutput, error) {
	list, err := s.namespaces(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	return &ListNamespacesOutput{Namespaces: list}, nil
}

func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	list, err := s.namespaces(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	out := &IndexStatusOutput{
		Namespaces: list,
		Strategy:   string(s.deps.Engine.Strategy()),
		Degraded:   s.deps.Degraded,
		Embeddings: s.embeddingInfo(ctx),
	}
	for _, ns := range list {
		out.Documents += ns.Documents
		out.Chunks += ns.Chunks
		out.Vectors += ns.Vectors
	}
	if p := s.progress(); p != nil {
		snap := p.Snapshot()
		out.Indexing = &snap
	}
	return out, nil
}

func (s *Server) embeddingInfo(ctx context.Context) EmbeddingInfo {
	info := EmbeddingInfo{Provider: s.deps.Config.Embeddings.Provider}
	e := s.deps.Embedder
	if e == nil {
		info.Model, info.Status = "none", "disabled"
		return info
	}
	info.Model, info.Dimensions = e.ModelName(), e.Dimensions()
	info.Status = "unavailable"
	if e.Available(ctx) {
		info.Status = "ready"
	}
	return info
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearch, Description: toolDescriptions[ToolSearch]}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolFeedback, Description: toolDescriptions[ToolFeedback]}, s.mcpFeedbackHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: toolDescriptions[ToolIndexStatus]}, s.mcpIndexStatusHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolListNamespaces, Description: toolDescriptions[ToolListNamespaces]}, s.mcpListNamespacesHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(toolDescriptions)))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	resp, err := s.search(ctx, in)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: s.formatWithNotice(resp)}},
	}, ToSearchOutput(resp), nil
}

func (s *Server) mcpFeedbackHandler(ctx context.Context, _ *mcp.CallToolRequest, in FeedbackInput) (*mcp.CallToolResult, *FeedbackOutput, error) {
	out, err := s.recordFeedback(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (*mcp.CallToolResult, *IndexStatusOutput, error) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpListNamespacesHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListNamespacesInput) (*mcp.CallToolResult, *ListNamespacesOutput, error) {
	out, err := s.listNamespaces(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve runs the server on transport until ctx is done. Only stdio is
// supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
