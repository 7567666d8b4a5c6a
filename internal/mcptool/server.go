package mcptool

import (
	"context"
	"encoding/json"
	"fmt"

	"swim-rules-rag/internal/analysis"
	"swim-rules-rag/internal/models"
	"swim-rules-rag/internal/processor"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const (
	ServerName    = "swim-rules-analyzer"
	ServerVersion = "0.1.0"

	ToolAnalyzeSituation = "analyze_situation"
	ToolLookupRules      = "lookup_rules"
	ToolExtractRules     = "extract_rules"
)

// RuleLookup finds the stored rules most similar to a query
type RuleLookup interface {
	LookupRules(ctx context.Context, query string, n int) ([]models.RetrievedRule, error)
}

// Server exposes situation analysis and rule tools over MCP
type Server struct {
	analyzer analysis.Analyzer
	lookup   RuleLookup
	logger   *zap.Logger
}

// NewServer creates the tool server. lookup may be nil, in which case
// lookup_rules is not registered.
func NewServer(analyzer analysis.Analyzer, lookup RuleLookup, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{analyzer: analyzer, lookup: lookup, logger: logger}
}

// MCPServer builds an MCP server with the tools registered
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	srv.AddTool(mcp.NewTool(ToolAnalyzeSituation,
		mcp.WithDescription("Analyze a swimming situation to determine if it is legal or a disqualification, with rationale and rule citations."),
		mcp.WithString("scenario", mcp.Required(), mcp.Description("Natural language description of the swimming scenario")),
	), s.handleAnalyzeSituation)

	if s.lookup != nil {
		srv.AddTool(mcp.NewTool(ToolLookupRules,
			mcp.WithDescription("Find the swimming rules most relevant to a query."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
			mcp.WithNumber("n_results", mcp.Description("Number of rules to return, 1 to 10 (default 5)")),
		), s.handleLookupRules)
	}

	srv.AddTool(mcp.NewTool(ToolExtractRules,
		mcp.WithDescription("Extract rule identifiers and metadata from a page of rulebook text."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Page text")),
		mcp.WithNumber("page", mcp.Description("Zero-based page number")),
	), s.handleExtractRules)

	return srv
}

// ServeStdio serves the tools on stdin and stdout until the input closes
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP tools over stdio", zap.String("server", ServerName))
	return server.ServeStdio(s.MCPServer(), server.WithErrorLogger(zap.NewStdLog(s.logger)))
}

func (s *Server) handleAnalyzeSituation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scenario := req.GetString("scenario", "")

	report, err := s.analyzer.AnalyzeSituation(ctx, scenario)
	if err != nil {
		s.logger.Error("analyze_situation failed", zap.Error(err))
		report = models.SituationReport{
			Decision:      models.DecisionDisqualification,
			Rationale:     fmt.Sprintf("Tool error: %v. Please consult official swimming rules and qualified officials.", err),
			RuleCitations: []string{},
		}
	}

	return jsonResult(report)
}

func (s *Server) handleLookupRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n := req.GetInt("n_results", analysis.DefaultResults)

	rules, err := s.lookup.LookupRules(ctx, query, n)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rule lookup failed: %v", err)), nil
	}
	if rules == nil {
		rules = []models.RetrievedRule{}
	}

	return jsonResult(rules)
}

func (s *Server) handleExtractRules(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page := req.GetInt("page", 0)

	records := processor.ExtractRules(text, page)
	if records == nil {
		records = []models.RuleRecord{}
	}

	return jsonResult(records)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
