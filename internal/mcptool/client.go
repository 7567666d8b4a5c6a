package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"swim-rules-rag/internal/models"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Client calls the analyze_situation tool of a remote tool server
type Client struct {
	mcp    *client.Client
	logger *zap.Logger
}

// DialStdio starts the tool server command and connects to it over stdio
func DialStdio(ctx context.Context, command string, args, env []string, logger *zap.Logger) (*Client, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start MCP server %s: %w", command, err)
	}
	return connect(ctx, c, logger)
}

// NewInProcess connects to a tool server running in the same process
func NewInProcess(ctx context.Context, srv *server.MCPServer, logger *zap.Logger) (*Client, error) {
	c, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-process MCP client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start in-process MCP client: %w", err)
	}
	return connect(ctx, c, logger)
}

func connect(ctx context.Context, c *client.Client, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "swim-rules-agent",
		Version: ServerVersion,
	}

	res, err := c.Initialize(ctx, initReq)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	logger.Info("connected to MCP server",
		zap.String("server", res.ServerInfo.Name),
		zap.String("version", res.ServerInfo.Version))

	return &Client{mcp: c, logger: logger}, nil
}

// AnalyzeSituation calls analyze_situation and decodes its report
func (c *Client) AnalyzeSituation(ctx context.Context, scenario string) (models.SituationReport, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = ToolAnalyzeSituation
	req.Params.Arguments = map[string]any{"scenario": scenario}

	res, err := c.mcp.CallTool(ctx, req)
	if err != nil {
		return models.SituationReport{}, fmt.Errorf("failed to call %s: %w", ToolAnalyzeSituation, err)
	}

	return decodeReport(res), nil
}

// Close stops the connection and, for stdio, the server process
func (c *Client) Close() error {
	return c.mcp.Close()
}

// decodeReport reads the report from the first text content. Text that is
// not a JSON report becomes the rationale of a DISQUALIFICATION.
func decodeReport(res *mcp.CallToolResult) models.SituationReport {
	text, ok := firstText(res)
	if !ok {
		return models.SituationReport{
			Decision:      models.DecisionDisqualification,
			Rationale:     "Unable to parse MCP response",
			RuleCitations: []string{},
		}
	}

	var report models.SituationReport
	if res.IsError || json.Unmarshal([]byte(text), &report) != nil {
		return models.SituationReport{
			Decision:      models.DecisionDisqualification,
			Rationale:     text,
			RuleCitations: []string{},
		}
	}

	if report.Decision == "" {
		report.Decision = models.DecisionDisqualification
	}
	if report.RuleCitations == nil {
		report.RuleCitations = []string{}
	}
	return report
}

func firstText(res *mcp.CallToolResult) (string, bool) {
	if res == nil {
		return "", false
	}
	for _, content := range res.Content {
		switch tc := content.(type) {
		case mcp.TextContent:
			return strings.TrimSpace(tc.Text), true
		case *mcp.TextContent:
			return strings.TrimSpace(tc.Text), true
		}
	}
	return "", false
}
