// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/executor"
)

// ToolName is the name of the code execution tool.
const ToolName = "execute_code"

// Executor runs one execution request.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) (executor.Result, error)
}

// Languages lists the supported language identifiers.
type Languages interface {
	Languages() []string
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	exec      Executor
	languages []string
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, exec Executor, languages Languages) (*MCPServer, error) {
	s := &MCPServer{
		config:    cfg,
		logger:    logger.Named("mcp"),
		exec:      exec,
		languages: languages.Languages(),
	}
	if len(s.languages) == 0 {
		return nil, fmt.Errorf("no languages to expose")
	}

	s.logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Int("sandbox.max_concurrent", cfg.Sandbox.MaxConcurrent),
		zap.Strings("languages", s.languages),
	)

	s.mcpServer = server.NewMCPServer("coderunner", "1.0.0",
		server.WithToolCapabilities(false),
		server.WithInstructions("Compiles and runs short programs in an isolated sandbox."),
	)
	s.registerExecuteCodeTool()

	return s, nil
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name: ToolName,
		Description: "Compile and run a program in a sandbox without network access " +
			"(128 MiB memory, half a CPU, 10s compile and 5s run time limit). " +
			"Returns the combined stdout and stderr, the exit code and whether it succeeded.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Language of the program",
					"enum":        s.languages,
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Program source code. Java code must declare a public class Main.",
				},
				"input": map[string]any{
					"type":        "string",
					"description": "Data fed to the program's standard input (optional)",
				},
			},
			Required: []string{"language", "code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := executor.Request{
		Language: request.GetString("language", ""),
		Code:     request.GetString("code", ""),
		Input:    request.GetString("input", ""),
	}
	s.logger.Info("code execution requested", zap.String("language", req.Language), zap.Bool("has_input", req.Input != ""))

	res, err := s.exec.Execute(ctx, req)
	if err != nil {
		s.logger.Warn("code execution failed", zap.String("language", req.Language), zap.Error(err))
		return textResult(executor.NewErrorResponse(err), true)
	}

	return textResult(executor.NewResponse(res), false)
}

func textResult(v any, isError bool) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(b),
			},
		},
		IsError: isError,
	}, nil
}

// ServeStdio serves MCP on stdin and stdout until they close.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// Handler returns the streamable HTTP transport, to be mounted by the HTTP server.
func (s *MCPServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}
