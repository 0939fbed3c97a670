// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the execution engine as a single MCP tool,
// execute_code, using the mark3labs/mcp-go library for the protocol details.
// The tool takes the same fields as the HTTP API and answers with the same
// JSON document, so agents and browsers see identical results.
//
// The server is reachable over stdio or, mounted by the HTTP server, over the
// streamable HTTP transport, as configured by server.transport.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, coordinator, registry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or mount server.Handler()
package mcpserver
