// Package httpapi serves the execution engine over HTTP.
//
// Routes:
//
//	POST /api/compile    {language, code, input?} -> execution result
//	GET  /api/health     {status: "OK", timestamp}
//	GET  /api/languages  supported language identifiers
//	GET  /metrics        Prometheus metrics, when a gatherer is configured
//	     /mcp            MCP streamable HTTP transport, when mounted
//
// A finished program, including one that failed to compile or timed out, is
// answered with 200. Invalid requests get 400, engine failures 500 and a
// saturated engine 503.
package httpapi
