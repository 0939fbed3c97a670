// Package main is the entry point for CodeRunner.
//
// CodeRunner executes untrusted C++, Python and Java programs in disposable
// containers and reports their output, exit status and running time. It is
// served over HTTP (JSON API, MCP streamable HTTP and Prometheus metrics) or
// over stdio (MCP only), or used one-shot with the run subcommand.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging, viper for configuration and
// cobra for the command line.
package main
