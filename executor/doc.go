// Package executor coordinates one code execution from request to verdict.
//
// For every Request the Coordinator validates the language, prepares a
// workspace holding the source and the optional stdin file, launches a sandbox
// on it and collects the sandbox output under an outer deadline. The sandbox
// and the workspace are destroyed on every path before Execute returns.
//
// A finished program is always reported as a Result, including compile
// failures, non-zero exits and timeouts. Execute only returns an error for
// invalid requests and engine failures; StatusCode maps those to HTTP.
package executor
