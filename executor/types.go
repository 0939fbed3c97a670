package executor

import (
	"time"
)

// TimedOutMessage is appended to the output of an execution that hit a deadline.
const TimedOutMessage = "Execution timed out"

// Request is one execution request.
type Request struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Input    string `json:"input,omitempty"`
}

// Result is the outcome of an execution that ran to a verdict. A program
// exiting non-zero is a Result, not an error.
type Result struct {
	Language string
	Output   string
	// ExitCode is nil when the program was killed by a deadline, which
	// includes any exit with sandbox.TimeoutExitCode.
	ExitCode  *int
	Success   bool
	Elapsed   time.Duration
	TimedOut  bool
	Truncated bool
}

// Response is the JSON body of a completed execution.
type Response struct {
	Output        string  `json:"output"`
	ExitCode      *int    `json:"exitCode"`
	Success       bool    `json:"success"`
	ExecutionTime float64 `json:"executionTime"`
	Language      string  `json:"language"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
}

// NewResponse converts a Result to its wire form. ExecutionTime is in seconds.
func NewResponse(r Result) Response {
	return Response{
		Output:        r.Output,
		ExitCode:      r.ExitCode,
		Success:       r.Success,
		ExecutionTime: r.Elapsed.Seconds(),
		Language:      r.Language,
	}
}

// NewErrorResponse converts an Execute error to its wire form.
func NewErrorResponse(err error) ErrorResponse {
	msg := err.Error()
	return ErrorResponse{
		Error:   msg,
		Output:  "Error: " + msg,
		Success: false,
	}
}
