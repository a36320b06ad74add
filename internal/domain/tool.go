package domain

import "context"

// Tool is one capability exposed by the tools server (directory analysis,
// file conversion, web search, etc).
//
// A non-nil error from Execute is an escaped failure and surfaces to the
// caller as an internal fault on the dispatch transport. Well-behaved tools
// convert every internal problem, argument decoding included, into a
// ToolResult with Success=false instead.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, req ToolRequest) (ToolResult, error)
}

// ToolRequest names a tool and carries its arguments. Args holds whatever
// JSON value the model produced: usually an object, but a bare string,
// number, or array is legal and left to the tool to interpret.
type ToolRequest struct {
	Name string `json:"name"`
	Args any    `json:"args"`
}

// ToolResult is the outcome of one tool execution. Failed executions are
// still results: Success=false with Error set.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
}

// ToolDescriptor is the discovery view of a registered tool.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// OKResult wraps data in a successful result.
func OKResult(data any) ToolResult {
	return ToolResult{Success: true, Data: data}
}

// ErrorResult converts an error into a failed result.
func ErrorResult(err error) ToolResult {
	return ToolResult{Success: false, Error: err.Error()}
}
