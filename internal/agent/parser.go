package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"flightbot/internal/domain"
)

const (
	fenceOpen  = "```tool"
	fenceClose = "```"
)

// ParseToolCalls extracts tool invocation requests from completed model
// output. A request is a fenced block:
//
//	```tool
//	{"name": "web_search", "args": {"query": "golang"}}
//	```
//
// Blocks are returned in document order. Parsing never fails as a whole:
// content that cannot be interpreted is dropped silently, and an unclosed
// fence yields nothing.
func ParseToolCalls(text string) []domain.ToolRequest {
	var calls []domain.ToolRequest

	pos := 0
	for {
		start := strings.Index(text[pos:], fenceOpen)
		if start < 0 {
			break
		}
		start += pos

		// The opening fence must sit alone on its line, modulo trailing
		// whitespace. Anything else (e.g. ```toolbox) is not a block.
		rest := text[start+len(fenceOpen):]
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			break
		}
		if strings.TrimSpace(rest[:nl]) != "" {
			pos = start + len(fenceOpen)
			continue
		}

		body := rest[nl+1:]
		end := strings.Index(body, "\n"+fenceClose)
		if end < 0 {
			break
		}

		if req, ok := parseBlockContent(body[:end]); ok {
			calls = append(calls, req)
		}
		pos = start + len(fenceOpen) + nl + 1 + end + 1 + len(fenceClose)
	}

	return calls
}

// parseBlockContent interprets the content of one fenced block. Two forms
// are accepted:
//
//  1. a JSON object whose "name" field is a string; "args" carries any JSON
//     value and defaults to an empty object when absent;
//  2. shorthand "name: args", split on the first colon, where args is parsed
//     as JSON when possible and kept as the raw string otherwise.
//
// Content matching neither form is rejected.
func parseBlockContent(content string) (domain.ToolRequest, bool) {
	// Try the structured form first.
	var doc struct {
		Name *string `json:"name"`
		Args any     `json:"args"`
	}
	if err := json.Unmarshal([]byte(content), &doc); err == nil && doc.Name != nil {
		args := doc.Args
		if args == nil {
			args = map[string]any{}
		}
		return domain.ToolRequest{Name: *doc.Name, Args: args}, true
	}

	// Fall back to shorthand.
	name, rawArgs, found := strings.Cut(content, ":")
	if !found {
		return domain.ToolRequest{}, false
	}
	name = strings.TrimSpace(name)
	rawArgs = strings.TrimSpace(rawArgs)

	var args any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		args = rawArgs
	}
	return domain.ToolRequest{Name: name, Args: args}, true
}

// FormatToolResult renders a tool result for splicing into the assistant
// reply. It is a pure function of its inputs: string data passes through
// unchanged, any other data is pretty-printed as JSON, and a failed result
// without an error message falls back to "unknown error".
func FormatToolResult(name string, result domain.ToolResult) string {
	if result.Success {
		body, ok := result.Data.(string)
		if !ok {
			pretty, err := json.MarshalIndent(result.Data, "", "  ")
			if err != nil {
				body = fmt.Sprintf("%v", result.Data)
			} else {
				body = string(pretty)
			}
		}
		return fmt.Sprintf("Tool `%s` succeeded:\n\n%s", name, body)
	}

	msg := result.Error
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("Tool `%s` failed:\n\n%s", name, msg)
}
