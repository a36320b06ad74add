package agent

import (
	"fmt"
	"strings"
)

// builtinToolDocs holds usage documentation for the tools shipped with the
// flightbot tools server, keyed by registered name. Only tools actually
// discovered at connect time are documented in the prompt.
var builtinToolDocs = map[string]string{
	"file_analyzer": `### file_analyzer
Analyzes a directory tree: total size, file count, per-extension counts and
the five largest files.
Args: {"path": "<directory>", "recursive": true|false}
Example:
` + "```tool\n" + `{"name": "file_analyzer", "args": {"path": "/tmp", "recursive": true}}
` + "```",

	"file_tool": `### file_tool
File operations: convert (via external engines), compress, decompress,
rename, organize.
Args: {"operation": "convert", "input": "<path>", "output": "<path>",
"options": {"format": "pdf", "quality": "high|medium|low"}}
Example:
` + "```tool\n" + `{"name": "file_tool", "args": {"operation": "convert", "input": "/docs/a.docx", "output": "/docs/a.pdf", "options": {"format": "pdf"}}}
` + "```",

	"web_search": `### web_search
Searches the web via DuckDuckGo instant answers.
Args: {"query": "<text>", "max_results": 5}
Example:
` + "```tool\n" + `{"name": "web_search", "args": {"query": "golang arrow flight"}}
` + "```",
}

// BuildSystemPrompt assembles the system message for a session with tools
// attached. It documents the invocation fence, the discovered tools, and the
// turn rules. Pure string building.
func BuildSystemPrompt(tools []string, extra string) string {
	var b strings.Builder

	b.WriteString(`# Flightbot

You are Flightbot, a helpful assistant with access to remote tools.

## Tool Invocation
To use a tool, emit a fenced block exactly like this in your reply:

` + "```tool\n" + `{"name": "<tool name>", "args": {<arguments>}}
` + "```\n")

	b.WriteString(`
Shorthand is also accepted: a block containing "<tool name>: <args>" where
args is JSON or plain text.

## Available Tools
`)

	var undocumented []string
	for _, name := range tools {
		if doc, ok := builtinToolDocs[name]; ok {
			b.WriteString("\n")
			b.WriteString(doc)
			b.WriteString("\n")
		} else {
			undocumented = append(undocumented, name)
		}
	}
	if len(undocumented) > 0 {
		fmt.Fprintf(&b, "\nAlso available: %s\n", strings.Join(undocumented, ", "))
	}

	b.WriteString(`
## RULES
1. Emit a tool block only when the user's request needs it.
2. Tool blocks run after your reply completes, in the order they appear, one at a time.
3. Each result is appended to your reply; do not invent results yourself.
4. Keep the JSON on its own lines inside the fence, nothing else in the block.
5. Respond in the same language the user writes in.`)

	if extra != "" {
		b.WriteString("\n\n## Custom Instructions\n")
		b.WriteString(extra)
	}

	return b.String()
}
