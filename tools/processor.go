// Tool-call processing for LLM responses.
//
// Two paths feed into the same execution pipeline: structured tool
// calls reported by the provider API, and inline calls that models
// without structured support emit as fenced blocks:
//
//	```tool
//	read_file
//	path: /tmp/notes.txt
//	```
//
// Either way, results are appended to the response text as
// "Tool: <name>" / "Result: <output>" sections, with failures contained
// as "Error: <message>" results. Tool trouble never aborts a response.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/IC-Administrator/adept/internal/argparse"
	"github.com/IC-Administrator/adept/llm"
)

// toolFence matches inline tool invocation blocks. The first line of
// the body names the tool; the rest is its arguments.
var toolFence = regexp.MustCompile("(?s)```tool\\s*\\n(.*?)```")

// Processor executes the tool calls carried by a response.
type Processor struct {
	registry *Registry
	executor *Executor
}

// NewProcessor creates a processor over a registry with default
// executor configuration.
func NewProcessor(registry *Registry) *Processor {
	return &Processor{
		registry: registry,
		executor: NewDefaultExecutor(registry),
	}
}

// WithExecutor overrides the executor.
func (p *Processor) WithExecutor(executor *Executor) *Processor {
	p.executor = executor
	return p
}

// Registry exposes the underlying registry for definition lookups.
func (p *Processor) Registry() *Registry {
	return p.registry
}

// Process runs every tool call in the response. Structured calls take
// precedence; the inline fenced-block scan only runs when the provider
// reported none. The returned response carries the original text with
// tool results appended.
func (p *Processor) Process(ctx context.Context, response llm.Response) llm.Response {
	if len(response.ToolCalls) > 0 {
		for _, call := range response.ToolCalls {
			result := p.run(ctx, call.Name, call.Arguments)
			response.Message.Content = appendResult(response.Message.Content, call.Name, result)
		}
		return response
	}

	// Each fenced block is rewritten in place: the original call stays,
	// its result follows, and surrounding text is left untouched.
	response.Message.Content = toolFence.ReplaceAllStringFunc(response.Message.Content, func(block string) string {
		body := toolFence.FindStringSubmatch(block)[1]
		name, args, err := parseInlineCall(body)
		if err != nil {
			return appendResult(block, name, FailureResult(err))
		}
		return appendResult(block, name, p.run(ctx, name, args))
	})

	return response
}

// run executes a single call, containing panics as failed results.
func (p *Processor) run(ctx context.Context, name string, args json.RawMessage) (result ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = FailureResultf("tool '%s' panicked: %v", name, r)
		}
	}()
	return p.executor.Run(ctx, name, args)
}

// parseInlineCall splits a fenced block body into tool name and JSON
// arguments. Argument text may be JSON or loose key:value lines.
func parseInlineCall(body string) (string, json.RawMessage, error) {
	body = strings.TrimSpace(body)
	name, rest, _ := strings.Cut(body, "\n")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("tool block is missing a tool name")
	}

	args, err := argparse.Parse(rest)
	if err != nil {
		return name, nil, fmt.Errorf("unparseable arguments for '%s': %w", name, err)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return name, nil, fmt.Errorf("encode arguments for '%s': %w", name, err)
	}
	return name, raw, nil
}

// appendResult attaches a tool outcome to the response text.
func appendResult(content, name string, result ToolResult) string {
	if name == "" {
		name = "unknown"
	}
	return content + fmt.Sprintf("\n\nTool: %s\nResult: %s", name, result.Text())
}
