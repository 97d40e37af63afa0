package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cexll/jiralabel/internal/highlight"
	"github.com/cexll/jiralabel/internal/labels"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// TextParams is the input of the text-based tools.
type TextParams struct {
	Text string `json:"text" jsonschema:"Issue description or any free text to scan for research project keywords"`
}

// ListLabelsParams is the (empty) input of list_labels.
type ListLabelsParams struct{}

type labelInfo struct {
	Label    string   `json:"label"`
	Sentinel bool     `json:"sentinel"`
	Keywords []string `json:"keywords"`
}

type suggestion struct {
	Suggestions []string `json:"suggestions"`
	Matches     []string `json:"matches"`
}

// Tools serves the label tools from one keyword table.
type Tools struct {
	rules *labels.Rules
	hl    *highlight.Highlighter
}

// NewTools compiles rules into a tool set.
func NewTools(rules *labels.Rules) (*Tools, error) {
	hl, err := highlight.New(rules)
	if err != nil {
		return nil, err
	}
	return &Tools{rules: rules, hl: hl}, nil
}

// Register adds every tool to server.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest_labels",
		Description: "Suggest research project labels for a text based on keyword occurrences",
	}, t.HandleSuggestLabels)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "highlight_text",
		Description: "Return the text with every research project keyword wrapped in <mark> tags",
	}, t.HandleHighlightText)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_labels",
		Description: "List the research project labels and their keywords",
	}, t.HandleListLabels)
	log.Println("[MCP Label Server] Registered tools: suggest_labels, highlight_text, list_labels")
}

// HandleSuggestLabels handles the suggest_labels tool call.
func (t *Tools) HandleSuggestLabels(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params TextParams,
) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Text) == "" {
		return nil, nil, fmt.Errorf("text parameter is required")
	}

	out := suggestion{Suggestions: []string{}, Matches: []string{}}
	for _, l := range t.hl.Suggestions(params.Text) {
		out.Suggestions = append(out.Suggestions, string(l))
	}
	seen := make(map[string]bool)
	for _, seg := range t.hl.Segments(params.Text) {
		key := strings.ToLower(seg.Text)
		if seg.Match && !seen[key] {
			seen[key] = true
			out.Matches = append(out.Matches, seg.Text)
		}
	}
	log.Printf("[MCP Label Server] suggest_labels: %d characters, %d suggestions", len(params.Text), len(out.Suggestions))
	return jsonResult(out)
}

// HandleHighlightText handles the highlight_text tool call.
func (t *Tools) HandleHighlightText(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params TextParams,
) (*mcp.CallToolResult, any, error) {
	if params.Text == "" {
		return nil, nil, fmt.Errorf("text parameter is required")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: t.hl.Render(params.Text)},
		},
	}, nil, nil
}

// HandleListLabels handles the list_labels tool call.
func (t *Tools) HandleListLabels(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params ListLabelsParams,
) (*mcp.CallToolResult, any, error) {
	var out []labelInfo
	for _, l := range labels.All() {
		kw := t.rules.Keywords(l)
		if kw == nil {
			kw = []string{}
		}
		out = append(out, labelInfo{Label: string(l), Sentinel: l.IsSentinel(), Keywords: kw})
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)},
			},
			IsError: true,
		}, nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}
