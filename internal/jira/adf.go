package jira

import (
	"encoding/json"
	"strings"
)

// NoDescription is returned for issues without readable description text.
const NoDescription = "No description available"

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

// DescriptionText flattens an Atlassian Document Format description into
// plain text: text nodes in document order, separated by single spaces.
// A plain string description is returned as is.
func DescriptionText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return NoDescription
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
		return NoDescription
	}

	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return NoDescription
	}

	var parts []string
	var walk func(nodes []adfNode)
	walk = func(nodes []adfNode) {
		for _, n := range nodes {
			if n.Type == "text" {
				parts = append(parts, n.Text)
				continue
			}
			walk(n.Content)
		}
	}
	walk(doc.Content)

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return NoDescription
	}
	return text
}
