package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cexll/jiralabel/internal/labels"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	_ = godotenv.Load()

	// Logs go to stderr; stdout carries the protocol.
	log.SetOutput(os.Stderr)
	log.Println("[MCP Label Server] Starting research label MCP server v1.0.0")

	keywordsFile := os.Getenv("KEYWORDS_FILE")
	rules, err := labels.LoadRules(keywordsFile)
	if err != nil {
		log.Fatalf("[MCP Label Server] Failed to load keyword rules: %v", err)
	}
	if keywordsFile != "" {
		log.Printf("[MCP Label Server] Keyword file: %s", keywordsFile)
	}

	tools, err := NewTools(rules)
	if err != nil {
		log.Fatalf("[MCP Label Server] Failed to compile keyword rules: %v", err)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "research-label-server",
		Version: "v1.0.0",
	}, nil)
	tools.Register(server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[MCP Label Server] Received shutdown signal")
		cancel()
	}()

	log.Println("[MCP Label Server] Starting on stdio transport...")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("[MCP Label Server] Server error: %v", err)
	}
	log.Println("[MCP Label Server] Server stopped gracefully")
}
