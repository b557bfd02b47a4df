package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/recall/internal/mcp"
)

// runMCP serves Recall tools over stdio until the client disconnects.
// Anything human-readable goes to stderr; stdout carries the protocol.
func runMCP(args []string) error {
	common, rest := parseCommon(args)
	if len(rest) > 0 {
		return fmt.Errorf("unknown argument: %s", rest[0])
	}

	rc, err := resolveConfig(common)
	if err != nil {
		return err
	}
	s, err := openStore(rc)
	if err != nil {
		return err
	}
	defer s.Close()

	embedder, err := buildEmbedder(rc)
	if err != nil {
		return fmt.Errorf("building embedder: %w", err)
	}

	cfg := mcp.ServerConfig{
		Store:       s,
		Embedder:    embedder,
		SessionsDir: rc.SessionsDir.Value,
		Version:     version,
	}
	if provider, err := buildProvider(rc, "expand", defaultExpandModel); err == nil {
		cfg.Provider = provider
	} else {
		fmt.Fprintf(os.Stderr, "query expansion disabled: %v\n", err)
	}

	return server.ServeStdio(mcp.NewServer(cfg))
}
