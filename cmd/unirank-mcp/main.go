package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("UNIRANK_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("UNIRANK_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "UNIRANK_API_KEY is required")
		os.Exit(1)
	}

	c := newClient(apiURL, apiKey)

	s := server.NewMCPServer(
		"unirank",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	getRankingsTool := mcp.NewTool("get_rankings",
		mcp.WithDescription("Return the stored yearly ranking positions of the tracked university, per publisher. Years without a known position are shown as '-'."),
		mcp.WithString("publisher",
			mcp.Description("Restrict the answer to one publisher"),
			mcp.Enum("leiden", "scimago", "times", "shanghai", "isc"),
		),
	)
	s.AddTool(getRankingsTool, handleGetRankings(c))

	refreshTool := mcp.NewTool("refresh_rankings",
		mcp.WithDescription("Start a background refresh that re-scrapes publisher listings and merges new positions into the stored record. Known positions are never erased."),
		mcp.WithArray("publishers",
			mcp.Description("Publishers to refresh (default: all enabled)"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Block until the refresh finishes (default: false)"),
		),
	)
	s.AddTool(refreshTool, handleRefresh(c))

	statusTool := mcp.NewTool("run_status",
		mcp.WithDescription("Report the progress of the latest refresh."),
	)
	s.AddTool(statusTool, handleRunStatus(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
