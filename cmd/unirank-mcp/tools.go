package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func handleGetRankings(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := c.rankings(ctx, request.GetString("publisher", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatRankings(resp)), nil
	}
}

func handleRefresh(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		publishers := request.GetStringSlice("publishers", nil)

		run, err := c.startRun(ctx, publishers)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("refresh not started: %v", err)), nil
		}
		if !request.GetBool("wait", false) {
			return mcp.NewToolResultText(fmt.Sprintf("Refresh %s started for %s.", run.ID, strings.Join(run.Publishers, ", "))), nil
		}

		st, err := c.waitRun(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("waiting for refresh %s: %v", run.ID, err)), nil
		}
		return mcp.NewToolResultText(formatRunStatus(st)), nil
	}
}

func handleRunStatus(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := c.currentRun(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatRunStatus(st)), nil
	}
}

func formatRankings(r *rankingsResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "University: %s\n", r.University)
	if r.UpdatedAt != nil {
		fmt.Fprintf(&sb, "Updated: %s\n", r.UpdatedAt.UTC().Format(time.RFC3339))
	}

	publishers := make([]string, 0, len(r.Rankings))
	for p := range r.Rankings {
		publishers = append(publishers, p)
	}
	sort.Strings(publishers)

	for _, p := range publishers {
		years := make([]string, 0, len(r.Rankings[p]))
		for y := range r.Rankings[p] {
			years = append(years, y)
		}
		sort.Strings(years)

		fmt.Fprintf(&sb, "\n%s\n", p)
		for _, y := range years {
			rank := "-"
			if v := r.Rankings[p][y]; v != nil {
				rank = *v
			}
			fmt.Fprintf(&sb, "  %s: %s\n", y, rank)
		}
	}
	return sb.String()
}

func formatRunStatus(st *runStatusResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s: %s (%d/%d years)\n", st.ID, st.Status, st.Completed, st.Total)
	fmt.Fprintf(&sb, "Publishers: %s\n", strings.Join(st.Publishers, ", "))
	fmt.Fprintf(&sb, "Started: %s\n", st.StartedAt.UTC().Format(time.RFC3339))
	if st.FinishedAt != nil {
		fmt.Fprintf(&sb, "Finished: %s\n", st.FinishedAt.UTC().Format(time.RFC3339))
	}
	if st.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", st.Error)
	}
	return sb.String()
}
