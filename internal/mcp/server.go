// Package mcp exposes the incident archive over the Model Context Protocol.
//
// It registers read-only tools (incident_query, incident_stats, sync_status)
// plus an archive stats resource, so dashboard assistants can answer questions
// about processed incidents without touching the pipeline. Stdio transport
// only; the archive is local SQLite.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/carelinehq/notelink/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store   *store.Store
	Version string // version string for MCP server info
}

// dbMu serializes MCP tool calls that touch the archive.
// The mcp-go library dispatches handlers concurrently via goroutines, and
// SQLite supports only one writer at a time; a single mutex keeps query
// results consistent when a pipeline run is writing in the same process.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all archive tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Notelink",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerQueryTool(s, cfg.Store)
	registerStatsTool(s, cfg.Store)
	registerSyncStatusTool(s, cfg.Store)

	registerStatsResource(s, cfg.Store)

	return s
}

// ServeStdio blocks serving the MCP protocol over stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// --- Tools ---

func registerQueryTool(s *server.MCPServer, st *store.Store) {
	tool := mcp.NewTool("incident_query",
		mcp.WithDescription("Query archived incidents. Returns enriched incident rows (injuries, who affected, summary, follow-up notes) with newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("facility",
			mcp.Description("Facility key (e.g. 'oakridge'). Empty = all facilities."),
		),
		mcp.WithString("resident",
			mcp.Description("Resident name filter (case-insensitive partial match)"),
		),
		mcp.WithString("from",
			mcp.Description("Earliest incident date, YYYY-MM-DD inclusive"),
		),
		mcp.WithString("to",
			mcp.Description("Latest incident date, YYYY-MM-DD inclusive"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of incidents (default: 100, max: 500)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		opts := store.QueryOpts{}
		if v, err := req.RequireString("facility"); err == nil {
			opts.Facility = v
		}
		if v, err := req.RequireString("resident"); err == nil {
			opts.Resident = v
		}
		if v, err := req.RequireString("from"); err == nil {
			opts.From = v
		}
		if v, err := req.RequireString("to"); err == nil {
			opts.To = v
		}
		if v, err := req.RequireFloat("limit"); err == nil {
			limit := int(v)
			if limit > 500 {
				limit = 500
			}
			if limit > 0 {
				opts.Limit = limit
			}
		}

		incidents, err := st.QueryIncidents(ctx, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query error: %v", err)), nil
		}

		payload := map[string]interface{}{
			"incidents": incidents,
			"count":     len(incidents),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, st *store.Store) {
	tool := mcp.NewTool("incident_stats",
		mcp.WithDescription("Get archive statistics: incident and note counts, incidents by type, incidents with injuries, and date range covered."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("facility",
			mcp.Description("Facility key to scope stats to. Empty = all facilities."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		facility := ""
		if v, err := req.RequireString("facility"); err == nil {
			facility = v
		}

		stats, err := st.IncidentStats(ctx, facility)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerSyncStatusTool(s *server.MCPServer, st *store.Store) {
	tool := mcp.NewTool("sync_status",
		mcp.WithDescription("Get the most recent dashboard upload for a facility and month: record counts, preserved manual edits, and completion status."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("facility",
			mcp.Required(),
			mcp.Description("Facility key (e.g. 'oakridge')"),
		),
		mcp.WithString("year",
			mcp.Required(),
			mcp.Description("Four-digit year (e.g. '2024')"),
		),
		mcp.WithString("month",
			mcp.Required(),
			mcp.Description("Two-digit month (e.g. '01')"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		facility, err := req.RequireString("facility")
		if err != nil {
			return mcp.NewToolResultError("facility is required"), nil
		}
		year, err := req.RequireString("year")
		if err != nil {
			return mcp.NewToolResultError("year is required"), nil
		}
		month, err := req.RequireString("month")
		if err != nil {
			return mcp.NewToolResultError("month is required"), nil
		}

		run, err := st.LastSyncRun(ctx, facility, year, month)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("sync status error: %v", err)), nil
		}
		if run == nil {
			return mcp.NewToolResultText(fmt.Sprintf("no uploads recorded for %s %s-%s", facility, year, month)), nil
		}

		payload := map[string]interface{}{
			"id":          run.ID,
			"facility":    run.Facility,
			"year":        run.Year,
			"month":       run.Month,
			"records":     run.Records,
			"preserved":   run.Preserved,
			"status":      run.Status,
			"started_at":  run.StartedAt,
			"finished_at": run.FinishedAt,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Resources ---

func registerStatsResource(s *server.MCPServer, st *store.Store) {
	resource := mcp.NewResource(
		"notelink://stats",
		"Archive Statistics",
		mcp.WithResourceDescription("Incident archive statistics across all facilities."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.IncidentStats(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("stats resource: %w", err)
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
