package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/carelinehq/notelink/internal/config"
	"github.com/carelinehq/notelink/internal/llm"
	"github.com/carelinehq/notelink/internal/mcp"
	"github.com/carelinehq/notelink/internal/pipeline"
	"github.com/carelinehq/notelink/internal/store"
	"github.com/carelinehq/notelink/internal/sync"
	"github.com/carelinehq/notelink/internal/table"
	"go.uber.org/zap"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "process":
		err = runProcess(os.Args[2:])
	case "sync":
		err = runSync(os.Args[2:])
	case "query":
		err = runQuery(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("notelink %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags splits args into positionals and --flag value pairs. Flags in
// boolFlags take no value.
func parseFlags(args []string, boolFlags map[string]bool) ([]string, map[string]string, error) {
	var positional []string
	flags := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			positional = append(positional, arg)
			continue
		}
		name := strings.TrimPrefix(arg, "--")
		if boolFlags[name] {
			flags[name] = "true"
			continue
		}
		if i+1 >= len(args) {
			return nil, nil, fmt.Errorf("flag --%s needs a value", name)
		}
		i++
		flags[name] = args[i]
	}
	return positional, flags, nil
}

func loadRegistry(flags map[string]string) (*config.Registry, error) {
	reg := config.DefaultRegistry()
	if overlay := flags["config"]; overlay != "" {
		if err := reg.LoadOverlay(overlay); err != nil {
			return nil, fmt.Errorf("loading config overlay: %w", err)
		}
	}
	return reg, nil
}

func openArchive(flags map[string]string) (*store.Store, error) {
	return store.Open(store.Config{DBPath: flags["db"]})
}

func runProcess(args []string) error {
	positional, flags, err := parseFlags(args, map[string]bool{"no-llm": true})
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("usage: notelink process <dir> [--out <dir>] [--db <path>] [--config <yaml>] [--llm provider/model] [--no-llm]")
	}

	reg, err := loadRegistry(flags)
	if err != nil {
		return err
	}
	archive, err := openArchive(flags)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	var provider llm.Provider
	if flags["no-llm"] == "" {
		cfg, err := llm.ParseModelFlag(flags["llm"])
		if err != nil {
			return err
		}
		provider, err = llm.NewProvider(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v — classifier fields take their fallbacks\n", err)
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	runner := pipeline.New(pipeline.Options{
		Registry: reg,
		Store:    archive,
		Provider: provider,
		OutDir:   flags["out"],
		Logger:   logger,
	})

	sum, err := runner.Run(context.Background(), positional[0])
	if err != nil {
		return err
	}
	fmt.Print(pipeline.FormatSummary(sum))
	return nil
}

func runSync(args []string) error {
	positional, flags, err := parseFlags(args, nil)
	if err != nil {
		return err
	}
	if len(positional) != 2 || flags["year"] == "" || flags["month"] == "" {
		return fmt.Errorf("usage: notelink sync <facility> <merged.csv> --year YYYY --month MM [--base-url <url>] [--db <path>] [--config <yaml>]")
	}

	reg, err := loadRegistry(flags)
	if err != nil {
		return err
	}
	facility, ok := reg.Facility(positional[0])
	if !ok {
		return fmt.Errorf("unknown facility %q", positional[0])
	}

	merged, err := table.ReadCSV(positional[1])
	if err != nil {
		return fmt.Errorf("reading merged table: %w", err)
	}

	archive, err := openArchive(flags)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	baseURL := flags["base-url"]
	if baseURL == "" {
		baseURL = os.Getenv("NOTELINK_SYNC_URL")
	}
	if baseURL == "" {
		return fmt.Errorf("no sync target: pass --base-url or set NOTELINK_SYNC_URL")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	uploader := &sync.Uploader{
		Store: &sync.HTTPStore{
			BaseURL:   baseURL,
			AuthToken: os.Getenv("NOTELINK_SYNC_TOKEN"),
		},
		Archive: archive,
		Log:     logger,
	}

	res, err := uploader.Upload(context.Background(), facility.DashboardKey, flags["year"], flags["month"], sync.RecordsFromTable(merged))
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded %d records for %s %s-%s (%d manual edits preserved, run %s)\n",
		res.Records, facility.DisplayName, flags["year"], flags["month"], res.Preserved, res.RunID)
	return nil
}

func runQuery(args []string) error {
	_, flags, err := parseFlags(args, nil)
	if err != nil {
		return err
	}

	archive, err := openArchive(flags)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	opts := store.QueryOpts{
		Facility: flags["facility"],
		Resident: flags["resident"],
		From:     flags["from"],
		To:       flags["to"],
	}
	if flags["limit"] != "" {
		limit, err := strconv.Atoi(flags["limit"])
		if err != nil {
			return fmt.Errorf("invalid --limit %q", flags["limit"])
		}
		opts.Limit = limit
	}

	incidents, err := archive.QueryIncidents(context.Background(), opts)
	if err != nil {
		return err
	}
	if len(incidents) == 0 {
		fmt.Println("No incidents found.")
		return nil
	}
	for _, inc := range incidents {
		fmt.Printf("%s %s  %-30s %-40s %s\n", inc.Date, inc.Time, inc.Resident, inc.Type, inc.Injuries)
	}
	fmt.Printf("\n%d incident(s)\n", len(incidents))
	return nil
}

func runStats(args []string) error {
	_, flags, err := parseFlags(args, nil)
	if err != nil {
		return err
	}

	archive, err := openArchive(flags)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	stats, err := archive.IncidentStats(context.Background(), flags["facility"])
	if err != nil {
		return err
	}

	fmt.Printf("Incidents:      %d\n", stats.Incidents)
	fmt.Printf("Notes:          %d\n", stats.Notes)
	fmt.Printf("With injuries:  %d\n", stats.WithInjuries)
	if stats.FirstIncident != "" {
		fmt.Printf("Date range:     %s to %s\n", stats.FirstIncident, stats.LastIncident)
	}
	if len(stats.ByType) > 0 {
		fmt.Println("By type:")
		for typ, count := range stats.ByType {
			fmt.Printf("  %-45s %d\n", typ, count)
		}
	}
	return nil
}

func runServe(args []string) error {
	_, flags, err := parseFlags(args, nil)
	if err != nil {
		return err
	}

	archive, err := openArchive(flags)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	srv := mcp.NewServer(mcp.ServerConfig{Store: archive, Version: version})
	return mcp.ServeStdio(srv)
}

func printUsage() {
	fmt.Printf(`notelink %s — incident note correlation and field extraction

Usage:
  notelink <command> [arguments]

Commands:
  process <dir>              Process exported note files: segment, enrich,
                             deduplicate, merge, and write output tables
  sync <facility> <csv>      Upload a merged table to the dashboard store
  query                      Query archived incidents
  stats                      Show archive statistics
  serve                      Serve archive tools over MCP (stdio)
  version                    Print version
  help                       Show this help

Common flags:
  --db <path>                Archive database path (default %s)
  --config <yaml>            Facility registry overlay file
  --out <dir>                Output directory for process
  --llm provider/model       Classifier model (default openai/gpt-4o-mini)
  --no-llm                   Disable the classifier; fields take fallbacks

Environment:
  OPENAI_API_KEY             Classifier key for the openai provider
  OPENROUTER_API_KEY         Classifier key for the openrouter provider
  NOTELINK_SYNC_URL          Dashboard document-store base URL
  NOTELINK_SYNC_TOKEN        Dashboard bearer token
`, version, store.DefaultDBPath)
}
