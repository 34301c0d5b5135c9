package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"swissdamed/internal/app"
	"swissdamed/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	if len(args) < 1 {
		usage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return 0
	case "build":
		return runBuild(ctx, args[1:])
	case "diff":
		return runDiff(args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	case "mcp":
		return runMCP(ctx, args[1:])
	case "history":
		return runHistory(args[1:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		usage(os.Stderr)
		return 2
	}
}

// loadConfig reads the config file (and SWISSDAMED_* overrides), then
// lets apply adjust it from flags before validating.
func loadConfig(path string, apply func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(path, os.Getenv)
	if err != nil {
		return nil, err
	}
	if apply != nil {
		apply(cfg)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setFlags collects the names of flags given on the command line, so
// flag defaults never override the config file.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func runBuild(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file (default swissdamed.yaml if present; env: SWISSDAMED_CONFIG)")
	csvOut := fs.Bool("csv", false, "Write the CSV artifact")
	sqliteOut := fs.Bool("sqlite", false, "Write the SQLite artifact")
	deploy := fs.Bool("deploy", false, "Upload the SQLite artifact to deploy.target (implies --sqlite)")
	publish := fs.Bool("publish", false, "Copy the table into every database listed under publish")
	migelOut := fs.Bool("migel", false, "Also write <prefix>_migel_DD.MM.YYYY.db with rows matched to the MiGeL list")
	migelFile := fs.String("migel-file", "", "Local MiGeL workbook instead of downloading (env: SWISSDAMED_MIGEL_FILE)")
	file := fs.String("file", "", "Read a local JSON snapshot instead of downloading")
	fromCSV := fs.String("from-csv", "", "Rebuild from a previously written CSV artifact")
	url := fs.String("url", "", "Listing endpoint (env: SWISSDAMED_URL)")
	outputDir := fs.String("output-dir", "", "Artifact directory (env: SWISSDAMED_OUTPUT_DIR)")
	pageSize := fs.Int("page-size", 0, "Records per page (env: SWISSDAMED_PAGE_SIZE)")
	concurrency := fs.Int("concurrency", 0, "Pages fetched concurrently (env: SWISSDAMED_CONCURRENCY)")
	maxPages := fs.Int("max-pages", 0, "Stop after this many pages, 0 for all")
	timeout := fs.Duration("timeout", 0, "Per-request timeout (env: SWISSDAMED_TIMEOUT)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	set := setFlags(fs)

	cfg, err := loadConfig(*configPath, func(c *config.Config) {
		if set["csv"] {
			c.Outputs.CSV = *csvOut
		}
		if set["sqlite"] {
			c.Outputs.SQLite = *sqliteOut
		}
		if set["file"] {
			c.Source.File = *file
		}
		if set["from-csv"] {
			c.Source.CSV = *fromCSV
		}
		if set["url"] {
			c.Source.URL = *url
		}
		if set["output-dir"] {
			c.OutputDir = *outputDir
		}
		if set["page-size"] {
			c.Source.PageSize = *pageSize
		}
		if set["concurrency"] {
			c.Source.Concurrency = *concurrency
		}
		if set["max-pages"] {
			c.Source.MaxPages = *maxPages
		}
		if set["timeout"] {
			c.Source.Timeout = *timeout
		}
		if set["migel-file"] {
			c.Migel.File = *migelFile
		}
		if *deploy {
			c.Deploy.Enabled = true
		}
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	a := app.New(cfg, os.Getenv)
	defer a.Close()

	res, err := a.Build(ctx, app.BuildOptions{Deploy: cfg.Deploy.Enabled, Publish: *publish, Migel: *migelOut})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		return 1
	}
	for _, art := range res.Artifacts {
		_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", art.Encoder, art.Path)
	}
	return 0
}

func runDiff(args []string) int {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file")
	diffDir := fs.String("out-dir", "", "Directory for the diff report (default diff)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		_, _ = fmt.Fprintln(os.Stderr, "diff requires OLD.csv NEW.csv")
		return 2
	}

	cfg, err := loadConfig(*configPath, func(c *config.Config) {
		if *diffDir != "" {
			c.DiffDir = *diffDir
		}
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	a := app.New(cfg, os.Getenv)
	defer a.Close()
	out, _, err := a.Diff(fs.Arg(0), fs.Arg(1))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "diff failed: %v\n", err)
		return 1
	}
	if out != "" {
		_, _ = fmt.Fprintln(os.Stdout, out)
	}
	return 0
}

func runServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file")
	cronExpr := fs.String("cron", "", "Rebuild on this cron schedule (env: SWISSDAMED_CRON)")
	watch := fs.Bool("watch", false, "Rebuild when source.file changes (env: SWISSDAMED_WATCH)")
	now := fs.Bool("now", false, "Build once at startup")
	deploy := fs.Bool("deploy", false, "Deploy after every successful build")
	publish := fs.Bool("publish", false, "Publish after every successful build")
	migelOut := fs.Bool("migel", false, "Write the MiGeL match database after every successful build")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath, func(c *config.Config) {
		if *cronExpr != "" {
			c.Schedule.Cron = *cronExpr
		}
		if *watch {
			c.Schedule.Watch = true
		}
		if *deploy {
			c.Deploy.Enabled = true
		}
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	a := app.New(cfg, os.Getenv)
	defer a.Close()
	err = a.Serve(ctx, app.ServeOptions{
		BuildOptions: app.BuildOptions{Deploy: cfg.Deploy.Enabled, Publish: *publish, Migel: *migelOut},
		RunOnStart:   *now,
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "serve failed: %v\n", err)
		return 1
	}
	return 0
}

func runMCP(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file")
	dbPath := fs.String("db", "", "SQLite artifact (default: newest in output_dir)")
	builds := fs.Bool("builds", false, "Expose rebuild_catalog and list_builds")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath, nil)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	a := app.New(cfg, os.Getenv)
	defer a.Close()
	if err := a.ServeMCP(ctx, *dbPath, *builds); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "mcp failed: %v\n", err)
		return 1
	}
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file")
	limit := fs.Int("limit", 20, "Number of builds to show")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath, nil)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	a := app.New(cfg, os.Getenv)
	defer a.Close()
	runs, err := a.History(*limit)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "history failed: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(runs); err != nil {
			return 1
		}
		return 0
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tTRIGGER\tSTATUS\tRECORDS\tROWS\tDURATION\tERROR")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Trigger, r.Status,
			r.Records, r.Rows, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.Error)
	}
	_ = tw.Flush()
	return 0
}

func usage(w io.Writer) {
	_, _ = fmt.Fprint(w, `swissdamed flattens the swissdamed basic-UDI catalog into CSV and SQLite.

Usage:
  swissdamed build   [--csv] [--sqlite] [--deploy] [--publish] [--migel [--migel-file F]]
                     [--file F | --from-csv F] [--config F]
  swissdamed diff    [--out-dir D] OLD.csv NEW.csv
  swissdamed serve   [--cron EXPR] [--watch] [--now] [--deploy] [--publish] [--migel]
  swissdamed mcp     [--db FILE] [--builds]
  swissdamed history [--limit N] [--json]
  swissdamed help

Without --csv or --sqlite both artifacts are written; --deploy implies --sqlite.
Artifacts are named <prefix>_DD.MM.YYYY.{csv,db} in output_dir. --migel also
writes <prefix>_migel_DD.MM.YYYY.db holding only the rows matched to a MiGeL
position, with migel_code, migel_bezeichnung and migel_limitation appended.

Exit codes: 0 success, 1 run failure, 2 usage or configuration error.
`)
}
