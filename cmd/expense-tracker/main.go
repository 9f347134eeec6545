package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-tracker/internal/engine"
	"github.com/zombor/expense-tracker/internal/receipt"
	"github.com/zombor/expense-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	opts, fs, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if opts.showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := engine.SetupLogging(opts.logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(opts.dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	engines, err := engine.NewProvider(opts.engine)
	if err != nil {
		slog.Error("Failed to initialize recognition engine", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(opts.storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	pipeline := scanning.NewPipeline(engines, opts.timeout)
	service := receipt.NewService(db, pipeline, store)

	basicAuth := receipt.BasicAuth{
		Username: opts.authUser,
		Password: opts.authPass,
	}
	server := receipt.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", opts.port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "engine", opts.engine.Kind, "version", version)
	if opts.authUser != "" || opts.authPass != "" {
		slog.Info("Basic auth enabled", "user", opts.authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// options holds the server's parsed command line and environment
type options struct {
	engine      engine.Config
	port        int
	dbPath      string
	storagePath string
	timeout     time.Duration
	logLevel    string
	authUser    string
	authPass    string
	showVersion bool
}

// parseOptions reads flags from args, then EXPENSE_TRACKER_* env vars
func parseOptions(args []string) (*options, *ff.FlagSet, error) {
	var opts options
	fs := ff.NewFlagSet("expense-tracker")
	opts.engine.RegisterFlags(fs)
	fs.IntVar(&opts.port, 0, "port", 8080, "HTTP server port")
	fs.StringVar(&opts.dbPath, 0, "db", "expense-tracker.db", "Database file path")
	fs.StringVar(&opts.storagePath, 0, "storage", "./receipts", "Storage directory path")
	fs.DurationVar(&opts.timeout, 0, "recognition-timeout", 0, "Per-receipt recognition timeout (0 for none)")
	fs.StringVar(&opts.logLevel, 0, "log-level", "info", "Log level: debug, info, warn or error")
	fs.StringVar(&opts.authUser, 0, "auth-user", "", "Basic auth username (optional)")
	fs.StringVar(&opts.authPass, 0, "auth-pass", "", "Basic auth password (optional)")
	fs.BoolVar(&opts.showVersion, 0, "version", "Show version information")

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("EXPENSE_TRACKER"),
	); err != nil {
		return nil, fs, err
	}
	return &opts, fs, nil
}
