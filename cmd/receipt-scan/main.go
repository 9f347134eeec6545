// receipt-scan runs the extraction pipeline on one image and prints the
// result as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-tracker/internal/engine"
	"github.com/zombor/expense-tracker/internal/scanning"
)

func main() {
	fs := ff.NewFlagSet("receipt-scan")
	var engineCfg engine.Config
	engineCfg.RegisterFlags(fs)
	var (
		category = fs.StringLong("default-category", "", "Category to use when no keyword matches")
		timeout  = fs.DurationLong("recognition-timeout", 0, "Recognition timeout (0 for none)")
		logLevel = fs.StringLong("log-level", "warn", "Log level: debug, info, warn or error")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_TRACKER"),
	); err != nil || len(fs.GetArgs()) != 1 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs, "receipt-scan [flags] <image>"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(2)
	}

	if err := engine.SetupLogging(*logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	path := fs.GetArgs()[0]
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read image", "path", path, "error", err)
		os.Exit(1)
	}

	engines, err := engine.NewProvider(engineCfg)
	if err != nil {
		slog.Error("Failed to initialize recognition engine", "error", err)
		os.Exit(1)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	pipeline := scanning.NewPipeline(engines, *timeout)
	result, err := pipeline.Extract(context.Background(), scanning.RawImage{Data: data, ContentType: contentType}, scanning.Category(*category))
	if err != nil {
		slog.Error("Failed to scan receipt", "path", path, "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		slog.Error("Error encoding result", "error", err)
		os.Exit(1)
	}
}
