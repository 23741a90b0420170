// Package main is the entry point for the solardb-import CLI tool.
//
// solardb-import reads a utility Green Button interval export and a daily
// solar production CSV and upserts them, one row per day, into the sdge and
// sunrun tables of a solardb data directory. Run it while the server is
// stopped, or rely on the server reloading table files changed on disk.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/maruel/solardb/internal/config"
	"github.com/maruel/solardb/internal/history"
	"github.com/maruel/solardb/internal/jsonldb"
	"github.com/maruel/solardb/internal/records"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "solardb-import: %v\n", err)
		os.Exit(1)
	}
}

type source struct {
	table string
	path  string
	parse func(*os.File) ([]jsonldb.Record, error)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("solardb-import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("data-dir", "./data", "Data directory")
	usagePath := fs.String("sdge", "", "Green Button interval CSV to import into the usage table")
	productionPath := fs.String("sunrun", "", "Daily production CSV to import into the production table")
	useGit := fs.Bool("git", true, "Commit the import to git")
	dryRun := fs.Bool("dry-run", false, "Print the parsed records as JSON without importing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unknown arguments: %v", fs.Args())
	}
	if *usagePath == "" && *productionPath == "" {
		return errors.New("at least one of -sdge or -sunrun is required")
	}

	// Read only: a dry run must not create files, yet must bill holidays
	// like a real import.
	cfg, err := config.Read(*dataDir)
	if err != nil {
		return err
	}
	holidays := cfg.Holidays

	var sources []source
	if *usagePath != "" {
		sources = append(sources, source{records.TableUsage, *usagePath, func(f *os.File) ([]jsonldb.Record, error) {
			return records.ParseGreenButton(f, holidays)
		}})
	}
	if *productionPath != "" {
		sources = append(sources, source{records.TableProduction, *productionPath, func(f *os.File) ([]jsonldb.Record, error) {
			return records.ParseProduction(f)
		}})
	}

	parsed := make(map[string][]jsonldb.Record, len(sources))
	for _, s := range sources {
		recs, err := parseFile(s)
		if err != nil {
			return err
		}
		parsed[s.table] = recs
		fmt.Fprintf(stderr, "%s: %d days from %s\n", s.table, len(recs), s.path)
	}
	if *dryRun {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(parsed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	layout, err := records.LoadLayout(filepath.Join(*dataDir, "layout.yaml"))
	if err != nil {
		return err
	}
	store := jsonldb.Open(filepath.Join(*dataDir, "db"))
	if err := layout.Ensure(store); err != nil {
		return fmt.Errorf("failed to initialize tables: %w", err)
	}

	// Partial imports are committed too; the rows before a bad record stay.
	var applyErr error
	apply := func() (string, []string, error) {
		var files []string
		for _, s := range sources {
			n, err := store.BulkUpsert(s.table, parsed[s.table], "")
			if n > 0 {
				files = append(files, filepath.ToSlash(filepath.Join("db", filepath.Base(store.Path(s.table)))))
			}
			fmt.Fprintf(stderr, "%s: %d rows upserted\n", s.table, n)
			if err != nil {
				applyErr = fmt.Errorf("%s: %w", s.table, err)
				break
			}
		}
		return "Import CSV", files, nil
	}
	if !*useGit {
		_, _, _ = apply()
		return applyErr
	}
	repo, err := history.Open(*dataDir, "solardb-import", "solardb@localhost")
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	if err := repo.CommitTx(ctx, history.Author{}, apply); err != nil {
		return err
	}
	return applyErr
}

func parseFile(s source) ([]jsonldb.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	recs, err := s.parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return recs, nil
}
