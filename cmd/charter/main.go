// Command charter runs governance scenarios against a fresh kernel, exports
// audit bundles, and verifies them independently.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/covenantworks/charter/pkg/config"
	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/kernel"
	"github.com/covenantworks/charter/pkg/ledger"
	"github.com/covenantworks/charter/pkg/scenario"
	"github.com/covenantworks/charter/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "run":
		return runCmd(args[2:], stdout, stderr)
	case "export":
		return exportCmd(args[2:], stdout, stderr)
	case "verify":
		return verifyCmd(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: charter <run|export|verify> [flags]")
	_, _ = fmt.Fprintln(w, "  run     -scenario <file> [-db <path>] [-snapshot]")
	_, _ = fmt.Fprintln(w, "  export  -scenario <file> [-out <file>]")
	_, _ = fmt.Fprintln(w, "  verify  -bundle <file>")
}

func newKernel(dbPath string) (*kernel.Kernel, error) {
	cfg := config.Load()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := kernel.Options{
		Constitution: constitution.Config{
			AdminActor:    cfg.AdminActor,
			RecoveryToken: cfg.RecoveryToken,
			ActorExact:    []string{cfg.AdminActor},
			ActorPrefixes: []string{"engine/", "member/"},
		},
		Logger: logger,
	}

	if dbPath == "" {
		dbPath = cfg.DatabasePath
	}
	if dbPath != "" {
		db, err := store.Open(dbPath)
		if err != nil {
			return nil, err
		}
		blob, err := store.NewSQLiteBlobStore(db, "")
		if err != nil {
			return nil, err
		}
		loaded, err := blob.Load(context.Background())
		if err != nil {
			return nil, err
		}
		opts.LoadedState = loaded
		opts.Persist = blob
	}

	k, err := kernel.New(opts)
	if err != nil {
		return nil, err
	}

	if cfg.AuditSinkPath != "" {
		f, err := os.OpenFile(cfg.AuditSinkPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("audit sink: %w", err)
		}
		k.Trail().WithSink(f)
	}
	return k, nil
}

func runScenario(path, dbPath string) (*kernel.Kernel, *scenario.Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	s, err := scenario.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	k, err := newKernel(dbPath)
	if err != nil {
		return nil, nil, err
	}
	out, err := s.Run(context.Background(), k)
	if err != nil {
		return nil, nil, err
	}
	return k, out, nil
}

func runCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	scenarioPath := fs.String("scenario", "", "scenario YAML file")
	dbPath := fs.String("db", "", "sqlite state file (overrides CHARTER_DB_PATH)")
	printSnapshot := fs.Bool("snapshot", false, "print the final snapshot as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *scenarioPath == "" {
		_, _ = fmt.Fprintln(stderr, "run: -scenario is required")
		return 2
	}

	k, out, err := runScenario(*scenarioPath, *dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "accepted=%d rejected=%d crises=%d\n", out.Accepted, out.Rejected, out.Crises)
	if *printSnapshot {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(k.Snapshot()); err != nil {
			_, _ = fmt.Fprintf(stderr, "run: encode snapshot: %v\n", err)
			return 1
		}
	}
	return 0
}

func exportCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	scenarioPath := fs.String("scenario", "", "scenario YAML file")
	outPath := fs.String("out", "", "bundle output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *scenarioPath == "" {
		_, _ = fmt.Fprintln(stderr, "export: -scenario is required")
		return 2
	}

	k, _, err := runScenario(*scenarioPath, "")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	bundle, err := k.Ledger().Export()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}

	w := stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	return 0
}

func verifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bundlePath := fs.String("bundle", "", "bundle file to verify")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *bundlePath == "" {
		_, _ = fmt.Fprintln(stderr, "verify: -bundle is required")
		return 2
	}

	data, err := os.ReadFile(*bundlePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	var bundle ledger.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		_, _ = fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	if err := ledger.VerifyBundle(&bundle); err != nil {
		_, _ = fmt.Fprintf(stderr, "verify: FAIL: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "OK: %d entries, head %s\n", bundle.EntryCount, bundle.ChainHead)
	return 0
}
