package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/papaganelli/visitlog/internal/config"
	"github.com/papaganelli/visitlog/internal/report"
	"github.com/papaganelli/visitlog/internal/source"
	"github.com/papaganelli/visitlog/internal/version"
	"github.com/papaganelli/visitlog/pkg/geoip"
)

const usage = `usage: visitlog [-config file] <command> [flags]

commands:
  report        access log dashboard
  address       records and summary of one address
  leads         lead scoring from a day of tracking events
  tracking      per-address rollup of a day of tracking events
  fingerprints  fingerprint log analytics
  watch         follow an access log live
  serve         run the tracking ingestion endpoints
  version       print build information
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

type command func(ctx context.Context, app *app, args []string) error

var commands = map[string]command{
	"report":       runReport,
	"address":      runAddress,
	"leads":        runLeads,
	"tracking":     runTracking,
	"fingerprints": runFingerprints,
	"watch":        runWatch,
	"serve":        runServe,
}

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("visitlog", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	configPath := fs.String("config", os.Getenv("VISITLOG_CONFIG"), "optional YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	if name == "version" {
		fmt.Fprintln(out, version.Info())
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	return cmd(ctx, &app{cfg: cfg, logger: logger, out: out}, rest)
}

// engine builds the report engine, adding S3 access logs when a bucket is
// configured.
func (a *app) engine(ctx context.Context, remote bool) (*report.Engine, error) {
	e := report.New(a.cfg, geoip.NewLocator(), a.logger)
	if !remote || a.cfg.S3.Bucket == "" {
		return e, nil
	}
	client, err := source.NewS3Client(ctx, source.S3Options{Region: a.cfg.S3.Region, Endpoint: a.cfg.S3.Endpoint})
	if err != nil {
		return nil, err
	}
	objects, err := source.ListObjects(ctx, client, a.cfg.S3.Bucket, a.cfg.S3.Prefix)
	switch {
	case errors.Is(err, source.ErrNotFound):
		a.logger.Warn("no logs under S3 prefix", slog.String("bucket", a.cfg.S3.Bucket), slog.String("prefix", a.cfg.S3.Prefix))
	case err != nil:
		return nil, err
	}
	e.Remote = objects
	return e, nil
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// terminalWidth reads $COLUMNS; zero lets the renderer choose.
func terminalWidth() int {
	n, err := strconv.Atoi(os.Getenv("COLUMNS"))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
