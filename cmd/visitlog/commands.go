package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/papaganelli/visitlog/internal/ingest"
	"github.com/papaganelli/visitlog/internal/report"
	"github.com/papaganelli/visitlog/internal/store"
	"github.com/papaganelli/visitlog/pkg/bot"
	"github.com/papaganelli/visitlog/pkg/detector"
	"github.com/papaganelli/visitlog/pkg/metrics"
	"github.com/papaganelli/visitlog/pkg/parser"
	"github.com/papaganelli/visitlog/pkg/tailer"
	"github.com/papaganelli/visitlog/ui"
)

func rangeFlags(fs *flag.FlagSet) *report.Options {
	var o report.Options
	fs.StringVar(&o.StartDate, "start", "", "first day, YYYY-MM-DD")
	fs.StringVar(&o.EndDate, "end", "", "last day, YYYY-MM-DD")
	fs.StringVar(&o.LogType, "type", detector.LogTypeAll, "log type: access, tracking, ip_tracking or all")
	return &o
}

func runReport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	opts := rangeFlags(fs)
	fs.IntVar(&opts.TopN, "top", 10, "rows in top-N tables")
	asJSON := fs.Bool("json", false, "print JSON instead of the dashboard")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := a.engine(ctx, true)
	if err != nil {
		return err
	}
	rep, err := e.Logs(ctx, *opts)
	if err != nil {
		return err
	}
	if *asJSON {
		return a.writeJSON(rep)
	}
	fmt.Fprintln(a.out, ui.RenderReport(rep, terminalWidth()))
	return nil
}

func runAddress(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	opts := rangeFlags(fs)
	addr := fs.String("ip", "", "address to look up (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *addr == "" && fs.NArg() > 0 {
		*addr = fs.Arg(0)
	}

	e, err := a.engine(ctx, true)
	if err != nil {
		return err
	}
	rep, err := e.AddressDetail(ctx, *addr, *opts)
	if err != nil {
		return err
	}
	return a.writeJSON(rep)
}

func runLeads(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("leads", flag.ContinueOnError)
	day := fs.String("day", "", "day of events, YYYY-MM-DD (default today)")
	pruneDays := fs.Int("prune-days", 0, "drop stored profiles not seen for this many days")
	asJSON := fs.Bool("json", false, "print JSON instead of the dashboard")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := a.engine(ctx, false)
	if err != nil {
		return err
	}
	d, err := e.ParseDay(*day)
	if err != nil {
		return err
	}

	var st *store.Store
	if path := a.cfg.Storage.ProfileDB; path != "" {
		st, err = store.Open(path)
		if err != nil {
			return err
		}
		defer st.Close()
		if *pruneDays > 0 {
			n, err := st.Delete(ctx, time.Now().AddDate(0, 0, -*pruneDays))
			if err != nil {
				return err
			}
			a.logger.Info("pruned stale profiles", slog.Int64("deleted", n))
		}
		n, err := st.LoadInto(ctx, e.Leads)
		if err != nil {
			return err
		}
		a.logger.Debug("restored profiles", slog.Int("profiles", n), slog.String("db", path))
	}

	rep, err := e.Marketing(d)
	if err != nil {
		return err
	}
	if st != nil {
		if err := st.Save(ctx, rep.Profiles); err != nil {
			return err
		}
	}
	if *asJSON {
		return a.writeJSON(rep)
	}
	fmt.Fprintln(a.out, ui.RenderMarketing(rep, terminalWidth()))
	return nil
}

func runTracking(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("tracking", flag.ContinueOnError)
	day := fs.String("day", "", "day of events, YYYY-MM-DD (default today)")
	list := fs.Bool("list", false, "list the days that have events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *list {
		days, err := detector.EventDays(a.cfg.EventsDir())
		if err != nil {
			return err
		}
		return a.writeJSON(map[string]any{"eventsDir": a.cfg.EventsDir(), "days": days})
	}

	e, err := a.engine(ctx, false)
	if err != nil {
		return err
	}
	d, err := e.ParseDay(*day)
	if err != nil {
		return err
	}
	rep, err := e.Tracking(d)
	if err != nil {
		return err
	}
	return a.writeJSON(rep)
}

func runFingerprints(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("fingerprints", flag.ContinueOnError)
	visitor := fs.String("visitor", "", "only this visitor ID")
	addr := fs.String("ip", "", "only this address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := a.engine(ctx, false)
	if err != nil {
		return err
	}
	rep, err := e.Fingerprints(*visitor, *addr)
	if err != nil {
		return err
	}
	return a.writeJSON(rep)
}

func runWatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	path := fs.String("log", "", "access log to follow (default: configured access log, then nginx config discovery)")
	refreshMs := fs.Int("refresh", 1000, "refresh rate in milliseconds (100-10000)")
	onlyNew := fs.Bool("new", false, "skip lines already in the file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logPath, err := a.watchPath(*path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stats := metrics.NewParseStats()
	records, err := tailer.FollowRecords(ctx, logPath, *onlyNew, parser.New(a.cfg.Location()), stats.Observe)
	if err != nil {
		return fmt.Errorf("failed to tail file: %w", err)
	}
	return ui.NewApp(logPath, records, time.Duration(*refreshMs)*time.Millisecond, stats).Run()
}

// watchPath picks the log to follow.
func (a *app) watchPath(explicit string) (string, error) {
	if explicit != "" {
		if err := validateLogPath(explicit, a.logger); err != nil {
			return "", fmt.Errorf("invalid log path: %w", err)
		}
		return explicit, nil
	}
	for _, f := range a.cfg.Layout().Files() {
		if f.Kind == detector.KindAccess && f.Exists {
			return f.Path, nil
		}
	}
	best := detector.BestAccessLog(detector.Discover(detector.DefaultConfigPaths))
	if best.Path == "" {
		return "", errors.New("no access log found; set -log or NGINX_LOGS_DIR")
	}
	a.logger.Info("auto-detected access log", slog.String("path", best.Path), slog.String("server", best.ServerName))
	return best.Path, nil
}

func runServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("listen", a.cfg.Server.ListenAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	det := bot.NewDetector(a.cfg.DetectorConfig())
	go det.Limiter().RunCleanup(ctx, 10*time.Minute)

	handler := ingest.New(ingest.Options{
		EventsDir:       a.cfg.EventsDir(),
		FingerprintPath: a.cfg.Layout().Fingerprint().Path,
		Detector:        det,
		Location:        a.cfg.Location(),
		Logger:          a.logger,
	})
	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("ingestion server listening",
			slog.String("addr", *addr),
			slog.String("events_dir", a.cfg.EventsDir()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutdown signal received, stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
