package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/animus-labs/freezer/internal/config"
	"github.com/animus-labs/freezer/internal/engine"
	"github.com/animus-labs/freezer/internal/platform/httpserver"
)

// passStatus is served on /status.
type passStatus struct {
	mu       sync.Mutex
	runID    string
	started  time.Time
	finished time.Time
	roots    int
	failed   int
	lastErr  string
}

func (s *passStatus) snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"run_id":   s.runID,
		"started":  s.started,
		"finished": s.finished,
		"roots":    s.roots,
		"failed":   s.failed,
		"error":    s.lastErr,
	}
}

func (s *passStatus) record(started time.Time, report engine.PassReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = report.RunID
	s.started = started
	s.finished = time.Now().UTC()
	s.roots = len(report.Outcomes)
	s.failed = report.Failed()
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run passes on an interval and serve health probes",
		Long: `Runs a scan-and-apply pass immediately and then every --interval. Passes
never overlap. /healthz, /readyz (bucket reachability) and /status (last pass)
are served on FREEZER_HTTP_ADDR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, logger, err := opts.load()
			if err != nil {
				return err
			}
			watchCfg, err := config.WatchFromEnv(f)
			if err != nil {
				return invalidConfig(err)
			}
			if cmd.Flags().Changed("interval") {
				if interval <= 0 {
					return invalidConfig(errors.New("--interval must be positive"))
				}
				watchCfg.Interval = interval
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, logger, f)
			if err != nil {
				return err
			}
			defer a.Close()

			status := &passStatus{}
			mux := httpserver.Probes("freezer", status.snapshot, httpserver.ReadinessCheck{
				Name: "bucket",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
					defer cancel()
					return a.checkBucket(checkCtx)
				},
			})

			srvErr := make(chan error, 1)
			go func() {
				srvErr <- httpserver.Run(ctx, logger, httpserver.Config{
					Service: "freezer",
					Addr:    watchCfg.Addr,
				}, httpserver.Wrap(logger, "freezer", mux))
			}()

			ticker := time.NewTicker(watchCfg.Interval)
			defer ticker.Stop()
			for {
				started := time.Now().UTC()
				report, err := a.engine.RunPass(ctx)
				status.record(started, report, err)
				if err != nil && ctx.Err() == nil {
					logger.Error("pass failed", "run_id", report.RunID, "error", err)
				}

				select {
				case <-ctx.Done():
					if err := <-srvErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
						return unavailable(err)
					}
					return nil
				case err := <-srvErr:
					if err != nil && !errors.Is(err, http.ErrServerClosed) {
						return unavailable(err)
					}
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between passes (overrides FREEZER_WATCH_INTERVAL)")
	return cmd
}
