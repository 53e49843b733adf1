package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	s3dl "github.com/tanq16/rangefetch/internal/downloaders/s3"
	"github.com/tanq16/rangefetch/internal/metrics"
	"github.com/tanq16/rangefetch/internal/output"
	"github.com/tanq16/rangefetch/internal/scheduler"
	"github.com/tanq16/rangefetch/internal/utils"
)

// runDownloads queues entries on a fresh manager and blocks until every task
// settles or the process is interrupted. It reports whether all succeeded.
func runDownloads(parent context.Context, entries []utils.DownloadEntry) bool {
	log := utils.GetLogger("cmd")
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []scheduler.Option{scheduler.WithHTTPConfig(cfg.HTTPClient())}
	if needsS3(entries) {
		tr, err := s3dl.New(ctx, cfg.S3Options())
		if err != nil {
			output.PrintError(fmt.Sprintf("Failed to set up S3 client: %v", err))
			return false
		}
		opts = append(opts, scheduler.WithTransport("s3", tr))
	}
	m, err := scheduler.NewManager(cfg.Engine, opts...)
	if err != nil {
		output.PrintError(err.Error())
		return false
	}

	if cfg.Metrics.Addr != "" {
		srv, err := serveMetrics(cfg.Metrics.Addr)
		if err != nil {
			output.PrintError(fmt.Sprintf("Failed to start metrics server: %v", err))
			return false
		}
		defer srv.Shutdown(context.Background())
	}

	console := output.NewConsole(os.Stdout)
	seen := make(map[string]bool)
	for _, e := range entries {
		dest := utils.ResolveOutputPath(e.URL, e.OutputPath)
		if _, err := os.Stat(dest); err == nil {
			dest = utils.RenewOutputPath(dest)
		}
		id := utils.TaskID(e.URL, dest)
		if seen[id] {
			output.PrintWarning(fmt.Sprintf("Skipping duplicate entry %s", e.URL))
			continue
		}
		seen[id] = true
		console.Track(id, dest)
		m.AddTask(e.URL, dest, id, console)
	}
	log.Debug().Int("tasks", len(seen)).Int("workers", cfg.Engine.MaxConcurrentDownloads).Msg("Tasks queued")

	output.PrintHeader(fmt.Sprintf("Downloading %d file(s) with %d worker(s)", len(seen), cfg.Engine.MaxConcurrentDownloads))
	console.Start()
	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()
	interrupted, cancelled := false, 0
	select {
	case <-done:
	case <-ctx.Done():
		interrupted = true
		cancelled = m.CancelAllTasks()
		log.Debug().Int("cancelled", cancelled).Msg("Interrupted, cancelling downloads")
		<-done
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Manager shutdown incomplete")
	}
	console.Stop()
	if interrupted {
		output.PrintInfo(fmt.Sprintf("Interrupted, cancelled %d download(s)", cancelled))
	}

	_, failed, _ := console.Counts()
	if failed > 0 {
		output.PrintError("Encountered failed download(s)")
	}
	return failed == 0 && !interrupted
}

func needsS3(entries []utils.DownloadEntry) bool {
	for _, e := range entries {
		if strings.HasPrefix(strings.ToLower(e.URL), "s3://") {
			return true
		}
	}
	return false
}

func serveMetrics(addr string) (*http.Server, error) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log := utils.GetLogger("metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	return srv, nil
}
