package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/dac/internal/metrics"
	"github.com/koustreak/dac/internal/server"
	"github.com/koustreak/dac/internal/upstream"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	if err != nil {
		return err
	}

	opts := server.Options{
		Upstream:       client,
		Logger:         log,
		Metrics:        metrics.New(),
		ListenAddr:     cfg.Server.ListenAddr,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
	}

	if cfg.DatabaseEnabled() {
		agg, db, err := newAggregator(ctx, cfg.Database, false)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.Status = agg

		fields := map[string]any{"driver": cfg.Database.Driver}
		if err := db.Ping(ctx); err != nil {
			log.WarnWith("database unreachable at start, local db status will retry per request", err, fields)
		} else {
			log.InfoWith("local db status enabled", fields)
		}
	}

	if cfg.Storage.Enabled {
		lister, err := newBackupLister(ctx, cfg.Storage)
		if err != nil {
			log.WarnWith("backup inventory disabled", err, map[string]any{"endpoint": cfg.Storage.Endpoint})
		} else {
			opts.Backups = lister
		}
	}

	log.InfoWith("starting gateway", map[string]any{
		"listen_addr":  cfg.Server.ListenAddr,
		"upstream_url": client.BaseURL(),
	})
	return server.New(opts).Run(ctx, cfg.Server.ShutdownTimeout)
}
