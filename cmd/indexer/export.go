package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rwaScope/internal/config"
	"rwaScope/internal/storage"
)

const exportPageSize = 1000

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump stored events to a JSONL file",
		RunE:  runExport,
	}

	cmd.Flags().String("network", "", "restrict export to one network")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means unbounded")
	cmd.Flags().Bool("include-removed", false, "include reorged-out events")
	cmd.Flags().String("out", "./data/events.jsonl", "output JSONL path")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	network, _ := cmd.Flags().GetString("network")
	fromBlock, _ := cmd.Flags().GetUint64("from")
	toBlock, _ := cmd.Flags().GetUint64("to")
	includeRemoved, _ := cmd.Flags().GetBool("include-removed")
	out, _ := cmd.Flags().GetString("out")

	filter := storage.EventFilter{
		Network:        network,
		IncludeRemoved: includeRemoved,
		Limit:          exportPageSize,
	}
	if fromBlock > 0 {
		filter.FromBlock = &fromBlock
	}
	if toBlock > 0 {
		filter.ToBlock = &toBlock
	}

	exporter := storage.NewJSONLExporter(out)
	exported := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		events, _, err := store.QueryEvents(ctx, filter)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			break
		}
		if err := exporter.WriteEvents(events); err != nil {
			return err
		}
		exported += len(events)
		filter.Offset += len(events)
	}

	logger.Info("export complete",
		zap.String("out", out),
		zap.Int("events", exported),
	)
	return nil
}
