// model-trainer je offline úloha (cron/job): natrénuje model z historie
// telemetrie a zapíše ho spolu s mapováním štítků pro inference dispatcher.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/vikerian/climate-loop/internal/config"
	"github.com/vikerian/climate-loop/internal/logging"
	"github.com/vikerian/climate-loop/internal/storage"
	"github.com/vikerian/climate-loop/internal/trainer"
)

const serviceName = "model-trainer"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("Trénink selhal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// Výchozí hodnoty z ENV, flagy je přepíší.
	cfg, err := config.LoadTrainer()
	if err != nil {
		return err
	}
	opts := trainer.Options{Ridge: 1e-6}

	flagSet := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	flagSet.StringVar(&cfg.PostgresURL, "postgres-url", cfg.PostgresURL, "TimescaleDB connection string")
	flagSet.DurationVar(&opts.Window, "window", cfg.Window, "how much history to train on")
	flagSet.StringVar(&opts.ModelOut, "model-out", cfg.ModelOut, "path of the model artifact")
	flagSet.StringVar(&opts.LabelsOut, "labels-out", cfg.LabelsOut, "path of the fan speed label mapping (YAML)")
	flagSet.Float64Var(&opts.Ridge, "ridge", opts.Ridge, "L2 penalty on weights (0 = plain least squares)")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("neočekávaný argument: %s", rest[0])
	}
	if opts.Window <= 0 {
		return fmt.Errorf("--window musí být kladné, je %s", opts.Window)
	}

	logger := logging.New(serviceName, cfg.LogLevel, nil)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenTimescale(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("připojení k DB: %w", err)
	}
	defer db.Close()

	res, err := trainer.Run(ctx, db, opts, time.Now(), logger)
	if err != nil {
		return err
	}
	logger.Info("Trénink dokončen", "samples", res.Samples, "seeded", res.Seeded,
		"set_temp_weights", res.Artifact.Weights[0], "fan_weights", res.Artifact.Weights[1])
	return nil
}
