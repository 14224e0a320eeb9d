package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"poupanca/internal/amqp"
	"poupanca/internal/cli"
	"poupanca/internal/config"
	"poupanca/internal/log"
	"poupanca/internal/metrics"
	gsheet "poupanca/internal/sheets/google"
	"poupanca/internal/worker"
)

// metricsAddr is where the worker exposes /metrics for scraping.
const metricsAddr = "9091"

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig((*config.Config).ValidateWorker)
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)
	logger.Info("Starting poupanca-worker")

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	res, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to open store", err, "backend", cfg.DataBackend)
	}
	defer res.Cleanup()

	exporter, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		cli.FatalAfter(logger, res.Cleanup, "Failed to initialize Google Sheets client", err)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.FatalAfter(logger, res.Cleanup, "Failed to initialize AMQP client", err)
	}
	defer client.Close()

	m := metrics.New()
	metricsSrv := &http.Server{
		Addr:              net.JoinHostPort("", metricsAddr),
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("Metrics server stopped", log.FieldError, err.Error())
		}
	}()
	defer metricsSrv.Close()

	w := worker.NewExportWorker(res.Store, exporter, m, worker.Config{
		BatchSize: cfg.ExportBatchSize,
		Interval:  cfg.ExportInterval,
	})
	logger.Info("Export worker running",
		"batch_size", cfg.ExportBatchSize,
		"interval", cfg.ExportInterval.String(),
		"queue", cfg.AMQPQueue)

	if err := w.Run(ctx, client); err != nil {
		logger.Error("Export worker failed", log.FieldError, err.Error())
		return
	}
	logger.Info("Worker stopped gracefully")
}
