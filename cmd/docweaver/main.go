package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docweaver/docweaver/internal/api"
	"github.com/docweaver/docweaver/internal/config"
	"github.com/docweaver/docweaver/internal/genai"
	"github.com/docweaver/docweaver/internal/observe"
	"github.com/docweaver/docweaver/internal/pipeline"
	"github.com/docweaver/docweaver/internal/ratelimit"
	"github.com/docweaver/docweaver/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "docweaver:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observe.NewLogger(observe.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	apiKey, err := cfg.APIKey()
	if err != nil {
		return err
	}

	metrics := observe.NewMetrics(prometheus.DefaultRegisterer)

	limits := cfg.QuotaLimits()
	controller, err := ratelimit.New(limits)
	if err != nil {
		return fmt.Errorf("admission controller: %w", err)
	}
	logger.Info("quota window configured",
		"model", cfg.Model.Name,
		"max_calls", limits.MaxCalls,
		"window", limits.Window.String(),
	)

	client := genai.NewClient(genai.ClientConfig{
		BaseURL:         cfg.Model.BaseURL,
		Model:           cfg.Model.Name,
		APIKey:          apiKey,
		Temperature:     cfg.Model.Temperature,
		TopP:            cfg.Model.TopP,
		TopK:            cfg.Model.TopK,
		MaxOutputTokens: cfg.Model.MaxOutputTokens,
		Timeout:         time.Duration(cfg.Model.TimeoutSeconds) * time.Second,
		Logger:          logger,
	})

	counter := &genai.Counter{}
	workflow := pipeline.NewWorkflow(pipeline.Deps{
		Gate:    controller,
		Gen:     client,
		Counter: counter,
		Logger:  logger,
		Metrics: metrics,
	})

	// Inbound protection for the API itself; the upstream quota is
	// enforced separately by the admission controller.
	limiter := ratelimit.NewPerClient(30, 5.0, 10*time.Minute)

	handler := api.New(api.Config{
		Workflow:   workflow,
		Controller: controller,
		Counter:    counter,
		Client:     client,
		Limiter:    limiter,
		Logger:     logger,
	})

	srv := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		DrainTimeout: cfg.DrainTimeout(),
		Logger:       logger,
	})
	srv.RegisterCloser(limiter)

	return srv.ListenAndServe()
}
