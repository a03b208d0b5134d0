package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guillermoBallester/strata/internal/adapter/edx"
	"github.com/guillermoBallester/strata/internal/adapter/fetch"
	strataMCP "github.com/guillermoBallester/strata/internal/adapter/mcp"
	"github.com/guillermoBallester/strata/internal/adapter/sheet"
	"github.com/guillermoBallester/strata/internal/audit"
	"github.com/guillermoBallester/strata/internal/config"
	"github.com/guillermoBallester/strata/internal/core/port"
	"github.com/guillermoBallester/strata/internal/core/service"
	"github.com/guillermoBallester/strata/internal/policy"
	"github.com/guillermoBallester/strata/internal/telemetry"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses CLI arguments into config overrides. Flags that were not
// passed stay nil so environment values survive.
func parseFlags(args []string) (config.Overrides, error) {
	fs := flag.NewFlagSet("strata", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	apiKey := fs.String("edx-api-key", "", "EDX API key for private resources")
	baseURL := fs.String("edx-base-url", "", "EDX catalog base URL")
	cacheDir := fs.String("cache-dir", "", "directory for the on-disk catalog cache")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, or error")
	policyFile := fs.String("policy-file", "", "path to detection policy YAML file")
	sampleRows := fs.Int("sample-rows", 0, "data rows to sample per resource")
	scanConcurrency := fs.Int64("scan-concurrency", 0, "max concurrent detections per dataset scan")
	scanTimeout := fs.Duration("scan-timeout", 0, "deadline for a whole dataset scan")
	transport := fs.String("transport", "", "transport: stdio or http")
	httpAddr := fs.String("http-addr", "", "listen address for HTTP transport")
	httpToken := fs.String("http-bearer-token", "", "bearer token required on HTTP requests")
	otelEnabled := fs.Bool("otel", false, "enable OpenTelemetry tracing and metrics")
	auditLog := fs.String("audit-log", "", "path to NDJSON audit log file")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	var o config.Overrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "edx-api-key":
			o.EDXAPIKey = apiKey
		case "edx-base-url":
			o.EDXBaseURL = baseURL
		case "cache-dir":
			o.CacheDir = cacheDir
		case "log-level":
			o.LogLevel = logLevel
		case "policy-file":
			o.PolicyFile = policyFile
		case "sample-rows":
			o.SampleRows = sampleRows
		case "scan-concurrency":
			o.ScanConcurrency = scanConcurrency
		case "scan-timeout":
			o.ScanTimeout = scanTimeout
		case "transport":
			o.Transport = transport
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "http-bearer-token":
			o.HTTPBearerToken = httpToken
		case "otel":
			o.OTelEnabled = *otelEnabled
		case "audit-log":
			o.AuditLog = *auditLog
		}
	})

	return o, nil
}

func run(args []string) error {
	overrides, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting strata",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("edx_base_url", cfg.EDXBaseURL),
		slog.Int("sample_rows", cfg.SampleRows),
		slog.Int64("scan_concurrency", cfg.ScanConcurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Observability (optional).
	var tracer trace.Tracer
	inst := telemetry.NoopInstruments()
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "strata", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown", slog.String("error", err.Error()))
			}
		}()
		tracer = otel.Tracer("strata")
		inst = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	}

	// Adapters
	catalogOpts := []edx.Option{}
	if cfg.EDXAPIKey != "" {
		catalogOpts = append(catalogOpts, edx.WithAPIKey(cfg.EDXAPIKey))
	}
	if cfg.CacheDir != "" {
		cache, err := edx.NewCache(cfg.CacheDir, cfg.CacheTTL)
		if err != nil {
			return fmt.Errorf("creating catalog cache: %w", err)
		}
		catalogOpts = append(catalogOpts, edx.WithCache(cache))
		logger.Info("catalog cache enabled", slog.String("dir", cfg.CacheDir))
	}
	catalog := edx.NewClient(cfg.EDXBaseURL, logger, catalogOpts...)

	fetcher := fetch.NewHTTPFetcher(logger,
		fetch.WithRetryPolicy(cfg.FetchRetries, cfg.FetchBackoff),
	)
	sheets := sheet.NewExcelExtractor()

	// Audit sink (optional).
	var auditor port.DetectionAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer fileAuditor.Close()
		auditor = fileAuditor
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	// Policies from config, optionally overlaid by the policy file.
	detPolicy := service.DefaultDetectionPolicy()
	detPolicy.SampleRows = cfg.SampleRows
	detPolicy.InitialWindow = cfg.InitialWindowBytes
	detPolicy.MaxWindow = cfg.MaxWindowBytes
	detPolicy.MaxDoublings = cfg.MaxDoublings

	scanPolicy := service.DefaultScanPolicy()
	scanPolicy.Concurrency = cfg.ScanConcurrency
	scanPolicy.ScanTimeout = cfg.ScanTimeout

	if cfg.PolicyFile != "" {
		pol, err := policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
		pol.ApplyDetection(&detPolicy)
		pol.ApplyScan(&scanPolicy)
		logger.Info("policy loaded", slog.String("file", cfg.PolicyFile))
	}

	// Services
	detector := service.NewDetectorService(catalog, fetcher, sheets, auditor, logger, detPolicy, tracer, inst)
	scanner := service.NewScannerService(catalog, detector, logger, scanPolicy, tracer)

	// MCP server with tool handlers.
	mcpServer := strataMCP.NewServer(version, detector, scanner, catalog, logger, tracer, inst)

	if cfg.Transport == "http" {
		return serveHTTP(ctx, mcpServer, cfg, logger)
	}

	// Run MCP over stdio (stdin/stdout).
	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// serveHTTP runs the MCP server over streamable HTTP with bearer auth, panic
// recovery, and a health endpoint.
func serveHTTP(ctx context.Context, mcpServer *mcpserver.MCPServer, cfg *config.Config, logger *slog.Logger) error {
	streamable := mcpserver.NewStreamableHTTPServer(mcpServer)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/mcp", bearerAuthMiddleware(streamable, cfg.HTTPBearerToken))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
