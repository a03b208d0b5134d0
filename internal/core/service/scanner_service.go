package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/guillermoBallester/strata/internal/core/domain"
	"github.com/guillermoBallester/strata/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// HostPacing overrides the request rate for one upstream host.
type HostPacing struct {
	RPS   float64
	Burst int
}

// ScanPolicy bounds a dataset scan: how many detections run at once, how fast
// any single upstream host is hit, and how long the whole scan may take.
type ScanPolicy struct {
	Concurrency    int64
	HostRPS        float64 // per-host request pacing; 0 disables pacing
	HostBurst      int
	HostOverrides  map[string]HostPacing
	ScanTimeout    time.Duration
	DefaultFormats []string
}

// DefaultScanPolicy returns the stock scan policy: 5 concurrent detections,
// 2 requests/second per host, 2 minute deadline, CSV and XLSX resources.
func DefaultScanPolicy() ScanPolicy {
	return ScanPolicy{
		Concurrency:    5,
		HostRPS:        2,
		HostBurst:      2,
		ScanTimeout:    2 * time.Minute,
		DefaultFormats: []string{"CSV", "XLSX"},
	}
}

// ScannerService fans schema detection out over a dataset's tabular
// resources. Individual failures are recorded in the report and never cancel
// sibling detections; only the scan deadline abandons work.
type ScannerService struct {
	catalog  port.Catalog
	detector *DetectorService
	logger   *slog.Logger
	tracer   trace.Tracer
	policy   ScanPolicy

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewScannerService(catalog port.Catalog, detector *DetectorService, logger *slog.Logger, policy ScanPolicy, tracer trace.Tracer) *ScannerService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if policy.Concurrency <= 0 {
		policy.Concurrency = 1
	}
	return &ScannerService{
		catalog:  catalog,
		detector: detector,
		logger:   logger,
		tracer:   tracer,
		policy:   policy,
		limiters: make(map[string]*rate.Limiter),
	}
}

// ScanDataset resolves datasetID, filters its resources to the allowed
// formats (defaulting to the policy's list), and detects each resource's
// schema concurrently. Results are merged in arrival order; resources still
// in flight when the deadline passes are recorded as timeout failures and
// abandoned.
func (s *ScannerService) ScanDataset(ctx context.Context, datasetID string, formats []string) (*port.DatasetSchemaReport, error) {
	ctx, span := s.tracer.Start(ctx, "ScannerService.ScanDataset",
		trace.WithAttributes(attribute.String("dataset.id", datasetID)),
	)
	defer span.End()

	ds, err := s.catalog.ResolveDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("resolving dataset %q: %w", datasetID, err)
	}

	if len(formats) == 0 {
		formats = s.policy.DefaultFormats
	}
	allowed := make(map[string]bool, len(formats))
	for _, f := range formats {
		allowed[strings.ToUpper(strings.TrimSpace(f))] = true
	}

	var targets []port.ResourceRef
	for _, r := range ds.Resources {
		if allowed[strings.ToUpper(strings.TrimSpace(r.Format))] {
			targets = append(targets, r)
		}
	}

	report := &port.DatasetSchemaReport{
		DatasetID: ds.ID,
		Title:     firstNonEmpty(ds.Title, ds.Name),
		Results:   []port.ResourceSchemaResult{},
	}
	if len(targets) == 0 {
		return report, nil
	}

	s.logger.InfoContext(ctx, "scanning dataset",
		slog.String("dataset.id", ds.ID),
		slog.Int("resources", len(targets)),
		slog.Int64("concurrency", s.policy.Concurrency),
	)

	scanCtx, cancel := context.WithTimeout(ctx, s.policy.ScanTimeout)
	defer cancel()

	sem := semaphore.NewWeighted(s.policy.Concurrency)
	results := make(chan port.ResourceSchemaResult, len(targets))

	for _, target := range targets {
		go func(target port.ResourceRef) {
			if err := sem.Acquire(scanCtx, 1); err != nil {
				return // deadline hit while queued; collector records the timeout
			}
			defer sem.Release(1)

			if lim := s.hostLimiter(target.URL); lim != nil {
				if err := lim.Wait(scanCtx); err != nil {
					return
				}
			}

			results <- s.detector.DetectResource(scanCtx, target.ID, target.Format)
		}(target)
	}

	done := make(map[string]bool, len(targets))
collect:
	for range targets {
		select {
		case r := <-results:
			report.Results = append(report.Results, r)
			done[r.ResourceID] = true
		case <-scanCtx.Done():
			break collect
		}
	}

	// Anything not collected by the deadline is abandoned; the buffered
	// channel lets its goroutine finish without leaking.
	for _, target := range targets {
		if done[target.ID] {
			continue
		}
		report.Results = append(report.Results, port.ResourceSchemaResult{
			ResourceID:   target.ID,
			Name:         target.Name,
			Format:       strings.ToUpper(strings.TrimSpace(target.Format)),
			ErrorKind:    domain.ErrTimeout,
			ErrorMessage: "detection not completed before scan deadline",
		})
	}

	for _, r := range report.Results {
		report.Summary.Attempted++
		if r.OK {
			report.Summary.Succeeded++
			report.Summary.TotalColumns += r.ColumnCount
		} else {
			report.Summary.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("scan.attempted", report.Summary.Attempted),
		attribute.Int("scan.failed", report.Summary.Failed),
	)
	s.logger.InfoContext(ctx, "dataset scan complete",
		slog.String("dataset.id", ds.ID),
		slog.Int("attempted", report.Summary.Attempted),
		slog.Int("succeeded", report.Summary.Succeeded),
		slog.Int("failed", report.Summary.Failed),
	)

	return report, nil
}

// hostLimiter returns the pacing limiter for rawURL's host, creating it on
// first use. Per-host overrides win over the default rate. Returns nil when
// pacing is disabled for the host or the URL has no host.
func (s *ScannerService) hostLimiter(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}

	rps := s.policy.HostRPS
	burst := s.policy.HostBurst
	if override, ok := s.policy.HostOverrides[u.Host]; ok {
		rps = override.RPS
		burst = override.Burst
	}
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[u.Host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(rps), burst)
		s.limiters[u.Host] = lim
	}
	return lim
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
