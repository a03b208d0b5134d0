package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/guillermoBallester/strata/internal/core/domain"
	"github.com/guillermoBallester/strata/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// DetectionPolicy holds the byte-budget and sampling knobs for one detection.
type DetectionPolicy struct {
	SampleRows      int   // data rows to parse for inference
	MaxSampleValues int   // sample values kept per column
	InitialWindow   int64 // first byte-range request size
	MaxWindow       int64 // hard cap on the byte-range window
	MaxDoublings    int   // growth attempts after the initial window
}

// DefaultDetectionPolicy returns the stock policy: 8 KiB initial window
// doubling up to 6 times, 1 MiB hard cap, 5 sample rows, 5 samples per column.
func DefaultDetectionPolicy() DetectionPolicy {
	return DetectionPolicy{
		SampleRows:      5,
		MaxSampleValues: 5,
		InitialWindow:   8 << 10,
		MaxWindow:       1 << 20,
		MaxDoublings:    6,
	}
}

// DetectorService detects the schema of a single remote resource. Delimited
// text is sampled with growing byte-range requests so only a prefix of the
// file is ever transferred; container formats are fetched in full and handed
// to the sheet extractor.
type DetectorService struct {
	catalog port.Catalog
	fetcher port.RangeFetcher
	sheets  port.SheetExtractor
	auditor port.DetectionAuditor
	logger  *slog.Logger
	tracer  trace.Tracer
	inst    port.Instrumentation
	policy  DetectionPolicy
}

func NewDetectorService(catalog port.Catalog, fetcher port.RangeFetcher, sheets port.SheetExtractor, auditor port.DetectionAuditor, logger *slog.Logger, policy DetectionPolicy, tracer trace.Tracer, inst port.Instrumentation) *DetectorService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &DetectorService{
		catalog: catalog,
		fetcher: fetcher,
		sheets:  sheets,
		auditor: auditor,
		logger:  logger,
		tracer:  tracer,
		inst:    inst,
		policy:  policy,
	}
}

// DetectResource resolves resourceID against the catalog and detects its
// schema. Every invocation produces exactly one result; failures are folded
// into the result with an error kind rather than returned as an error.
func (s *DetectorService) DetectResource(ctx context.Context, resourceID, formatHint string) port.ResourceSchemaResult {
	ctx, span := s.tracer.Start(ctx, "DetectorService.DetectResource",
		trace.WithAttributes(
			attribute.String("resource.id", resourceID),
		),
	)
	defer span.End()

	start := time.Now()
	result := s.detect(ctx, resourceID, formatHint)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordDetectionDuration(ctx, float64(durationMS))
	s.inst.RecordBytesFetched(ctx, result.BytesFetched)

	var auditErr error
	if !result.OK {
		auditErr = domain.NewDetectError(result.ErrorKind, "%s", result.ErrorMessage)
		span.RecordError(auditErr)
		span.SetStatus(codes.Error, result.ErrorMessage)
		s.inst.IncrementDetectionErrors(ctx)

		s.logger.WarnContext(ctx, "schema detection failed",
			slog.String("resource.id", resourceID),
			slog.String("error.kind", string(result.ErrorKind)),
			slog.String("error.message", result.ErrorMessage),
			slog.Duration("duration", time.Duration(durationMS)*time.Millisecond),
		)
	} else {
		s.inst.IncrementDetectionCount(ctx)
		span.SetAttributes(
			attribute.Int("schema.columns", result.ColumnCount),
			attribute.Int64("fetch.bytes", result.BytesFetched),
		)

		s.logger.InfoContext(ctx, "schema detected",
			slog.String("resource.id", resourceID),
			slog.String("resource.format", result.Format),
			slog.Int("columns", result.ColumnCount),
			slog.Int64("bytes_fetched", result.BytesFetched),
			slog.Duration("duration", time.Duration(durationMS)*time.Millisecond),
		)
	}

	s.auditor.Record(ctx, port.DetectionEntry{
		Tool:         toolNameFromCtx(ctx),
		ResourceID:   resourceID,
		Format:       result.Format,
		BytesFetched: result.BytesFetched,
		Columns:      result.ColumnCount,
		DurationMS:   durationMS,
		Err:          auditErr,
	})

	return result
}

func (s *DetectorService) detect(ctx context.Context, resourceID, formatHint string) port.ResourceSchemaResult {
	ref, err := s.catalog.ResolveResource(ctx, resourceID)
	if err != nil {
		result := port.ResourceSchemaResult{ResourceID: resourceID}
		setFailure(ctx, &result, err)
		return result
	}

	format := strings.ToUpper(strings.TrimSpace(formatHint))
	if format == "" {
		format = strings.ToUpper(strings.TrimSpace(ref.Format))
	}

	result := port.ResourceSchemaResult{
		ResourceID: ref.ID,
		Name:       ref.Name,
		Format:     format,
	}

	switch {
	case isDelimitedFormat(format):
		s.detectDelimited(ctx, ref, &result)
	case isSheetFormat(format):
		s.detectSheet(ctx, ref, &result)
	case isGzipFormat(format):
		s.detectGzipped(ctx, ref, &result)
	default:
		result.ErrorKind = domain.ErrUnsupportedFormat
		result.ErrorMessage = "no detection strategy for format " + format
	}
	return result
}

// detectDelimited drives the range-growth loop: fetch [0, window), parse, and
// double the window while the parser asks for more bytes. The loop never
// falls back to a full fetch; exhausting the growth budget is
// insufficient_sample by design, trading completeness for bandwidth on
// pathological files.
func (s *DetectorService) detectDelimited(ctx context.Context, ref port.ResourceRef, result *port.ResourceSchemaResult) {
	window := s.policy.InitialWindow
	for attempt := 0; ; attempt++ {
		data, totalSize, err := s.fetcher.FetchRange(ctx, ref.URL, 0, window)
		if err != nil {
			setFailure(ctx, result, err)
			return
		}
		result.BytesFetched += int64(len(data))

		// A full body longer than the window means the server ignored range
		// semantics; a short body means the file ends inside the window.
		// Either way the buffer is the whole file.
		atEOF := int64(len(data)) != window
		if totalSize != port.SizeUnknown && window >= totalSize {
			atEOF = true
		}

		text, err := domain.NormalizeText(data)
		if err != nil {
			setFailure(ctx, result, err)
			return
		}

		outcome := domain.ParseDelimited(text, s.policy.SampleRows, atEOF)
		if outcome.Complete {
			s.assemble(result, outcome)
			return
		}

		if atEOF {
			result.ErrorKind = domain.ErrInsufficientSample
			result.ErrorMessage = "whole file fetched but no complete sample parsed: " + outcome.Reason
			return
		}
		if attempt >= s.policy.MaxDoublings || window >= s.policy.MaxWindow {
			result.ErrorKind = domain.ErrInsufficientSample
			result.ErrorMessage = "growth budget exhausted: " + outcome.Reason
			return
		}

		window *= 2
		if window > s.policy.MaxWindow {
			window = s.policy.MaxWindow
		}
	}
}

func (s *DetectorService) detectSheet(ctx context.Context, ref port.ResourceRef, result *port.ResourceSchemaResult) {
	data, err := s.fetcher.FetchAll(ctx, ref.URL)
	if err != nil {
		setFailure(ctx, result, err)
		return
	}
	result.BytesFetched = int64(len(data))

	header, rows, err := s.sheets.Extract(data, s.policy.SampleRows)
	if err != nil {
		setFailure(ctx, result, err)
		return
	}
	s.assemble(result, domain.ParseOutcome{Complete: true, Header: header, Rows: rows})
	result.Delimiter = ""
}

// detectGzipped handles gzip-compressed delimited files. The fetcher already
// decompressed the body, so the remaining work is a whole-buffer parse.
func (s *DetectorService) detectGzipped(ctx context.Context, ref port.ResourceRef, result *port.ResourceSchemaResult) {
	data, err := s.fetcher.FetchAll(ctx, ref.URL)
	if err != nil {
		setFailure(ctx, result, err)
		return
	}
	result.BytesFetched = int64(len(data))

	text, err := domain.NormalizeText(data)
	if err != nil {
		setFailure(ctx, result, err)
		return
	}

	outcome := domain.ParseDelimited(text, s.policy.SampleRows, true)
	if !outcome.Complete {
		result.ErrorKind = domain.ErrInsufficientSample
		result.ErrorMessage = "no complete sample in decompressed file: " + outcome.Reason
		return
	}
	s.assemble(result, outcome)
}

// assemble turns a complete parse into per-column schemas on the result.
func (s *DetectorService) assemble(result *port.ResourceSchemaResult, outcome domain.ParseOutcome) {
	names := domain.DedupeHeaders(outcome.Header)
	columns := make([]domain.ColumnSchema, 0, len(names))
	for i, name := range names {
		values := make([]string, 0, len(outcome.Rows))
		for _, row := range outcome.Rows {
			if i < len(row) {
				values = append(values, row[i])
			} else {
				values = append(values, "") // short row: missing cell is null
			}
		}

		colType, nullable := domain.InferColumnType(values)
		col := domain.ColumnSchema{Name: name, Type: colType, Nullable: nullable}
		for _, v := range values {
			if strings.TrimSpace(v) == "" {
				continue
			}
			col.SampleValues = append(col.SampleValues, v)
			if len(col.SampleValues) >= s.policy.MaxSampleValues {
				break
			}
		}
		columns = append(columns, col)
	}

	result.OK = true
	result.Columns = columns
	result.ColumnCount = len(columns)
	if outcome.Delimiter != 0 {
		result.Delimiter = string(outcome.Delimiter)
	}
}

// setFailure records err on the result, mapping context expiry to the
// timeout kind so abandoned detections are reported distinctly.
func setFailure(ctx context.Context, result *port.ResourceSchemaResult, err error) {
	kind := domain.KindOf(err)
	if ctx.Err() != nil {
		kind = domain.ErrTimeout
	}
	result.ErrorKind = kind
	result.ErrorMessage = err.Error()
}

func isDelimitedFormat(format string) bool {
	switch format {
	case "CSV", "TSV", "TXT", "TAB", "PSV":
		return true
	}
	return false
}

func isSheetFormat(format string) bool {
	switch format {
	case "XLSX", "XLSM", "XLS":
		return true
	}
	return false
}

func isGzipFormat(format string) bool {
	switch format {
	case "GZ", "GZIP", "CSV.GZ", "TSV.GZ":
		return true
	}
	return false
}
