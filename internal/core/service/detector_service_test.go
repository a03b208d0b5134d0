package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/guillermoBallester/strata/internal/audit"
	"github.com/guillermoBallester/strata/internal/core/domain"
	"github.com/guillermoBallester/strata/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- mock Catalog ---

type mockCatalog struct {
	resources map[string]port.ResourceRef
	datasets  map[string]port.DatasetInfo
}

func (m *mockCatalog) ResolveResource(_ context.Context, id string) (port.ResourceRef, error) {
	ref, ok := m.resources[id]
	if !ok {
		return port.ResourceRef{}, fmt.Errorf("resource %q not found", id)
	}
	return ref, nil
}

func (m *mockCatalog) ResolveDataset(_ context.Context, id string) (port.DatasetInfo, error) {
	ds, ok := m.datasets[id]
	if !ok {
		return port.DatasetInfo{}, fmt.Errorf("dataset %q not found", id)
	}
	return ds, nil
}

func (m *mockCatalog) Search(context.Context, string, []string, int) ([]port.DatasetInfo, error) {
	return nil, nil
}

func (m *mockCatalog) DownloadURL(id string) string {
	return "https://example.test/resource/" + id + "/download"
}

// --- mock RangeFetcher ---

// mockFetcher serves byte-range requests out of in-memory files keyed by URL.
// It counts calls and tracks the peak number of concurrent fetches.
type mockFetcher struct {
	mu          sync.Mutex
	files       map[string][]byte
	failURLs    map[string]error
	rangeCalls  int
	fullCalls   int
	advertiseSz bool // include total size in FetchRange responses
}

func (m *mockFetcher) FetchRange(_ context.Context, url string, start, end int64) ([]byte, int64, error) {
	m.mu.Lock()
	m.rangeCalls++
	m.mu.Unlock()

	if err, ok := m.failURLs[url]; ok {
		return nil, port.SizeUnknown, err
	}
	file, ok := m.files[url]
	if !ok {
		return nil, port.SizeUnknown, domain.NewDetectError(domain.ErrUpstreamFetch, "no such file %q", url)
	}

	if start > int64(len(file)) {
		start = int64(len(file))
	}
	if end > int64(len(file)) {
		end = int64(len(file))
	}
	total := int64(port.SizeUnknown)
	if m.advertiseSz {
		total = int64(len(file))
	}
	return file[start:end], total, nil
}

func (m *mockFetcher) FetchAll(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	m.fullCalls++
	m.mu.Unlock()

	if err, ok := m.failURLs[url]; ok {
		return nil, err
	}
	file, ok := m.files[url]
	if !ok {
		return nil, domain.NewDetectError(domain.ErrUpstreamFetch, "no such file %q", url)
	}
	return file, nil
}

// --- mock SheetExtractor ---

type mockSheets struct {
	header []string
	rows   [][]string
	err    error
}

func (m *mockSheets) Extract([]byte, int) ([]string, [][]string, error) {
	return m.header, m.rows, m.err
}

// --- helpers ---

func newTestDetector(catalog port.Catalog, fetcher port.RangeFetcher, sheets port.SheetExtractor, policy DetectionPolicy) *DetectorService {
	return NewDetectorService(catalog, fetcher, sheets, audit.NoopAuditor{}, testLogger(), policy, nil, nil)
}

func csvCatalog(url string) *mockCatalog {
	return &mockCatalog{resources: map[string]port.ResourceRef{
		"res-1": {ID: "res-1", Name: "wells.csv", URL: url, Format: "CSV"},
	}}
}

// --- tests ---

func TestDetectResource_SimpleCSV(t *testing.T) {
	t.Parallel()
	file := []byte("id,name,depth_m\n1,alpha,120.5\n2,beta,98.0\n3,gamma,110.2\n")
	fetcher := &mockFetcher{files: map[string][]byte{"u": file}}

	svc := newTestDetector(csvCatalog("u"), fetcher, &mockSheets{}, DefaultDetectionPolicy())
	result := svc.DetectResource(context.Background(), "res-1", "")

	require.True(t, result.OK, "error: %s %s", result.ErrorKind, result.ErrorMessage)
	assert.Equal(t, "res-1", result.ResourceID)
	assert.Equal(t, "CSV", result.Format)
	assert.Equal(t, 3, result.ColumnCount)
	assert.Equal(t, ",", result.Delimiter)
	assert.Equal(t, int64(len(file)), result.BytesFetched)
	assert.Equal(t, 1, fetcher.rangeCalls, "small file should be satisfied by the first window")

	require.Len(t, result.Columns, 3)
	assert.Equal(t, "id", result.Columns[0].Name)
	assert.Equal(t, domain.TypeInteger, result.Columns[0].Type)
	assert.Equal(t, domain.TypeString, result.Columns[1].Type)
	assert.Equal(t, domain.TypeFloat, result.Columns[2].Type)
	assert.Equal(t, []string{"1", "2", "3"}, result.Columns[0].SampleValues)
}

func TestDetectResource_GrowthStopsAfterConfiguredDoublings(t *testing.T) {
	t.Parallel()
	// The header line is longer than the max window, so no window ever
	// yields a parseable header and every fetch returns exactly the window.
	file := make([]byte, 4096)
	for i := range file {
		file[i] = 'x'
	}
	fetcher := &mockFetcher{files: map[string][]byte{"u": file}}

	policy := DefaultDetectionPolicy()
	policy.InitialWindow = 16
	policy.MaxWindow = 2048
	policy.MaxDoublings = 3

	svc := newTestDetector(csvCatalog("u"), fetcher, &mockSheets{}, policy)
	result := svc.DetectResource(context.Background(), "res-1", "")

	assert.False(t, result.OK)
	assert.Equal(t, domain.ErrInsufficientSample, result.ErrorKind)
	// Initial fetch plus exactly MaxDoublings growth fetches.
	assert.Equal(t, 4, fetcher.rangeCalls)
	assert.Equal(t, int64(16+32+64+128), result.BytesFetched)
}

func TestDetectResource_GrowthFindsRowsInLargerWindow(t *testing.T) {
	t.Parallel()
	// First window (16 bytes) cuts the data mid-row; the doubled window
	// covers the whole file.
	file := []byte("a,b,c\n1,2,3\n4,5,6\n")
	fetcher := &mockFetcher{files: map[string][]byte{"u": file}}

	policy := DefaultDetectionPolicy()
	policy.InitialWindow = 16
	policy.MaxWindow = 1024
	policy.SampleRows = 2

	svc := newTestDetector(csvCatalog("u"), fetcher, &mockSheets{}, policy)
	result := svc.DetectResource(context.Background(), "res-1", "")

	require.True(t, result.OK, "error: %s %s", result.ErrorKind, result.ErrorMessage)
	assert.Equal(t, 2, fetcher.rangeCalls)
	assert.Equal(t, int64(16+len(file)), result.BytesFetched)
	assert.Equal(t, 3, result.ColumnCount)
	assert.Len(t, result.Columns[0].SampleValues, 2)
}

func TestDetectResource_KnownTotalSizeEndsGrowth(t *testing.T) {
	t.Parallel()
	// The file is exactly one window long, so len(data) == window would not
	// signal EOF on its own; the advertised total size must.
	file := []byte("a,b\n1,2\n3,4\n5,6\n")
	fetcher := &mockFetcher{files: map[string][]byte{"u": file}, advertiseSz: true}

	policy := DefaultDetectionPolicy()
	policy.InitialWindow = int64(len(file))
	policy.SampleRows = 50

	svc := newTestDetector(csvCatalog("u"), fetcher, &mockSheets{}, policy)
	result := svc.DetectResource(context.Background(), "res-1", "")

	require.True(t, result.OK, "error: %s %s", result.ErrorKind, result.ErrorMessage)
	assert.Equal(t, 1, fetcher.rangeCalls)
	assert.Equal(t, 3, len(result.Columns[0].SampleValues))
}

func TestDetectResource_WholeFileWithoutSampleIsInsufficient(t *testing.T) {
	t.Parallel()
	// Whole file arrives in the first window but contains no data rows and
	// an unterminated quote, so even at EOF no sample can be parsed.
	file := []byte("a,b\n\"never closed")
	fetcher := &mockFetcher{files: map[string][]byte{"u": file}}

	svc := newTestDetector(csvCatalog("u"), fetcher, &mockSheets{}, DefaultDetectionPolicy())
	result := svc.DetectResource(context.Background(), "res-1", "")

	assert.False(t, result.OK)
	assert.Equal(t, domain.ErrInsufficientSample, result.ErrorKind)
	assert.Equal(t, 1, fetcher.rangeCalls, "EOF must stop the growth loop")
}

func TestDetectResource_FormatHintOverridesCatalog(t *testing.T) {
	t.Parallel()
	file := []byte("a\tb\n1\t2\n")
	catalog := &mockCatalog{resources: map[string]port.ResourceRef{
		"res-1": {ID: "res-1", URL: "u", Format: "PDF"},
	}}
	fetcher := &mockFetcher{files: map[string][]byte{"u": file}}

	svc := newTestDetector(catalog, fetcher, &mockSheets{}, DefaultDetectionPolicy())
	result := svc.DetectResource(context.Background(), "res-1", "tsv")

	require.True(t, result.OK, "error: %s %s", result.ErrorKind, result.ErrorMessage)
	assert.Equal(t, "TSV", result.Format)
	assert.Equal(t, "\t", result.Delimiter)
}

func TestDetectResource_UnsupportedFormat(t *testing.T) {
	t.Parallel()
	catalog := &mockCatalog{resources: map[string]port.ResourceRef{
		"res-1": {ID: "res-1", URL: "u", Format: "PDF"},
	}}
	fetcher := &mockFetcher{files: map[string][]byte{}}

	svc := newTestDetector(catalog, fetcher, &mockSheets{}, DefaultDetectionPolicy())
	result := svc.DetectResource(context.Background(), "res-1", "")

	assert.False(t, result.OK)
	assert.Equal(t, domain.ErrUnsupportedFormat, result.ErrorKind)
	assert.Zero(t, fetcher.rangeCalls, "unsupported formats must not be fetched")
	assert.Zero(t, fetcher.fullCalls)
}

func TestDetectResource_UnknownResource(t *testing.T) {
	t.Parallel()
	svc := newTestDetector(&mockCatalog{}, &mockFetcher{}, &mockSheets{}, DefaultDetectionPolicy())
	result := svc.DetectResource(context.Background(), "nope", "")

	assert.False(t, result.OK)
	assert.Equal(t, domain.ErrUpstreamFetch, result.ErrorKind)
	assert.Equal(t, "nope", result.ResourceID)
}

func TestDetectResource_FetchErrorKindPropagates(t *testing.T) {
	t.Parallel()
	fetcher := &mockFetcher{
		files: map[string][]byte{},
		failURLs: map[string]error{
			"u": domain.NewDetectError(domain.ErrRangeUnsupported, "body too large"),
		},
	}

	svc := newTestDetector(csvCatalog("u"), fetcher, &mockSheets{}, DefaultDetectionPolicy())
	result := svc.DetectResource(context.Background(), "res-1", "")

	assert.False(t, result.OK)
	assert.Equal(t, domain.ErrRangeUnsupported, result.ErrorKind)
}

func TestDetectResource_XLSX(t *testing.T) {
	t.Parallel()
	catalog := &mockCatalog{resources: map[string]port.ResourceRef{
		"res-1": {ID: "res-1", URL: "u", Format: "XLSX"},
	}}
	fetcher := &mockFetcher{files: map[string][]byte{"u": []byte("fake workbook bytes")}}
	sheets := &mockSheets{
		header: []string{"county", "producing"},
		rows:   [][]string{{"Greene", "true"}, {"Washington", "false"}},
	}

	svc := newTestDetector(catalog, fetcher, sheets, DefaultDetectionPolicy())
	result := svc.DetectResource(context.Background(), "res-1", "")

	require.True(t, result.OK, "error: %s %s", result.ErrorKind, result.ErrorMessage)
	assert.Equal(t, 1, fetcher.fullCalls)
	assert.Zero(t, fetcher.rangeCalls, "spreadsheets are fetched whole, never ranged")
	assert.Empty(t, result.Delimiter)
	require.Len(t, result.Columns, 2)
	assert.Equal(t, domain.TypeBoolean, result.Columns[1].Type)
}

func TestDetectResource_XLSXDecodeError(t *testing.T) {
	t.Parallel()
	catalog := &mockCatalog{resources: map[string]port.ResourceRef{
		"res-1": {ID: "res-1", URL: "u", Format: "XLSX"},
	}}
	fetcher := &mockFetcher{files: map[string][]byte{"u": []byte("not a zip")}}
	sheets := &mockSheets{err: domain.NewDetectError(domain.ErrDecodeFailed, "opening workbook")}

	svc := newTestDetector(catalog, fetcher, sheets, DefaultDetectionPolicy())
	result := svc.DetectResource(context.Background(), "res-1", "")

	assert.False(t, result.OK)
	assert.Equal(t, domain.ErrDecodeFailed, result.ErrorKind)
}

func TestDetectResource_GzippedCSV(t *testing.T) {
	t.Parallel()
	catalog := &mockCatalog{resources: map[string]port.ResourceRef{
		"res-1": {ID: "res-1", URL: "u", Format: "CSV.GZ"},
	}}
	// The fetcher decompresses gzip bodies, so the service sees plain text.
	fetcher := &mockFetcher{files: map[string][]byte{"u": []byte("a,b\n1,2\n")}}

	svc := newTestDetector(catalog, fetcher, &mockSheets{}, DefaultDetectionPolicy())
	result := svc.DetectResource(context.Background(), "res-1", "")

	require.True(t, result.OK, "error: %s %s", result.ErrorKind, result.ErrorMessage)
	assert.Equal(t, 1, fetcher.fullCalls)
	assert.Equal(t, 2, result.ColumnCount)
}

func TestDetectResource_CanceledContextReportsTimeout(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &mockFetcher{
		files:    map[string][]byte{},
		failURLs: map[string]error{"u": errors.New("context canceled")},
	}
	svc := newTestDetector(csvCatalog("u"), fetcher, &mockSheets{}, DefaultDetectionPolicy())
	result := svc.DetectResource(ctx, "res-1", "")

	assert.False(t, result.OK)
	assert.Equal(t, domain.ErrTimeout, result.ErrorKind)
}

func TestDetectResource_DedupesAndPadsColumns(t *testing.T) {
	t.Parallel()
	// Duplicate headers, an empty header, and a ragged short row.
	file := []byte("id,id,\n1,2,x\n3,4\n")
	fetcher := &mockFetcher{files: map[string][]byte{"u": file}}

	policy := DefaultDetectionPolicy()
	policy.SampleRows = 2

	svc := newTestDetector(csvCatalog("u"), fetcher, &mockSheets{}, policy)
	result := svc.DetectResource(context.Background(), "res-1", "")

	require.True(t, result.OK, "error: %s %s", result.ErrorKind, result.ErrorMessage)
	require.Len(t, result.Columns, 3)
	assert.Equal(t, "id", result.Columns[0].Name)
	assert.Equal(t, "id_2", result.Columns[1].Name)
	assert.Equal(t, "column_3", result.Columns[2].Name)

	// The short second row pads the third column with a null.
	assert.True(t, result.Columns[2].Nullable)
	assert.Equal(t, []string{"x"}, result.Columns[2].SampleValues)
}

func TestDetectResource_SampleValuesCapped(t *testing.T) {
	t.Parallel()
	file := []byte("n\n1\n2\n3\n4\n5\n6\n7\n8\n")
	fetcher := &mockFetcher{files: map[string][]byte{"u": file}}

	policy := DefaultDetectionPolicy()
	policy.SampleRows = 8
	policy.MaxSampleValues = 3

	svc := newTestDetector(csvCatalog("u"), fetcher, &mockSheets{}, policy)
	result := svc.DetectResource(context.Background(), "res-1", "")

	require.True(t, result.OK, "error: %s %s", result.ErrorKind, result.ErrorMessage)
	assert.Equal(t, []string{"1", "2", "3"}, result.Columns[0].SampleValues)
}

func TestDetectResource_RecordsAudit(t *testing.T) {
	t.Parallel()
	file := []byte("a,b\n1,2\n")
	fetcher := &mockFetcher{files: map[string][]byte{"u": file}}

	var recorded []port.DetectionEntry
	auditor := auditorFunc(func(e port.DetectionEntry) { recorded = append(recorded, e) })

	svc := NewDetectorService(csvCatalog("u"), fetcher, &mockSheets{}, auditor, testLogger(), DefaultDetectionPolicy(), nil, nil)
	ctx := WithToolName(context.Background(), "detect_resource_schema")
	svc.DetectResource(ctx, "res-1", "")

	require.Len(t, recorded, 1)
	assert.Equal(t, "detect_resource_schema", recorded[0].Tool)
	assert.Equal(t, "res-1", recorded[0].ResourceID)
	assert.Equal(t, int64(len(file)), recorded[0].BytesFetched)
	assert.Equal(t, 2, recorded[0].Columns)
	assert.NoError(t, recorded[0].Err)
}

type auditorFunc func(port.DetectionEntry)

func (f auditorFunc) Record(_ context.Context, e port.DetectionEntry) { f(e) }
func (f auditorFunc) Close() error                                    { return nil }
