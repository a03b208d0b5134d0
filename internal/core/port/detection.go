package port

import "github.com/guillermoBallester/strata/internal/core/domain"

// ResourceSchemaResult is the outcome of one detection attempt. Every attempt
// produces exactly one result: OK carries the detected columns, a failure
// carries its error kind. Nothing is dropped silently.
type ResourceSchemaResult struct {
	ResourceID string `json:"resource_id"`
	Name       string `json:"name,omitempty"`
	Format     string `json:"format,omitempty"`
	OK         bool   `json:"ok"`

	ColumnCount int                   `json:"column_count,omitempty"`
	Columns     []domain.ColumnSchema `json:"columns,omitempty"`
	// Delimiter actually detected in the content. May disagree with the
	// declared format (a tab-separated file labeled CSV); the detected one wins.
	Delimiter    string `json:"delimiter,omitempty"`
	BytesFetched int64  `json:"bytes_fetched,omitempty"`

	ErrorKind    domain.ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// ScanSummary partitions a scan's results by outcome.
type ScanSummary struct {
	Attempted    int `json:"attempted"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	TotalColumns int `json:"total_columns"`
}

// DatasetSchemaReport aggregates per-resource detection results for one
// dataset. Results appear in arrival order, not resource-list order.
type DatasetSchemaReport struct {
	DatasetID string                 `json:"dataset_id"`
	Title     string                 `json:"title,omitempty"`
	Results   []ResourceSchemaResult `json:"results"`
	Summary   ScanSummary            `json:"summary"`
}
