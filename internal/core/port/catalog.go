package port

import "context"

// ResourceRef identifies a downloadable file in the upstream catalog.
// Format and Size are declared by the catalog and not independently verified;
// Size is 0 when the catalog does not report one.
type ResourceRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Format string `json:"format"`
	Size   int64  `json:"size,omitempty"`

	Description  string `json:"description,omitempty"`
	Created      string `json:"created,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// DatasetInfo is a catalog dataset (a CKAN package / EDX submission) with its
// resources in catalog order.
type DatasetInfo struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Title        string        `json:"title,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	Author       string        `json:"author,omitempty"`
	Organization string        `json:"organization,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	Created      string        `json:"created,omitempty"`
	Modified     string        `json:"modified,omitempty"`
	Resources    []ResourceRef `json:"resources"`
}

// Catalog resolves dataset and resource identifiers against the upstream
// data catalog.
type Catalog interface {
	ResolveResource(ctx context.Context, resourceID string) (ResourceRef, error)
	ResolveDataset(ctx context.Context, datasetID string) (DatasetInfo, error)
	Search(ctx context.Context, query string, tags []string, limit int) ([]DatasetInfo, error)
	DownloadURL(resourceID string) string
}
