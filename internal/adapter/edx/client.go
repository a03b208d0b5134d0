// Package edx implements the catalog port against a CKAN-compatible API such
// as NETL's EDX. It resolves resource and dataset identifiers, searches
// submissions, and builds direct download URLs, caching raw catalog JSON on
// disk to spare the upstream API.
package edx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/guillermoBallester/strata/internal/core/port"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultBaseURL is NETL's Energy Data eXchange.
	DefaultBaseURL = "https://edx.netl.doe.gov"

	apiKeyHeader = "EDX-API-Key"
)

// Client is a CKAN-style catalog client implementing port.Catalog.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   *Cache
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the API key sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithCache enables on-disk caching of raw catalog JSON responses.
func WithCache(cache *Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the CKAN action API response wrapper.
type envelope struct {
	Success bool                `json:"success"`
	Result  jsoniter.RawMessage `json:"result"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// flexInt64 tolerates CKAN's habit of returning numeric fields as strings.
type flexInt64 int64

func (n *flexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some deployments report fractional sizes; ignore the noise.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			*n = 0
			return nil
		}
		v = int64(f)
	}
	*n = flexInt64(v)
	return nil
}

type resourceJSON struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Format       string    `json:"format"`
	Size         flexInt64 `json:"size"`
	Description  string    `json:"description"`
	Created      string    `json:"created"`
	LastModified string    `json:"last_modified"`
}

type packageJSON struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	Notes        string `json:"notes"`
	Author       string `json:"author"`
	Organization struct {
		Title string `json:"title"`
	} `json:"organization"`
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
	MetadataCreated  string         `json:"metadata_created"`
	MetadataModified string         `json:"metadata_modified"`
	Resources        []resourceJSON `json:"resources"`
}

// ResolveResource fetches resource metadata by id.
func (c *Client) ResolveResource(ctx context.Context, resourceID string) (port.ResourceRef, error) {
	raw, err := c.action(ctx, "resource_show", url.Values{"id": {resourceID}}, true)
	if err != nil {
		return port.ResourceRef{}, err
	}

	var res resourceJSON
	if err := json.Unmarshal(raw, &res); err != nil {
		return port.ResourceRef{}, fmt.Errorf("decoding resource %q: %w", resourceID, err)
	}
	return c.toRef(res), nil
}

// ResolveDataset fetches dataset metadata, including its resource list in
// catalog order.
func (c *Client) ResolveDataset(ctx context.Context, datasetID string) (port.DatasetInfo, error) {
	raw, err := c.action(ctx, "package_show", url.Values{"id": {datasetID}}, true)
	if err != nil {
		return port.DatasetInfo{}, err
	}

	var pkg packageJSON
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return port.DatasetInfo{}, fmt.Errorf("decoding dataset %q: %w", datasetID, err)
	}
	return c.toDataset(pkg), nil
}

// Search queries the catalog. Tags narrow the search; limit caps the result
// count.
func (c *Client) Search(ctx context.Context, query string, tags []string, limit int) ([]port.DatasetInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{
		"q":    {query},
		"rows": {strconv.Itoa(limit)},
	}
	for _, tag := range tags {
		params.Add("fq", "tags:"+tag)
	}

	raw, err := c.action(ctx, "package_search", params, false)
	if err != nil {
		return nil, err
	}

	var result struct {
		Count   int           `json:"count"`
		Results []packageJSON `json:"results"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}

	out := make([]port.DatasetInfo, 0, len(result.Results))
	for _, pkg := range result.Results {
		out = append(out, c.toDataset(pkg))
	}
	return out, nil
}

// DownloadURL builds the direct download URL for a resource.
func (c *Client) DownloadURL(resourceID string) string {
	return c.baseURL + "/resource/" + resourceID + "/download"
}

// action performs a CKAN action API GET, optionally consulting the on-disk
// cache, and unwraps the response envelope.
func (c *Client) action(ctx context.Context, name string, params url.Values, cacheable bool) (jsoniter.RawMessage, error) {
	endpoint := c.baseURL + "/api/3/action/" + name + "?" + params.Encode()

	if cacheable && c.cache != nil {
		if body, ok := c.cache.Get(endpoint); ok {
			return unwrap(body, name)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", name, err)
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog %s request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog %s returned status %d", name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", name, err)
	}

	result, err := unwrap(body, name)
	if err != nil {
		return nil, err
	}

	if cacheable && c.cache != nil {
		c.cache.Put(endpoint, body)
	}
	return result, nil
}

func unwrap(body []byte, name string) (jsoniter.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding %s envelope: %w", name, err)
	}
	if !env.Success {
		msg := env.Error.Message
		if msg == "" {
			msg = "unknown catalog error"
		}
		return nil, fmt.Errorf("catalog %s failed: %s", name, msg)
	}
	return env.Result, nil
}

func (c *Client) toRef(res resourceJSON) port.ResourceRef {
	u := res.URL
	if u == "" {
		u = c.DownloadURL(res.ID)
	}
	return port.ResourceRef{
		ID:           res.ID,
		Name:         res.Name,
		URL:          u,
		Format:       strings.ToUpper(strings.TrimSpace(res.Format)),
		Size:         int64(res.Size),
		Description:  res.Description,
		Created:      res.Created,
		LastModified: res.LastModified,
	}
}

func (c *Client) toDataset(pkg packageJSON) port.DatasetInfo {
	tags := make([]string, 0, len(pkg.Tags))
	for _, t := range pkg.Tags {
		tags = append(tags, t.Name)
	}

	resources := make([]port.ResourceRef, 0, len(pkg.Resources))
	for _, r := range pkg.Resources {
		resources = append(resources, c.toRef(r))
	}

	return port.DatasetInfo{
		ID:           pkg.ID,
		Name:         pkg.Name,
		Title:        pkg.Title,
		Notes:        pkg.Notes,
		Author:       pkg.Author,
		Organization: pkg.Organization.Title,
		Tags:         tags,
		Created:      pkg.MetadataCreated,
		Modified:     pkg.MetadataModified,
		Resources:    resources,
	}
}
