package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/guillermoBallester/strata/internal/core/port"
	"github.com/guillermoBallester/strata/internal/core/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "strata"

// Tool descriptions
const (
	descDetectResource = "Detect the column schema of a single remote tabular resource (CSV, TSV, XLSX, or gzipped CSV) " +
		"without downloading the full file. Delimited files are sampled with HTTP range requests, " +
		"so only a small prefix is transferred. Returns column names, inferred types " +
		"(string, integer, float, date, datetime, boolean), nullability, sample values, " +
		"the detected delimiter, and the number of bytes fetched. " +
		"On failure the result carries an error kind (range_unsupported, decode_failed, insufficient_sample, " +
		"unsupported_format, upstream_fetch_error, timeout) instead of a schema."

	descDetectResourceID     = "Catalog ID of the resource to detect"
	descDetectResourceFormat = "Format override (e.g. CSV, TSV, XLSX). When omitted, the catalog's declared format is used."

	descDetectDataset = "Detect schemas for every tabular resource in a dataset concurrently. " +
		"Resources are filtered to the allowed formats (default: CSV, XLSX), detections run in parallel " +
		"with a per-host request rate cap, and a scan deadline bounds the whole operation. " +
		"Individual failures never abort the scan; each failed resource carries its own error kind. " +
		"Returns a per-resource result list plus a summary with attempted, succeeded, and failed counts."

	descDetectDatasetID      = "Catalog ID or name of the dataset to scan"
	descDetectDatasetFormats = "Formats to include (e.g. [\"CSV\", \"TSV\"]). Defaults to the server's scan policy list."

	descListDatasets = "List datasets available in the data catalog with their titles, organizations, and resource counts. " +
		"Call this first to discover what data exists before detecting schemas."

	descSearchDatasets = "Search the data catalog for datasets matching a free-text query, optionally filtered by tags. " +
		"Returns matching datasets with titles, organizations, tags, and resource counts. " +
		"Use detect_dataset_schemas on a result to inspect its tabular files."

	descGetDatasetDetails = "Get full details for one dataset: title, description, author, organization, tags, " +
		"timestamps, and the complete resource list with formats and sizes. " +
		"Use this to pick which resources are worth schema detection."

	descGetResourceDetails = "Get full catalog metadata for one resource: name, format, size, description, " +
		"timestamps, and download URL."

	descGetDownloadURL = "Get the direct download URL for a resource. " +
		"Use this when a client needs to fetch the file itself rather than detect its schema."
)

func RegisterTools(s *server.MCPServer, detector *service.DetectorService, scanner *service.ScannerService, catalog port.Catalog) {
	s.AddTool(
		mcp.NewTool("detect_resource_schema",
			mcp.WithDescription(descDetectResource),
			mcp.WithString("resource_id",
				mcp.Required(),
				mcp.Description(descDetectResourceID),
			),
			mcp.WithString("format",
				mcp.Description(descDetectResourceFormat),
			),
		),
		detectResourceHandler(detector),
	)

	s.AddTool(
		mcp.NewTool("detect_dataset_schemas",
			mcp.WithDescription(descDetectDataset),
			mcp.WithString("dataset_id",
				mcp.Required(),
				mcp.Description(descDetectDatasetID),
			),
			mcp.WithArray("formats",
				mcp.Description(descDetectDatasetFormats),
				mcp.Items(map[string]any{"type": "string"}),
			),
		),
		detectDatasetHandler(scanner),
	)

	s.AddTool(
		mcp.NewTool("list_datasets",
			mcp.WithDescription(descListDatasets),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of datasets to return. Defaults to 20."),
			),
		),
		listDatasetsHandler(catalog),
	)

	s.AddTool(
		mcp.NewTool("search_datasets",
			mcp.WithDescription(descSearchDatasets),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Free-text search query"),
			),
			mcp.WithArray("tags",
				mcp.Description("Restrict results to datasets carrying all of these tags"),
				mcp.Items(map[string]any{"type": "string"}),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of datasets to return. Defaults to 20."),
			),
		),
		searchDatasetsHandler(catalog),
	)

	s.AddTool(
		mcp.NewTool("get_dataset_details",
			mcp.WithDescription(descGetDatasetDetails),
			mcp.WithString("dataset_id",
				mcp.Required(),
				mcp.Description("Catalog ID or name of the dataset"),
			),
		),
		datasetDetailsHandler(catalog),
	)

	s.AddTool(
		mcp.NewTool("get_resource_details",
			mcp.WithDescription(descGetResourceDetails),
			mcp.WithString("resource_id",
				mcp.Required(),
				mcp.Description("Catalog ID of the resource"),
			),
		),
		resourceDetailsHandler(catalog),
	)

	s.AddTool(
		mcp.NewTool("get_download_url",
			mcp.WithDescription(descGetDownloadURL),
			mcp.WithString("resource_id",
				mcp.Required(),
				mcp.Description("Catalog ID of the resource"),
			),
		),
		downloadURLHandler(catalog),
	)
}

func detectResourceHandler(detector *service.DetectorService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resourceID, ok := request.GetArguments()["resource_id"].(string)
		if !ok || resourceID == "" {
			return mcp.NewToolResultError("resource_id is required"), nil
		}

		format, _ := request.GetArguments()["format"].(string)

		ctx = service.WithToolName(ctx, "detect_resource_schema")
		result := detector.DetectResource(ctx, resourceID, format)

		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func detectDatasetHandler(scanner *service.ScannerService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		datasetID, ok := request.GetArguments()["dataset_id"].(string)
		if !ok || datasetID == "" {
			return mcp.NewToolResultError("dataset_id is required"), nil
		}

		formats := stringSliceArg(request.GetArguments()["formats"])

		ctx = service.WithToolName(ctx, "detect_dataset_schemas")
		report, err := scanner.ScanDataset(ctx, datasetID, formats)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to scan dataset: %v", err)), nil
		}

		data, err := json.Marshal(report)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func listDatasetsHandler(catalog port.Catalog) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := intArg(request.GetArguments()["limit"], 20)

		datasets, err := catalog.Search(ctx, "", nil, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list datasets: %v", err)), nil
		}

		return mcp.NewToolResultText(formatDatasetList(datasets)), nil
	}
}

func searchDatasetsHandler(catalog port.Catalog) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, ok := request.GetArguments()["query"].(string)
		if !ok || query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		tags := stringSliceArg(request.GetArguments()["tags"])
		limit := intArg(request.GetArguments()["limit"], 20)

		datasets, err := catalog.Search(ctx, query, tags, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(datasets) == 0 {
			return mcp.NewToolResultText("No datasets matched the query."), nil
		}

		return mcp.NewToolResultText(formatDatasetList(datasets)), nil
	}
}

func datasetDetailsHandler(catalog port.Catalog) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		datasetID, ok := request.GetArguments()["dataset_id"].(string)
		if !ok || datasetID == "" {
			return mcp.NewToolResultError("dataset_id is required"), nil
		}

		ds, err := catalog.ResolveDataset(ctx, datasetID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to resolve dataset: %v", err)), nil
		}

		return mcp.NewToolResultText(formatDataset(ds)), nil
	}
}

func resourceDetailsHandler(catalog port.Catalog) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resourceID, ok := request.GetArguments()["resource_id"].(string)
		if !ok || resourceID == "" {
			return mcp.NewToolResultError("resource_id is required"), nil
		}

		ref, err := catalog.ResolveResource(ctx, resourceID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to resolve resource: %v", err)), nil
		}

		return mcp.NewToolResultText(formatResource(ref)), nil
	}
}

func downloadURLHandler(catalog port.Catalog) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resourceID, ok := request.GetArguments()["resource_id"].(string)
		if !ok || resourceID == "" {
			return mcp.NewToolResultError("resource_id is required"), nil
		}

		return mcp.NewToolResultText(catalog.DownloadURL(resourceID)), nil
	}
}

// stringSliceArg coerces a JSON-decoded argument into a string slice. MCP
// clients send arrays as []any; some send a single comma-separated string.
func stringSliceArg(v any) []string {
	switch arg := v.(type) {
	case []any:
		out := make([]string, 0, len(arg))
		for _, item := range arg {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return arg
	case string:
		if strings.TrimSpace(arg) == "" {
			return nil
		}
		parts := strings.Split(arg, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// intArg coerces a JSON number argument, falling back to def when absent or
// not positive.
func intArg(v any, def int) int {
	if f, ok := v.(float64); ok && f > 0 {
		return int(f)
	}
	return def
}

func formatDatasetList(datasets []port.DatasetInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d dataset(s):\n\n", len(datasets))
	for _, ds := range datasets {
		title := ds.Title
		if title == "" {
			title = ds.Name
		}
		fmt.Fprintf(&b, "- %s (id: %s)\n", title, ds.ID)
		if ds.Organization != "" {
			fmt.Fprintf(&b, "  organization: %s\n", ds.Organization)
		}
		if len(ds.Tags) > 0 {
			fmt.Fprintf(&b, "  tags: %s\n", strings.Join(ds.Tags, ", "))
		}
		fmt.Fprintf(&b, "  resources: %d\n", len(ds.Resources))
	}
	return b.String()
}

func formatDataset(ds port.DatasetInfo) string {
	var b strings.Builder
	title := ds.Title
	if title == "" {
		title = ds.Name
	}
	fmt.Fprintf(&b, "Dataset: %s\n", title)
	fmt.Fprintf(&b, "ID: %s\n", ds.ID)
	if ds.Name != "" && ds.Name != title {
		fmt.Fprintf(&b, "Name: %s\n", ds.Name)
	}
	if ds.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", ds.Author)
	}
	if ds.Organization != "" {
		fmt.Fprintf(&b, "Organization: %s\n", ds.Organization)
	}
	if len(ds.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(ds.Tags, ", "))
	}
	if ds.Created != "" {
		fmt.Fprintf(&b, "Created: %s\n", ds.Created)
	}
	if ds.Modified != "" {
		fmt.Fprintf(&b, "Modified: %s\n", ds.Modified)
	}
	if ds.Notes != "" {
		fmt.Fprintf(&b, "\n%s\n", ds.Notes)
	}

	fmt.Fprintf(&b, "\nResources (%d):\n", len(ds.Resources))
	for _, r := range ds.Resources {
		fmt.Fprintf(&b, "- %s (id: %s, format: %s", r.Name, r.ID, r.Format)
		if r.Size > 0 {
			fmt.Fprintf(&b, ", size: %d bytes", r.Size)
		}
		b.WriteString(")\n")
	}
	return b.String()
}

func formatResource(ref port.ResourceRef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resource: %s\n", ref.Name)
	fmt.Fprintf(&b, "ID: %s\n", ref.ID)
	fmt.Fprintf(&b, "Format: %s\n", ref.Format)
	if ref.Size > 0 {
		fmt.Fprintf(&b, "Size: %d bytes\n", ref.Size)
	}
	if ref.Created != "" {
		fmt.Fprintf(&b, "Created: %s\n", ref.Created)
	}
	if ref.LastModified != "" {
		fmt.Fprintf(&b, "Last modified: %s\n", ref.LastModified)
	}
	if ref.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", ref.Description)
	}
	fmt.Fprintf(&b, "URL: %s\n", ref.URL)
	return b.String()
}
