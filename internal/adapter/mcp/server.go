package mcp

import (
	"log/slog"

	"github.com/guillermoBallester/strata/internal/core/port"
	"github.com/guillermoBallester/strata/internal/core/service"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, detector *service.DetectorService, scanner *service.ScannerService, catalog port.Catalog, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, detector, scanner, catalog)

	return s
}
