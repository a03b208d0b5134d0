package port

import "context"

// SizeUnknown is returned as totalSize when the server reports no length.
const SizeUnknown int64 = -1

// RangeFetcher retrieves bytes from a resource URL.
//
// FetchRange asks for the byte range [start, end). Servers that ignore range
// semantics answer with the full body; callers detect that by comparing the
// returned length against the requested window. totalSize is the full
// resource size when the server reported one, SizeUnknown otherwise.
//
// FetchAll downloads the resource in full, transparently decompressing
// gzip-compressed bodies.
type RangeFetcher interface {
	FetchRange(ctx context.Context, url string, start, end int64) (data []byte, totalSize int64, err error)
	FetchAll(ctx context.Context, url string) ([]byte, error)
}
