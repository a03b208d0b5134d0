package port

// SheetExtractor pulls a header row and sample rows out of a fully fetched
// container-format file (spreadsheet). Only the first sheet is examined:
// container formats keep their directory structure at the end of the file,
// so they cannot be sampled by a byte-range prefix the way delimited text can.
type SheetExtractor interface {
	Extract(data []byte, wantRows int) (header []string, rows [][]string, err error)
}
