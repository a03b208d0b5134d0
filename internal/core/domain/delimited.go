package domain

// Delimiter candidates in tie-break preference order.
var delimiterCandidates = []byte{',', '\t', ';', '|'}

// ParseOutcome is the result of parsing a (possibly truncated) delimited text
// buffer. When Complete is false the buffer ended before the requested number
// of rows could be accepted and Reason says why; no partially parsed row is
// ever included in Rows.
type ParseOutcome struct {
	Complete  bool
	Header    []string
	Rows      [][]string
	Delimiter byte
	Reason    string
}

// ParseDelimited scans buf once and extracts a header row plus up to wantRows
// complete data rows. The delimiter is auto-detected from the header line.
// A row is accepted only when its terminating line break is observed outside
// an open quote; a buffer that ends mid-row yields Complete=false.
//
// atEOF tells the parser that buf is the entire file: a trailing row without
// a final line break is then accepted (quotes permitting), and fewer than
// wantRows rows still count as a complete parse.
//
// buf must already be normalized text (see NormalizeText).
func ParseDelimited(buf []byte, wantRows int, atEOF bool) ParseOutcome {
	if len(buf) == 0 {
		return ParseOutcome{Reason: "empty buffer"}
	}

	headerLine, ok := firstLine(buf, atEOF)
	if !ok {
		return ParseOutcome{Reason: "header line not terminated within buffer"}
	}
	delim := sniffDelimiter(headerLine)

	pos := 0
	header, next, ok := readRecord(buf, pos, delim, atEOF)
	if !ok {
		return ParseOutcome{Delimiter: delim, Reason: "header row incomplete"}
	}
	pos = next

	out := ParseOutcome{Header: header, Delimiter: delim}
	for len(out.Rows) < wantRows && pos < len(buf) {
		row, next, ok := readRecord(buf, pos, delim, atEOF)
		if !ok {
			out.Reason = "last row truncated mid-record"
			return out
		}
		pos = next
		if isBlankRow(row) {
			continue
		}
		out.Rows = append(out.Rows, row)
	}

	if len(out.Rows) < wantRows && !atEOF {
		out.Reason = "buffer exhausted before enough sample rows"
		return out
	}

	out.Complete = true
	return out
}

// sniffDelimiter picks the delimiter for line by majority count outside quoted
// spans, preferring comma > tab > semicolon > pipe on ties. A line with no
// candidate occurrences defaults to comma (single-column file).
func sniffDelimiter(line []byte) byte {
	counts := make(map[byte]int, len(delimiterCandidates))
	inQuote := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '"' {
			if inQuote && i+1 < len(line) && line[i+1] == '"' {
				i++ // escaped quote
				continue
			}
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		for _, cand := range delimiterCandidates {
			if c == cand {
				counts[c]++
				break
			}
		}
	}

	best := delimiterCandidates[0]
	bestCount := 0
	for _, cand := range delimiterCandidates {
		if counts[cand] > bestCount {
			best = cand
			bestCount = counts[cand]
		}
	}
	return best
}

// firstLine returns the bytes of the first line, honoring quoted line breaks.
// ok is false when no line terminator is found and atEOF is false.
func firstLine(buf []byte, atEOF bool) ([]byte, bool) {
	inQuote := false
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		if c == '"' {
			if inQuote && i+1 < len(buf) && buf[i+1] == '"' {
				i++
				continue
			}
			inQuote = !inQuote
			continue
		}
		if c == '\n' && !inQuote {
			return buf[:i], true
		}
	}
	if atEOF && !inQuote {
		return buf, true
	}
	return nil, false
}

// readRecord parses one record starting at pos. It returns the parsed fields,
// the position just past the record terminator, and whether the record was
// fully terminated inside the buffer. With atEOF set, the end of the buffer
// terminates the record as long as no quote is left open.
func readRecord(buf []byte, pos int, delim byte, atEOF bool) ([]string, int, bool) {
	var fields []string
	var field []byte
	inQuote := false
	quoted := false

	flush := func() {
		fields = append(fields, string(field))
		field = field[:0]
		quoted = false
	}

	i := pos
	for i < len(buf) {
		c := buf[i]
		switch {
		case c == '"':
			if inQuote {
				if i+1 < len(buf) && buf[i+1] == '"' {
					field = append(field, '"')
					i += 2
					continue
				}
				inQuote = false
				i++
				continue
			}
			if len(field) == 0 && !quoted {
				inQuote = true
				quoted = true
				i++
				continue
			}
			// Stray quote inside an unquoted field: keep it literally.
			field = append(field, c)
			i++
		case c == delim && !inQuote:
			flush()
			i++
		case c == '\n' && !inQuote:
			if len(field) > 0 && field[len(field)-1] == '\r' {
				field = field[:len(field)-1]
			}
			flush()
			return fields, i + 1, true
		default:
			field = append(field, c)
			i++
		}
	}

	if atEOF && !inQuote {
		flush()
		return fields, i, true
	}
	return nil, pos, false
}

func isBlankRow(row []string) bool {
	for _, f := range row {
		if f != "" {
			return false
		}
	}
	return true
}
