package domain

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// NormalizeText converts buf to plain UTF-8 text. A byte-order mark selects
// UTF-8 or UTF-16 (either endianness); without a BOM the input is assumed to
// already be UTF-8. Because buf may be a byte-range prefix of a larger file,
// an incomplete trailing rune is trimmed rather than rejected.
func NormalizeText(buf []byte) ([]byte, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	text, _, err := transform.Bytes(dec, buf)
	if err != nil {
		return nil, WrapDetectError(ErrDecodeFailed, err, "decoding text")
	}

	text = trimPartialRune(text)
	if !utf8.Valid(text) {
		return nil, NewDetectError(ErrDecodeFailed, "input is not valid UTF-8 text")
	}
	if bytes.IndexByte(text, 0) >= 0 {
		return nil, NewDetectError(ErrDecodeFailed, "input contains NUL bytes, likely binary content")
	}
	return text, nil
}

// trimPartialRune drops an incomplete multi-byte UTF-8 sequence from the end
// of a truncated buffer. At most utf8.UTFMax-1 bytes are removed.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			return b
		}
		// A lone RuneError of size 1 at the tail is either garbage or a cut
		// sequence; dropping it is safe for schema sampling either way.
		b = b[:len(b)-1]
	}
	return b
}
