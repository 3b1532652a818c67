package gateway

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// filenameDecoders is the fixed fallback order for reinterpreting a raw
// filename: GBK first, then GB18030 (the complete superset of the GB2312
// family). UTF-8 is checked before either runs.
var filenameDecoders = []encoding.Encoding{
	simplifiedchinese.GBK,
	simplifiedchinese.GB18030,
}

// RecoverFileName reinterprets a filename that arrived as an ambiguous byte
// sequence. Valid UTF-8 is kept as-is; otherwise the bytes are tried against
// each legacy encoding in order and the first clean decode wins; if nothing
// decodes cleanly the raw bytes are kept unchanged. This runs once, at
// ingestion; the recovered name is what the id and metadata embed.
func RecoverFileName(raw string) string {
	if raw == "" || utf8.ValidString(raw) {
		return raw
	}

	for _, enc := range filenameDecoders {
		decoded, err := enc.NewDecoder().String(raw)
		if err != nil {
			continue
		}
		// x/text decoders substitute U+FFFD instead of failing; treat any
		// substitution as a failed decode.
		if strings.ContainsRune(decoded, utf8.RuneError) {
			continue
		}
		return decoded
	}
	return raw
}
