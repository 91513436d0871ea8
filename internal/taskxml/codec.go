package taskxml

import (
	"fmt"
	"regexp"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var declEncodingRe = regexp.MustCompile(`^(\s*<\?xml[^>]*encoding=")[^"]*(")`)

// Encode renders doc as UTF-16LE with a byte order mark, the encoding
// schtasks expects for /XML imports. The XML declaration, when present, is
// rewritten to advertise UTF-16.
func Encode(doc string) ([]byte, error) {
	doc = declEncodingRe.ReplaceAllString(doc, "${1}UTF-16${2}")
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	out, _, err := transform.Bytes(enc, []byte(doc))
	if err != nil {
		return nil, fmt.Errorf("encode task xml: %w", err)
	}
	return out, nil
}
