package inject

import "strings"

const (
	scriptOpen  = "<script>"
	scriptClose = "</script>"
)

// NewPayload wraps source in a script element and returns its UTF-8 bytes.
// Invalid UTF-8 sequences in source are replaced with U+FFFD. A non-empty
// nonce is emitted as the element's nonce attribute.
func NewPayload(source, nonce string) []byte {
	source = strings.ToValidUTF8(source, "�")

	var b strings.Builder
	b.Grow(len(scriptOpen) + len(source) + len(scriptClose) + len(nonce) + 10)

	if nonce == "" {
		b.WriteString(scriptOpen)
	} else {
		b.WriteString(`<script nonce="`)
		b.WriteString(escapeAttr(nonce))
		b.WriteString(`">`)
	}
	b.WriteString(source)
	b.WriteString(scriptClose)

	return []byte(b.String())
}

var attrEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`"`, "&quot;",
	`<`, "&lt;",
	`>`, "&gt;",
)

func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}
