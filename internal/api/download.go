package api

import (
	"path"
	"strings"
)

// contentDisposition builds an attachment header carrying an ASCII fallback
// name and the exact UTF-8 name (RFC 6266 / RFC 5987).
func contentDisposition(fallback, name string) string {
	return `attachment; filename="` + fallback + `"; filename*=UTF-8''` + encodeRFC5987(name)
}

// fallbackName is "download" plus the extension of name when it is plain ASCII
func fallbackName(name string) string {
	ext := path.Ext(strings.ReplaceAll(name, `\`, "/"))
	for i := 0; i < len(ext); i++ {
		if !isAttrChar(ext[i]) {
			return "download"
		}
	}
	return "download" + ext
}

const upperhex = "0123456789ABCDEF"

func encodeRFC5987(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

// isAttrChar reports whether c may appear unescaped in an RFC 5987 value
func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
