package service

import (
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// RepairFileName undoes the classic multipart mis-decoding where UTF-8 bytes
// were read as ISO-8859-1: if every rune fits in one Latin-1 byte and those
// bytes form valid UTF-8 with at least one multibyte sequence, the UTF-8
// reading wins. Names that do not fit that pattern are kept as received.
// Directory components are dropped.
func RepairFileName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}

	if isASCII(name) {
		return name
	}

	raw, err := charmap.ISO8859_1.NewEncoder().String(name)
	if err == nil && utf8.ValidString(raw) {
		return raw
	}
	return strings.ToValidUTF8(name, "�")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
