package service

import (
	"strings"
	"testing"
)

// latin1Misread decodes the UTF-8 bytes of s as ISO-8859-1, which is what a
// multipart parser assuming Latin-1 produces.
func latin1Misread(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		b.WriteRune(rune(c))
	}
	return b.String()
}

func TestRepairFileName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ascii", "report.pdf", "report.pdf"},
		{"already utf-8", "보고서.pdf", "보고서.pdf"},
		{"misread korean", latin1Misread("보고서.pdf"), "보고서.pdf"},
		{"misread accents", latin1Misread("café.txt"), "café.txt"},
		{"genuine latin-1", "café.txt", "café.txt"},
		{"path stripped", `C:\Users\me\notes.txt`, "notes.txt"},
		{"unix path stripped", "/tmp/x/notes.txt", "notes.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepairFileName(tt.input); got != tt.expected {
				t.Errorf("RepairFileName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
