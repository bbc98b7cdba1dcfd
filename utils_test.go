package burndrop_test

import (
	"strings"
	"testing"

	"github.com/sagarc03/burndrop"
	"github.com/stretchr/testify/assert"
)

func TestIsValidBlobPath(t *testing.T) {
	tests := []struct {
		path  string
		valid bool
	}{
		{path: "ab/ab12cd34-0000-4000-8000-000000000000", valid: true},
		{path: "file.txt", valid: true},
		{path: "", valid: false},
		{path: ".", valid: false},
		{path: "/etc/passwd", valid: false},
		{path: "../escape", valid: false},
		{path: "a/../b", valid: false},
		{path: "a//b", valid: false},
		{path: "a/b/", valid: false},
		{path: `a\b`, valid: false},
		{path: "a b", valid: false},
		{path: "a?b", valid: false},
		{path: "a#b", valid: false},
		{path: "~root", valid: false},
		{path: "a\x00b", valid: false},
		{path: "a\x7fb", valid: false},
		{path: "\xff", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.valid, burndrop.IsValidBlobPath(tt.path))
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "report.pdf", want: "report.pdf"},
		{name: "unix traversal", in: "../../etc/passwd", want: "passwd"},
		{name: "windows path", in: `C:\Users\me\notes.txt`, want: "notes.txt"},
		{name: "quotes and control chars", in: "a\"b\r\nc.txt", want: "abc.txt"},
		{name: "surrounding space", in: "  spaced.txt  ", want: "spaced.txt"},
		{name: "empty", in: "", want: "download"},
		{name: "dot dot", in: "..", want: "download"},
		{name: "only slash", in: "/", want: "download"},
		{name: "invalid utf8", in: "caf\xe9.txt", want: "caf.txt"},
		{name: "unicode kept", in: "résumé.pdf", want: "résumé.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, burndrop.SanitizeName(tt.in))
		})
	}

	t.Run("truncates on a rune boundary", func(t *testing.T) {
		got := burndrop.SanitizeName(strings.Repeat("é", 200))
		assert.LessOrEqual(t, len(got), 255)
		assert.Equal(t, strings.Repeat("é", 127), got)
	})
}

func TestDetectContentType(t *testing.T) {
	assert.Contains(t, burndrop.DetectContentType("notes.txt"), "text/plain")
	assert.Equal(t, "application/pdf", burndrop.DetectContentType("report.pdf"))
	assert.Equal(t, "application/octet-stream", burndrop.DetectContentType("blob.unknownext"))
	assert.Equal(t, "application/octet-stream", burndrop.DetectContentType("noext"))
}
