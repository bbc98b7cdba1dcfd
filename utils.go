package burndrop

import (
	"mime"
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxNameBytes       = 255
	defaultName        = "download"
	defaultContentType = "application/octet-stream"
)

// IsValidBlobPath reports whether p is a safe relative storage path:
// non-empty, clean, slash separated, without "." or ".." segments and
// without control characters, whitespace or any of \ ? # ~.
func IsValidBlobPath(p string) bool {
	if p == "" || p[0] == '/' || !utf8.ValidString(p) {
		return false
	}
	if path.Clean(p) != p || strings.Contains(p, "..") {
		return false
	}
	if strings.ContainsAny(p, `\?#~`) {
		return false
	}
	for _, r := range p {
		if r < 0x20 || r == 0x7f || unicode.IsSpace(r) {
			return false
		}
	}
	return p != "."
}

// SanitizeName turns a client supplied file name into something safe to
// store and echo back in a Content-Disposition header.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(strings.TrimSpace(name))
	if !utf8.ValidString(name) {
		name = strings.ToValidUTF8(name, "")
	}

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '"' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	for len(name) > maxNameBytes {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}

	if name == "" || name == "." || name == "/" || name == ".." {
		return defaultName
	}
	return name
}

// DetectContentType guesses a media type from the file extension.
func DetectContentType(name string) string {
	if contentType := mime.TypeByExtension(filepath.Ext(name)); contentType != "" {
		return contentType
	}
	return defaultContentType
}
