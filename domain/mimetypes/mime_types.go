package mimetypes

import (
	"fmt"
	"mime"

	"github.com/gabriel-vasile/mimetype"
)

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"
	TextCSV   MIME = "text/csv"
)

// Matches reports whether a full content type, parameters included, is the expected one.
func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// Extension returns the file extension registered for a content type, e.g. ".csv".
func Extension(contentType string) (string, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("invalid content type %q: %w", contentType, err)
	}
	m := mimetype.Lookup(mt)
	if m == nil || m.Extension() == "" {
		return "", fmt.Errorf("no extension known for %q", mt)
	}
	return m.Extension(), nil
}

// IsText sniffs data and reports whether it is some kind of text.
func IsText(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is(string(TextPlain)) {
			return true
		}
	}
	return false
}
