package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

// ErrUnsupportedFormat is returned for document types this service has no
// extractor for. Binary formats (PDF, DOCX, ...) are handled by external
// converters before upload.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ExtractText pulls plain text out of an uploaded document based on its
// declared name. Plain-text formats pass through; HTML goes through
// readability so markup and boilerplate do not pollute the chunk stream.
func ExtractText(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".csv", ".log":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("document %q is not valid UTF-8 text", name)
		}
		return string(data), nil
	case ".html", ".htm":
		article, err := readability.FromReader(bytes.NewReader(data), &url.URL{})
		if err != nil {
			return "", fmt.Errorf("document %q: %w", name, err)
		}
		return article.TextContent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}
