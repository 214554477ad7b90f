package ingest

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

var _ Extractor = HTMLExtractor{}

// HTMLExtractor extracts readable article text from HTML using readability,
// dropping navigation, scripts, and boilerplate.
type HTMLExtractor struct{}

var localPageURL, _ = url.Parse("local://upload")

func (HTMLExtractor) Extract(content []byte) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(content), localPageURL)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return strings.TrimSpace(article.TextContent), nil
}
