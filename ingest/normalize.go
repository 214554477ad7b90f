package ingest

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	paraBreakRe = regexp.MustCompile(`\n[ \t]*\n\s*`)
	spaceRunRe  = regexp.MustCompile(`[ \t]+`)
)

// NormalizeWhitespace produces paragraph-separated text where paragraphs are
// delimited by exactly one blank line: single newlines inside a paragraph
// become spaces, runs of three or more newlines collapse to one blank line,
// and runs of spaces collapse to one space. Text is NFC-normalized so that
// byte-identical content embeds identically regardless of source encoding
// quirks.
func NormalizeWhitespace(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var paras []string
	for _, p := range paraBreakRe.Split(text, -1) {
		p = strings.ReplaceAll(p, "\n", " ")
		p = spaceRunRe.ReplaceAllString(p, " ")
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return strings.Join(paras, "\n\n")
}

// SplitParagraphs splits normalized text on blank lines. Input is expected
// to already be in NormalizeWhitespace form.
func SplitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}
