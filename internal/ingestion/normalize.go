package ingestion

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/support-rag/backend/pkg/textutil"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// normalizeField strips markup from tickets exported out of email-based
// systems, then applies the standard text cleaning.
func normalizeField(text string) string {
	return textutil.Clean(stripMarkup(text))
}

func stripMarkup(text string) string {
	if !htmlTagPattern.MatchString(text) {
		return text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}

	doc.Find("script, style").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	stripped := whitespacePattern.ReplaceAllString(doc.Text(), " ")
	return strings.TrimSpace(stripped)
}
