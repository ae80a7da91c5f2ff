package loader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/smallnest/hybridrag"
)

// HTML converts one HTML source into a Document and ordered Chunks.
// The markup is sanitized first, then reduced to text.
type HTML struct {
	splitter *Splitter
}

// NewHTML creates an HTML loader. A nil splitter gets defaults.
func NewHTML(splitter *Splitter) *HTML {
	return &HTML{splitter: splitter}
}

// Load sanitizes and parses the HTML source and returns the document
// with its chunks, ordinals in source order.
func (h *HTML) Load(title, source string) (*hybridrag.Document, []hybridrag.Chunk, error) {
	text, err := htmlToText(source)
	if err != nil {
		return nil, nil, err
	}

	document, chunks := Build(title, text, h.splitter)
	for i := range chunks {
		chunks[i].Metadata["format"] = "html"
	}
	return document, chunks, nil
}

var whitespaceRun = regexp.MustCompile(`[ \t]+`)

// htmlToText sanitizes markup and extracts readable text. Scripts,
// styles and event handlers are stripped by the sanitizer before
// parsing.
func htmlToText(source string) (string, error) {
	sanitized := bluemonday.UGCPolicy().Sanitize(source)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sanitized))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	doc.Find("body").Contents().Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	})
	text := b.String()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " ")), nil
}
