package loader

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/smallnest/hybridrag"
)

// Markdown converts one markdown source into a Document and ordered
// Chunks. The markdown is rendered to HTML and then reduced to plain
// text, so formatting never leaks into embeddings.
type Markdown struct {
	splitter *Splitter
}

// NewMarkdown creates a markdown loader. A nil splitter gets defaults.
func NewMarkdown(splitter *Splitter) *Markdown {
	return &Markdown{splitter: splitter}
}

// Load parses the markdown source and returns the document with its
// chunks, ordinals in source order.
func (m *Markdown) Load(title, source string) (*hybridrag.Document, []hybridrag.Chunk, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(source))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(doc, renderer)

	text, err := htmlToText(string(rendered))
	if err != nil {
		return nil, nil, err
	}

	document, chunks := Build(title, text, m.splitter)
	for i := range chunks {
		chunks[i].Metadata["format"] = "markdown"
	}
	return document, chunks, nil
}
