// Package markdown renders markdown documents with YAML frontmatter, used for
// notification email bodies.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

type Parser struct {
	md goldmark.Markdown
}

func NewParser() *Parser {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			&frontmatter.Extender{},
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
			goldmarkhtml.WithXHTML(),
		),
	)

	return &Parser{
		md: md,
	}
}

// Document is a rendered markdown source.
type Document struct {
	HTML string
	// Text is the markdown body without frontmatter, usable as a plain-text
	// alternative.
	Text string
	Meta map[string]any
}

// String returns a frontmatter value as a string, or "" when absent.
func (d *Document) String(key string) string {
	v, ok := d.Meta[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (p *Parser) Parse(source []byte) (*Document, error) {
	source = bytes.ReplaceAll(source, []byte("\r\n"), []byte("\n"))

	ctx := parser.NewContext()
	var buf bytes.Buffer

	if err := p.md.Convert(source, &buf, parser.WithContext(ctx)); err != nil {
		return nil, err
	}

	meta := make(map[string]any)
	if data := frontmatter.Get(ctx); data != nil {
		if err := data.Decode(&meta); err != nil {
			return nil, fmt.Errorf("invalid frontmatter: %w", err)
		}
	}

	return &Document{
		HTML: buf.String(),
		Text: strings.TrimSpace(stripFrontmatter(string(source))),
		Meta: meta,
	}, nil
}

func stripFrontmatter(source string) string {
	const delim = "---"
	if !strings.HasPrefix(source, delim+"\n") {
		return source
	}
	rest := source[len(delim)+1:]
	end := strings.Index(rest, "\n"+delim)
	if end < 0 {
		return source
	}
	body := rest[end+len(delim)+1:]
	return strings.TrimPrefix(body, "\n")
}
