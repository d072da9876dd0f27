// Package markdown renders the embedded content pages.
package markdown

import (
	"bytes"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

// Meta is the frontmatter a page may carry.
type Meta struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type Parser struct {
	md   goldmark.Markdown
	vars *strings.Replacer
}

type Option func(*Parser)

// WithVars replaces {{name}} placeholders in the source before it is parsed.
func WithVars(vars map[string]string) Option {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "{{"+name+"}}", vars[name])
	}

	return func(p *Parser) {
		p.vars = strings.NewReplacer(pairs...)
	}
}

// NewParser renders GFM with YAML frontmatter. Raw HTML in the source is
// dropped.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				&frontmatter.Extender{},
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				goldmarkhtml.WithXHTML(),
			),
		),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Render returns the HTML body and the page frontmatter. Malformed
// frontmatter is ignored.
func (p *Parser) Render(source []byte) ([]byte, Meta, error) {
	if p.vars != nil {
		source = []byte(p.vars.Replace(string(source)))
	}

	ctx := parser.NewContext()
	var buf bytes.Buffer
	err := p.md.Convert(source, &buf, parser.WithContext(ctx))
	if err != nil {
		return nil, Meta{}, err
	}

	var meta Meta
	if data := frontmatter.Get(ctx); data != nil {
		if data.Decode(&meta) != nil {
			meta = Meta{}
		}
	}

	return buf.Bytes(), meta, nil
}
