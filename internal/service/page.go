package service

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/Specifix5/mikushare/internal/markdown"
)

// Page is a rendered markdown document.
type Page struct {
	Title       string
	Description string
	Content     string
}

// PageService renders the static markdown pages shipped with the binary.
type PageService struct {
	content fs.FS
	parser  *markdown.Parser
	pages   map[string]*Page
}

// NewPageService reads pages from content. vars are substituted as {{name}}
// before rendering.
func NewPageService(content fs.FS, vars map[string]string) *PageService {
	return &PageService{
		content: content,
		parser:  markdown.NewParser(markdown.WithVars(vars)),
		pages:   make(map[string]*Page),
	}
}

// LoadPages parses every .md file at the root of the content filesystem.
func (s *PageService) LoadPages() error {
	entries, err := fs.ReadDir(s.content, ".")
	if err != nil {
		return fmt.Errorf("failed to read content directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		slug := strings.TrimSuffix(entry.Name(), ".md")
		page, err := s.loadPage(entry.Name())
		if err != nil {
			return fmt.Errorf("failed to load page %s: %w", slug, err)
		}
		s.pages[slug] = page
	}

	return nil
}

func (s *PageService) loadPage(name string) (*Page, error) {
	raw, err := fs.ReadFile(s.content, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	html, meta, err := s.parser.Render(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse markdown: %w", err)
	}

	return &Page{
		Title:       meta.Title,
		Description: meta.Description,
		Content:     string(html),
	}, nil
}

// Page returns a loaded page or nil.
func (s *PageService) Page(slug string) *Page {
	return s.pages[slug]
}
