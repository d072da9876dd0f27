package ui

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/Specifix5/mikushare/internal/ctxkeys"
	"github.com/Specifix5/mikushare/internal/service"
)

const stylesheet = `body{font-family:system-ui,sans-serif;max-width:42rem;margin:3rem auto;padding:0 1rem;line-height:1.6;color:#1f2d3d;background:#f7fbfc}
h1{color:#39c5bb}a{color:#137c75}pre{background:#e8f4f3;padding:.75rem;overflow-x:auto;border-radius:4px}
code{font-size:.9em}.muted{color:#6b7b8c}`

// Preview is the data behind the Open Graph card shown to chat crawlers.
type Preview struct {
	Title    string
	ShareURL string
	ImageURL string
	MIMEType string
}

func layout(title, description string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title>`,
			templ.EscapeString(title))
		if err != nil {
			return err
		}
		if description != "" {
			_, err = fmt.Fprintf(w, `<meta name="description" content="%s">`, templ.EscapeString(description))
			if err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(w, `<style nonce="%s">%s</style></head><body>`, templ.EscapeString(templ.GetNonce(ctx)), stylesheet)
		if err != nil {
			return err
		}

		err = body.Render(ctx, w)
		if err != nil {
			return err
		}

		_, err = io.WriteString(w, `</body></html>`)
		return err
	})
}

// Home renders the landing page. page holds trusted HTML from the embedded
// markdown content.
func Home(page *service.Page) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := page.Title
		if cfg := ctxkeys.Config(ctx); cfg != nil && cfg.AppName != "" {
			title = cfg.AppName
		}

		body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			_, err := fmt.Fprintf(w, `<header><h1>%s</h1><p class="muted">%s</p></header><main>`,
				templ.EscapeString(title), templ.EscapeString(page.Description))
			if err != nil {
				return err
			}
			err = templ.Raw(page.Content).Render(ctx, w)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, `</main>`)
			return err
		})

		return layout(title, page.Description, body).Render(ctx, w)
	})
}

func NotFound() templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<main><h1>404</h1><p>This file does not exist or has expired.</p><p><a href="/">Home</a></p></main>`)
		return err
	})
	return layout("Not Found", "", body)
}

// PreviewCard is a bare document of Open Graph and Twitter meta tags so chat
// apps render the image inline instead of following a redirect.
func PreviewCard(p Preview) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		image := templ.EscapeString(p.ImageURL)
		tags := []struct{ attr, name, content string }{
			{"property", "og:title", p.Title},
			{"property", "og:type", "website"},
			{"property", "og:url", p.ShareURL},
			{"property", "og:image", p.ImageURL},
			{"property", "og:image:type", p.MIMEType},
			{"name", "twitter:card", "summary_large_image"},
			{"name", "twitter:image", p.ImageURL},
		}

		_, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8">`)
		if err != nil {
			return err
		}
		for _, t := range tags {
			if t.content == "" {
				continue
			}
			_, err = fmt.Fprintf(w, `<meta %s="%s" content="%s">`, t.attr, t.name, templ.EscapeString(t.content))
			if err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(w, `</head><body><img src="%s" alt="%s"></body></html>`, image, templ.EscapeString(p.Title))
		return err
	})
}
