package mikushare

import (
	"embed"
	"io/fs"
)

//go:embed content
var contentFS embed.FS

// ContentFS holds the markdown pages rendered by the landing page.
var ContentFS, _ = fs.Sub(contentFS, "content")
