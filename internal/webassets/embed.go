package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

// static/, fallback/ and templates/ must each hold at least one file to satisfy go:embed
//
//go:embed static fallback templates
var embedded embed.FS

func sub(dir string) fs.FS {
	s, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(fmt.Errorf("webassets: %s subfs: %w", dir, err))
	}
	return s
}

// StaticFS is the public asset tree mounted at / (css/, js/, fonts/, index.html).
func StaticFS() fs.FS { return sub("static") }

// FallbackFS holds pages served when the static tree has no answer (404.html).
func FallbackFS() fs.FS { return sub("fallback") }

// TemplatesFS holds the html/template sources for the application routes.
func TemplatesFS() fs.FS { return sub("templates") }
