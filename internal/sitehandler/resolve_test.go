package sitehandler

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

// assetFS mirrors the layout of the embedded static tree.
func assetFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":             &fstest.MapFile{Data: []byte("root")},
		"css/site.css":           &fstest.MapFile{Data: []byte("css")},
		"js/csrf.js":             &fstest.MapFile{Data: []byte("js")},
		"fonts/inter.woff2":      &fstest.MapFile{Data: []byte("font")},
		"docs/index.html":        &fstest.MapFile{Data: []byte("docs")},
		"docs/api/index.html":    &fstest.MapFile{Data: []byte("api docs")},
		"docs/api/sessions.html": &fstest.MapFile{Data: []byte("sessions")},
		"robots.txt":             &fstest.MapFile{Data: []byte("robots")},
		"noext":                  &fstest.MapFile{Data: []byte("no extension")},
		".well-known":            &fstest.MapFile{Data: []byte("hidden")},
	}
}

func TestResolvePath(t *testing.T) {
	fsys := assetFS()

	tests := []struct {
		name      string
		path      string
		wantFile  string
		wantRedir string
		wantOK    bool
	}{
		{name: "root", path: "/", wantFile: "index.html", wantOK: true},
		{name: "empty is root", path: "", wantFile: "index.html", wantOK: true},
		{name: "css mount", path: "/css/site.css", wantFile: "css/site.css", wantOK: true},
		{name: "js mount", path: "/js/csrf.js", wantFile: "js/csrf.js", wantOK: true},
		{name: "fonts mount", path: "/fonts/inter.woff2", wantFile: "fonts/inter.woff2", wantOK: true},
		{name: "root file", path: "/robots.txt", wantFile: "robots.txt", wantOK: true},
		{name: "nested html", path: "/docs/api/sessions.html", wantFile: "docs/api/sessions.html", wantOK: true},
		{name: "directory index", path: "/docs/", wantFile: "docs/index.html", wantOK: true},
		{name: "nested directory index", path: "/docs/api/", wantFile: "docs/api/index.html", wantOK: true},
		{name: "dotfile is not a dot segment", path: "/.well-known", wantFile: ".well-known", wantOK: true},
		{name: "no leading slash", path: "css/site.css", wantFile: "css/site.css", wantOK: true},
		{name: "double slash", path: "//css/site.css", wantFile: "css/site.css", wantOK: true},

		{name: "directory redirect", path: "/docs", wantRedir: "/docs/", wantOK: true},
		{name: "nested directory redirect", path: "/docs/api", wantRedir: "/docs/api/", wantOK: true},

		{name: "missing file", path: "/css/missing.css", wantOK: false},
		{name: "missing directory", path: "/nope/", wantOK: false},
		{name: "extensionless without index", path: "/noext", wantOK: false},
		{name: "application route", path: "/form", wantOK: false},
		{name: "directory without index", path: "/css/", wantOK: false},

		{name: "dot dot", path: "/../etc/passwd", wantOK: false},
		{name: "dot dot in middle", path: "/css/../index.html", wantOK: false},
		{name: "single dot", path: "/./index.html", wantOK: false},
		{name: "null byte", path: "/index.html\x00.css", wantOK: false},
		{name: "backslash", path: "/css\\site.css", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, redir, ok := resolvePath(tt.path, fsys)

			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !tt.wantOK {
				if file != "" || redir != "" {
					t.Fatalf("file = %q, redir = %q, want both empty", file, redir)
				}
				return
			}
			if redir != tt.wantRedir {
				t.Fatalf("redir = %q, want %q", redir, tt.wantRedir)
			}
			if file != tt.wantFile {
				t.Fatalf("file = %q, want %q", file, tt.wantFile)
			}
		})
	}
}

func TestResolvePath_EmptyFS(t *testing.T) {
	for _, p := range []string{"/", "/index.html", "/docs/", "/docs"} {
		if file, redir, ok := resolvePath(p, fstest.MapFS{}); ok {
			t.Fatalf("%s: expected not found, got file=%q redir=%q", p, file, redir)
		}
	}
}

func TestExistsFile(t *testing.T) {
	fsys := assetFS()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"existing file", "index.html", true},
		{"nested file", "css/site.css", true},
		{"nonexistent", "nope.html", false},
		{"empty string", "", false},
		{"directory", "docs", false},
		{"invalid path", "/index.html", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := existsFile(fsys, tt.path); got != tt.want {
				t.Errorf("existsFile(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func FuzzResolvePath(f *testing.F) {
	for _, s := range []string{
		"../etc/passwd", "..\\..\\windows\\system32", "foo/../../../etc/shadow",
		"\x00", "\\", "..", ".", "./", "../", "css/./site.css",
		strings.Repeat("../", 100) + "etc/passwd", "css/site.css",
	} {
		f.Add(s)
	}

	fsys := fstest.MapFS{
		"index.html":   &fstest.MapFile{Data: []byte("ok")},
		"css/site.css": &fstest.MapFile{Data: []byte("ok")},
	}

	f.Fuzz(func(t *testing.T, input string) {
		file, _, ok := resolvePath(input, fsys)
		if !ok || file == "" {
			return
		}
		if !fs.ValidPath(file) {
			t.Errorf("resolvePath returned invalid fs path: %q", file)
		}
		if strings.Contains(file, "..") {
			t.Errorf("resolvePath returned path with '..': %q", file)
		}
		if _, err := fs.Stat(fsys, file); err != nil {
			t.Errorf("resolvePath returned non-existent file: %q", file)
		}
	})
}
