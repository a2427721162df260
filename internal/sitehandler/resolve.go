package sitehandler

import (
	"io/fs"
	"path"
	"strings"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/pathutil"
)

// resolvePath maps a URL path to a file within fsys.
// A non-empty redirectTo asks the caller to redirect to the canonical directory URL.
func resolvePath(urlPath string, fsys fs.FS) (file string, redirectTo string, ok bool) {
	clean, safe := pathutil.CleanURLPath(urlPath)
	if !safe {
		return "", "", false
	}
	rel := strings.TrimPrefix(clean, "/")

	switch {
	case clean == "/" || strings.HasSuffix(clean, "/"):
		file = rel + "index.html"
	case path.Ext(clean) != "":
		file = rel
	default:
		// extensionless: a directory with an index gets the slash form
		if existsFile(fsys, rel+"/index.html") {
			return "", clean + "/", true
		}
		return "", "", false
	}

	if !existsFile(fsys, file) {
		return "", "", false
	}
	return file, "", true
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
