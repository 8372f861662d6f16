// Path and location handling for CWL File/Directory values.
package cwl

import (
	"net/url"
	"path/filepath"
	"strings"
)

// LocationToPath converts a CWL location to a filesystem path.
// file:// URIs lose their scheme and are URL-decoded; bare paths are
// decoded in place. Other schemes (http, https) return "" since they have
// no local path.
func LocationToPath(location string) string {
	if strings.HasPrefix(location, "file://") {
		p := strings.TrimPrefix(location, "file://")
		if decoded, err := url.PathUnescape(p); err == nil {
			return decoded
		}
		return p
	}
	if strings.Contains(location, "://") {
		return ""
	}
	if decoded, err := url.PathUnescape(location); err == nil {
		return decoded
	}
	return location
}

// PathToLocation builds the file:// location for a path.
func PathToLocation(path string) string {
	return "file://" + path
}

// ResolvePath makes a path absolute against the document search path list.
// Already-absolute paths pass through. The first search root that exists is
// not checked on disk here; resolution is purely lexical and the first root
// wins, matching symbolic inspection where the file may not exist.
func ResolvePath(path string, docDir []string) string {
	if filepath.IsAbs(path) || len(docDir) == 0 {
		return path
	}
	return filepath.Join(docDir[0], path)
}

// SplitBasename derives the basename family of a path: basename, dirname,
// nameroot and nameext (nameext keeps the dot, as in ".txt").
func SplitBasename(path string) (basename, dirname, nameroot, nameext string) {
	if path == "" {
		return "", "", "", ""
	}
	basename = filepath.Base(path)
	dirname = filepath.Dir(path)
	if i := strings.LastIndexByte(basename, '.'); i > 0 {
		nameroot, nameext = basename[:i], basename[i:]
	} else {
		nameroot = basename
	}
	return basename, dirname, nameroot, nameext
}
