package epub

import (
	"path"
	"runtime"
	"strings"
	"unicode"
)

// forbiddenChars are replaced with underscores in directory names. The colon
// is handled first: past column 15 it marks a droppable subtitle, and on
// Windows it is illegal outright.
const forbiddenChars = "~#%&*{}\\<>?/`'\"|+:"

// EscapeDirname makes a book title safe to use as a directory name.
func EscapeDirname(name string) string {
	return escapeDirname(name, runtime.GOOS == "windows")
}

func escapeDirname(name string, windows bool) string {
	if i := strings.IndexRune(name, ':'); i >= 0 {
		switch {
		case colonColumn(name) > 15:
			name = name[:i]
		case windows:
			name = strings.ReplaceAll(name, ":", ",")
		}
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbiddenChars, r) {
			return '_'
		}
		return r
	}, name)
}

// colonColumn returns the character column of the first colon.
func colonColumn(name string) int {
	for i, r := range []rune(name) {
		if r == ':' {
			return i
		}
	}
	return -1
}

// BookDirName builds the working tree directory name for a book:
// the escaped title truncated at its second comma, then " (<id>)".
func BookDirName(title, id string) string {
	parts := strings.SplitN(EscapeDirname(title), ",", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "") + " (" + id + ")"
}

// ArchiveName builds the final epub filename for a variant:
// "<title> - <authors>.epub", with a " (Kindle)" marker for that variant.
func ArchiveName(title, authors string, v Variant) string {
	name := cleanName(title) + " - " + cleanName(authors)
	if v == Kindle {
		name += " (Kindle)"
	}
	return name + ".epub"
}

// cleanName strips every character except letters, digits, spaces, dashes
// and underscores.
func cleanName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// xhtmlName maps a chapter index filename onto its name in the tree.
func xhtmlName(filename string) string {
	return strings.ReplaceAll(filename, ".html", ".xhtml")
}

// itemID derives a manifest id from a tree filename by dropping the
// extension and any remaining dots.
func itemID(filename string) string {
	parts := strings.Split(filename, ".")
	if len(parts) > 1 {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, "")
}

// imageName is the tree filename an image URL downloads to.
func imageName(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// imageMediaType maps an image filename onto its manifest media type.
func imageMediaType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if strings.Contains(ext, "jp") {
		return "image/jpeg"
	}
	if ext == "" {
		return "image/png"
	}
	return "image/" + ext
}

// isImagePath reports whether a link path names an image file.
func isImagePath(link string) bool {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(link), ".")) {
	case "jpg", "jpeg", "png", "gif":
		return true
	}
	return false
}
