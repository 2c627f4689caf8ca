package epub

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/skillshelf/internal/oreilly"
)

// treeBuildState prepares a build over a populated working tree: two chapters
// on disk plus one listed chapter whose file never arrived, a numbered
// stylesheet, a cover image and one figure.
func treeBuildState(t *testing.T) *build {
	t.Helper()

	j := &build{
		id: "321",
		meta: &oreilly.BookMeta{
			ISBN:        "9780000000321",
			Title:       "Tree <Book>",
			Authors:     []oreilly.Person{{Name: "Jo Writer"}},
			Publishers:  []oreilly.Person{{Name: "Example Press"}},
			Description: "About trees.",
			Subjects:    oreilly.NameList{"Go"},
			Rights:      "All rights reserved.",
			Issued:      "2023-05-06",
		},
		opts:   Options{OutputDir: t.TempDir()},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if err := j.prepareTree(); err != nil {
		t.Fatalf("prepareTree() error = %v", err)
	}

	seed := []struct {
		path    string
		content string
	}{
		{filepath.Join(j.oebps, "ch01.xhtml"), "<html/>"},
		{filepath.Join(j.oebps, "ch02.xhtml"), "<html/>"},
		{filepath.Join(j.styles, "Style00.css"), "body{}"},
		{filepath.Join(j.imgDir, "cover.jpg"), "jpegdata"},
		{filepath.Join(j.imgDir, "fig1.png"), "pngdata"},
	}
	for _, f := range seed {
		if err := os.WriteFile(f.path, []byte(f.content), 0o644); err != nil {
			t.Fatalf("write %s: %v", f.path, err)
		}
	}

	j.chapters = []oreilly.Chapter{
		{Title: "One", Filename: "ch01.html"},
		{Title: "Two", Filename: "ch02.html"},
		{Title: "Ghost", Filename: "missing.html"},
	}
	j.cover = "Images/cover.jpg"
	return j
}

func TestGeneratePackage(t *testing.T) {
	t.Run("enhanced package", func(t *testing.T) {
		j := treeBuildState(t)
		opf := j.generatePackage(Enhanced)

		wantFragments := []string{
			`version="3.0"`,
			`<dc:title>Tree &lt;Book&gt;</dc:title>`,
			`<dc:creator opf:file-as="Jo Writer" opf:role="aut">Jo Writer</dc:creator>`,
			`<dc:identifier id="bookid">9780000000321</dc:identifier>`,
			`<dc:format>application/epub+zip</dc:format>`,
			`<meta name="cover" content="cover-image"/>`,
			`<meta property="dcterms:modified">`,
			`<item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>`,
			`<item id="cover-image" href="Images/cover.jpg" media-type="image/jpeg" properties="cover-image"/>`,
			`<item id="ch01" href="ch01.xhtml" media-type="application/xhtml+xml"/>`,
			`<item id="style_00" href="Styles/Style00.css" media-type="text/css"/>`,
			`<item id="img_fig1" href="Images/fig1.png" media-type="image/png"/>`,
			`<itemref idref="ch01"/>`,
			`<itemref idref="ch02"/>`,
			`<guide><reference href="ch01.xhtml" title="Cover" type="cover"/></guide>`,
		}
		for _, want := range wantFragments {
			if !strings.Contains(opf, want) {
				t.Errorf("package missing %q", want)
			}
		}
		if strings.Contains(opf, "img_cover") {
			t.Error("cover image duplicated as a plain image item")
		}
	})

	t.Run("legacy package", func(t *testing.T) {
		j := treeBuildState(t)
		opf := j.generatePackage(Legacy)

		if !strings.Contains(opf, `version="2.0"`) {
			t.Error("legacy package not version 2.0")
		}
		if !strings.Contains(opf, `<item id="cover-image" href="Images/cover.jpg" media-type="image/jpeg"/>`) {
			t.Error("legacy package missing plain cover item")
		}
		for _, unwanted := range []string{
			`href="nav.xhtml"`,
			`<dc:format>`,
			`dcterms:modified`,
			`properties="cover-image"`,
		} {
			if strings.Contains(opf, unwanted) {
				t.Errorf("legacy package carries %q", unwanted)
			}
		}
	})

	t.Run("omits chapters missing from the tree", func(t *testing.T) {
		j := treeBuildState(t)
		opf := j.generatePackage(Enhanced)

		if strings.Contains(opf, "missing.xhtml") {
			t.Error("manifest references a chapter that never downloaded")
		}
	})
}

func TestStyleID(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"Style00.css", "style_00"},
		{"Style07.css", "style_07"},
		{"kindle-style.css", "kindle-style"},
		{"standard-style.css", "standard-style"},
	}
	for _, tt := range tests {
		if got := styleID(tt.file); got != tt.want {
			t.Errorf("styleID(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}
