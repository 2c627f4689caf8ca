package epub

import (
	"strings"
	"testing"

	"github.com/jackzampolin/skillshelf/internal/oreilly"
)

func TestGenerateNCX(t *testing.T) {
	j := treeBuildState(t)
	toc := []oreilly.TOCNode{
		{
			ID:    "ch01",
			Label: "One & Done",
			Href:  "book/ch01.html",
			Depth: 1,
			Children: []oreilly.TOCNode{
				{Label: "Section", Href: "book/ch01.html", Fragment: "sect1", Depth: 2},
			},
		},
		{ID: "ch02", Label: "Two", Href: "book/ch02.html", Depth: 1},
	}

	ncx := j.generateNCX(toc)

	wantFragments := []string{
		`<meta content="ID:ISBN:9780000000321" name="dtb:uid"/>`,
		`<meta content="2" name="dtb:depth"/>`,
		`<docTitle><text>Tree &lt;Book&gt;</text></docTitle>`,
		`<docAuthor><text>Jo Writer</text></docAuthor>`,
		`<navPoint id="ch01" playOrder="1">`,
		`<navLabel><text>One &amp; Done</text></navLabel>`,
		`<content src="ch01.xhtml"/>`,
		`<navPoint id="sect1" playOrder="2">`,
		`<content src="ch01.xhtml#sect1"/>`,
		`<navPoint id="ch02" playOrder="3">`,
	}
	for _, want := range wantFragments {
		if !strings.Contains(ncx, want) {
			t.Errorf("ncx missing %q", want)
		}
	}
}

func TestGenerateNCXNumbersUnnamedNodes(t *testing.T) {
	j := treeBuildState(t)
	toc := []oreilly.TOCNode{
		{Label: "Untitled", Href: "intro.html", Depth: 1},
	}

	ncx := j.generateNCX(toc)
	if !strings.Contains(ncx, `<navPoint id="navpoint-1" playOrder="1">`) {
		t.Errorf("ncx = %q, want a numbered fallback id", ncx)
	}
}

func TestGenerateNav(t *testing.T) {
	j := treeBuildState(t)
	nav := j.generateNav()

	if !strings.Contains(nav, `<nav epub:type="toc" id="toc">`) {
		t.Error("nav missing the toc landmark")
	}
	if !strings.Contains(nav, `<li><a href="ch01.xhtml">One</a></li>`) {
		t.Errorf("nav missing the first chapter entry: %q", nav)
	}
	if !strings.Contains(nav, `<li><a href="ch02.xhtml">Two</a></li>`) {
		t.Error("nav missing the second chapter entry")
	}
	if strings.Contains(nav, "missing.xhtml") {
		t.Error("nav lists a chapter that never downloaded")
	}
}
