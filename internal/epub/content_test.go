package epub

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jackzampolin/skillshelf/internal/oreilly"
)

func testBuildState(t *testing.T) *build {
	t.Helper()
	return &build{
		id: "123",
		meta: &oreilly.BookMeta{
			WebURL: "https://host.example/library/view/book/123/",
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestRewriteLink(t *testing.T) {
	j := testBuildState(t)

	tests := []struct {
		name string
		link string
		want string
	}{
		{"empty stays empty", "", ""},
		{"mailto untouched", "mailto:author@example.com", "mailto:author@example.com"},
		{"foreign absolute untouched", "https://elsewhere.example/page.html", "https://elsewhere.example/page.html"},
		{"absolute into this book recurses on the remainder", "https://host.example/library/view/book/123/ch05.html", "/ch05.xhtml"},
		{"image path moves under Images", "images/fig1.png", "Images/fig1.png"},
		{"graphics path moves under Images", "graphics/shot.gif", "Images/shot.gif"},
		{"cover path moves under Images", "assets/bookcover.jpg", "Images/bookcover.jpg"},
		{"chapter link swaps extension", "ch02.html", "ch02.xhtml"},
		{"fragment survives the swap", "ch02.html#details", "ch02.xhtml#details"},
		{"already xhtml untouched", "notes.xhtml", "notes.xhtml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := j.rewriteLink(tt.link); got != tt.want {
				t.Errorf("rewriteLink(%q) = %q, want %q", tt.link, got, tt.want)
			}
		})
	}
}

func TestProcessPage(t *testing.T) {
	t.Run("extracts the container and rewrites links", func(t *testing.T) {
		j := testBuildState(t)
		raw := []byte(`<html><head>
<link rel="stylesheet" href="//cdn.example/site.css"/>
</head><body>
<div id="sbo-rt-content"><p>See <a href="ch02.html">next</a>.</p><img src="images/fig1.png"/></div>
</body></html>`)
		ch := &oreilly.Chapter{
			Filename:    "ch01.html",
			Stylesheets: []oreilly.Stylesheet{{URL: "https://host.example/main.css"}},
		}

		doc, err := j.processPage(ch, raw, false)
		if err != nil {
			t.Fatalf("processPage() error = %v", err)
		}

		wantCSS := []string{"https://host.example/main.css", "https://cdn.example/site.css"}
		if len(j.css) != len(wantCSS) {
			t.Fatalf("css = %v, want %v", j.css, wantCSS)
		}
		for i := range wantCSS {
			if j.css[i] != wantCSS[i] {
				t.Errorf("css[%d] = %q, want %q", i, j.css[i], wantCSS[i])
			}
		}
		if !strings.Contains(doc.headCSS, `href="Styles/Style00.css"`) ||
			!strings.Contains(doc.headCSS, `href="Styles/Style01.css"`) {
			t.Errorf("headCSS missing numbered links: %q", doc.headCSS)
		}
		if !strings.Contains(doc.body, `href="ch02.xhtml"`) {
			t.Errorf("body kept unrewritten chapter link: %q", doc.body)
		}
		if !strings.Contains(doc.body, `src="Images/fig1.png"`) {
			t.Errorf("body kept unrewritten image link: %q", doc.body)
		}
		if !strings.HasPrefix(doc.body, `<div id="sbo-rt-content">`) {
			t.Errorf("body does not start with the container: %q", doc.body)
		}
	})

	t.Run("falls back to a class marked container", func(t *testing.T) {
		j := testBuildState(t)
		raw := []byte(`<html><body><div class="ucv sbo-rt-content"><p>inner text</p></div></body></html>`)

		doc, err := j.processPage(&oreilly.Chapter{Filename: "ch01.html"}, raw, false)
		if err != nil {
			t.Fatalf("processPage() error = %v", err)
		}
		if !strings.Contains(doc.body, "inner text") {
			t.Errorf("body = %q, want the class container's content", doc.body)
		}
	})

	t.Run("errors when the container is missing", func(t *testing.T) {
		j := testBuildState(t)
		raw := []byte(`<html><body><div id="something-else"><p>x</p></div></body></html>`)

		if _, err := j.processPage(&oreilly.Chapter{Filename: "ch01.html"}, raw, false); err == nil {
			t.Fatal("processPage() error = nil, want container error")
		}
	})

	t.Run("detects a first page cover", func(t *testing.T) {
		j := testBuildState(t)
		raw := []byte(`<html><body><div id="sbo-rt-content"><div class="cover"><img src="images/front.jpg"/></div></div></body></html>`)

		doc, err := j.processPage(&oreilly.Chapter{Filename: "cover.html"}, raw, true)
		if err != nil {
			t.Fatalf("processPage() error = %v", err)
		}
		if doc.coverSrc != "Images/front.jpg" {
			t.Errorf("coverSrc = %q, want %q", doc.coverSrc, "Images/front.jpg")
		}
		if j.cover != "Images/front.jpg" {
			t.Errorf("build cover = %q, want %q", j.cover, "Images/front.jpg")
		}
		if doc.headCSS != coverStyle {
			t.Errorf("headCSS = %q, want the cover style block", doc.headCSS)
		}
		if doc.body != `<div id="Cover"><img src="Images/front.jpg"/></div>` {
			t.Errorf("body = %q", doc.body)
		}
	})

	t.Run("ignores covers past the first page", func(t *testing.T) {
		j := testBuildState(t)
		raw := []byte(`<html><body><div id="sbo-rt-content"><div class="cover"><img src="images/front.jpg"/></div></div></body></html>`)

		doc, err := j.processPage(&oreilly.Chapter{Filename: "ch03.html"}, raw, false)
		if err != nil {
			t.Fatalf("processPage() error = %v", err)
		}
		if doc.coverSrc != "" {
			t.Errorf("coverSrc = %q, want empty", doc.coverSrc)
		}
		if !strings.Contains(doc.body, `class="cover"`) {
			t.Errorf("body = %q, want the original markup", doc.body)
		}
	})

	t.Run("replaces svg image embeds", func(t *testing.T) {
		j := testBuildState(t)
		raw := []byte(`<html><body><div id="sbo-rt-content"><p>intro</p><figure><svg xmlns="http://www.w3.org/2000/svg"><image xlink:href="images/diagram.png"/></svg></figure></div></body></html>`)

		doc, err := j.processPage(&oreilly.Chapter{Filename: "ch01.html"}, raw, false)
		if err != nil {
			t.Fatalf("processPage() error = %v", err)
		}
		if !strings.Contains(doc.body, `<img src="Images/diagram.png"/>`) {
			t.Errorf("body = %q, want a plain img tag", doc.body)
		}
		if strings.Contains(doc.body, "<svg") {
			t.Errorf("body = %q, svg should be gone", doc.body)
		}
	})

	t.Run("inlines templated style blocks", func(t *testing.T) {
		j := testBuildState(t)
		raw := []byte(`<html><head><style type="text/css" data-template="p{margin:0}"></style></head><body><div id="sbo-rt-content"><p>x</p></div></body></html>`)

		doc, err := j.processPage(&oreilly.Chapter{Filename: "ch01.html"}, raw, false)
		if err != nil {
			t.Fatalf("processPage() error = %v", err)
		}
		if !strings.Contains(doc.headCSS, `<style type="text/css">p{margin:0}</style>`) {
			t.Errorf("headCSS = %q, want the inlined template", doc.headCSS)
		}
	})
}

func TestResolveStyleURL(t *testing.T) {
	j := testBuildState(t)

	tests := []struct {
		href string
		want string
	}{
		{"//cdn.example/a.css", "https://cdn.example/a.css"},
		{"https://other.example/b.css", "https://other.example/b.css"},
		{"site.css", "https://host.example/library/view/book/123/site.css"},
		{"/static/c.css", "https://host.example/static/c.css"},
	}
	for _, tt := range tests {
		if got := j.resolveStyleURL(tt.href); got != tt.want {
			t.Errorf("resolveStyleURL(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}
