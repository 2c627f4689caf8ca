package epub

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/jackzampolin/skillshelf/internal/oreilly"
)

// document is the processed form of one chapter page, ready for the shell.
type document struct {
	headCSS  string // stylesheet links and inline style blocks
	body     string // content container serialized as XML
	coverSrc string // set when a cover image replaced the body
}

// processPage turns one fetched chapter page into tree-ready markup: it
// registers the page's stylesheets, repairs svg image embeds, extracts the
// content container, rewrites every outbound link, and on the first page
// swaps detected covers for a dedicated full-page container.
func (j *build) processPage(ch *oreilly.Chapter, raw []byte, firstPage bool) (*document, error) {
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse chapter html: %w", err)
	}

	var head strings.Builder

	// Stylesheets declared on the index entry come before ones discovered
	// in the page, keeping the numbering stable across runs.
	for _, u := range ch.StylesheetURLs() {
		head.WriteString(j.styleLink(u))
	}
	for _, n := range findAll(root, isStylesheetLink) {
		if href := attr(n, "href"); href != "" {
			head.WriteString(j.styleLink(j.resolveStyleURL(href)))
		}
	}
	for _, n := range findAll(root, func(n *html.Node) bool { return n.Data == "style" }) {
		inlineTemplate(n)
		var sb strings.Builder
		renderXML(&sb, n)
		head.WriteString(sb.String())
		head.WriteString("\n")
	}

	fixSVGImages(root)

	content := findContent(root)
	if content == nil {
		return nil, fmt.Errorf("content container missing in %s", ch.Filename)
	}
	rewriteLinks(content, j.rewriteLink)

	if firstPage {
		if src := findCoverImage(content); src != "" {
			j.cover = src
			return &document{
				headCSS:  coverStyle,
				body:     coverBody(src),
				coverSrc: src,
			}, nil
		}
	}

	var body strings.Builder
	renderXML(&body, content)
	return &document{headCSS: head.String(), body: body.String()}, nil
}

// styleLink registers a stylesheet URL and returns the head link pointing at
// its numbered file under Styles/.
func (j *build) styleLink(u string) string {
	idx := -1
	for i, existing := range j.css {
		if existing == u {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = len(j.css)
		j.css = append(j.css, u)
		j.logger.Debug("stylesheet discovered", "url", u)
	}
	return fmt.Sprintf("<link href=\"Styles/Style%02d.css\" rel=\"stylesheet\" type=\"text/css\"/>\n", idx)
}

// resolveStyleURL makes a page stylesheet reference absolute. Protocol
// relative URLs assume https; everything else resolves against the book's
// web URL the way the page's own browser would.
func (j *build) resolveStyleURL(href string) string {
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	base, err := url.Parse(j.meta.WebURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// rewriteLink maps one outbound reference onto its place in the tree:
// images and covers land in Images/, intra-book pages swap .html for
// .xhtml, and absolute links into this book recurse on the remainder.
func (j *build) rewriteLink(link string) string {
	if link == "" || strings.HasPrefix(link, "mailto") {
		return link
	}
	if isAbsoluteURL(link) {
		if strings.Contains(link, j.id) {
			parts := strings.Split(link, j.id)
			return j.rewriteLink(parts[len(parts)-1])
		}
		return link
	}
	if strings.Contains(link, "cover") || strings.Contains(link, "images") ||
		strings.Contains(link, "graphics") || isImagePath(link) {
		return "Images/" + imageName(link)
	}
	return strings.ReplaceAll(link, ".html", ".xhtml")
}

func isAbsoluteURL(link string) bool {
	u, err := url.Parse(link)
	return err == nil && u.Host != ""
}

// rewriteLinks applies fn to every href and src attribute in the subtree.
func rewriteLinks(root *html.Node, fn func(string) string) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for i, a := range n.Attr {
				if a.Key == "href" || a.Key == "src" {
					n.Attr[i].Val = fn(a.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

// findContent locates the chapter content container: the element with id
// "sbo-rt-content", or failing that one carrying it as a class.
func findContent(root *html.Node) *html.Node {
	if n := findFirst(root, func(n *html.Node) bool {
		return attr(n, "id") == "sbo-rt-content"
	}); n != nil {
		return n
	}
	return findFirst(root, func(n *html.Node) bool {
		return hasClass(n, "sbo-rt-content")
	})
}

// findCoverImage looks for a cover image the way publishers mark them: on
// the image's own attributes first, then on a wrapping div or anchor.
func findCoverImage(content *html.Node) string {
	if img := findFirst(content, func(n *html.Node) bool {
		return n.Data == "img" && attr(n, "src") != "" &&
			hasCoverAttr(n, "id", "class", "name", "src", "alt")
	}); img != nil {
		return attr(img, "src")
	}

	for _, wrapper := range []string{"div", "a"} {
		for _, holder := range findAll(content, func(n *html.Node) bool {
			return n.Data == wrapper && hasCoverAttr(n, "id", "class", "name", "src")
		}) {
			img := findFirst(holder, func(n *html.Node) bool {
				return n.Data == "img" && attr(n, "src") != ""
			})
			if img != nil {
				return attr(img, "src")
			}
		}
	}
	return ""
}

func hasCoverAttr(n *html.Node, keys ...string) bool {
	for _, key := range keys {
		if strings.Contains(strings.ToLower(attr(n, key)), "cover") {
			return true
		}
	}
	return false
}

// fixSVGImages replaces svg image embeds with plain img tags so readers
// without svg support still show the figure.
func fixSVGImages(root *html.Node) {
	for _, img := range findAll(root, func(n *html.Node) bool { return n.Data == "image" }) {
		href := ""
		for _, a := range img.Attr {
			if strings.Contains(strings.ToLower(a.Key), "href") {
				href = a.Val
				break
			}
		}
		if href == "" {
			continue
		}
		svg := img.Parent
		if svg == nil || svg.Parent == nil {
			continue
		}
		holder := svg.Parent
		holder.RemoveChild(svg)
		holder.AppendChild(&html.Node{
			Type: html.ElementNode,
			Data: "img",
			Attr: []html.Attribute{{Key: "src", Val: href}},
		})
	}
}

// inlineTemplate moves a style element's data-template rules into its text.
func inlineTemplate(n *html.Node) {
	for i, a := range n.Attr {
		if a.Key != "data-template" || a.Val == "" {
			continue
		}
		for n.FirstChild != nil {
			n.RemoveChild(n.FirstChild)
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: a.Val})
		n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
		return
	}
}

func isStylesheetLink(n *html.Node) bool {
	return n.Data == "link" && strings.EqualFold(attr(n, "rel"), "stylesheet")
}

// findAll collects every element in the subtree matching pred, in document
// order.
func findAll(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && pred(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && pred(n) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// renderXML serializes a subtree as XML so chapter files stay well-formed
// XHTML: childless elements self-close and text is entity escaped.
func renderXML(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(escapeXML(n.Data))
	case html.CommentNode:
		sb.WriteString("<!--")
		sb.WriteString(n.Data)
		sb.WriteString("-->")
	case html.ElementNode:
		sb.WriteByte('<')
		sb.WriteString(n.Data)
		for _, a := range n.Attr {
			sb.WriteByte(' ')
			if a.Namespace != "" {
				sb.WriteString(a.Namespace)
				sb.WriteByte(':')
			}
			sb.WriteString(a.Key)
			sb.WriteString(`="`)
			sb.WriteString(escapeXML(a.Val))
			sb.WriteByte('"')
		}
		if n.FirstChild == nil {
			sb.WriteString("/>")
			return
		}
		sb.WriteByte('>')
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderXML(sb, c)
		}
		sb.WriteString("</")
		sb.WriteString(n.Data)
		sb.WriteByte('>')
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderXML(sb, c)
		}
	}
}
