package epub

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/skillshelf/internal/oreilly"
)

// generateNCX renders toc.ncx from the table-of-contents tree. Both package
// shapes reference it; EPUB 3 readers treat it as a fallback.
func (j *build) generateNCX(toc []oreilly.TOCNode) string {
	var nav strings.Builder
	order, depth := 0, 0
	writeNavPoints(&nav, toc, &order, &depth)
	if depth == 0 {
		depth = 1
	}

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8" standalone="no" ?>
<!DOCTYPE ncx PUBLIC "-//NISO//DTD ncx 2005-1//EN" "http://www.daisy.org/z3986/2005/ncx-2005-1.dtd">
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
<head>
`)
	sb.WriteString(fmt.Sprintf("<meta content=\"ID:ISBN:%s\" name=\"dtb:uid\"/>\n", escapeXML(j.meta.ISBN)))
	sb.WriteString(fmt.Sprintf("<meta content=\"%d\" name=\"dtb:depth\"/>\n", depth))
	sb.WriteString("<meta content=\"0\" name=\"dtb:totalPageCount\"/>\n")
	sb.WriteString("<meta content=\"0\" name=\"dtb:maxPageNumber\"/>\n")
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<docTitle><text>%s</text></docTitle>\n", escapeXML(j.meta.Title)))
	sb.WriteString(fmt.Sprintf("<docAuthor><text>%s</text></docAuthor>\n", escapeXML(j.meta.AuthorNames())))
	sb.WriteString("<navMap>\n")
	sb.WriteString(nav.String())
	sb.WriteString("</navMap>\n")
	sb.WriteString("</ncx>\n")

	return sb.String()
}

// writeNavPoints renders toc nodes depth first, numbering them in document
// order and tracking the deepest level seen.
func writeNavPoints(sb *strings.Builder, nodes []oreilly.TOCNode, order, maxDepth *int) {
	for _, node := range nodes {
		*order++
		if node.Depth > *maxDepth {
			*maxDepth = node.Depth
		}

		id := node.Fragment
		if id == "" {
			id = node.ID
		}
		if id == "" {
			id = fmt.Sprintf("navpoint-%d", *order)
		}

		sb.WriteString(fmt.Sprintf("<navPoint id=\"%s\" playOrder=\"%d\">", escapeXML(id), *order))
		sb.WriteString(fmt.Sprintf("<navLabel><text>%s</text></navLabel>", escapeXML(node.Label)))
		sb.WriteString(fmt.Sprintf("<content src=\"%s\"/>", escapeXML(navHref(node))))
		writeNavPoints(sb, node.Children, order, maxDepth)
		sb.WriteString("</navPoint>\n")
	}
}

// navHref maps a toc node onto its chapter file, keeping any fragment.
func navHref(node oreilly.TOCNode) string {
	href := xhtmlName(node.Href)
	if i := strings.LastIndex(href, "/"); i >= 0 {
		href = href[i+1:]
	}
	if node.Fragment != "" {
		href += "#" + node.Fragment
	}
	return href
}

// generateNav renders the EPUB 3 navigation document over the chapters that
// made it into the tree.
func (j *build) generateNav() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
<title>Table of Contents</title>
<style type="text/css">
body { font-family: Georgia, serif; margin: 1em; }
nav { margin: 1em 0; }
ol { list-style-type: none; padding-left: 0; }
li { margin: 0.5em 0; }
a { text-decoration: none; color: #0066cc; }
a:hover { text-decoration: underline; }
</style>
</head>
<body>
<nav epub:type="toc" id="toc">
<h1>Table of Contents</h1>
<ol>
`)

	for _, ch := range j.presentChapters() {
		sb.WriteString(fmt.Sprintf("<li><a href=\"%s\">%s</a></li>\n",
			escapeXML(xhtmlName(ch.Filename)), escapeXML(ch.Title)))
	}

	sb.WriteString(`</ol>
</nav>
</body>
</html>
`)

	return sb.String()
}
