package epub

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackzampolin/skillshelf/internal/oreilly"
)

// generatePackage renders the content.opf package document for one variant.
// The manifest is built from what actually landed in the tree, so a book
// missing an asset still packages as a structurally valid EPUB.
func (j *build) generatePackage(v Variant) string {
	chapters := j.presentChapters()
	styles := j.treeFiles(j.styles)
	images := j.treeFiles(j.imgDir)
	coverImage := j.coverImage(images)

	var sb strings.Builder

	sb.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	if v == Legacy {
		sb.WriteString("<package xmlns=\"http://www.idpf.org/2007/opf\" unique-identifier=\"bookid\" version=\"2.0\">\n")
	} else {
		sb.WriteString("<package xmlns=\"http://www.idpf.org/2007/opf\" unique-identifier=\"bookid\" version=\"3.0\">\n")
	}

	// Dublin Core metadata
	sb.WriteString("<metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\" xmlns:opf=\"http://www.idpf.org/2007/opf\">\n")
	sb.WriteString(fmt.Sprintf("<dc:title>%s</dc:title>\n", escapeXML(j.meta.Title)))
	for _, a := range j.meta.Authors {
		name := escapeXML(a.Name)
		sb.WriteString(fmt.Sprintf("<dc:creator opf:file-as=\"%s\" opf:role=\"aut\">%s</dc:creator>\n", name, name))
	}
	sb.WriteString(fmt.Sprintf("<dc:description>%s</dc:description>\n", escapeXML(j.meta.Description)))
	for _, sub := range j.meta.Subjects {
		sb.WriteString(fmt.Sprintf("<dc:subject>%s</dc:subject>\n", escapeXML(sub)))
	}
	sb.WriteString(fmt.Sprintf("<dc:publisher>%s</dc:publisher>\n", escapeXML(j.meta.PublisherNames())))
	sb.WriteString(fmt.Sprintf("<dc:rights>%s</dc:rights>\n", escapeXML(j.meta.Rights)))
	sb.WriteString("<dc:language>en-US</dc:language>\n")
	sb.WriteString(fmt.Sprintf("<dc:date>%s</dc:date>\n", escapeXML(j.meta.Issued)))
	sb.WriteString(fmt.Sprintf("<dc:identifier id=\"bookid\">%s</dc:identifier>\n", escapeXML(j.meta.ISBN)))
	if v != Legacy {
		sb.WriteString("<dc:format>application/epub+zip</dc:format>\n")
	}
	if coverImage != "" {
		sb.WriteString("<meta name=\"cover\" content=\"cover-image\"/>\n")
	}
	if v != Legacy {
		sb.WriteString(fmt.Sprintf("<meta property=\"dcterms:modified\">%s</meta>\n",
			time.Now().UTC().Format("2006-01-02T15:04:05Z")))
		sb.WriteString("<meta name=\"generator\" content=\"skillshelf\"/>\n")
		sb.WriteString("<meta property=\"schema:accessibilityFeature\" content=\"alternativeText\"/>\n")
		sb.WriteString("<meta property=\"schema:accessibilityFeature\" content=\"structuralNavigation\"/>\n")
	}
	sb.WriteString("</metadata>\n")

	// Manifest
	sb.WriteString("<manifest>\n")
	sb.WriteString("<item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	if v != Legacy {
		sb.WriteString("<item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	}
	if coverImage != "" {
		props := ""
		if v != Legacy {
			props = " properties=\"cover-image\""
		}
		sb.WriteString(fmt.Sprintf("<item id=\"cover-image\" href=\"Images/%s\" media-type=\"%s\"%s/>\n",
			coverImage, imageMediaType(coverImage), props))
	}
	for _, ch := range chapters {
		name := xhtmlName(ch.Filename)
		sb.WriteString(fmt.Sprintf("<item id=\"%s\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n",
			escapeXML(itemID(name)), escapeXML(name)))
	}
	for _, name := range styles {
		sb.WriteString(fmt.Sprintf("<item id=\"%s\" href=\"Styles/%s\" media-type=\"text/css\"/>\n",
			styleID(name), name))
	}
	for _, name := range images {
		if name == coverImage {
			continue
		}
		sb.WriteString(fmt.Sprintf("<item id=\"img_%s\" href=\"Images/%s\" media-type=\"%s\"/>\n",
			escapeXML(itemID(name)), escapeXML(name), imageMediaType(name)))
	}
	sb.WriteString("</manifest>\n")

	// Spine, chapter index order
	sb.WriteString("<spine toc=\"ncx\">\n")
	for _, ch := range chapters {
		sb.WriteString(fmt.Sprintf("<itemref idref=\"%s\"/>\n", escapeXML(itemID(xhtmlName(ch.Filename)))))
	}
	sb.WriteString("</spine>\n")

	if len(chapters) > 0 {
		sb.WriteString(fmt.Sprintf("<guide><reference href=\"%s\" title=\"Cover\" type=\"cover\"/></guide>\n",
			escapeXML(xhtmlName(chapters[0].Filename))))
	}
	sb.WriteString("</package>\n")

	return sb.String()
}

// presentChapters filters the chapter index to entries whose files made it
// into the tree.
func (j *build) presentChapters() []oreilly.Chapter {
	out := make([]oreilly.Chapter, 0, len(j.chapters))
	for _, ch := range j.chapters {
		if _, err := os.Stat(filepath.Join(j.oebps, xhtmlName(ch.Filename))); err == nil {
			out = append(out, ch)
		}
	}
	return out
}

// coverImage picks the manifest cover: the image the build detected, or any
// cover-named file already under Images/.
func (j *build) coverImage(images []string) string {
	if j.cover != "" {
		name := imageName(j.cover)
		if containsString(images, name) {
			return name
		}
	}
	for _, name := range images {
		if strings.Contains(strings.ToLower(name), "cover") {
			return name
		}
	}
	return ""
}

// styleID maps a stylesheet file to its manifest id: numbered sheets keep
// style_NN ids, variant sheets use their base name.
func styleID(name string) string {
	base := strings.TrimSuffix(name, ".css")
	if digits := strings.TrimPrefix(base, "Style"); digits != base {
		return "style_" + digits
	}
	return base
}

// escapeXML escapes special XML characters.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
