package epub

import "fmt"

// chapterShell wraps processed chapter content in a well-formed XHTML page.
// Slots: title, head stylesheet block, body.
const chapterShell = `<!DOCTYPE html>
<html lang="en" xml:lang="en" xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
<title>%s</title>
%s<style type="text/css">body{margin:1em;background-color:transparent!important;}#sbo-rt-content *{text-indent:0pt!important;}#sbo-rt-content .bq{margin-right:1em!important;}</style>
</head>
<body>%s</body>
</html>
`

// coverStyle fills the page with a single centered image.
const coverStyle = `<style>body{display:table;position:absolute;margin:0!important;height:100%;width:100%;}#Cover{display:table-cell;vertical-align:middle;text-align:center;}img{height:90vh;margin-left:auto;margin-right:auto;}</style>
`

// coverBody renders the body of a cover page.
func coverBody(src string) string {
	return fmt.Sprintf(`<div id="Cover"><img src="%s"/></div>`, escapeXML(src))
}

// variantStylesheet returns the file name and rules of a variant's main
// stylesheet. Legacy books predate the variant sheets and get none.
func variantStylesheet(v Variant) (name, css string) {
	if v == Kindle {
		return "kindle-style.css", kindleCSS
	}
	return "standard-style.css", standardCSS
}

const standardCSS = `/* Standard reading styles */
body {
    font-family: Georgia, "Times New Roman", serif;
    font-size: 1.1em;
    line-height: 1.5;
    margin: 1em;
    color: #333;
    background: #fff;
}

h1, h2, h3, h4, h5, h6 {
    margin-top: 1.5em;
    margin-bottom: 0.6em;
    font-weight: bold;
    color: #000;
    text-align: left;
    line-height: 1.3;
    break-after: avoid-page;
    page-break-after: avoid;
}

h1 {
    font-size: 2em;
    page-break-before: always;
    margin-top: 0;
    padding-top: 1em;
}

h2 { font-size: 1.6em; }
h3 { font-size: 1.3em; }
h4 { font-size: 1.15em; }
h5 { font-size: 1em; font-style: italic; }
h6 { font-size: 0.95em; font-style: italic; }

p {
    margin: 0.8em 0;
    text-align: left;
    text-indent: 0;
    line-height: 1.6;
}

h1 + p, h2 + p, h3 + p, h4 + p, h5 + p, h6 + p {
    text-indent: 0;
}

.secondary, .subtitle, .author {
    text-align: center;
    font-style: italic;
    margin: 0.5em 0;
    color: #666;
}

img {
    max-width: 100%;
    height: auto;
    display: block;
    margin: 1em auto;
    page-break-inside: avoid;
}

table {
    width: 100%;
    border-collapse: collapse;
    margin: 1em 0;
    page-break-inside: avoid;
}

th, td {
    padding: 0.5em;
    border: 1px solid #ddd;
    text-align: left;
    vertical-align: top;
}

th {
    font-weight: bold;
    background-color: #f8f8f8;
}

pre, code {
    font-family: "Monaco", "Consolas", monospace;
    font-size: 0.9em;
    background: #f5f5f5;
    padding: 0.3em 0.5em;
    border-radius: 3px;
}

pre {
    margin: 1em 0;
    padding: 0.8em;
    border: 1px solid #e0e0e0;
    overflow-x: auto;
}

blockquote {
    margin: 1em 2em;
    font-style: italic;
    border-left: 3px solid #ccc;
    padding-left: 1em;
    page-break-inside: avoid;
}

ul, ol {
    margin: 0.5em 0;
    padding-left: 2em;
}

li {
    margin: 0.3em 0;
}

.page-break, .pagebreak {
    page-break-before: always;
    margin: 0;
    padding: 0;
    height: 0;
}

.no-break {
    page-break-inside: avoid;
}

.cover-page {
    text-align: center;
    page-break-after: always;
}

.cover-page img {
    max-height: 90vh;
    max-width: 100%;
    width: auto;
    height: auto;
}

.section-break {
    text-align: center;
    margin: 2em 0;
}

hr {
    border: 0;
    border-top: 1px solid #ddd;
    margin: 1.5em 0;
    page-break-after: avoid;
}
`

const kindleCSS = `/* Kindle-optimized styles */
body {
    font-family: "Times New Roman", serif;
    font-size: 1.2em;
    line-height: 1.6;
    margin: 1em;
    color: #000;
    background: #fff;
}

h1, h2, h3, h4, h5, h6 {
    margin-top: 1.2em;
    margin-bottom: 0.6em;
    font-weight: bold;
    text-align: left;
    line-height: 1.3;
    break-after: avoid-page;
    page-break-after: avoid;
}

h1 {
    font-size: 1.8em;
    page-break-before: always;
    margin-top: 0;
    padding-top: 1em;
}

h2 { font-size: 1.5em; }
h3 { font-size: 1.3em; }
h4 { font-size: 1.1em; }
h5 { font-size: 1em; font-style: italic; }
h6 { font-size: 0.9em; font-style: italic; }

p {
    margin: 0.6em 0;
    text-align: justify;
    text-indent: 0;
    orphans: 2;
    widows: 2;
    line-height: 1.6;
}

h1 + p, h2 + p, h3 + p, h4 + p, h5 + p, h6 + p {
    text-indent: 0;
}

.secondary, .subtitle, .author {
    text-align: center;
    font-style: italic;
    margin: 0.5em 0;
    color: #555;
}

img {
    max-width: 100%;
    height: auto;
    display: block;
    margin: 1em auto;
    page-break-inside: avoid;
}

table {
    width: 100%;
    border-collapse: collapse;
    margin: 1em 0;
    page-break-inside: avoid;
}

table, th, td {
    border: 1px solid #000;
}

th, td {
    padding: 0.5em;
    text-align: left;
    vertical-align: top;
}

th {
    font-weight: bold;
    background-color: #f0f0f0;
}

pre, code {
    font-family: "Courier New", monospace;
    font-size: 0.9em;
    white-space: pre-wrap;
    word-wrap: break-word;
    page-break-inside: avoid;
    background: #f5f5f5;
    padding: 0.3em 0.5em;
}

pre {
    margin: 1em 0;
    padding: 0.8em;
    border: 1px solid #ddd;
}

blockquote {
    margin: 1em 2em;
    padding-left: 1em;
    border-left: 3px solid #ccc;
    font-style: italic;
    page-break-inside: avoid;
}

ul, ol {
    margin: 0.5em 0;
    padding-left: 2em;
}

li {
    margin: 0.3em 0;
}

.page-break, .pagebreak {
    page-break-before: always;
    margin: 0;
    padding: 0;
    height: 0;
}

.no-break {
    page-break-inside: avoid;
}

.cover-page {
    text-align: center;
    page-break-after: always;
}

.cover-page img {
    max-height: 90vh;
    max-width: 100%;
    width: auto;
    height: auto;
}

.section-break {
    text-align: center;
    margin: 2em 0;
}

hr {
    border: 0;
    border-top: 1px solid #ccc;
    margin: 1.5em 0;
    page-break-after: avoid;
}

/* Reflow fixes for Kindle renderers */
#sbo-rt-content * {
    word-wrap: break-word !important;
    word-break: break-word !important;
}

#sbo-rt-content table, #sbo-rt-content pre {
    overflow-x: unset !important;
    overflow: unset !important;
    overflow-y: unset !important;
    white-space: pre-wrap !important;
}
`
