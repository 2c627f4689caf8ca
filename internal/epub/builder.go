// Package epub assembles EPUB archives for single books. A build fetches the
// chapter HTML and every referenced asset into a reusable working tree under
// the output root, then packages the tree once per requested variant. Trees
// survive between runs: chapters, stylesheets and images already on disk are
// never fetched again, so an interrupted build resumes where it stopped.
package epub

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackzampolin/skillshelf/internal/oreilly"
	"github.com/jackzampolin/skillshelf/internal/session"
)

// Variant selects an output flavor.
type Variant string

const (
	// Legacy produces an EPUB 2 package with NCX navigation only.
	Legacy Variant = "legacy"
	// Enhanced produces an EPUB 3 package with nav.xhtml and NCX fallback.
	Enhanced Variant = "enhanced"
	// Kindle is Enhanced with the Kindle stylesheet and a " (Kindle)" suffix
	// on the archive name.
	Kindle Variant = "kindle"
)

// ParseVariants expands a requested format name into the variant set to build.
func ParseVariants(format string) ([]Variant, error) {
	switch format {
	case "", "enhanced":
		return []Variant{Enhanced}, nil
	case "legacy":
		return []Variant{Legacy}, nil
	case "kindle":
		return []Variant{Kindle}, nil
	case "dual":
		return []Variant{Enhanced, Kindle}, nil
	}
	return nil, fmt.Errorf("unknown epub format %q", format)
}

// Options configure a Builder shared across books.
type Options struct {
	// OutputDir is the root under which per-book working trees are created.
	OutputDir string
	// Variants lists the archives to produce per book.
	Variants []Variant
}

// Result reports what one build produced.
type Result struct {
	BookID   string
	Title    string
	Dir      string             // working tree root
	Archives map[Variant]string // variant -> final archive path
	Chapters int
	Styles   int
	Images   int
}

// Builder drives the per-book pipeline against the book API.
type Builder struct {
	client *oreilly.Client
	logger *slog.Logger
	opts   Options
}

// New creates a builder writing under opts.OutputDir.
func New(client *oreilly.Client, logger *slog.Logger, opts Options) *Builder {
	if len(opts.Variants) == 0 {
		opts.Variants = []Variant{Enhanced}
	}
	return &Builder{
		client: client,
		logger: logger,
		opts:   opts,
	}
}

// build carries the state of one book build. A fresh build is created per
// book so variant generations stay pure functions of the finished tree.
type build struct {
	client  *oreilly.Client
	session *session.Client
	logger  *slog.Logger
	opts    Options

	id       string
	meta     *oreilly.BookMeta
	chapters []oreilly.Chapter

	// css keeps stylesheet URLs in first-seen order; the index fixes the
	// Styles/StyleNN.css numbering chapters were written against.
	css    []string
	images []string
	cover  string // tree-relative cover image reference, if one was found

	dir    string // working tree root
	oebps  string
	styles string
	imgDir string
}

// Build fetches one book and packages every configured variant.
// Asset-level failures are logged and the archive emitted best-effort; only
// an unobtainable metadata document or chapter index fails the book.
func (b *Builder) Build(ctx context.Context, bookID string) (*Result, error) {
	j := &build{
		client:  b.client,
		session: b.client.Session(),
		logger:  b.logger.With("book", bookID),
		opts:    b.opts,
		id:      bookID,
	}
	return j.run(ctx)
}

func (j *build) run(ctx context.Context) (*Result, error) {
	// 1. Book metadata
	meta, err := j.client.FetchBookMeta(ctx, j.id)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	j.meta = meta

	// 2. Chapter index, covers first
	chapters, err := j.client.FetchChapters(ctx, j.id)
	if err != nil {
		return nil, fmt.Errorf("fetch chapter index: %w", err)
	}
	j.chapters = chapters

	// 3. Working tree
	if err := j.prepareTree(); err != nil {
		return nil, err
	}
	j.logger.Info("building book",
		"title", meta.Title, "chapters", len(chapters), "dir", j.dir)

	// 4. Chapter pages and asset references
	if err := j.downloadChapters(ctx); err != nil {
		return nil, err
	}

	// 5. Stylesheets
	j.downloadStyles(ctx)

	// 6. Images
	j.downloadImages(ctx)

	// 7. Cover fallback when no chapter carried one
	if j.cover == "" && meta.Cover != "" && meta.Cover != "n/a" {
		if err := j.defaultCover(ctx); err != nil {
			j.logger.Warn("cover unavailable", "url", meta.Cover, "error", err)
		}
	}

	// 8. Navigation artifacts and variant stylesheets
	if err := j.writeNavigation(ctx); err != nil {
		return nil, err
	}

	// 9. One archive per variant
	res := &Result{
		BookID:   j.id,
		Title:    meta.Title,
		Dir:      j.dir,
		Archives: make(map[Variant]string, len(j.opts.Variants)),
		Chapters: len(j.chapters),
	}
	for _, v := range j.opts.Variants {
		path, err := j.packageVariant(v)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", v, err)
		}
		res.Archives[v] = path
		j.logger.Info("epub written", "variant", v, "path", path)
	}
	res.Styles = len(j.treeFiles(j.styles))
	res.Images = len(j.treeFiles(j.imgDir))
	return res, nil
}

// prepareTree creates <output>/<escaped-title> (<id>)/OEBPS/{Images,Styles}.
func (j *build) prepareTree() error {
	j.dir = filepath.Join(j.opts.OutputDir, BookDirName(j.meta.Title, j.id))
	j.oebps = filepath.Join(j.dir, "OEBPS")
	j.styles = filepath.Join(j.oebps, "Styles")
	j.imgDir = filepath.Join(j.oebps, "Images")

	for _, dir := range []string{j.oebps, j.styles, j.imgDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create working tree: %w", err)
		}
	}
	return nil
}

// writeNavigation emits toc.ncx, nav.xhtml for EPUB 3 variants, and every
// variant stylesheet the build will package.
func (j *build) writeNavigation(ctx context.Context) error {
	toc, err := j.client.FetchTOC(ctx, j.id)
	if err != nil {
		return fmt.Errorf("fetch toc: %w", err)
	}

	if err := os.WriteFile(filepath.Join(j.oebps, "toc.ncx"), []byte(j.generateNCX(toc)), 0o644); err != nil {
		return fmt.Errorf("write toc.ncx: %w", err)
	}

	for _, v := range j.opts.Variants {
		if v == Legacy {
			continue
		}
		if err := os.WriteFile(filepath.Join(j.oebps, "nav.xhtml"), []byte(j.generateNav()), 0o644); err != nil {
			return fmt.Errorf("write nav.xhtml: %w", err)
		}
		name, css := variantStylesheet(v)
		if err := os.WriteFile(filepath.Join(j.styles, name), []byte(css), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// packageVariant zips the working tree into the variant's archive. The
// mimetype entry leads the archive uncompressed, then container.xml, then
// the package document, then the tree.
func (j *build) packageVariant(v Variant) (string, error) {
	name := ArchiveName(j.meta.Title, j.meta.AuthorNames(), v)
	out := filepath.Join(j.dir, name)

	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	if err := j.writeMimetype(zw); err != nil {
		return "", err
	}
	if err := j.writeContainer(zw); err != nil {
		return "", err
	}
	if err := writeZipEntry(zw, "OEBPS/content.opf", j.generatePackage(v)); err != nil {
		return "", err
	}
	if err := j.writeTree(zw); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return out, nil
}

// writeMimetype writes the mimetype entry (must be first and uncompressed).
func (j *build) writeMimetype(zw *zip.Writer) error {
	header := &zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	_, err = w.Write([]byte("application/epub+zip"))
	return err
}

// writeContainer writes META-INF/container.xml.
func (j *build) writeContainer(zw *zip.Writer) error {
	content := `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`
	return writeZipEntry(zw, "META-INF/container.xml", content)
}

// writeTree copies every file under OEBPS/ into the archive in sorted order.
// The package document is written per variant, so any copy in the tree is
// skipped, as are archives from earlier builds.
func (j *build) writeTree(zw *zip.Writer) error {
	var paths []string
	err := filepath.WalkDir(j.oebps, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == "content.opf" || strings.HasSuffix(d.Name(), ".epub") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk working tree: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		rel, err := filepath.Rel(j.dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("copy %s into archive: %w", rel, err)
		}
	}
	return nil
}

// treeFiles lists the plain files directly under dir, sorted by name.
func (j *build) treeFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func writeZipEntry(zw *zip.Writer, name, content string) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	_, err = w.Write([]byte(content))
	return err
}
