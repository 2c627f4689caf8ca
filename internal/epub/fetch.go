package epub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/skillshelf/internal/oreilly"
)

const (
	// imageAttempts bounds per-image retries.
	imageAttempts = 3
	// coverMinBytes: responses this small are placeholders, not real covers.
	coverMinBytes = 10 << 10
)

// downloadChapters walks the chapter index in order. Asset references are
// collected from every index entry, but the page itself is only fetched when
// its file is not already in the tree, so interrupted runs resume where they
// stopped.
func (j *build) downloadChapters(ctx context.Context) error {
	for i := range j.chapters {
		if err := ctx.Err(); err != nil {
			return err
		}
		ch := &j.chapters[i]
		j.collectImages(ch)

		name := xhtmlName(ch.Filename)
		dest := filepath.Join(j.oebps, name)
		if _, err := os.Stat(dest); err == nil {
			j.logger.Debug("chapter already in tree", "file", name)
			continue
		}

		raw, err := j.session.GetBytes(ctx, ch.Content)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			j.logger.Warn("chapter fetch failed", "chapter", ch.Title, "error", err)
			continue
		}
		doc, err := j.processPage(ch, raw, i == 0)
		if err != nil {
			j.logger.Warn("chapter unusable", "chapter", ch.Title, "error", err)
			continue
		}
		if doc.coverSrc != "" {
			j.logger.Debug("cover detected in chapter", "src", doc.coverSrc)
		}
		if err := writePage(dest, ch.Title, doc); err != nil {
			return fmt.Errorf("write chapter %s: %w", name, err)
		}
		j.logger.Debug("chapter written", "file", name)
	}
	return nil
}

// collectImages resolves the chapter's image references against its asset
// base and queues any not seen before.
func (j *build) collectImages(ch *oreilly.Chapter) {
	base, v2 := j.client.AssetBase(ch, j.id)
	for _, ref := range ch.Images {
		u := oreilly.ResolveImageURL(base, v2, ref)
		if !containsString(j.images, u) {
			j.images = append(j.images, u)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// writePage wraps a processed page in the chapter shell and writes it.
func writePage(dest, title string, doc *document) error {
	page := fmt.Sprintf(chapterShell, escapeXML(title), doc.headCSS, doc.body)
	return os.WriteFile(dest, []byte(page), 0o644)
}

// downloadStyles fetches every registered stylesheet into its numbered file,
// skipping ones a previous run already saved. Failures are logged and the
// book carries on without that sheet.
func (j *build) downloadStyles(ctx context.Context) {
	for i, u := range j.css {
		name := fmt.Sprintf("Style%02d.css", i)
		dest := filepath.Join(j.styles, name)
		if _, err := os.Stat(dest); err == nil {
			j.logger.Debug("stylesheet already in tree", "file", name)
			continue
		}
		data, err := j.session.GetBytes(ctx, u)
		if err != nil {
			j.logger.Warn("stylesheet fetch failed", "url", u, "error", err)
			continue
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			j.logger.Warn("stylesheet write failed", "file", name, "error", err)
		}
	}
}

// downloadImages fetches every referenced image once, retrying transient
// failures with backoff. A missing image degrades the book, it does not
// abort it.
func (j *build) downloadImages(ctx context.Context) {
	for _, u := range j.images {
		name := imageName(u)
		dest := filepath.Join(j.imgDir, name)
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		err := retry.Do(
			func() error {
				data, err := j.session.GetBytes(ctx, u)
				if err != nil {
					return err
				}
				return os.WriteFile(dest, data, 0o644)
			},
			retry.Context(ctx),
			retry.Attempts(imageAttempts),
			retry.Delay(500*time.Millisecond),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			j.logger.Warn("image fetch failed", "url", u, "error", err)
		} else {
			j.logger.Debug("image written", "file", name)
		}
	}
}

// defaultCover fills in a cover when no chapter supplied one: it saves the
// metadata cover image and synthesizes a cover page at the head of the
// spine. A cover image left by a previous run is reused as is.
func (j *build) defaultCover(ctx context.Context) error {
	name := j.existingCover()
	if name == "" {
		data, ext, err := j.fetchCover(ctx)
		if err != nil {
			return err
		}
		name = "default_cover." + ext
		if err := os.WriteFile(filepath.Join(j.imgDir, name), data, 0o644); err != nil {
			return fmt.Errorf("write cover image: %w", err)
		}
	}

	j.cover = "Images/" + name
	cover := oreilly.Chapter{Title: "Cover", Filename: "default_cover.xhtml"}
	j.chapters = append([]oreilly.Chapter{cover}, j.chapters...)

	doc := &document{headCSS: coverStyle, body: coverBody(j.cover), coverSrc: j.cover}
	return writePage(filepath.Join(j.oebps, cover.Filename), cover.Title, doc)
}

// existingCover finds a default cover image left in the tree by an earlier
// run.
func (j *build) existingCover() string {
	for _, name := range j.treeFiles(j.imgDir) {
		if strings.HasPrefix(name, "default_cover.") {
			return name
		}
	}
	return ""
}

// fetchCover tries high resolution rewrites of the metadata cover URL and
// accepts the first response bigger than coverMinBytes, falling back to the
// largest body any candidate returned.
func (j *build) fetchCover(ctx context.Context) (data []byte, ext string, err error) {
	var best []byte
	var bestExt string
	for _, u := range coverCandidates(j.meta.Cover) {
		body, bodyExt, err := j.fetchImage(ctx, u)
		if err != nil {
			j.logger.Debug("cover candidate failed", "url", u, "error", err)
			continue
		}
		if len(body) > coverMinBytes {
			return body, bodyExt, nil
		}
		if len(body) > len(best) {
			best, bestExt = body, bodyExt
		}
	}
	if len(best) == 0 {
		return nil, "", errors.New("every cover candidate failed")
	}
	return best, bestExt, nil
}

// fetchImage fetches one image and derives its extension from the response
// content type.
func (j *build) fetchImage(ctx context.Context, u string) ([]byte, string, error) {
	resp, err := j.session.Get(ctx, u)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, "", fmt.Errorf("status %d fetching %s", resp.StatusCode, u)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return body, imageExt(resp.Header.Get("Content-Type")), nil
}

// imageExt derives a file extension from an image content type.
func imageExt(contentType string) string {
	ct := contentType
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	if i := strings.LastIndex(ct, "/"); i >= 0 {
		ct = ct[i+1:]
	}
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return "jpeg"
	}
	return ct
}

// sizeSegment matches the trailing size segment library cover URLs accept.
var sizeSegment = regexp.MustCompile(`/(\d+w|natural)/?$`)

// coverCandidates lists cover URL rewrites in preference order, largest
// first, always ending with the URL as given.
func coverCandidates(raw string) []string {
	raw = strings.TrimSpace(raw)
	base := strings.TrimSuffix(sizeSegment.ReplaceAllString(raw, ""), "/")

	out := make([]string, 0, 4)
	for _, size := range []string{"natural", "1200w", "800w"} {
		out = append(out, base+"/"+size+"/")
	}
	if !containsString(out, raw) {
		out = append(out, raw)
	}
	return out
}
