// Package preview renders an illustrated markdown deck into a single
// self-contained HTML page, one section per slide.
package preview

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"chatppt_studio/generator"
)

const maxInlineBytes = 10 << 20

var (
	imgPattern = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	h2Pattern  = regexp.MustCompile(`(?i)<h2[\s>]`)
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;background:#eef0f3;margin:0;padding:2em}
header h1{text-align:center;margin:0 0 1em}
section.slide{background:#fff;max-width:960px;margin:0 auto 2em;padding:2em 3em;border-radius:8px;box-shadow:0 2px 8px rgba(0,0,0,.12)}
section.slide img{display:block;max-width:100%;max-height:420px;margin:1em auto}
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Page is a rendered preview.
type Page struct {
	Title string
	HTML  string
}

// Renderer converts markdown decks to HTML.
type Renderer struct {
	md        goldmark.Markdown
	logger    *slog.Logger
	imageRoot string
}

// NewRenderer returns a renderer that only inlines local images found below
// imageRoot. An empty imageRoot disables local inlining.
func NewRenderer(logger *slog.Logger, imageRoot string) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithXHTML()),
		),
		logger:    logger,
		imageRoot: imageRoot,
	}
}

// Render builds the page for md. Relative image paths are resolved against
// the working directory and baseDir, then inlined as data URIs so the page
// can be opened anywhere. Absolute paths, paths outside the image root and
// images that cannot be read keep their reference.
func (r *Renderer) Render(md, baseDir string) (Page, error) {
	md = r.inlineImages(md, baseDir)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(md), &buf); err != nil {
		return Page{}, fmt.Errorf("render markdown: %w", err)
	}

	title := generator.DeckTitle(md)
	if title == "" {
		title = "Presentation"
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(wrapSlides(buf.String())),
	})
	if err != nil {
		return Page{}, fmt.Errorf("render page: %w", err)
	}
	return Page{Title: title, HTML: page.String()}, nil
}

// wrapSlides opens a new section at every <h2>. Content before the first
// slide heading goes into a header.
func wrapSlides(body string) string {
	idx := h2Pattern.FindAllStringIndex(body, -1)
	if len(idx) == 0 {
		return `<section class="slide">` + body + `</section>`
	}
	var b strings.Builder
	if head := strings.TrimSpace(body[:idx[0][0]]); head != "" {
		b.WriteString("<header>")
		b.WriteString(head)
		b.WriteString("</header>\n")
	}
	for i, loc := range idx {
		end := len(body)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		b.WriteString(`<section class="slide">`)
		b.WriteString(strings.TrimSpace(body[loc[0]:end]))
		b.WriteString("</section>\n")
	}
	return b.String()
}

func (r *Renderer) inlineImages(md, baseDir string) string {
	matches := imgPattern.FindAllStringSubmatchIndex(md, -1)
	if len(matches) == 0 {
		return md
	}

	var builder strings.Builder
	last := 0
	for _, match := range matches {
		start, end := match[2], match[3]
		builder.WriteString(md[last:start])
		last = end

		ref := strings.TrimSpace(md[start:end])
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
			builder.WriteString(ref)
			continue
		}
		local, err := r.resolve(ref, baseDir)
		if err != nil {
			r.logger.Warn("image not inlined", "ref", ref, "error", err)
			builder.WriteString(ref)
			continue
		}
		uri, err := dataURI(local)
		if err != nil {
			r.logger.Warn("image not inlined", "ref", ref, "error", err)
			builder.WriteString(ref)
			continue
		}
		builder.WriteString(uri)
	}
	builder.WriteString(md[last:])
	return builder.String()
}

// resolve maps ref to a readable file below the image root.
func (r *Renderer) resolve(ref, baseDir string) (string, error) {
	if r.imageRoot == "" {
		return "", errors.New("local images are disabled")
	}
	local := filepath.FromSlash(ref)
	if filepath.IsAbs(local) || filepath.VolumeName(local) != "" {
		return "", errors.New("absolute image paths are not allowed")
	}
	root, err := filepath.Abs(r.imageRoot)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	candidates := []string{local}
	if baseDir != "" {
		candidates = append(candidates, filepath.Join(baseDir, local))
	}
	for _, c := range candidates {
		resolved, err := filepath.EvalSymlinks(c)
		if err != nil {
			continue
		}
		abs, err := filepath.Abs(resolved)
		if err != nil {
			continue
		}
		if within(root, abs) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%s is not below %s", ref, r.imageRoot)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func dataURI(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > maxInlineBytes {
		return "", fmt.Errorf("%s is too large to inline (%d bytes)", path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
