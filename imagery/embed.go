package imagery

import (
	"path/filepath"
	"strings"
)

// HeadingMarker prefixes the slide headings that images attach to.
const HeadingMarker = "## "

// Embed inserts `![title](path)` directly below every `## title` heading
// whose trimmed title is in images. All other lines pass through unchanged.
func Embed(document string, images SlideImageMap) string {
	if len(images) == 0 {
		return document
	}
	lines := strings.Split(document, "\n")
	out := make([]string, 0, len(lines)+len(images))
	for _, line := range lines {
		out = append(out, line)
		title, ok := SlideTitle(line)
		if !ok {
			continue
		}
		if path, ok := images[title]; ok {
			out = append(out, "!["+title+"]("+filepath.ToSlash(path)+")")
		}
	}
	return strings.Join(out, "\n")
}

// SlideTitle returns the trimmed title of a slide heading line.
func SlideTitle(line string) (string, bool) {
	if !strings.HasPrefix(line, HeadingMarker) {
		return "", false
	}
	return strings.TrimSpace(line[len(HeadingMarker):]), true
}

// SlideTitles lists the slide headings of document in order.
func SlideTitles(document string) []string {
	var titles []string
	for _, line := range strings.Split(document, "\n") {
		if t, ok := SlideTitle(line); ok && t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}
