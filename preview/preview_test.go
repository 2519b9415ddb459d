package preview

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRender_InlinesLocalImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "run", "Intro_1.png"))

	md := "# Solar Power\n\n## Intro\n![Intro](run/Intro_1.png)\n\n- cheap\n- clean\n\n## Remote\n![Remote](https://img.example/x.jpg)\n"
	page, err := NewRenderer(nil, dir).Render(md, dir)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if page.Title != "Solar Power" {
		t.Errorf("title = %q", page.Title)
	}
	if !strings.Contains(page.HTML, `src="data:image/png;base64,`) {
		t.Error("local image should be inlined as a data URI")
	}
	if !strings.Contains(page.HTML, `src="https://img.example/x.jpg"`) {
		t.Error("remote image should be kept")
	}
	if n := strings.Count(page.HTML, `<section class="slide">`); n != 2 {
		t.Errorf("expected 2 slide sections, got %d", n)
	}
	if !strings.Contains(page.HTML, "<header><h1>Solar Power</h1></header>") {
		t.Errorf("deck title should be in the header:\n%s", page.HTML)
	}
}

func TestRender_MissingImageKeepsReference(t *testing.T) {
	dir := t.TempDir()
	page, err := NewRenderer(nil, dir).Render("## Slide\n![Slide](nowhere/missing.png)\n", dir)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(page.HTML, "nowhere/missing.png") {
		t.Error("unreadable image should keep its path")
	}
	if page.Title != "Presentation" {
		t.Errorf("fallback title = %q", page.Title)
	}
}

func TestWrapSlides(t *testing.T) {
	got := wrapSlides("<p>plain</p>")
	if got != `<section class="slide"><p>plain</p></section>` {
		t.Errorf("got %q", got)
	}
	got = wrapSlides("<h2>A</h2>\n<p>a</p>\n<h2>B</h2>")
	want := "<section class=\"slide\"><h2>A</h2>\n<p>a</p></section>\n<section class=\"slide\"><h2>B</h2></section>\n"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestRender_StaysBelowImageRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "images")
	writePNG(t, filepath.Join(root, "run", "ok.png"))
	secret := filepath.Join(base, "private", "secret.png")
	writePNG(t, secret)

	tests := []struct {
		name string
		ref  string
	}{
		{"absolute", filepath.ToSlash(secret)},
		{"parent escape", "../private/secret.png"},
		{"nested escape", "run/../../private/secret.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := NewRenderer(nil, root).Render("## S\n![S]("+tt.ref+")\n", root)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if strings.Contains(page.HTML, "data:image") {
				t.Errorf("%s must not be inlined", tt.ref)
			}
		})
	}

	page, err := NewRenderer(nil, root).Render("## S\n![S](run/ok.png)\n", root)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(page.HTML, "data:image/png;base64,") {
		t.Error("image below the root should be inlined")
	}
}

func TestRender_NoImageRootInlinesNothing(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	page, err := NewRenderer(nil, "").Render("## S\n![S](a.png)\n", dir)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Contains(page.HTML, "data:image") {
		t.Error("nothing should be inlined without an image root")
	}
}
