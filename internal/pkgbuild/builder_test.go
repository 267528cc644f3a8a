package pkgbuild

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"snapcode/internal/domain"
)

func readEntry(t *testing.T, zr *zip.Reader, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("open %s: %v", name, err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read %s: %v", name, err)
			}
			return string(data)
		}
	}
	t.Fatalf("entry %s not found", name)
	return ""
}

func openArchive(t *testing.T, data []byte) *zip.Reader {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	return zr
}

func TestBuildHTMLPackage(t *testing.T) {
	bundle := domain.CodeBundle{
		Markup:   "<main><h1>Hi</h1></main>",
		Style:    "main { color: red; }",
		Behavior: "console.log('x');",
	}
	data, err := Build(bundle, domain.Options{Framework: domain.FrameworkHTML, StyleSystem: domain.StyleNone})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	zr := openArchive(t, data)

	index := readEntry(t, zr, "index.html")
	if !strings.Contains(index, "<main><h1>Hi</h1></main>") {
		t.Fatalf("markup missing from index.html")
	}
	if !strings.Contains(index, `<link rel="stylesheet" href="styles.css">`) {
		t.Fatalf("stylesheet link missing")
	}
	if !strings.Contains(index, `<script src="script.js"></script>`) {
		t.Fatalf("script tag missing")
	}
	if got := readEntry(t, zr, "styles.css"); got != bundle.Style {
		t.Fatalf("unexpected styles.css: %q", got)
	}
	if got := readEntry(t, zr, "script.js"); got != bundle.Behavior {
		t.Fatalf("unexpected script.js: %q", got)
	}
}

func TestBuildHTMLOmitsEmptyFiles(t *testing.T) {
	data, err := Build(domain.CodeBundle{Markup: "<p>x</p>"}, domain.Options{Framework: domain.FrameworkHTML, StyleSystem: domain.StyleTailwind})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	zr := openArchive(t, data)
	for _, f := range zr.File {
		if f.Name == "styles.css" || f.Name == "script.js" {
			t.Fatalf("unexpected entry %s for empty segment", f.Name)
		}
	}
	if !strings.Contains(readEntry(t, zr, "index.html"), "tailwindcss") {
		t.Fatalf("tailwind runtime missing from head")
	}
}

func TestBuildReactPackage(t *testing.T) {
	bundle := domain.CodeBundle{Markup: "export default function App() { return null; }"}
	data, err := Build(bundle, domain.Options{Framework: domain.FrameworkReact, StyleSystem: domain.StyleTailwind})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	zr := openArchive(t, data)
	if got := readEntry(t, zr, "src/App.jsx"); got != bundle.Markup {
		t.Fatalf("unexpected App.jsx: %q", got)
	}
	pkg := readEntry(t, zr, "package.json")
	for _, want := range []string{`"react"`, `"react-dom"`, `"tailwindcss"`} {
		if !strings.Contains(pkg, want) {
			t.Fatalf("package.json missing %s:\n%s", want, pkg)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	bundle := domain.CodeBundle{Markup: "<div>stable</div>", Style: "div{}", Behavior: "void 0;"}
	opts := domain.Options{Framework: domain.FrameworkHTML, StyleSystem: domain.StyleCSS}
	first, err := Build(bundle, opts)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Build(bundle, opts)
		if err != nil {
			t.Fatalf("Build error: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("package bytes differ between runs")
		}
	}
}

func TestBuildUnknownFramework(t *testing.T) {
	if _, err := Build(domain.CodeBundle{Markup: "<p>x</p>"}, domain.Options{Framework: "angular"}); err == nil {
		t.Fatalf("expected error for unknown framework")
	}
}
