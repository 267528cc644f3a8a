package preview

import (
	"strings"
	"testing"

	"snapcode/internal/domain"
)

func TestBuildLiveDocument(t *testing.T) {
	doc, err := Build(domain.CodeBundle{
		Markup:   "<main><h1>Hi</h1></main>",
		Style:    "main { color: teal; }",
		Behavior: "console.log('ready');",
	}, domain.FrameworkHTML)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	for _, want := range []string{
		"Content-Security-Policy",
		"default-src 'none'",
		"<main><h1>Hi</h1></main>",
		"main { color: teal; }",
		"console.log('ready');",
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document missing %q", want)
		}
	}
	if strings.Contains(doc, "http://") || strings.Contains(doc, "https://") {
		t.Fatalf("preview document references external resources")
	}
}

func TestBuildComponentSourceView(t *testing.T) {
	source := `export default function App() { return <div onClick={() => {}} />; }`
	doc, err := Build(domain.CodeBundle{Markup: source}, domain.FrameworkReact)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	// Component source must be escaped, never executed as markup.
	if strings.Contains(doc, source) {
		t.Fatalf("component source embedded unescaped")
	}
	if !strings.Contains(doc, "&lt;div") {
		t.Fatalf("escaped source missing from document")
	}
	if !strings.Contains(doc, "Content-Security-Policy") {
		t.Fatalf("CSP missing from source view")
	}
}

func TestBuildEmptyBundle(t *testing.T) {
	if _, err := Build(domain.CodeBundle{}, domain.FrameworkHTML); err == nil {
		t.Fatalf("expected error for empty bundle")
	}
}

func TestBuildDeterministic(t *testing.T) {
	bundle := domain.CodeBundle{Markup: "<p>x</p>", Style: "p{}"}
	a, _ := Build(bundle, domain.FrameworkHTML)
	b, _ := Build(bundle, domain.FrameworkHTML)
	if a != b {
		t.Fatalf("preview output not deterministic")
	}
}
