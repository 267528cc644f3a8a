package parser

import (
	"errors"
	"strings"
	"testing"

	"snapcode/internal/domain"
)

func TestParseThreeSegments(t *testing.T) {
	raw := "Here is your page.\n\n" +
		"```html\n<main><h1>Hi</h1></main>\n```\n\n" +
		"Some explanation between blocks.\n\n" +
		"```css\nmain { color: red; }\n```\n\n" +
		"```javascript\nconsole.log('hi');\n```\n"

	res, err := Parse(raw, domain.FrameworkHTML)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if res.Truncated {
		t.Fatalf("unexpected truncation flag")
	}
	if res.Bundle.Markup != "<main><h1>Hi</h1></main>" {
		t.Fatalf("unexpected markup: %q", res.Bundle.Markup)
	}
	if res.Bundle.Style != "main { color: red; }" {
		t.Fatalf("unexpected style: %q", res.Bundle.Style)
	}
	if res.Bundle.Behavior != "console.log('hi');" {
		t.Fatalf("unexpected behavior: %q", res.Bundle.Behavior)
	}
}

func TestParseOutOfOrderAndTildeFences(t *testing.T) {
	raw := "~~~css\nbody { margin: 0; }\n~~~\n" +
		"~~~html\n<div>content</div>\n~~~\n"

	res, err := Parse(raw, domain.FrameworkHTML)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if res.Bundle.Style != "body { margin: 0; }" {
		t.Fatalf("unexpected style: %q", res.Bundle.Style)
	}
	if res.Bundle.Markup != "<div>content</div>" {
		t.Fatalf("unexpected markup: %q", res.Bundle.Markup)
	}
}

func TestParseTruncatedBlock(t *testing.T) {
	raw := "```html\n<main>\n  <h1>Cut off"

	res, err := Parse(raw, domain.FrameworkHTML)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !res.Truncated {
		t.Fatalf("expected truncation flag")
	}
	if !strings.Contains(res.Bundle.Markup, "<h1>Cut off") {
		t.Fatalf("truncated content lost: %q", res.Bundle.Markup)
	}
}

func TestParseCombinedFrameworkCollapsesToMarkup(t *testing.T) {
	raw := "```jsx\nexport default function App() { return <div/>; }\n```\n" +
		"```css\n.app { color: blue; }\n```\n"

	res, err := Parse(raw, domain.FrameworkReact)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if res.Bundle.Style != "" || res.Bundle.Behavior != "" {
		t.Fatalf("combined framework should only fill markup: %+v", res.Bundle)
	}
	if !strings.Contains(res.Bundle.Markup, "export default") || !strings.Contains(res.Bundle.Markup, ".app { color: blue; }") {
		t.Fatalf("segments not collapsed into markup: %q", res.Bundle.Markup)
	}
}

func TestParseBareMarkupFallback(t *testing.T) {
	res, err := Parse("<section><p>No fences at all.</p></section>", domain.FrameworkHTML)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if res.Bundle.Markup == "" {
		t.Fatalf("expected fallback markup")
	}
}

func TestParseNoCode(t *testing.T) {
	_, err := Parse("I'm sorry, I cannot process this image.", domain.FrameworkHTML)
	if !errors.Is(err, ErrNoCodeFound) {
		t.Fatalf("expected ErrNoCodeFound, got %v", err)
	}
}

func TestParseUnlabeledBlockDefaultsToMarkup(t *testing.T) {
	raw := "```\n<header>top</header>\n```"
	res, err := Parse(raw, domain.FrameworkHTML)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if res.Bundle.Markup != "<header>top</header>" {
		t.Fatalf("unexpected markup: %q", res.Bundle.Markup)
	}
}
