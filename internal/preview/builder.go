// Package preview assembles a sandboxed, self-contained HTML document for
// rendering generated code. The output originates from an untrusted
// generative process, so isolation is a hard requirement: the document pins
// a CSP that blocks all network access and the serving layer embeds it with
// a restrictive iframe sandbox.
package preview

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"snapcode/internal/domain"
)

// IframeSandbox is the sandbox attribute the web layer must use when
// embedding a preview document. Scripts may run; everything else, including
// same-origin access and navigation, stays blocked.
const IframeSandbox = "allow-scripts"

// contentSecurityPolicy blocks all external fetches. Inline style/script are
// required since the document embeds generated code directly; data: images
// keep screenshots of placeholder assets working.
const contentSecurityPolicy = "default-src 'none'; style-src 'unsafe-inline'; script-src 'unsafe-inline'; img-src data:; font-src data:"

// Build renders the preview document for a validated bundle. Component
// frameworks cannot run without a toolchain, so their preview is a read-only
// source view inside the same isolation boundary.
func Build(bundle domain.CodeBundle, framework domain.Framework) (string, error) {
	if bundle.Empty() {
		return "", errors.New("preview: empty code bundle")
	}
	if framework.SingleSegment() {
		return sourceViewDocument(bundle.Markup, framework), nil
	}
	return liveDocument(bundle), nil
}

func liveDocument(bundle domain.CodeBundle) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="Content-Security-Policy" content="%s">
    <title>Preview</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; }
        %s
    </style>
</head>
<body>
    %s
    <script>
        %s
    </script>
</body>
</html>`, contentSecurityPolicy, indent(bundle.Style, 8), indent(bundle.Markup, 4), indent(bundle.Behavior, 8))
}

func sourceViewDocument(source string, framework domain.Framework) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta http-equiv="Content-Security-Policy" content="%s">
    <title>Component Source</title>
    <style>
        body { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; background: #1e1e2e; color: #cdd6f4; padding: 1.5rem; }
        pre { white-space: pre-wrap; word-break: break-word; }
        h1 { font-size: 1rem; margin-bottom: 1rem; color: #89b4fa; }
    </style>
</head>
<body>
    <h1>%s component</h1>
    <pre><code>%s</code></pre>
</body>
</html>`, contentSecurityPolicy, html.EscapeString(string(framework)), html.EscapeString(source))
}

func indent(code string, spaces int) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(code, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = pad + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}
