// Package pkgbuild assembles the downloadable project for a validated code
// bundle. Output is deterministic: the same bundle and options always
// produce byte-identical archives.
package pkgbuild

import (
	"fmt"

	"snapcode/internal/domain"
	"snapcode/pkg/zip"
)

// Build returns the zipped project for the chosen framework/style-system
// combination.
func Build(bundle domain.CodeBundle, opts domain.Options) ([]byte, error) {
	layout, ok := layouts[opts.Framework]
	if !ok {
		return nil, fmt.Errorf("pkgbuild: no layout for framework %q", opts.Framework)
	}
	assets, err := layout(bundle, opts)
	if err != nil {
		return nil, err
	}
	data, err := zip.Archive(assets)
	if err != nil {
		return nil, fmt.Errorf("pkgbuild: %w", err)
	}
	return data, nil
}

type layoutFunc func(domain.CodeBundle, domain.Options) ([]zip.Asset, error)

var layouts = map[domain.Framework]layoutFunc{
	domain.FrameworkHTML:   htmlLayout,
	domain.FrameworkReact:  reactLayout,
	domain.FrameworkVue:    vueLayout,
	domain.FrameworkSvelte: svelteLayout,
}

func htmlLayout(bundle domain.CodeBundle, opts domain.Options) ([]zip.Asset, error) {
	assets := []zip.Asset{
		{Filename: "index.html", Data: []byte(htmlDocument(bundle, opts))},
		{Filename: "README.md", Data: []byte(readme("Static HTML", opts))},
	}
	if bundle.Style != "" {
		assets = append(assets, zip.Asset{Filename: "styles.css", Data: []byte(bundle.Style)})
	}
	if bundle.Behavior != "" {
		assets = append(assets, zip.Asset{Filename: "script.js", Data: []byte(bundle.Behavior)})
	}
	return assets, nil
}

func htmlDocument(bundle domain.CodeBundle, opts domain.Options) string {
	head := `    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Generated Page</title>
`
	head += styleHead(opts.StyleSystem)
	if bundle.Style != "" {
		head += `    <link rel="stylesheet" href="styles.css">` + "\n"
	}
	body := bundle.Markup + "\n"
	if bundle.Behavior != "" {
		body += `<script src="script.js"></script>` + "\n"
	}
	return "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n" + head + "</head>\n<body>\n" + body + "</body>\n</html>\n"
}

// styleHead links the chosen style system's runtime. Pinned versions keep
// packages reproducible.
func styleHead(style domain.StyleSystem) string {
	switch style {
	case domain.StyleTailwind:
		return `    <script src="https://cdn.tailwindcss.com/3.4.4"></script>` + "\n"
	case domain.StyleBootstrap:
		return `    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css">` + "\n"
	case domain.StyleMaterial:
		return `    <link rel="stylesheet" href="https://fonts.googleapis.com/icon?family=Material+Icons">` + "\n"
	default:
		return ""
	}
}

func reactLayout(bundle domain.CodeBundle, opts domain.Options) ([]zip.Asset, error) {
	assets := []zip.Asset{
		{Filename: "package.json", Data: []byte(packageJSON("generated-react-app", reactDeps(opts.StyleSystem)))},
		{Filename: "public/index.html", Data: []byte(sparseIndexHTML("root", opts.StyleSystem))},
		{Filename: "src/App.jsx", Data: []byte(bundle.Markup)},
		{Filename: "src/index.jsx", Data: []byte(reactEntry)},
		{Filename: "README.md", Data: []byte(readme("React", opts))},
	}
	if bundle.Style != "" {
		assets = append(assets, zip.Asset{Filename: "src/styles.css", Data: []byte(bundle.Style)})
	}
	return assets, nil
}

const reactEntry = `import React from 'react';
import { createRoot } from 'react-dom/client';
import App from './App.jsx';

createRoot(document.getElementById('root')).render(<App />);
`

func vueLayout(bundle domain.CodeBundle, opts domain.Options) ([]zip.Asset, error) {
	return []zip.Asset{
		{Filename: "package.json", Data: []byte(packageJSON("generated-vue-app", vueDeps(opts.StyleSystem)))},
		{Filename: "index.html", Data: []byte(sparseIndexHTML("app", opts.StyleSystem))},
		{Filename: "src/App.vue", Data: []byte(bundle.Markup)},
		{Filename: "src/main.js", Data: []byte(vueEntry)},
		{Filename: "README.md", Data: []byte(readme("Vue 3", opts))},
	}, nil
}

const vueEntry = `import { createApp } from 'vue';
import App from './App.vue';

createApp(App).mount('#app');
`

func svelteLayout(bundle domain.CodeBundle, opts domain.Options) ([]zip.Asset, error) {
	return []zip.Asset{
		{Filename: "package.json", Data: []byte(packageJSON("generated-svelte-app", svelteDeps(opts.StyleSystem)))},
		{Filename: "src/App.svelte", Data: []byte(bundle.Markup)},
		{Filename: "src/main.js", Data: []byte(svelteEntry)},
		{Filename: "README.md", Data: []byte(readme("Svelte", opts))},
	}, nil
}

const svelteEntry = `import App from './App.svelte';

const app = new App({ target: document.body });

export default app;
`

func sparseIndexHTML(mountID string, style domain.StyleSystem) string {
	return "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n" +
		"    <meta charset=\"UTF-8\">\n    <title>Generated App</title>\n" + styleHead(style) +
		"</head>\n<body>\n    <div id=\"" + mountID + "\"></div>\n</body>\n</html>\n"
}

// packageJSON renders dependencies in a fixed order; map iteration would
// break reproducibility.
func packageJSON(name string, deps [][2]string) string {
	out := "{\n  \"name\": \"" + name + "\",\n  \"version\": \"0.1.0\",\n  \"private\": true,\n  \"dependencies\": {\n"
	for i, dep := range deps {
		out += fmt.Sprintf("    %q: %q", dep[0], dep[1])
		if i < len(deps)-1 {
			out += ","
		}
		out += "\n"
	}
	return out + "  }\n}\n"
}

func reactDeps(style domain.StyleSystem) [][2]string {
	deps := [][2]string{{"react", "^18.3.1"}, {"react-dom", "^18.3.1"}}
	return append(deps, styleDeps(style)...)
}

func vueDeps(style domain.StyleSystem) [][2]string {
	return append([][2]string{{"vue", "^3.4.31"}}, styleDeps(style)...)
}

func svelteDeps(style domain.StyleSystem) [][2]string {
	return append([][2]string{{"svelte", "^4.2.18"}}, styleDeps(style)...)
}

func styleDeps(style domain.StyleSystem) [][2]string {
	switch style {
	case domain.StyleTailwind:
		return [][2]string{{"tailwindcss", "^3.4.4"}}
	case domain.StyleBootstrap:
		return [][2]string{{"bootstrap", "^5.3.3"}}
	case domain.StyleMaterial:
		return [][2]string{{"@mui/material", "^5.15.21"}}
	default:
		return nil
	}
}

func readme(target string, opts domain.Options) string {
	return fmt.Sprintf(`# Generated %s Project

Produced from a UI screenshot.

- Framework: %s
- Styling: %s

The code was machine-generated and validated for structural soundness, but
review it before shipping.
`, target, opts.Framework, opts.StyleSystem)
}
