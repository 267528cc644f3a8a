package provider

import (
	"strings"

	"snapcode/internal/domain"
)

const basePrompt = `You are an expert frontend developer. Convert this UI screenshot into clean, production-ready code.

REQUIREMENTS:
1. Generate semantic, accessible markup with proper structure
2. Use modern, responsive styling that works on all devices
3. Include hover effects and interactive states where appropriate
4. Match the visual design of the screenshot exactly
5. Include alt text for images and proper ARIA labels
`

var frameworkPrompts = map[domain.Framework]string{
	domain.FrameworkHTML: `TARGET: Static HTML/CSS/JavaScript
- Clean HTML5 document body content
- Semantic HTML elements
- Vanilla JavaScript for interactivity if needed
`,
	domain.FrameworkReact: `TARGET: React component using JSX
- A single functional component, exported as default
- Modern hooks where state is needed
- className instead of class
`,
	domain.FrameworkVue: `TARGET: Vue 3 component
- Single-file component with <template>, <script setup> and <style scoped>
- Proper v-bind and v-on directives
`,
	domain.FrameworkSvelte: `TARGET: Svelte component
- Single component file with script and style blocks
- Svelte's reactive syntax
`,
}

var styleSystemPrompts = map[domain.StyleSystem]string{
	domain.StyleNone: `STYLING: Plain CSS
- Write minimal, clean CSS from scratch
- CSS Grid and Flexbox for layout
`,
	domain.StyleCSS: `STYLING: Custom CSS
- Modern CSS with custom properties and media queries
- BEM naming for classes
`,
	domain.StyleTailwind: `STYLING: Tailwind CSS
- Tailwind utility classes exclusively, including responsive breakpoints
- hover: and focus: states
`,
	domain.StyleBootstrap: `STYLING: Bootstrap 5
- Bootstrap 5 grid, components and utilities
`,
	domain.StyleMaterial: `STYLING: Material Design
- Material elevation, color system and typography scale
`,
}

const splitOutputFormat = `OUTPUT FORMAT:
Provide the code in exactly this format:

` + "```html" + `
<!-- markup here -->
` + "```" + `

` + "```css" + `
/* styles here */
` + "```" + `

` + "```javascript" + `
// behavior here (if needed)
` + "```" + `
`

const combinedOutputFormat = `OUTPUT FORMAT:
Provide the complete component in a single fenced code block.
`

// BuildPrompt assembles the instruction text for the chosen targets.
func BuildPrompt(opts domain.Options) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n")
	b.WriteString(frameworkPrompts[opts.Framework])
	b.WriteString("\n")
	b.WriteString(styleSystemPrompts[opts.StyleSystem])
	b.WriteString("\n")
	if opts.Framework.SingleSegment() {
		b.WriteString(combinedOutputFormat)
	} else {
		b.WriteString(splitOutputFormat)
	}
	return b.String()
}
