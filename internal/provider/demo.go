package provider

import (
	"context"
	"fmt"
	"time"

	"snapcode/internal/domain"
)

// DemoClient produces deterministic synthetic output without calling any
// external endpoint. It is registered at the lowest priority so deployments
// without API keys stay fully operational, mirroring demo mode in the
// hosted product.
type DemoClient struct{}

// NewDemoClient constructs the synthetic provider.
func NewDemoClient() *DemoClient { return &DemoClient{} }

func (c *DemoClient) Name() string { return "demo" }

func (c *DemoClient) CostPerCall() float64 { return 0 }

// Convert renders a placeholder layout for the requested targets.
func (c *DemoClient) Convert(_ context.Context, req Request) (*RawResponse, error) {
	var text string
	if req.Options.Framework.SingleSegment() {
		text = fmt.Sprintf("Here is the generated component.\n\n```jsx\n%s\n```\n", demoComponent(req.Options))
	} else {
		text = fmt.Sprintf(
			"Here is the generated page.\n\n```html\n%s\n```\n\n```css\n%s\n```\n\n```javascript\n%s\n```\n",
			demoMarkup, demoStyle(req.Options.StyleSystem), demoBehavior)
	}
	return &RawResponse{
		Text:     text,
		Model:    "demo",
		Provider: c.Name(),
		Latency:  time.Millisecond,
	}, nil
}

const demoMarkup = `<main class="container">
  <header class="hero">
    <h1>Generated Layout</h1>
    <p>Placeholder produced without an AI provider configured.</p>
  </header>
  <section class="content">
    <button id="cta" type="button">Get started</button>
  </section>
</main>`

const demoBehavior = `document.getElementById('cta').addEventListener('click', function () {
  this.textContent = 'Clicked';
});`

func demoStyle(style domain.StyleSystem) string {
	if style == domain.StyleTailwind || style == domain.StyleBootstrap {
		// Utility frameworks carry their styling in markup classes.
		return "/* styling provided by " + string(style) + " utility classes */"
	}
	return `.container { max-width: 960px; margin: 0 auto; padding: 2rem; }
.hero { text-align: center; padding: 3rem 0; }
.content { display: flex; justify-content: center; }
#cta { padding: 0.75rem 1.5rem; border-radius: 0.5rem; cursor: pointer; }`
}

func demoComponent(opts domain.Options) string {
	switch opts.Framework {
	case domain.FrameworkVue:
		return `<template>
  <main class="container">
    <h1>Generated Layout</h1>
    <button @click="clicked = true">{{ clicked ? 'Clicked' : 'Get started' }}</button>
  </main>
</template>

<script setup>
import { ref } from 'vue'
const clicked = ref(false)
</script>

<style scoped>
.container { max-width: 960px; margin: 0 auto; padding: 2rem; }
</style>`
	case domain.FrameworkSvelte:
		return `<script>
  let clicked = false;
</script>

<main class="container">
  <h1>Generated Layout</h1>
  <button on:click={() => (clicked = true)}>{clicked ? 'Clicked' : 'Get started'}</button>
</main>

<style>
  .container { max-width: 960px; margin: 0 auto; padding: 2rem; }
</style>`
	default:
		return `export default function GeneratedLayout() {
  const [clicked, setClicked] = React.useState(false);
  return (
    <main className="container">
      <h1>Generated Layout</h1>
      <button onClick={() => setClicked(true)}>{clicked ? 'Clicked' : 'Get started'}</button>
    </main>
  );
}`
	}
}
