package domain

// Framework enumerates supported generation targets.
type Framework string

const (
	FrameworkHTML   Framework = "html"
	FrameworkReact  Framework = "react"
	FrameworkVue    Framework = "vue"
	FrameworkSvelte Framework = "svelte"
)

// Valid reports whether f is a known framework.
func (f Framework) Valid() bool {
	switch f {
	case FrameworkHTML, FrameworkReact, FrameworkVue, FrameworkSvelte:
		return true
	}
	return false
}

// SingleSegment reports whether the framework produces one combined component
// segment instead of separate markup/style/behavior segments.
func (f Framework) SingleSegment() bool {
	switch f {
	case FrameworkReact, FrameworkVue, FrameworkSvelte:
		return true
	}
	return false
}

// StyleSystem enumerates supported styling targets.
type StyleSystem string

const (
	StyleNone      StyleSystem = "none"
	StyleCSS       StyleSystem = "css"
	StyleTailwind  StyleSystem = "tailwind"
	StyleBootstrap StyleSystem = "bootstrap"
	StyleMaterial  StyleSystem = "material"
)

// Valid reports whether s is a known style system.
func (s StyleSystem) Valid() bool {
	switch s {
	case StyleNone, StyleCSS, StyleTailwind, StyleBootstrap, StyleMaterial:
		return true
	}
	return false
}

// Options pairs the caller-chosen generation targets.
type Options struct {
	Framework   Framework
	StyleSystem StyleSystem
}

// Validate checks both enumerations.
func (o Options) Validate() error {
	if !o.Framework.Valid() {
		return ErrInvalidOptions
	}
	if !o.StyleSystem.Valid() {
		return ErrInvalidOptions
	}
	return nil
}
