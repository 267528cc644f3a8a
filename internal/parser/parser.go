// Package parser extracts typed code segments from a provider's
// semi-structured reply. Models mix prose with fenced code blocks, use
// inconsistent fence conventions and sometimes truncate mid-block; the
// parser tolerates all of that and reports what it found.
package parser

import (
	"errors"
	"strings"

	"snapcode/internal/domain"
)

// ErrNoCodeFound indicates the reply contained no extractable code at all.
var ErrNoCodeFound = errors.New("no code found in response")

// SegmentType identifies what a code block holds.
type SegmentType string

const (
	SegmentMarkup   SegmentType = "markup"
	SegmentStyle    SegmentType = "style"
	SegmentBehavior SegmentType = "behavior"
)

// Result is the structured bundle extracted from one reply.
type Result struct {
	Bundle domain.CodeBundle
	// Truncated is set when the final code block was never closed. The code
	// is still returned; validation decides whether it is usable.
	Truncated bool
}

var fenceMarkers = []string{"```", "~~~"}

// fencePrefix reports whether the line opens or closes a fenced block and
// returns the info string following the marker.
func fencePrefix(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	for _, marker := range fenceMarkers {
		if strings.HasPrefix(trimmed, marker) {
			return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, marker))), true
		}
	}
	return "", false
}

// segmentForInfo maps a fence info string to a segment type. Unlabeled
// blocks default to markup, matching how models most often reply.
func segmentForInfo(info string) SegmentType {
	switch {
	case strings.Contains(info, "css"), strings.Contains(info, "scss"), strings.Contains(info, "style"):
		return SegmentStyle
	case strings.Contains(info, "javascript"), strings.Contains(info, "typescript"),
		info == "js", info == "ts", strings.HasPrefix(info, "js "), strings.HasPrefix(info, "ts "):
		return SegmentBehavior
	default:
		return SegmentMarkup
	}
}

// Parse extracts code segments from raw reply text for the given framework.
// Frameworks with a combined component format collapse everything into the
// markup segment.
func Parse(raw string, framework domain.Framework) (*Result, error) {
	res := &Result{}
	lines := strings.Split(raw, "\n")

	var (
		current  []string
		inBlock  bool
		blockTyp SegmentType
	)
	flush := func() {
		code := strings.TrimRight(strings.Join(current, "\n"), "\n")
		if strings.TrimSpace(code) != "" {
			appendSegment(&res.Bundle, blockTyp, code)
		}
		current = nil
	}

	for _, line := range lines {
		info, isFence := fencePrefix(line)
		if !isFence {
			if inBlock {
				current = append(current, line)
			}
			continue
		}
		if inBlock {
			flush()
			inBlock = false
			continue
		}
		inBlock = true
		blockTyp = segmentForInfo(info)
		if framework.SingleSegment() {
			blockTyp = SegmentMarkup
		}
	}
	if inBlock {
		// Reply cut off mid-block; keep what we have and flag it.
		flush()
		res.Truncated = true
	}

	if res.Bundle.Empty() {
		// Some models skip fences entirely and reply with bare markup.
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "<") {
			res.Bundle.Markup = trimmed
			return res, nil
		}
		return nil, ErrNoCodeFound
	}
	return res, nil
}

func appendSegment(bundle *domain.CodeBundle, typ SegmentType, code string) {
	target := &bundle.Markup
	switch typ {
	case SegmentStyle:
		target = &bundle.Style
	case SegmentBehavior:
		target = &bundle.Behavior
	}
	if *target == "" {
		*target = code
		return
	}
	*target += "\n\n" + code
}
