// Package codecheck runs structural validation and best-effort formatting
// over generated code. Generated output comes from an untrusted generative
// process; nothing here executes it, but obvious injection vectors and
// malformed structure are rejected before any artifact is built.
package codecheck

import (
	"fmt"
	"strings"

	"snapcode/internal/domain"
)

// MaxSegmentBytes is the per-segment size ceiling.
const MaxSegmentBytes = 256 * 1024

// ValidationError describes a structural defect in generated code. It is
// retryable at the job level: re-invoking the provider may yield corrected
// output.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// bannedConstructs are substrings that indicate script-injection vectors.
// Matching is case-insensitive.
var bannedConstructs = []string{
	"javascript:",
	"eval(",
	"new function(",
	"document.cookie",
	"<script src=",
	"document.write(",
}

// voidElements never take a closing tag in HTML.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Validate checks the bundle against the chosen framework. Truncated marks
// output the parser recovered from an unterminated code block; it is always
// rejected so the provider gets re-invoked.
func Validate(bundle domain.CodeBundle, framework domain.Framework, truncated bool) error {
	if truncated {
		return invalid("code block was truncated")
	}
	if strings.TrimSpace(bundle.Markup) == "" {
		return invalid("required markup segment is empty")
	}
	for name, code := range map[string]string{
		"markup":   bundle.Markup,
		"style":    bundle.Style,
		"behavior": bundle.Behavior,
	} {
		if len(code) > MaxSegmentBytes {
			return invalid("%s segment exceeds %d bytes", name, MaxSegmentBytes)
		}
		if construct := scanBanned(code); construct != "" {
			return invalid("%s segment contains banned construct %q", name, construct)
		}
	}

	if framework.SingleSegment() {
		// Component sources mix markup with expressions; tag-stack checking
		// does not apply, but brace balance still does.
		if err := checkBalancedBraces("component", bundle.Markup); err != nil {
			return err
		}
	} else {
		if err := checkBalancedTags(bundle.Markup); err != nil {
			return err
		}
	}
	if bundle.Style != "" {
		if err := checkBalancedBraces("style", bundle.Style); err != nil {
			return err
		}
	}
	if bundle.Behavior != "" {
		if err := checkBalancedBraces("behavior", bundle.Behavior); err != nil {
			return err
		}
		if err := checkBalancedParens("behavior", bundle.Behavior); err != nil {
			return err
		}
	}
	return nil
}

func scanBanned(code string) string {
	lower := strings.ToLower(code)
	for _, construct := range bannedConstructs {
		if strings.Contains(lower, construct) {
			return construct
		}
	}
	return ""
}

// checkBalancedTags walks the markup's element tags with a stack. Comments,
// doctype and void elements are skipped.
func checkBalancedTags(markup string) error {
	var stack []string
	i := 0
	for i < len(markup) {
		open := strings.IndexByte(markup[i:], '<')
		if open < 0 {
			break
		}
		i += open
		if strings.HasPrefix(markup[i:], "<!--") {
			end := strings.Index(markup[i:], "-->")
			if end < 0 {
				return invalid("unterminated comment in markup")
			}
			i += end + 3
			continue
		}
		close := strings.IndexByte(markup[i:], '>')
		if close < 0 {
			return invalid("unterminated tag in markup")
		}
		tag := markup[i+1 : i+close]
		i += close + 1

		tag = strings.TrimSpace(tag)
		if tag == "" || strings.HasPrefix(tag, "!") || strings.HasPrefix(tag, "?") {
			continue
		}
		closing := strings.HasPrefix(tag, "/")
		tag = strings.TrimPrefix(tag, "/")
		selfClosing := strings.HasSuffix(tag, "/")
		fields := strings.FieldsFunc(tag, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\n' || r == '/'
		})
		if len(fields) == 0 {
			// Fragment syntax like <> and </> carries no element name.
			continue
		}
		name := strings.ToLower(fields[0])

		if closing {
			if len(stack) == 0 {
				return invalid("closing tag </%s> without opener", name)
			}
			if stack[len(stack)-1] != name {
				return invalid("mismatched closing tag </%s>, expected </%s>", name, stack[len(stack)-1])
			}
			stack = stack[:len(stack)-1]
			continue
		}
		if selfClosing || voidElements[name] {
			continue
		}
		stack = append(stack, name)
	}
	if len(stack) > 0 {
		return invalid("unclosed tag <%s>", stack[len(stack)-1])
	}
	return nil
}

func checkBalancedBraces(segment, code string) error {
	if strings.Count(code, "{") != strings.Count(code, "}") {
		return invalid("%s segment has unbalanced braces", segment)
	}
	return nil
}

func checkBalancedParens(segment, code string) error {
	if strings.Count(code, "(") != strings.Count(code, ")") {
		return invalid("%s segment has unbalanced parentheses", segment)
	}
	return nil
}
