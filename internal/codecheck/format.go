package codecheck

import (
	"strings"

	"snapcode/internal/domain"
)

// Format normalizes generated code: LF line endings, no trailing whitespace,
// at most one consecutive blank line, exactly one trailing newline. It is
// best-effort and total; it never fails, so a formatting problem can never
// fail a job.
func Format(bundle domain.CodeBundle) domain.CodeBundle {
	return domain.CodeBundle{
		Markup:   formatSegment(bundle.Markup),
		Style:    formatSegment(bundle.Style),
		Behavior: formatSegment(bundle.Behavior),
	}
}

func formatSegment(code string) string {
	if strings.TrimSpace(code) == "" {
		return ""
	}
	code = strings.ReplaceAll(code, "\r\n", "\n")
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	// Drop leading/trailing blank lines.
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n") + "\n"
}
