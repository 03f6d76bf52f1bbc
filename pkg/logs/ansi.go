package logs

import "strings"

// StripControl removes ANSI escape sequences and non-printing control bytes
// from s. Tabs survive (normalizeText expands them); everything else below
// 0x20, plus DEL, is dropped. Idempotent.
func StripControl(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == 0x1b || c == 0x7f || (c < 0x20 && c != '\t') {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == 0x1b:
			i = skipEscape(s, i)
		case c == '\t':
			b.WriteByte(c)
		case c < 0x20 || c == 0x7f:
			// bare control byte, drop
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// skipEscape returns the index of the final byte of the escape sequence
// starting at s[i], where s[i] is ESC.
func skipEscape(s string, i int) int {
	j := i + 1
	if j >= len(s) {
		return j
	}
	switch s[j] {
	case '[': // CSI: ends at a byte in 0x40..0x7e
		for j++; j < len(s); j++ {
			if c := s[j]; c >= 0x40 && c <= 0x7e {
				return j
			}
		}
		return len(s)
	case ']': // OSC: ends at BEL or ST (ESC \)
		for j++; j < len(s); j++ {
			if s[j] == 0x07 {
				return j
			}
			if s[j] == 0x1b && j+1 < len(s) && s[j+1] == '\\' {
				return j + 1
			}
		}
		return len(s)
	default: // two-byte escape
		return j
	}
}

const tabWidth = 4

// expandTabs replaces tabs with spaces up to the next tab stop.
func expandTabs(s string, width int) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 3*strings.Count(s, "\t"))
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := width - col%width
			for k := 0; k < n; k++ {
				b.WriteByte(' ')
			}
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}

// normalizeText turns one raw chunk from a log stream into storable line
// texts: split on carriage returns (progress-bar style rewrites become
// separate lines), strip control sequences, expand tabs, and replace
// invalid UTF-8. An all-empty chunk still yields one empty line.
func normalizeText(text string) []string {
	parts := strings.Split(text, "\r")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = StripControl(part)
		part = expandTabs(part, tabWidth)
		part = strings.ToValidUTF8(part, "�")
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}

// ByteOffsetForColumn maps a 0-based display column to a byte offset in
// text, clamping past-the-end columns to len(text). Columns are counted in
// runes, which is close enough for log text. Frontends use this to turn a
// mouse click into a selection endpoint.
func ByteOffsetForColumn(text string, col int) int {
	if col <= 0 {
		return 0
	}
	n := 0
	for i := range text {
		if n == col {
			return i
		}
		n++
	}
	return len(text)
}
