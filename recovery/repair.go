package recovery

import (
	"fmt"
	"strings"
)

// RepairEscapes fixes the two defects models produce most: literal line
// breaks inside string values and trailing commas before a closing brace or
// bracket. Escape pairs inside strings are copied as they are, so only raw
// control characters inside strings are rewritten.
func RepairEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				b.WriteByte(c)
				if i+1 < len(s) && s[i+1] >= 0x20 {
					i++
					b.WriteByte(s[i])
				}
			case '"':
				inString = false
				b.WriteByte(c)
			case '\r':
				if i+1 < len(s) && s[i+1] == '\n' {
					i++
				}
				b.WriteString(`\n`)
			case '\n':
				b.WriteString(`\n`)
			case '\t':
				b.WriteString(`\t`)
			default:
				if c < 0x20 {
					fmt.Fprintf(&b, `\u%04x`, c)
					continue
				}
				b.WriteByte(c)
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case ',':
			if trailingComma(s[i+1:]) {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// trailingComma reports whether rest starts with optional whitespace
// followed by a closing brace or bracket.
func trailingComma(rest string) bool {
	trimmed := strings.TrimLeft(rest, " \t\r\n")
	return strings.HasPrefix(trimmed, "}") || strings.HasPrefix(trimmed, "]")
}
