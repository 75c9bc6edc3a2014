// Package mangle translates surface identifiers into legal host
// identifiers and back. Mangle is pure, deterministic and idempotent;
// Unmangle is a best-effort inverse that cannot always round-trip because
// distinct surface names may mangle to the same result.
package mangle

import (
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/unicode/runenames"
)

// Prefix marks identifiers that needed character-level encoding.
const Prefix = "lrx_"

// Mangle converts a surface identifier into a legal host identifier.
// The rule order is fixed: dotted components are mangled independently;
// leading underscores are stripped and restored; hyphens become
// underscores; a trailing "?" becomes a leading "is_"; any remaining
// illegal character is replaced by an X-delimited unicode-name encoding
// under the fixed prefix; the result is NFKC-normalized.
func Mangle(s string) string {
	if s == "" {
		return s
	}
	if strings.Trim(s, ".") == "" {
		return norm.NFKC.String(s)
	}
	if strings.Contains(s, ".") {
		parts := strings.Split(s, ".")
		for i, p := range parts {
			if p != "" {
				parts[i] = Mangle(p)
			}
		}
		return strings.Join(parts, ".")
	}

	leading := s[:len(s)-len(strings.TrimLeft(s, "_"))]
	body := s[len(leading):]
	if body == "" {
		return norm.NFKC.String(s)
	}

	body = strings.ReplaceAll(body, "-", "_")
	if strings.HasSuffix(body, "?") && len(body) > 1 {
		body = "is_" + body[:len(body)-1]
	}
	if !isIdentifier(body) {
		var b strings.Builder
		b.WriteString(Prefix)
		for _, r := range body {
			if isIdentifierRune(r) {
				b.WriteRune(r)
			} else {
				b.WriteString("X" + runeName(r) + "X")
			}
		}
		body = b.String()
	}
	return norm.NFKC.String(leading + body)
}

// Unmangle reverses Mangle as far as the encoding allows. The result is
// stable under re-mangling but is not guaranteed to match the original
// surface name.
func Unmangle(s string) string {
	if strings.Contains(s, ".") && strings.Trim(s, ".") != "" {
		parts := strings.Split(s, ".")
		for i, p := range parts {
			if p != "" {
				parts[i] = Unmangle(p)
			}
		}
		return strings.Join(parts, ".")
	}

	leading := s[:len(s)-len(strings.TrimLeft(s, "_"))]
	body := s[len(leading):]

	if rest, ok := strings.CutPrefix(body, Prefix); ok {
		body = decodeRuneNames(rest)
	}
	if rest, ok := strings.CutPrefix(body, "is_"); ok && rest != "" {
		body = rest + "?"
	}
	body = strings.ReplaceAll(body, "_", "-")
	return leading + body
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}
		if !isIdentifierRune(r) {
			return false
		}
	}
	return true
}

func isIdentifierRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// runeName encodes a rune as its lowercased unicode name with spaces and
// hyphens flattened to underscores, or U<hex> when the rune is unnamed.
func runeName(r rune) string {
	name := runenames.Name(r)
	if name == "" || strings.HasPrefix(name, "<") {
		return "U" + strconv.FormatInt(int64(r), 16)
	}
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

func decodeRuneNames(s string) string {
	var b strings.Builder
	for {
		open := strings.Index(s, "X")
		if open < 0 {
			b.WriteString(s)
			return b.String()
		}
		close := strings.Index(s[open+1:], "X")
		if close < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:open])
		name := s[open+1 : open+1+close]
		if r, ok := lookupRune(name); ok {
			b.WriteRune(r)
		} else {
			b.WriteString("X" + name + "X")
		}
		s = s[open+close+2:]
	}
}

var nameTable = sync.OnceValue(func() map[string]rune {
	m := make(map[string]rune)
	for r := rune(0); r <= 0x2FFFF; r++ {
		name := runenames.Name(r)
		if name == "" || strings.HasPrefix(name, "<") {
			continue
		}
		name = strings.ToLower(name)
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, "-", "_")
		if _, dup := m[name]; !dup {
			m[name] = r
		}
	}
	return m
})

func lookupRune(name string) (rune, bool) {
	if hex, ok := strings.CutPrefix(name, "U"); ok {
		if v, err := strconv.ParseInt(hex, 16, 32); err == nil {
			return rune(v), true
		}
	}
	r, ok := nameTable()[name]
	return r, ok
}
