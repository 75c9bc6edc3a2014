package reader

import (
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/sergev/larch/model"
)

// isStringPrefix reports whether run could be a string prefix. Validity
// of the combination is checked by the string sub-reader so that bad
// combinations fail loudly instead of falling back to a symbol.
func isStringPrefix(run string) bool {
	if run == "" || len(run) > 3 {
		return false
	}
	for _, r := range run {
		switch unicode.ToLower(r) {
		case 'b', 'r', 'f':
		default:
			return false
		}
	}
	return true
}

type strFlags struct {
	raw    bool
	bytes  bool
	format bool
}

func (r *Reader) parsePrefix(prefix string, span model.Span) (strFlags, error) {
	var f strFlags
	for _, ch := range prefix {
		var flag *bool
		switch unicode.ToLower(ch) {
		case 'b':
			flag = &f.bytes
		case 'r':
			flag = &f.raw
		case 'f':
			flag = &f.format
		default:
			return f, r.lexErr(span, "invalid string prefix %q", ch)
		}
		if *flag {
			return f, r.lexErr(span, "duplicate string prefix %q", ch)
		}
		*flag = true
	}
	if f.bytes && f.format {
		return f, r.lexErr(span, "string prefixes b and f are incompatible")
	}
	return f, nil
}

func (r *Reader) readStringLiteral(prefix string, startLine, startCol int) (model.Object, error) {
	flags, err := r.parsePrefix(prefix, r.spanOfRun(startLine, startCol))
	if err != nil {
		return nil, err
	}

	if flags.format {
		parts, err := r.readInterpolated(quoteTerminator, flags.raw)
		if err != nil {
			return nil, err
		}
		return r.spanned(model.NewFString(parts, ""), startLine, startCol), nil
	}

	var b strings.Builder
	for {
		ch, _, err := r.sc.read()
		if err != nil {
			return nil, r.eofErr(r.here(), "unterminated string")
		}
		switch ch {
		case '"':
			if flags.bytes {
				return r.spanned(model.NewBytes([]byte(b.String())), startLine, startCol), nil
			}
			return r.spanned(model.Str(b.String()), startLine, startCol), nil
		case '\\':
			if err := r.readEscape(&b, flags); err != nil {
				return nil, err
			}
		default:
			if flags.bytes && ch > unicode.MaxASCII {
				return nil, r.lexErr(r.here(), "byte string may contain only ASCII characters")
			}
			b.WriteRune(ch)
		}
	}
}

// readEscape consumes one escape sequence after the backslash. Raw
// strings keep the backslash and the escaped rune verbatim (a backslash
// still prevents a quote from closing the literal). Otherwise the escape
// must be in the fixed allowed set.
func (r *Reader) readEscape(b *strings.Builder, flags strFlags) error {
	ch, _, err := r.sc.read()
	if err != nil {
		return r.eofErr(r.here(), "unterminated escape sequence")
	}
	if flags.raw {
		b.WriteRune('\\')
		b.WriteRune(ch)
		return nil
	}
	switch ch {
	case '\n':
		// Line continuation.
	case '\\', '\'', '"':
		b.WriteRune(ch)
	case 'a':
		b.WriteRune('\a')
	case 'b':
		b.WriteRune('\b')
	case 'f':
		b.WriteRune('\f')
	case 'n':
		b.WriteRune('\n')
	case 'r':
		b.WriteRune('\r')
	case 't':
		b.WriteRune('\t')
	case 'v':
		b.WriteRune('\v')
	case 'x':
		return r.readHexEscape(b, 2, flags.bytes)
	case 'u':
		if flags.bytes {
			return r.lexErr(r.here(), `\u escape not allowed in byte strings`)
		}
		return r.readHexEscape(b, 4, false)
	case 'U':
		if flags.bytes {
			return r.lexErr(r.here(), `\U escape not allowed in byte strings`)
		}
		return r.readHexEscape(b, 8, false)
	case '0', '1', '2', '3', '4', '5', '6', '7':
		return r.readOctalEscape(b, ch, flags.bytes)
	default:
		return r.lexErr(r.here(), "invalid escape sequence \\%c", ch)
	}
	return nil
}

func (r *Reader) readHexEscape(b *strings.Builder, n int, bytes bool) error {
	var digits strings.Builder
	for i := 0; i < n; i++ {
		ch, _, err := r.sc.read()
		if err != nil {
			return r.eofErr(r.here(), "unterminated escape sequence")
		}
		digits.WriteRune(ch)
	}
	v, err := strconv.ParseUint(digits.String(), 16, 32)
	if err != nil {
		return r.lexErr(r.here(), "invalid hex escape \\%s", digits.String())
	}
	// Byte strings take raw bytes; text strings take code points, so a
	// two-digit \xNN above 0x7F must still encode as UTF-8.
	if bytes {
		b.WriteByte(byte(v))
	} else {
		b.WriteRune(rune(v))
	}
	return nil
}

func (r *Reader) readOctalEscape(b *strings.Builder, first rune, bytes bool) error {
	v := uint32(first - '0')
	for i := 0; i < 2; i++ {
		ch, st, err := r.sc.read()
		if err != nil || ch < '0' || ch > '7' {
			if err == nil {
				r.sc.unread(ch, st)
			}
			break
		}
		v = v*8 + uint32(ch-'0')
	}
	if bytes {
		b.WriteByte(byte(v))
	} else {
		b.WriteRune(rune(v))
	}
	return nil
}

// Terminators for interpolated bodies: a plain quote, or the close
// sequence of a bracketed literal.
const quoteTerminator = "\""

// readInterpolated parses the body of a format string up to term,
// collecting String parts and FComponent interpolations.
func (r *Reader) readInterpolated(term string, raw bool) ([]model.Object, error) {
	var parts []model.Object
	var text strings.Builder
	startLine, startCol := r.sc.line, r.sc.col

	flush := func() {
		if text.Len() > 0 {
			parts = append(parts, r.spanned(model.Str(text.String()), startLine, startCol))
			text.Reset()
		}
		startLine, startCol = r.sc.line, r.sc.col
	}

	for {
		if ok, err := r.tryConsume(term); err != nil {
			return nil, r.lexErr(r.here(), "read error: %v", err)
		} else if ok {
			flush()
			return parts, nil
		}
		ch, _, err := r.sc.read()
		if err != nil {
			return nil, r.eofErr(r.here(), "unterminated format string")
		}
		switch ch {
		case '{':
			if next, err := r.sc.peek(); err == nil && next == '{' {
				r.sc.read()
				text.WriteRune('{')
				continue
			}
			flush()
			comp, err := r.readFComponent()
			if err != nil {
				return nil, err
			}
			parts = append(parts, comp...)
			startLine, startCol = r.sc.line, r.sc.col
		case '}':
			if next, err := r.sc.peek(); err == nil && next == '}' {
				r.sc.read()
				text.WriteRune('}')
				continue
			}
			return nil, r.lexErr(r.here(), "single '}' is not allowed in a format string")
		case '\\':
			if term != quoteTerminator {
				text.WriteRune(ch)
				continue
			}
			if err := r.readEscape(&text, strFlags{raw: raw}); err != nil {
				return nil, err
			}
		default:
			text.WriteRune(ch)
		}
	}
}

// readFComponent parses one `{form !conversion :format-spec}`
// interpolation, already past the opening brace. The `=` debug shorthand
// additionally emits the verbatim source text of the interpolated form
// as a preceding String part.
func (r *Reader) readFComponent() ([]model.Object, error) {
	startLine, startCol := r.sc.line, r.sc.col
	mark := r.sc.startCapture()
	form, err := r.ReadForm()
	if err != nil {
		r.sc.stopCapture(mark)
		return nil, err
	}

	// Whitespace, then possibly the `=` shorthand; everything consumed so
	// far, including the `=`, becomes the verbatim text.
	if err := r.skipWS(); err != nil && err != io.EOF {
		r.sc.stopCapture(mark)
		return nil, r.lexErr(r.here(), "read error: %v", err)
	}
	debug := false
	if ok, err := r.tryConsume("="); err == nil && ok {
		debug = true
	}
	verbatim := r.sc.stopCapture(mark)
	if err := r.skipWS(); err != nil && err != io.EOF {
		return nil, r.lexErr(r.here(), "read error: %v", err)
	}

	var conversion rune
	if ok, _ := r.tryConsume("!"); ok {
		ch, _, err := r.sc.read()
		if err != nil {
			return nil, r.eofErr(r.here(), "unterminated format string component")
		}
		switch ch {
		case 'r', 's', 'a':
			conversion = ch
		default:
			return nil, r.lexErr(r.here(), "invalid conversion %q, expected one of r, s, a", ch)
		}
	}

	if err := r.skipWS(); err != nil && err != io.EOF {
		return nil, r.lexErr(r.here(), "read error: %v", err)
	}
	var spec []model.Object
	if ok, _ := r.tryConsume(":"); ok {
		spec, err = r.readSpecBody()
		if err != nil {
			return nil, err
		}
	} else if err := r.skipWS(); err != nil && err != io.EOF {
		return nil, r.lexErr(r.here(), "read error: %v", err)
	}

	ch, _, err := r.sc.read()
	if err != nil {
		return nil, r.eofErr(r.here(), "unterminated format string component")
	}
	if ch != '}' {
		return nil, r.lexErr(r.here(), "expected '}' after format string component, found %q", ch)
	}

	if debug && conversion == 0 && len(spec) == 0 {
		conversion = 'r'
	}
	items := append([]model.Object{form}, spec...)
	comp := r.spanned(model.NewFComponent(items, conversion), startLine, startCol)
	if debug {
		text := r.spanned(model.Str(verbatim), startLine, startCol)
		return []model.Object{text, comp}, nil
	}
	return []model.Object{comp}, nil
}

// readSpecBody parses a format spec up to (but not consuming) the
// closing brace; nested interpolations are allowed.
func (r *Reader) readSpecBody() ([]model.Object, error) {
	var parts []model.Object
	var text strings.Builder
	startLine, startCol := r.sc.line, r.sc.col
	for {
		ch, st, err := r.sc.read()
		if err != nil {
			return nil, r.eofErr(r.here(), "unterminated format spec")
		}
		switch ch {
		case '}':
			r.sc.unread(ch, st)
			if text.Len() > 0 {
				parts = append(parts, r.spanned(model.Str(text.String()), startLine, startCol))
			}
			return parts, nil
		case '{':
			if text.Len() > 0 {
				parts = append(parts, r.spanned(model.Str(text.String()), startLine, startCol))
				text.Reset()
			}
			comp, err := r.readFComponent()
			if err != nil {
				return nil, err
			}
			parts = append(parts, comp...)
		default:
			text.WriteRune(ch)
		}
	}
}

// readBracketString parses `#[delim[ ... ]delim]`. The text is raw. A
// delimiter containing the letter f yields a format string instead of a
// plain one.
func (r *Reader) readBracketString(startLine, startCol int) (model.Object, error) {
	var delim strings.Builder
	for {
		ch, _, err := r.sc.read()
		if err != nil {
			return nil, r.eofErr(r.here(), "unterminated bracket string delimiter")
		}
		if ch == '[' {
			break
		}
		if ch == ']' || ch == '\n' {
			return nil, r.lexErr(r.here(), "invalid bracket string delimiter")
		}
		delim.WriteRune(ch)
	}
	close := "]" + delim.String() + "]"

	if strings.Contains(delim.String(), "f") {
		parts, err := r.readInterpolated(close, true)
		if err != nil {
			return nil, err
		}
		return r.spanned(model.NewFString(parts, delim.String()), startLine, startCol), nil
	}

	var b strings.Builder
	for {
		if ok, err := r.tryConsume(close); err != nil {
			return nil, r.lexErr(r.here(), "read error: %v", err)
		} else if ok {
			return r.spanned(model.Str(b.String()), startLine, startCol), nil
		}
		ch, _, err := r.sc.read()
		if err != nil {
			return nil, r.eofErr(r.here(), "unterminated bracket string")
		}
		b.WriteRune(ch)
	}
}
