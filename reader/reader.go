// Package reader turns source text into a lazy sequence of model forms.
// Each pull reads exactly one top-level form. Dispatch is by leading
// character, with a `#` prefix for reader macros and tagged literals and a
// sub-language for string literals and interpolation.
package reader

import (
	"errors"
	"io"
	"strings"
	"unicode"

	"github.com/sergev/larch/model"
)

// Macro is a reader macro: invoked after its `#name` dispatch has been
// consumed, it may pull further forms or raw characters from the reader
// and returns the form to splice into the stream. A nil result discards.
type Macro func(r *Reader) (model.Object, error)

// MacroTable maps reader-macro names to handlers. The table is mutable
// and shared with the compilation context; macro-definition forms add
// entries while reading is in progress.
type MacroTable map[string]Macro

// Option configures a Reader.
type Option func(*Reader)

// WithMacros installs the reader-macro table, typically the compilation
// context's shared one.
func WithMacros(t MacroTable) Option {
	return func(r *Reader) { r.macros = t }
}

// SkipShebang skips a leading `#!` interpreter directive line.
func SkipShebang() Option {
	return func(r *Reader) { r.skipShebang = true }
}

// Restricted makes any *undefined* reader-macro dispatch a silent no-op
// instead of an error, so untrusted text can be scanned without running
// arbitrary dispatch handlers.
func Restricted() Option {
	return func(r *Reader) { r.restricted = true }
}

// Reader reads forms from a character stream.
type Reader struct {
	sc          *scanner
	filename    string
	macros      MacroTable
	skipShebang bool
	restricted  bool
	started     bool
}

// New returns a Reader over r. The filename is used only in diagnostics.
func New(r io.Reader, filename string, opts ...Option) *Reader {
	rd := &Reader{sc: newScanner(r), filename: filename}
	for _, opt := range opts {
		opt(rd)
	}
	if rd.macros == nil {
		rd.macros = MacroTable{}
	}
	return rd
}

// Filename returns the diagnostic filename.
func (r *Reader) Filename() string { return r.filename }

// Parse returns the lazy sequence of forms in the stream.
func Parse(src io.Reader, filename string, opts ...Option) *model.Lazy {
	return New(src, filename, opts...).Forms()
}

// ReadString reads every form in src.
func ReadString(src, filename string, opts ...Option) ([]model.Object, error) {
	return New(strings.NewReader(src), filename, opts...).Forms().All()
}

// ReadOne reads exactly one form from src.
func ReadOne(src string) (model.Object, error) {
	r := New(strings.NewReader(src), "<input>")
	o, err := r.Next()
	if err == io.EOF {
		return nil, r.eofErr(r.here(), "no form in input")
	}
	return o, err
}

// Forms wraps the reader in a single-pass lazy sequence.
func (r *Reader) Forms() *model.Lazy {
	return model.NewLazy(r.Next)
}

// errDiscard is the internal signal that a dispatch consumed input but
// produced no form (`#_` and comment-like tags).
var errDiscard = errors.New("form discarded")

// Next reads one top-level form, or io.EOF once the stream is exhausted.
func (r *Reader) Next() (model.Object, error) {
	if !r.started {
		r.started = true
		if r.skipShebang {
			if ok, err := r.tryConsume("#!"); err == nil && ok {
				r.skipLine()
			}
		}
	}
	for {
		if err := r.skipWS(); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}
		o, err := r.readForm()
		if err == errDiscard {
			continue
		}
		return o, err
	}
}

// ReadForm reads the next form, for use from reader macros; end of input
// mid-read is a premature-EOF error rather than a clean io.EOF.
func (r *Reader) ReadForm() (model.Object, error) {
	o, err := r.Next()
	if err == io.EOF {
		return nil, r.eofErr(r.here(), "form expected")
	}
	return o, err
}

func (r *Reader) here() model.Span {
	return model.Span{
		StartLine: r.sc.line, StartCol: r.sc.col,
		EndLine: r.sc.line, EndCol: r.sc.col,
	}
}

func (r *Reader) spanned(o model.Object, startLine, startCol int) model.Object {
	return o.WithSpan(model.Span{
		StartLine: startLine, StartCol: startCol,
		EndLine: r.sc.lastLine, EndCol: r.sc.lastCol,
	})
}

func (r *Reader) spanOfRun(startLine, startCol int) model.Span {
	return model.Span{
		StartLine: startLine, StartCol: startCol,
		EndLine: r.sc.lastLine, EndCol: r.sc.lastCol,
	}
}

func (r *Reader) skipWS() error {
	for {
		ch, st, err := r.sc.read()
		if err != nil {
			return err
		}
		switch {
		case unicode.IsSpace(ch) || ch == ',':
		case ch == ';':
			r.skipLine()
		default:
			r.sc.unread(ch, st)
			return nil
		}
	}
}

func (r *Reader) skipLine() {
	for {
		ch, _, err := r.sc.read()
		if err != nil || ch == '\n' {
			return
		}
	}
}

// tryConsume reads the exact rune sequence seq, or restores the stream
// and reports false.
func (r *Reader) tryConsume(seq string) (bool, error) {
	type step struct {
		r  rune
		st scanState
	}
	var taken []step
	for _, want := range seq {
		ch, st, err := r.sc.read()
		if err != nil || ch != want {
			if err == nil {
				taken = append(taken, step{ch, st})
			}
			for i := len(taken) - 1; i >= 0; i-- {
				r.sc.unread(taken[i].r, taken[i].st)
			}
			if err != nil && err != io.EOF {
				return false, err
			}
			return false, nil
		}
		taken = append(taken, step{ch, st})
	}
	return true, nil
}

func (r *Reader) readForm() (model.Object, error) {
	startLine, startCol := r.sc.line, r.sc.col
	ch, st, err := r.sc.read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, r.lexErr(r.here(), "read error: %v", err)
	}

	switch ch {
	case '(':
		return r.readSeq(')', model.NewExpression, startLine, startCol)
	case '[':
		return r.readSeq(']', model.NewList, startLine, startCol)
	case '{':
		return r.readSeq('}', model.NewDict, startLine, startCol)
	case ')', ']', '}':
		return nil, r.lexErr(r.here(), "unexpected %q", ch)
	case '"':
		return r.readStringLiteral("", startLine, startCol)
	case '\'':
		return r.readWrapped("quote", startLine, startCol)
	case '`':
		return r.readWrapped("quasiquote", startLine, startCol)
	case '~':
		if next, err := r.sc.peek(); err == nil && next == '@' {
			r.sc.read()
			return r.readWrapped("unquote-splice", startLine, startCol)
		}
		return r.readWrapped("unquote", startLine, startCol)
	case '#':
		return r.readDispatch(startLine, startCol)
	default:
		r.sc.unread(ch, st)
		return r.readAtom(startLine, startCol)
	}
}

func (r *Reader) readWrapped(head string, startLine, startCol int) (model.Object, error) {
	form, err := r.ReadForm()
	if err != nil {
		return nil, err
	}
	sym := r.spanned(model.Sym(head), startLine, startCol)
	return r.spanned(model.NewExpression(sym, form), startLine, startCol), nil
}

func (r *Reader) readSeq(closer rune, build func(...model.Object) model.Sequence, startLine, startCol int) (model.Object, error) {
	var items []model.Object
	for {
		if err := r.skipWS(); err != nil {
			if err == io.EOF {
				return nil, r.eofErr(r.here(), "unterminated sequence, expected %q", closer)
			}
			return nil, err
		}
		next, err := r.sc.peek()
		if err != nil {
			return nil, r.eofErr(r.here(), "unterminated sequence, expected %q", closer)
		}
		if next == closer {
			r.sc.read()
			return r.spanned(build(items...), startLine, startCol), nil
		}
		item, err := r.readForm()
		if err == errDiscard {
			continue
		}
		if err != nil {
			if err == io.EOF {
				return nil, r.eofErr(r.here(), "unterminated sequence, expected %q", closer)
			}
			return nil, err
		}
		items = append(items, item)
	}
}

// identBreak reports whether ch terminates an identifier run.
func identBreak(ch rune) bool {
	return unicode.IsSpace(ch) || strings.ContainsRune("(),;\"'`~[]{}", ch)
}

func (r *Reader) readIdentRun() (string, scanState) {
	st0 := r.sc.state()
	var b strings.Builder
	for {
		ch, st, err := r.sc.read()
		if err != nil {
			break
		}
		if identBreak(ch) {
			r.sc.unread(ch, st)
			break
		}
		b.WriteRune(ch)
	}
	return b.String(), st0
}

func (r *Reader) readAtom(startLine, startCol int) (model.Object, error) {
	run, _ := r.readIdentRun()
	if run == "" {
		return nil, r.lexErr(r.here(), "malformed token")
	}

	// A recognized string prefix directly followed by a quote hands off
	// to the string sub-reader.
	if isStringPrefix(run) {
		if next, err := r.sc.peek(); err == nil && next == '"' {
			r.sc.read()
			return r.readStringLiteral(run, startLine, startCol)
		}
	}

	if strings.HasPrefix(run, ":") {
		kw, err := model.NewKeyword(run[1:])
		if err != nil {
			return nil, r.lexErr(r.spanOfRun(startLine, startCol), "invalid keyword %q: %v", run, err)
		}
		return r.spanned(kw, startLine, startCol), nil
	}

	obj, err := classifyAtom(run)
	if err != nil {
		return nil, r.lexErr(r.spanOfRun(startLine, startCol), "%v", err)
	}
	return r.spanned(obj, startLine, startCol), nil
}

func (r *Reader) readDispatch(startLine, startCol int) (model.Object, error) {
	// Precedence is load-bearing: the longest identifier run names a
	// reader macro first, then single-rune tags, then failure.
	run, st0 := r.readIdentRun()
	if run != "" {
		if m, ok := r.macros[run]; ok {
			form, err := m(r)
			if err != nil {
				return nil, err
			}
			if form == nil {
				return nil, errDiscard
			}
			return r.spanned(form, startLine, startCol), nil
		}
		r.sc.pushBack(run, st0)
	}

	ch, _, err := r.sc.read()
	if err != nil {
		return nil, r.eofErr(r.here(), "unterminated dispatch")
	}
	switch ch {
	case '(':
		return r.readSeq(')', model.NewTuple, startLine, startCol)
	case '{':
		return r.readSeq('}', model.NewSet, startLine, startCol)
	case '[':
		return r.readBracketString(startLine, startCol)
	case '*':
		head := "unpack-iterable"
		if next, err := r.sc.peek(); err == nil && next == '*' {
			r.sc.read()
			head = "unpack-mapping"
		}
		return r.readWrapped(head, startLine, startCol)
	case '_':
		if _, err := r.ReadForm(); err != nil {
			return nil, err
		}
		return nil, errDiscard
	case '^':
		ann, err := r.ReadForm()
		if err != nil {
			return nil, err
		}
		target, err := r.ReadForm()
		if err != nil {
			return nil, err
		}
		sym := r.spanned(model.Sym("annotate"), startLine, startCol)
		return r.spanned(model.NewExpression(sym, target, ann), startLine, startCol), nil
	case '!':
		r.skipLine()
		return nil, errDiscard
	}

	if r.restricted {
		// ch consumed only the first rune of the pushed-back run;
		// swallow the rest so it does not leak into the stream.
		for i := 1; i < len([]rune(run)); i++ {
			r.sc.read()
		}
		return nil, errDiscard
	}
	if run != "" {
		return nil, r.lexErr(r.spanOfRun(startLine, startCol), "undefined reader macro %q", "#"+run)
	}
	return nil, r.lexErr(r.spanOfRun(startLine, startCol), "undefined dispatch character %q", ch)
}
