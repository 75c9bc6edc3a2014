package reader

import (
	"bufio"
	"io"
)

// scanner reads runes with line/column bookkeeping and an unread stack.
// Positions are 1-based; lastLine/lastCol point at the most recently
// consumed rune, line/col at the rune about to be consumed.
type scanner struct {
	br   *bufio.Reader
	undo []rune

	line, col         int
	lastLine, lastCol int

	captureDepth int
	captured     []rune
}

// scanState snapshots the position bookkeeping before a read so the rune
// can be pushed back exactly.
type scanState struct {
	line, col         int
	lastLine, lastCol int
	nCaptured         int
}

func newScanner(r io.Reader) *scanner {
	return &scanner{br: bufio.NewReader(r), line: 1, col: 1}
}

func (s *scanner) state() scanState {
	return scanState{
		line: s.line, col: s.col,
		lastLine: s.lastLine, lastCol: s.lastCol,
		nCaptured: len(s.captured),
	}
}

func (s *scanner) read() (rune, scanState, error) {
	st := s.state()
	var r rune
	if n := len(s.undo); n > 0 {
		r = s.undo[n-1]
		s.undo = s.undo[:n-1]
	} else {
		var err error
		r, _, err = s.br.ReadRune()
		if err != nil {
			return 0, st, err
		}
	}
	s.lastLine, s.lastCol = s.line, s.col
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	if s.captureDepth > 0 {
		s.captured = append(s.captured, r)
	}
	return r, st, nil
}

func (s *scanner) unread(r rune, st scanState) {
	s.undo = append(s.undo, r)
	s.line, s.col = st.line, st.col
	s.lastLine, s.lastCol = st.lastLine, st.lastCol
	if s.captureDepth > 0 && len(s.captured) > st.nCaptured {
		s.captured = s.captured[:st.nCaptured]
	}
}

// pushBack returns a whole identifier run to the stream, restoring the
// position bookkeeping captured before the run was read. Runs never
// contain newlines, so the saved state fully describes the rewind.
func (s *scanner) pushBack(text string, st scanState) {
	rs := []rune(text)
	for i := len(rs) - 1; i >= 0; i-- {
		s.undo = append(s.undo, rs[i])
	}
	s.line, s.col = st.line, st.col
	s.lastLine, s.lastCol = st.lastLine, st.lastCol
	if s.captureDepth > 0 && len(s.captured) > st.nCaptured {
		s.captured = s.captured[:st.nCaptured]
	}
}

func (s *scanner) peek() (rune, error) {
	r, st, err := s.read()
	if err != nil {
		return 0, err
	}
	s.unread(r, st)
	return r, nil
}

// startCapture begins recording consumed runes verbatim and returns a
// mark; stopCapture ends that recording level and returns everything
// consumed since the mark. Levels nest, since an interpolated form may
// itself contain f-strings. Used by the f-string debug shorthand, which
// needs the exact source text of an interpolation.
func (s *scanner) startCapture() int {
	s.captureDepth++
	return len(s.captured)
}

func (s *scanner) stopCapture(mark int) string {
	out := string(s.captured[mark:])
	s.captureDepth--
	if s.captureDepth == 0 {
		s.captured = s.captured[:0]
	}
	return out
}
