package reader

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"github.com/sergev/larch/model"
)

// classifyAtom resolves an identifier run into a numeric atom or a
// symbol. The attempt order is fixed: integer, integer ratio, float,
// complex; a run that looks numeric but parses as none of them is an
// immediate error, never a symbol.
func classifyAtom(run string) (model.Object, error) {
	if i, ok := parseInteger(run); ok {
		return i, nil
	}
	if ratio, ok := parseRatio(run); ok {
		return ratio, nil
	}
	if f, ok := parseFloat(run); ok {
		return model.NewFloat(f), nil
	}
	if c, ok := parseComplex(run); ok {
		return model.NewComplex(c), nil
	}
	if looksNumeric(run) {
		return nil, fmt.Errorf("malformed number %q", run)
	}
	sym, err := model.NewSymbol(run)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

func looksNumeric(run string) bool {
	s := run
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	if unicode.IsDigit(rune(s[0])) {
		return true
	}
	return s[0] == '.' && len(s) > 1 && unicode.IsDigit(rune(s[1]))
}

func parseInteger(run string) (model.Integer, bool) {
	// big.Int with base 0 accepts 0x/0o/0b prefixes, a sign, and
	// digit-separating underscores.
	v, ok := new(big.Int).SetString(run, 0)
	if !ok {
		return model.Integer{}, false
	}
	return model.NewInteger(v), true
}

// parseRatio reads an integer ratio such as 1/3 and lowers it to a
// runtime fraction construction, preserving exactness.
func parseRatio(run string) (model.Object, bool) {
	num, den, found := strings.Cut(run, "/")
	if !found {
		return nil, false
	}
	n, ok := new(big.Int).SetString(num, 10)
	if !ok {
		return nil, false
	}
	d, ok := new(big.Int).SetString(den, 10)
	if !ok {
		return nil, false
	}
	return model.Expr("fraction", model.NewInteger(n), model.NewInteger(d)), true
}

func parseFloat(run string) (float64, bool) {
	f, err := strconv.ParseFloat(run, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseComplex(run string) (complex128, bool) {
	if !strings.HasSuffix(run, "j") && !strings.HasSuffix(run, "J") {
		return 0, false
	}
	s := run[:len(run)-1] + "i"
	c, err := strconv.ParseComplex(s, 128)
	if err != nil {
		return 0, false
	}
	return c, true
}
