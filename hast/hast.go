// Package hast defines the host abstract syntax tree the compiler lowers
// forms into: a conventional statement/expression AST for an executable
// unit, with pattern nodes for structural matching. Every node carries the
// span of the form it was compiled from.
package hast

import "github.com/sergev/larch/model"

// Node is any element of the host tree.
type Node interface {
	Pos() model.Span
}

// Stmt is a statement node. Statements have effects but no value.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node. Expressions evaluate to a value and may be
// nested inside other expressions.
type Expr interface {
	Node
	exprNode()
}

// Pattern is one arm of a structural match.
type Pattern interface {
	Node
	patternNode()
}

// ExprContext distinguishes how a Name, Attribute, Subscript, Starred,
// Tuple or List expression is used.
type ExprContext int

const (
	Load ExprContext = iota
	Store
	Del
)

// Module is the executable unit: an ordered statement body.
type Module struct {
	Span model.Span
	Body []Stmt
}

func (n *Module) Pos() model.Span { return n.Span }

// ---- statements ----

type ExprStmt struct {
	Span model.Span
	X    Expr
}

type Assign struct {
	Span    model.Span
	Targets []Expr
	Value   Expr
}

type AugAssign struct {
	Span   model.Span
	Target Expr
	Op     string
	Value  Expr
}

type AnnAssign struct {
	Span       model.Span
	Target     Expr
	Annotation Expr
	Value      Expr // may be nil
}

type If struct {
	Span model.Span
	Cond Expr
	Body []Stmt
	Else []Stmt
}

type While struct {
	Span model.Span
	Cond Expr
	Body []Stmt
	Else []Stmt
}

type For struct {
	Span   model.Span
	Target Expr
	Iter   Expr
	Body   []Stmt
	Else   []Stmt
	Async  bool
}

type FuncDef struct {
	Span       model.Span
	Name       string
	Params     Arguments
	Body       []Stmt
	Decorators []Expr
	Returns    Expr // may be nil
	Async      bool
}

type ClassDef struct {
	Span       model.Span
	Name       string
	Bases      []Expr
	Keywords   []Keyword
	Body       []Stmt
	Decorators []Expr
}

type Return struct {
	Span  model.Span
	Value Expr // may be nil
}

type Raise struct {
	Span  model.Span
	Exc   Expr // may be nil for a bare re-raise
	Cause Expr // may be nil
}

type Try struct {
	Span     model.Span
	Body     []Stmt
	Handlers []*ExceptHandler
	Else     []Stmt
	Final    []Stmt
}

// ExceptHandler is one catch clause. A nil Type catches everything.
type ExceptHandler struct {
	Span model.Span
	Type Expr
	Name string
	Body []Stmt
}

type With struct {
	Span  model.Span
	Items []WithItem
	Body  []Stmt
	Async bool
}

type WithItem struct {
	Context Expr
	Vars    Expr // may be nil
}

type Match struct {
	Span    model.Span
	Subject Expr
	Cases   []*MatchCase
}

type MatchCase struct {
	Span  model.Span
	Pat   Pattern
	Guard Expr // may be nil
	Body  []Stmt
}

type Alias struct {
	Name   string
	AsName string // "" for none
}

type Import struct {
	Span  model.Span
	Names []Alias
}

type ImportFrom struct {
	Span   model.Span
	Module string
	Names  []Alias
	Level  int
}

type Global struct {
	Span  model.Span
	Names []string
}

type Nonlocal struct {
	Span  model.Span
	Names []string
}

type Pass struct{ Span model.Span }

type Break struct{ Span model.Span }

type Continue struct{ Span model.Span }

type Delete struct {
	Span    model.Span
	Targets []Expr
}

type Assert struct {
	Span model.Span
	Test Expr
	Msg  Expr // may be nil
}

func (n *ExprStmt) Pos() model.Span      { return n.Span }
func (n *Assign) Pos() model.Span        { return n.Span }
func (n *AugAssign) Pos() model.Span     { return n.Span }
func (n *AnnAssign) Pos() model.Span     { return n.Span }
func (n *If) Pos() model.Span            { return n.Span }
func (n *While) Pos() model.Span         { return n.Span }
func (n *For) Pos() model.Span           { return n.Span }
func (n *FuncDef) Pos() model.Span       { return n.Span }
func (n *ClassDef) Pos() model.Span      { return n.Span }
func (n *Return) Pos() model.Span        { return n.Span }
func (n *Raise) Pos() model.Span         { return n.Span }
func (n *Try) Pos() model.Span           { return n.Span }
func (n *ExceptHandler) Pos() model.Span { return n.Span }
func (n *With) Pos() model.Span          { return n.Span }
func (n *Match) Pos() model.Span         { return n.Span }
func (n *MatchCase) Pos() model.Span     { return n.Span }
func (n *Import) Pos() model.Span        { return n.Span }
func (n *ImportFrom) Pos() model.Span    { return n.Span }
func (n *Global) Pos() model.Span        { return n.Span }
func (n *Nonlocal) Pos() model.Span      { return n.Span }
func (n *Pass) Pos() model.Span          { return n.Span }
func (n *Break) Pos() model.Span         { return n.Span }
func (n *Continue) Pos() model.Span      { return n.Span }
func (n *Delete) Pos() model.Span        { return n.Span }
func (n *Assert) Pos() model.Span        { return n.Span }

func (*ExprStmt) stmtNode()   {}
func (*Assign) stmtNode()     {}
func (*AugAssign) stmtNode()  {}
func (*AnnAssign) stmtNode()  {}
func (*If) stmtNode()         {}
func (*While) stmtNode()      {}
func (*For) stmtNode()        {}
func (*FuncDef) stmtNode()    {}
func (*ClassDef) stmtNode()   {}
func (*Return) stmtNode()     {}
func (*Raise) stmtNode()      {}
func (*Try) stmtNode()        {}
func (*With) stmtNode()       {}
func (*Match) stmtNode()      {}
func (*Import) stmtNode()     {}
func (*ImportFrom) stmtNode() {}
func (*Global) stmtNode()     {}
func (*Nonlocal) stmtNode()   {}
func (*Pass) stmtNode()       {}
func (*Break) stmtNode()      {}
func (*Continue) stmtNode()   {}
func (*Delete) stmtNode()     {}
func (*Assert) stmtNode()     {}

// ---- expressions ----

type Name struct {
	Span model.Span
	ID   string
	Ctx  ExprContext
}

// Constant holds a literal value: nil, bool, string, []byte, *big.Int,
// float64, complex128, or Ellipsis.
type Constant struct {
	Span  model.Span
	Value any
}

// Ellipsis is the sentinel Constant value for the "..." literal.
type Ellipsis struct{}

type BinOp struct {
	Span  model.Span
	Left  Expr
	Op    string
	Right Expr
}

type BoolOp struct {
	Span   model.Span
	Op     string // "and" or "or"
	Values []Expr
}

type UnaryOp struct {
	Span    model.Span
	Op      string
	Operand Expr
}

type Compare struct {
	Span        model.Span
	Left        Expr
	Ops         []string
	Comparators []Expr
}

type Call struct {
	Span     model.Span
	Func     Expr
	Args     []Expr
	Keywords []Keyword
}

// Keyword is a keyword argument; an empty Arg means mapping unpacking.
type Keyword struct {
	Arg   string
	Value Expr
}

type Attribute struct {
	Span  model.Span
	Value Expr
	Attr  string
	Ctx   ExprContext
}

type Subscript struct {
	Span  model.Span
	Value Expr
	Index Expr
	Ctx   ExprContext
}

type SliceExpr struct {
	Span  model.Span
	Lower Expr // each may be nil
	Upper Expr
	Step  Expr
}

type IfExp struct {
	Span model.Span
	Cond Expr
	Body Expr
	Else Expr
}

type Lambda struct {
	Span   model.Span
	Params Arguments
	Body   Expr
}

type TupleExpr struct {
	Span model.Span
	Elts []Expr
	Ctx  ExprContext
}

type ListExpr struct {
	Span model.Span
	Elts []Expr
	Ctx  ExprContext
}

type SetExpr struct {
	Span model.Span
	Elts []Expr
}

// DictExpr pairs Keys with Values; a nil key marks mapping unpacking of
// the corresponding value.
type DictExpr struct {
	Span   model.Span
	Keys   []Expr
	Values []Expr
}

// Comprehension is one bind/iterate clause of a comprehension expression.
type Comprehension struct {
	Target Expr
	Iter   Expr
	Ifs    []Expr
	Async  bool
}

type ListComp struct {
	Span       model.Span
	Elt        Expr
	Generators []Comprehension
}

type SetComp struct {
	Span       model.Span
	Elt        Expr
	Generators []Comprehension
}

type DictComp struct {
	Span       model.Span
	Key        Expr
	Value      Expr
	Generators []Comprehension
}

type GeneratorExp struct {
	Span       model.Span
	Elt        Expr
	Generators []Comprehension
}

type Yield struct {
	Span  model.Span
	Value Expr // may be nil
}

type YieldFrom struct {
	Span  model.Span
	Value Expr
}

type Await struct {
	Span  model.Span
	Value Expr
}

type Starred struct {
	Span  model.Span
	Value Expr
	Ctx   ExprContext
}

type NamedExpr struct {
	Span   model.Span
	Target *Name
	Value  Expr
}

type JoinedStr struct {
	Span   model.Span
	Values []Expr
}

type FormattedValue struct {
	Span       model.Span
	Value      Expr
	Conversion rune // 0 for none
	FormatSpec Expr // may be nil
}

func (n *Name) Pos() model.Span           { return n.Span }
func (n *Constant) Pos() model.Span       { return n.Span }
func (n *BinOp) Pos() model.Span          { return n.Span }
func (n *BoolOp) Pos() model.Span         { return n.Span }
func (n *UnaryOp) Pos() model.Span        { return n.Span }
func (n *Compare) Pos() model.Span        { return n.Span }
func (n *Call) Pos() model.Span           { return n.Span }
func (n *Attribute) Pos() model.Span      { return n.Span }
func (n *Subscript) Pos() model.Span      { return n.Span }
func (n *SliceExpr) Pos() model.Span      { return n.Span }
func (n *IfExp) Pos() model.Span          { return n.Span }
func (n *Lambda) Pos() model.Span         { return n.Span }
func (n *TupleExpr) Pos() model.Span      { return n.Span }
func (n *ListExpr) Pos() model.Span       { return n.Span }
func (n *SetExpr) Pos() model.Span        { return n.Span }
func (n *DictExpr) Pos() model.Span       { return n.Span }
func (n *ListComp) Pos() model.Span       { return n.Span }
func (n *SetComp) Pos() model.Span        { return n.Span }
func (n *DictComp) Pos() model.Span       { return n.Span }
func (n *GeneratorExp) Pos() model.Span   { return n.Span }
func (n *Yield) Pos() model.Span          { return n.Span }
func (n *YieldFrom) Pos() model.Span      { return n.Span }
func (n *Await) Pos() model.Span          { return n.Span }
func (n *Starred) Pos() model.Span        { return n.Span }
func (n *NamedExpr) Pos() model.Span      { return n.Span }
func (n *JoinedStr) Pos() model.Span      { return n.Span }
func (n *FormattedValue) Pos() model.Span { return n.Span }

func (*Name) exprNode()           {}
func (*Constant) exprNode()       {}
func (*BinOp) exprNode()          {}
func (*BoolOp) exprNode()         {}
func (*UnaryOp) exprNode()        {}
func (*Compare) exprNode()        {}
func (*Call) exprNode()           {}
func (*Attribute) exprNode()      {}
func (*Subscript) exprNode()      {}
func (*SliceExpr) exprNode()      {}
func (*IfExp) exprNode()          {}
func (*Lambda) exprNode()         {}
func (*TupleExpr) exprNode()      {}
func (*ListExpr) exprNode()       {}
func (*SetExpr) exprNode()        {}
func (*DictExpr) exprNode()       {}
func (*ListComp) exprNode()       {}
func (*SetComp) exprNode()        {}
func (*DictComp) exprNode()       {}
func (*GeneratorExp) exprNode()   {}
func (*Yield) exprNode()          {}
func (*YieldFrom) exprNode()      {}
func (*Await) exprNode()          {}
func (*Starred) exprNode()        {}
func (*NamedExpr) exprNode()      {}
func (*JoinedStr) exprNode()      {}
func (*FormattedValue) exprNode() {}

// ---- match patterns ----

type MatchValue struct {
	Span  model.Span
	Value Expr
}

// MatchSingleton matches one of the singleton constants by identity.
type MatchSingleton struct {
	Span  model.Span
	Value any
}

type MatchSequence struct {
	Span     model.Span
	Patterns []Pattern
}

// MatchMapping destructures a mapping; Rest captures unmatched keys when
// non-empty.
type MatchMapping struct {
	Span     model.Span
	Keys     []Expr
	Patterns []Pattern
	Rest     string
}

type MatchClass struct {
	Span        model.Span
	Cls         Expr
	Patterns    []Pattern
	KwdNames    []string
	KwdPatterns []Pattern
}

// MatchStar captures the remainder of a sequence; an empty Name discards
// it.
type MatchStar struct {
	Span model.Span
	Name string
}

// MatchAs is a capture or wildcard: with a nil Pattern and empty Name it
// is the wildcard; with a nil Pattern and a Name it is a bare capture.
type MatchAs struct {
	Span    model.Span
	Pattern Pattern // may be nil
	Name    string  // "" for wildcard
}

type MatchOr struct {
	Span     model.Span
	Patterns []Pattern
}

func (n *MatchValue) Pos() model.Span     { return n.Span }
func (n *MatchSingleton) Pos() model.Span { return n.Span }
func (n *MatchSequence) Pos() model.Span  { return n.Span }
func (n *MatchMapping) Pos() model.Span   { return n.Span }
func (n *MatchClass) Pos() model.Span     { return n.Span }
func (n *MatchStar) Pos() model.Span      { return n.Span }
func (n *MatchAs) Pos() model.Span        { return n.Span }
func (n *MatchOr) Pos() model.Span        { return n.Span }

func (*MatchValue) patternNode()     {}
func (*MatchSingleton) patternNode() {}
func (*MatchSequence) patternNode()  {}
func (*MatchMapping) patternNode()   {}
func (*MatchClass) patternNode()     {}
func (*MatchStar) patternNode()      {}
func (*MatchAs) patternNode()        {}
func (*MatchOr) patternNode()        {}

// ---- function parameters ----

// Arg is one formal parameter.
type Arg struct {
	Span       model.Span
	Name       string
	Annotation Expr // may be nil
}

// Arguments is a full parameter list. Defaults align with the tail of
// PosOnly+Args; KwDefaults aligns with KwOnly, nil entries meaning
// "required".
type Arguments struct {
	PosOnly    []Arg
	Args       []Arg
	Defaults   []Expr
	VarArg     *Arg // may be nil
	KwOnly     []Arg
	KwDefaults []Expr
	KwArg      *Arg // may be nil
}

// Empty reports whether the parameter list declares nothing at all.
func (a Arguments) Empty() bool {
	return len(a.PosOnly) == 0 && len(a.Args) == 0 && a.VarArg == nil &&
		len(a.KwOnly) == 0 && a.KwArg == nil
}

// Annotated reports whether any parameter carries an annotation.
func (a Arguments) Annotated() bool {
	for _, g := range [][]Arg{a.PosOnly, a.Args, a.KwOnly} {
		for _, p := range g {
			if p.Annotation != nil {
				return true
			}
		}
	}
	if a.VarArg != nil && a.VarArg.Annotation != nil {
		return true
	}
	if a.KwArg != nil && a.KwArg.Annotation != nil {
		return true
	}
	return false
}
