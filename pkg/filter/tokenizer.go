package filter

import (
	"errors"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// filterLexer masks string and typed literals as single tokens so keywords
// and parentheses inside them are never seen by the splitter.
var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "whitespace", Pattern: `\s+`},
	{Name: "Typed", Pattern: `[A-Za-z_][\w.]*'(?:[^']|'')*'`},
	{Name: "String", Pattern: `'(?:[^']|'')*'|"(?:[^"]|"")*"`},
	{Name: "Number", Pattern: `(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?[LlMmDdFf]?`},
	{Name: "Ident", Pattern: `[A-Za-z_$][\w.]*(?:/[A-Za-z_$][\w.]*)*`},
	{Name: "Punct", Pattern: `[(),:]`},
	{Name: "Minus", Pattern: `-`},
})

type tokenKind uint8

const (
	tokIdent tokenKind = iota + 1
	tokNumber
	tokString
	tokTyped
	tokPunct
	tokMinus
)

type token struct {
	kind   tokenKind
	text   string
	offset int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

// keyword returns the lower-cased text of an identifier token.
func (t token) keyword() string {
	if t.kind != tokIdent {
		return ""
	}
	return strings.ToLower(t.text)
}

var tokenKinds = func() map[lexer.TokenType]tokenKind {
	sym := filterLexer.Symbols()
	return map[lexer.TokenType]tokenKind{
		sym["Ident"]:  tokIdent,
		sym["Number"]: tokNumber,
		sym["String"]: tokString,
		sym["Typed"]:  tokTyped,
		sym["Punct"]:  tokPunct,
		sym["Minus"]:  tokMinus,
	}
}()

func tokenize(src string) ([]token, error) {
	lex, err := filterLexer.LexString("", src)
	if err != nil {
		return nil, grammarErrorf(src, "%v", err)
	}
	raw, err := lexer.ConsumeAll(lex)
	if err != nil {
		var lerr *lexer.Error
		if errors.As(err, &lerr) {
			rest := src[min(lerr.Pos.Offset, len(src)):]
			if strings.HasPrefix(rest, "'") || strings.HasPrefix(rest, `"`) {
				return nil, grammarErrorf(rest, "unterminated string literal")
			}
			return nil, grammarErrorf(rest, "unexpected character")
		}
		return nil, grammarErrorf(src, "%v", err)
	}
	toks := make([]token, 0, len(raw))
	for _, t := range raw {
		if t.EOF() {
			break
		}
		kind, ok := tokenKinds[t.Type]
		if !ok {
			continue
		}
		toks = append(toks, token{kind: kind, text: t.Value, offset: t.Pos.Offset})
	}
	return toks, nil
}

// span returns the source text covered by toks.
func span(src string, toks []token) string {
	if len(toks) == 0 {
		return ""
	}
	last := toks[len(toks)-1]
	return src[toks[0].offset : last.offset+len(last.text)]
}

// binaryLevels lists binary operator keywords from lowest to highest
// precedence.
var binaryLevels = [][]string{
	{"or"},
	{"and"},
	{"eq", "ne", "gt", "ge", "lt", "le"},
	{"add", "sub"},
	{"mul", "div", "mod"},
}

func isBinaryKeyword(kw string) bool {
	for _, level := range binaryLevels {
		for _, op := range level {
			if op == kw {
				return true
			}
		}
	}
	return false
}

// endsOperand reports whether t can close an operand, so that a following
// keyword is read as a binary operator.
func endsOperand(t token) bool {
	switch t.kind {
	case tokNumber, tokString, tokTyped:
		return true
	case tokPunct:
		return t.text == ")"
	case tokIdent:
		kw := t.keyword()
		return kw != "not" && !isBinaryKeyword(kw)
	}
	return false
}

type splitKind uint8

const (
	splitLeaf splitKind = iota
	splitBinary
	splitUnary
)

type splitResult struct {
	kind        splitKind
	op          token
	left, right []token
}

// checkBalance verifies parenthesis nesting over the whole range.
func checkBalance(src string, toks []token) error {
	depth := 0
	for _, t := range toks {
		switch {
		case t.is(tokPunct, "("):
			depth++
		case t.is(tokPunct, ")"):
			depth--
			if depth < 0 {
				return grammarErrorf(src[t.offset:], "unbalanced parentheses: unexpected ')'")
			}
		}
	}
	if depth != 0 {
		return grammarErrorf(span(src, toks), "unbalanced parentheses: missing ')'")
	}
	return nil
}

// wrapped reports whether the range is one parenthesized group.
func wrapped(toks []token) bool {
	if len(toks) < 2 || !toks[0].is(tokPunct, "(") || !toks[len(toks)-1].is(tokPunct, ")") {
		return false
	}
	depth := 0
	for i, t := range toks {
		switch {
		case t.is(tokPunct, "("):
			depth++
		case t.is(tokPunct, ")"):
			depth--
			if depth == 0 && i != len(toks)-1 {
				return false
			}
		}
	}
	return true
}

// splitTokens finds the lowest-precedence top-level operator of the range.
// Binary operators split at their last occurrence so chains associate to the
// left. Whole-range parenthesized groups are unwrapped.
func splitTokens(src string, toks []token) (splitResult, error) {
	if len(toks) == 0 {
		return splitResult{}, grammarErrorf(src, "empty expression")
	}
	for wrapped(toks) {
		toks = toks[1 : len(toks)-1]
		if len(toks) == 0 {
			return splitResult{}, grammarErrorf(src, "empty parentheses")
		}
	}
	for _, level := range binaryLevels {
		depth := 0
		for i := len(toks) - 1; i >= 0; i-- {
			t := toks[i]
			switch {
			case t.is(tokPunct, ")"):
				depth++
				continue
			case t.is(tokPunct, "("):
				depth--
				continue
			}
			if depth != 0 || t.kind != tokIdent {
				continue
			}
			kw := t.keyword()
			if !contains(level, kw) {
				continue
			}
			if i == 0 || i == len(toks)-1 || !endsOperand(toks[i-1]) {
				return splitResult{}, grammarErrorf(span(src, toks), "dangling operator %s", kw)
			}
			return splitResult{kind: splitBinary, op: t, left: toks[:i], right: toks[i+1:]}, nil
		}
	}
	first := toks[0]
	if first.keyword() == "not" || first.kind == tokMinus {
		if len(toks) == 1 {
			return splitResult{}, grammarErrorf(first.text, "dangling operator %s", first.text)
		}
		return splitResult{kind: splitUnary, op: first, right: toks[1:]}, nil
	}
	return splitResult{kind: splitLeaf, left: toks}, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// TokenSet is one decomposed clause of a filter: Left Operation Right. Leaf
// clauses have an empty Operation; unary clauses an empty Left. Fields are
// never nil.
type TokenSet struct {
	Left      string
	Operation string
	Right     string
}

// IsLeaf reports whether the clause has no operator.
func (t TokenSet) IsLeaf() bool { return t.Operation == "" }

func (t TokenSet) String() string {
	return strings.TrimSpace(strings.Join([]string{t.Left, t.Operation, t.Right}, " "))
}

// Split decomposes filter at its lowest-precedence top-level operator.
func Split(filter string) (TokenSet, error) {
	toks, err := tokenize(filter)
	if err != nil {
		return TokenSet{}, err
	}
	if err := checkBalance(filter, toks); err != nil {
		return TokenSet{}, err
	}
	s, err := splitTokens(filter, toks)
	if err != nil {
		return TokenSet{}, err
	}
	switch s.kind {
	case splitBinary:
		return TokenSet{Left: span(filter, s.left), Operation: s.op.keyword(), Right: span(filter, s.right)}, nil
	case splitUnary:
		op := s.op.text
		if s.op.kind == tokIdent {
			op = s.op.keyword()
		}
		return TokenSet{Operation: op, Right: span(filter, s.right)}, nil
	}
	return TokenSet{Left: span(filter, s.left)}, nil
}

// Clauses flattens the top-level and/or chain of filter into clauses and
// the combiners between them. Combiners are TokenSets holding only an
// Operation. Parenthesized groups stay whole as leaf clauses. An empty
// filter has no clauses.
func Clauses(filter string) ([]TokenSet, error) {
	toks, err := tokenize(filter)
	if err != nil || len(toks) == 0 {
		return nil, err
	}
	if err := checkBalance(filter, toks); err != nil {
		return nil, err
	}
	return clauses(filter, toks)
}

func clauses(src string, toks []token) ([]TokenSet, error) {
	if wrapped(toks) {
		return []TokenSet{{Left: span(src, toks)}}, nil
	}
	s, err := splitTokens(src, toks)
	if err != nil {
		return nil, err
	}
	switch {
	case s.kind == splitBinary && (s.op.keyword() == "and" || s.op.keyword() == "or"):
		left, err := clauses(src, s.left)
		if err != nil {
			return nil, err
		}
		right, err := clauses(src, s.right)
		if err != nil {
			return nil, err
		}
		out := append(left, TokenSet{Operation: s.op.keyword()})
		return append(out, right...), nil
	case s.kind == splitBinary:
		return []TokenSet{{Left: span(src, s.left), Operation: s.op.keyword(), Right: span(src, s.right)}}, nil
	case s.kind == splitUnary:
		op := s.op.text
		if s.op.kind == tokIdent {
			op = s.op.keyword()
		}
		return []TokenSet{{Operation: op, Right: span(src, s.right)}}, nil
	}
	return []TokenSet{{Left: span(src, s.left)}}, nil
}

// SplitList splits a comma separated option value such as an $orderby or
// $expand list at its top-level commas. Commas inside literals and
// parentheses are kept. Items are trimmed; empty items are an error.
func SplitList(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	toks, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	if err := checkBalance(text, toks); err != nil {
		return nil, err
	}
	parts := splitArgs(toks)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			return nil, grammarErrorf(text, "empty list item")
		}
		out = append(out, span(text, p))
	}
	return out, nil
}
