// Package feel implements a FEEL expression sub-engine: a tokenizer, a
// precedence-climbing parser over the richer FEEL grammar, an AST of
// value-typed nodes, and an interpreter.
//
// The AST's tagged-union shape is an enum plus an interface exposing
// Kind(); the runtime Value tagged union (Null/Boolean/Number/String/
// List/Context, with Equal/Compare) collapses int and float into a
// single Number variant.
package feel

import (
	"strings"
	"unicode"

	"github.com/kestrelrules/decisioncore/internalerr"
)

// TokenKind enumerates the lexical categories the tokenizer emits.
type TokenKind int8

const (
	TokenEOF TokenKind = iota
	TokenNumber
	TokenString
	TokenField
	TokenTrue
	TokenFalse
	TokenAnd
	TokenOr
	TokenNot
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenPercent
	TokenPow
	TokenEq
	TokenNe
	TokenGt
	TokenGe
	TokenLt
	TokenLe
	TokenAssign // '=' used inside contexts as "k: v" actually ':'; kept for completeness
	TokenLParen
	TokenRParen
	TokenLBracket
	TokenRBracket
	TokenLBrace
	TokenRBrace
	TokenComma
	TokenColon
	TokenDot
	TokenDotDot
	TokenQuestion
	TokenIdent // bare keyword-like identifiers: some, every, in, satisfies, for, return, if, then, else, instance, of, null
)

// Token is one lexeme plus its source position (for ParseError
// reporting).
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

var multiCharOps = []struct {
	text string
	kind TokenKind
}{
	{">=", TokenGe},
	{"<=", TokenLe},
	{"!=", TokenNe},
	{"**", TokenPow},
	{"..", TokenDotDot},
}

var keywords = map[string]TokenKind{
	"true":  TokenTrue,
	"false": TokenFalse,
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
}

// Tokenize scans src left to right, skipping whitespace, recognizing
// literals, identifiers, keywords, and operators.
func Tokenize(src string) ([]Token, error) {
	var tokens []Token
	runes := []rune(src)
	i := 0
	prevSignificant := TokenEOF
	hasPrev := false

	isOperatorLike := func(k TokenKind) bool {
		switch k {
		case TokenNumber, TokenString, TokenField, TokenTrue, TokenFalse,
			TokenRParen, TokenRBracket, TokenRBrace:
			return false
		default:
			return true
		}
	}

	for i < len(runes) {
		r := runes[i]
		if unicode.IsSpace(r) {
			i++
			continue
		}

		// multi-char operators first
		matched := false
		for _, m := range multiCharOps {
			n := len(m.text)
			if i+n <= len(runes) && string(runes[i:i+n]) == m.text {
				tokens = append(tokens, Token{Kind: m.kind, Text: m.text, Pos: i})
				i += n
				prevSignificant, hasPrev = m.kind, true
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		// signed number: '-' or '+' immediately preceding digits, only
		// when the previous significant token was an operator, an
		// opening paren, or stream start.
		if (r == '-' || r == '+') && i+1 < len(runes) && unicode.IsDigit(runes[i+1]) &&
			(!hasPrev || isOperatorLike(prevSignificant)) {
			start := i
			i = scanNumber(runes, i+1)
			text := string(runes[start:i])
			tokens = append(tokens, Token{Kind: TokenNumber, Text: text, Pos: start})
			prevSignificant, hasPrev = TokenNumber, true
			continue
		}

		if unicode.IsDigit(r) {
			start := i
			i = scanNumber(runes, i)
			text := string(runes[start:i])
			tokens = append(tokens, Token{Kind: TokenNumber, Text: text, Pos: start})
			prevSignificant, hasPrev = TokenNumber, true
			continue
		}

		if r == '"' {
			start := i
			i++
			for i < len(runes) && runes[i] != '"' {
				i++
			}
			if i >= len(runes) {
				return nil, internalerr.NewParseError(start, '"', "unterminated string literal")
			}
			text := string(runes[start+1 : i])
			i++ // closing quote
			tokens = append(tokens, Token{Kind: TokenString, Text: text, Pos: start})
			prevSignificant, hasPrev = TokenString, true
			continue
		}

		if isIdentStart(r) {
			start := i
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
			text := string(runes[start:i])
			if kind, ok := keywords[text]; ok && wordBoundary(text) {
				tokens = append(tokens, Token{Kind: kind, Text: text, Pos: start})
				prevSignificant, hasPrev = kind, true
				continue
			}
			if kind, ok := keywordIdents[text]; ok {
				tokens = append(tokens, Token{Kind: kind, Text: text, Pos: start})
				prevSignificant, hasPrev = kind, true
				continue
			}
			tokens = append(tokens, Token{Kind: TokenField, Text: text, Pos: start})
			prevSignificant, hasPrev = TokenField, true
			continue
		}

		singleKind, ok := singleCharOps[r]
		if !ok {
			return nil, internalerr.NewParseError(i, r, "unrecognized character")
		}
		tokens = append(tokens, Token{Kind: singleKind, Text: string(r), Pos: i})
		prevSignificant, hasPrev = singleKind, true
		i++
	}

	tokens = append(tokens, Token{Kind: TokenEOF, Pos: len(runes)})
	return tokens, nil
}

// keywordIdents are reserved words of the richer grammar that still
// tokenize as identifiers with a distinguishable kind, so the parser
// can recognize them by Text without the tokenizer needing to know
// grammar-level context.
var keywordIdents = map[string]TokenKind{}

func init() {
	for _, w := range []string{"some", "every", "in", "satisfies", "for", "return", "if", "then", "else", "instance", "of", "between", "null"} {
		keywordIdents[w] = TokenIdent
	}
}

// scanNumber advances past the digits (and at most one fractional dot)
// of a numeric literal starting at i. A dot followed by another dot is
// the ".." range operator, not a fraction, so the literal stops there:
// "1..4" scans as the number 1 leaving ".." for the operator pass.
func scanNumber(runes []rune, i int) int {
	for i < len(runes) && unicode.IsDigit(runes[i]) {
		i++
	}
	if i < len(runes) && runes[i] == '.' && !(i+1 < len(runes) && runes[i+1] == '.') {
		i++
		for i < len(runes) && unicode.IsDigit(runes[i]) {
			i++
		}
	}
	return i
}

var singleCharOps = map[rune]TokenKind{
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenStar,
	'/': TokenSlash,
	'%': TokenPercent,
	'>': TokenGt,
	'<': TokenLt,
	'(': TokenLParen,
	')': TokenRParen,
	'[': TokenLBracket,
	']': TokenRBracket,
	'{': TokenLBrace,
	'}': TokenRBrace,
	',': TokenComma,
	':': TokenColon,
	'.': TokenDot,
	'=': TokenEq,
	'?': TokenQuestion,
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// wordBoundary guards "and"/"or"/keywords from matching inside a longer
// identifier (already guaranteed by the maximal-munch identifier scan
// above, but kept explicit).
func wordBoundary(word string) bool {
	return strings.TrimSpace(word) == word
}
