package lexer

import (
	"fmt"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Structural
	TokenPipe   TokenType = iota // |
	TokenSemi                    // ; or newline, ends a pipeline
	TokenLParen                  // (
	TokenRParen                  // )
	TokenComma                   // ,
	TokenStar                    // *

	// Comparisons
	TokenEq  // ==
	TokenNeq // !=
	TokenLt  // <
	TokenGt  // >

	// Keywords
	TokenAnd   // and
	TokenNot   // not
	TokenIn    // in
	TokenOn    // on
	TokenBy    // by
	TokenAs    // as
	TokenTrue  // true
	TokenFalse // false
	TokenNull  // null

	// Literals
	TokenInt    // integer literal
	TokenFloat  // float literal
	TokenString // "string literal"

	// Identifiers
	TokenIdent         // stage name, column or table name
	TokenBacktickIdent // `column with spaces`

	// End
	TokenEOF
)

var tokenNames = map[TokenType]string{
	TokenPipe: "|", TokenSemi: ";", TokenLParen: "(", TokenRParen: ")", TokenComma: ",", TokenStar: "*",
	TokenEq: "==", TokenNeq: "!=", TokenLt: "<", TokenGt: ">",
	TokenAnd: "and", TokenNot: "not", TokenIn: "in", TokenOn: "on", TokenBy: "by", TokenAs: "as",
	TokenTrue: "true", TokenFalse: "false", TokenNull: "null",
	TokenInt: "INT", TokenFloat: "FLOAT", TokenString: "STRING",
	TokenIdent: "IDENT", TokenBacktickIdent: "BACKTICK_IDENT", TokenEOF: "EOF",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

// Token represents a single lexical token.
type Token struct {
	Type TokenType
	Val  string
	Pos  int // rune offset in original input
	Line int // 1-based
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Type, t.Val, t.Line, t.Pos)
}

var keywords = map[string]TokenType{
	"and":   TokenAnd,
	"not":   TokenNot,
	"in":    TokenIn,
	"on":    TokenOn,
	"by":    TokenBy,
	"as":    TokenAs,
	"true":  TokenTrue,
	"false": TokenFalse,
	"null":  TokenNull,
}

// Lex tokenizes a script. Newlines and semicolons both end a pipeline; a
// pipe at the end or the start of a line joins it to its neighbour.
// Comments start with # or // and run to the end of the line.
func Lex(input string) ([]Token, error) {
	var tokens []Token
	runes := []rune(input)
	line := 1
	i := 0

	emit := func(tt TokenType, val string, pos int) {
		tokens = append(tokens, Token{Type: tt, Val: val, Pos: pos, Line: line})
	}
	separator := func(val string, pos int) {
		if len(tokens) == 0 {
			return
		}
		switch tokens[len(tokens)-1].Type {
		case TokenSemi, TokenPipe:
			return
		}
		emit(TokenSemi, val, pos)
	}

	for i < len(runes) {
		ch := runes[i]
		pos := i

		if ch == '\n' {
			separator("\n", pos)
			line++
			i++
			continue
		}
		if unicode.IsSpace(ch) {
			i++
			continue
		}
		if ch == '#' || (ch == '/' && i+1 < len(runes) && runes[i+1] == '/') {
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			continue
		}

		switch ch {
		case '|':
			// A pipe opening a line continues the previous one.
			if n := len(tokens); n > 0 && tokens[n-1].Type == TokenSemi && tokens[n-1].Val == "\n" {
				tokens = tokens[:n-1]
			}
			emit(TokenPipe, "|", pos)
			i++
			continue
		case ';':
			separator(";", pos)
			i++
			continue
		case '(':
			emit(TokenLParen, "(", pos)
			i++
			continue
		case ')':
			emit(TokenRParen, ")", pos)
			i++
			continue
		case ',':
			emit(TokenComma, ",", pos)
			i++
			continue
		case '*':
			emit(TokenStar, "*", pos)
			i++
			continue
		case '=':
			if i+1 < len(runes) && runes[i+1] == '=' {
				emit(TokenEq, "==", pos)
				i += 2
				continue
			}
			return nil, fmt.Errorf("unexpected character '=' at line %d (did you mean '=='?)", line)
		case '!':
			if i+1 < len(runes) && runes[i+1] == '=' {
				emit(TokenNeq, "!=", pos)
				i += 2
				continue
			}
			return nil, fmt.Errorf("unexpected character '!' at line %d (did you mean '!='?)", line)
		case '<':
			emit(TokenLt, "<", pos)
			i++
			continue
		case '>':
			emit(TokenGt, ">", pos)
			i++
			continue
		case '-':
			if i+1 < len(runes) && unicode.IsDigit(runes[i+1]) {
				tok, next := lexNumber(runes, i)
				tok.Line = line
				tokens = append(tokens, tok)
				i = next
				continue
			}
			return nil, fmt.Errorf("unexpected character '-' at line %d", line)
		}

		if ch == '"' {
			tok, next, err := lexString(runes, i)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			tok.Line = line
			tokens = append(tokens, tok)
			i = next
			continue
		}

		if ch == '`' {
			tok, next, err := lexBacktick(runes, i)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			tok.Line = line
			tokens = append(tokens, tok)
			i = next
			continue
		}

		if unicode.IsDigit(ch) {
			tok, next := lexNumber(runes, i)
			tok.Line = line
			tokens = append(tokens, tok)
			i = next
			continue
		}

		if isIdentStart(ch) {
			tok, next := lexIdent(runes, i)
			tok.Line = line
			tokens = append(tokens, tok)
			i = next
			continue
		}

		return nil, fmt.Errorf("unexpected character %q at line %d", ch, line)
	}

	separator("\n", len(runes))
	emit(TokenEOF, "", len(runes))
	return tokens, nil
}

func lexString(runes []rune, start int) (Token, int, error) {
	i := start + 1
	var sb []rune
	for i < len(runes) {
		if runes[i] == '\\' && i+1 < len(runes) {
			switch runes[i+1] {
			case '"':
				sb = append(sb, '"')
			case '\\':
				sb = append(sb, '\\')
			case 'n':
				sb = append(sb, '\n')
			case 't':
				sb = append(sb, '\t')
			default:
				sb = append(sb, '\\', runes[i+1])
			}
			i += 2
			continue
		}
		if runes[i] == '\n' {
			break
		}
		if runes[i] == '"' {
			return Token{Type: TokenString, Val: string(sb), Pos: start}, i + 1, nil
		}
		sb = append(sb, runes[i])
		i++
	}
	return Token{}, 0, fmt.Errorf("unterminated string starting at position %d", start)
}

func lexBacktick(runes []rune, start int) (Token, int, error) {
	i := start + 1
	var sb []rune
	for i < len(runes) && runes[i] != '\n' {
		if runes[i] == '`' {
			return Token{Type: TokenBacktickIdent, Val: string(sb), Pos: start}, i + 1, nil
		}
		sb = append(sb, runes[i])
		i++
	}
	return Token{}, 0, fmt.Errorf("unterminated backtick identifier starting at position %d", start)
}

func lexNumber(runes []rune, start int) (Token, int) {
	i := start
	isFloat := false

	if runes[i] == '-' {
		i++
	}
	for i < len(runes) && unicode.IsDigit(runes[i]) {
		i++
	}
	if i+1 < len(runes) && runes[i] == '.' && unicode.IsDigit(runes[i+1]) {
		isFloat = true
		i++
		for i < len(runes) && unicode.IsDigit(runes[i]) {
			i++
		}
	}

	val := string(runes[start:i])
	if isFloat {
		return Token{Type: TokenFloat, Val: val, Pos: start}, i
	}
	return Token{Type: TokenInt, Val: val, Pos: start}, i
}

func lexIdent(runes []rune, start int) (Token, int) {
	i := start
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	val := string(runes[start:i])

	if tt, ok := keywords[val]; ok {
		return Token{Type: tt, Val: val, Pos: start}, i
	}
	return Token{Type: TokenIdent, Val: val, Pos: start}, i
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}
