package parser

import (
	"fmt"
	"strconv"

	"github.com/razeghi71/dqflow/ast"
	"github.com/razeghi71/dqflow/lexer"
)

// Parser converts a token stream into an AST.
type Parser struct {
	tokens []lexer.Token
	pos    int
}

// Parse parses a full script into a Script AST.
func Parse(input string) (*ast.Script, error) {
	tokens, err := lexer.Lex(input)
	if err != nil {
		return nil, fmt.Errorf("lex error: %w", err)
	}
	p := &Parser{tokens: tokens, pos: 0}
	return p.parseScript()
}

func (p *Parser) peek() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(tt lexer.TokenType) (lexer.Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, unexpected(tt.String(), tok)
	}
	return tok, nil
}

func unexpected(want string, tok lexer.Token) error {
	if tok.Type == lexer.TokenSemi || tok.Type == lexer.TokenEOF {
		return fmt.Errorf("expected %s, got end of pipeline at line %d", want, tok.Line)
	}
	return fmt.Errorf("expected %s, got %s (%q) at line %d", want, tok.Type, tok.Val, tok.Line)
}

func (p *Parser) parseScript() (*ast.Script, error) {
	script := &ast.Script{}
	for p.peek().Type != lexer.TokenEOF {
		pl, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}
		script.Pipelines = append(script.Pipelines, pl)

		switch tok := p.peek(); tok.Type {
		case lexer.TokenSemi:
			p.advance()
		case lexer.TokenEOF:
		default:
			return nil, fmt.Errorf("unexpected token %s (%q) at line %d", tok.Type, tok.Val, tok.Line)
		}
	}
	if len(script.Pipelines) == 0 {
		return nil, fmt.Errorf("empty script")
	}
	return script, nil
}

func (p *Parser) parsePipeline() (*ast.Pipeline, error) {
	line := p.peek().Line
	source, err := p.parseSource()
	if err != nil {
		return nil, err
	}

	pl := &ast.Pipeline{Line: line, Source: source}
	for p.peek().Type == lexer.TokenPipe {
		p.advance() // consume |
		stage, err := p.parseStage()
		if err != nil {
			return nil, err
		}
		pl.Stages = append(pl.Stages, stage)
	}
	return pl, nil
}

func (p *Parser) parseSource() (ast.Source, error) {
	tok := p.advance()
	if tok.Type != lexer.TokenIdent {
		return ast.Source{}, unexpected("source (dataset, file or table)", tok)
	}
	switch tok.Val {
	case "dataset", "table":
		name, err := p.expect(lexer.TokenIdent)
		if err != nil {
			return ast.Source{}, fmt.Errorf("%s: %w", tok.Val, err)
		}
		return ast.Source{Kind: ast.SourceKind(tok.Val), Name: name.Val}, nil
	case "file":
		path, err := p.expect(lexer.TokenString)
		if err != nil {
			return ast.Source{}, fmt.Errorf("file: %w", err)
		}
		return ast.Source{Kind: ast.SourceFile, Path: path.Val}, nil
	default:
		return ast.Source{}, fmt.Errorf("unknown source %q at line %d", tok.Val, tok.Line)
	}
}

func (p *Parser) parseStage() (ast.Stage, error) {
	tok := p.peek()
	if tok.Type == lexer.TokenAs {
		return p.parseName()
	}
	if tok.Type != lexer.TokenIdent {
		return nil, unexpected("stage name", tok)
	}

	switch tok.Val {
	case "filter":
		return p.parseFilter()
	case "buffer":
		return p.parseBuffer()
	case "join":
		return p.parseJoin()
	case "aggregate":
		return p.parseAggregate()
	case "save":
		return p.parseSave()
	case "export":
		return p.parseExport()
	default:
		return nil, fmt.Errorf("unknown stage %q at line %d", tok.Val, tok.Line)
	}
}

func (p *Parser) parseFilter() (ast.Stage, error) {
	p.advance() // consume "filter"
	var conds []ast.Condition
	for {
		c, err := p.parseCondition()
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		conds = append(conds, c)
		if p.peek().Type != lexer.TokenAnd {
			break
		}
		p.advance()
	}
	return &ast.FilterStage{Conditions: conds}, nil
}

func (p *Parser) parseCondition() (ast.Condition, error) {
	col, err := p.parseColumn()
	if err != nil {
		return ast.Condition{}, err
	}
	c := ast.Condition{Column: col}

	tok := p.advance()
	switch {
	case tok.Type == lexer.TokenEq:
		c.Operator = "equals"
	case tok.Type == lexer.TokenNeq:
		c.Operator = "not_equals"
	case tok.Type == lexer.TokenLt:
		c.Operator = "less_than"
	case tok.Type == lexer.TokenGt:
		c.Operator = "greater_than"
	case tok.Type == lexer.TokenIdent && tok.Val == "contains":
		c.Operator = "contains"
	case tok.Type == lexer.TokenIn:
		c.Operator = "in"
		c.Values, err = p.parseLiteralList()
		return c, err
	case tok.Type == lexer.TokenNot:
		if _, err := p.expect(lexer.TokenIn); err != nil {
			return c, err
		}
		c.Operator = "not_in"
		c.Values, err = p.parseLiteralList()
		return c, err
	default:
		return c, unexpected("comparison (==, !=, <, >, in, not in, contains)", tok)
	}

	c.Value, err = p.parseLiteral()
	return c, err
}

func (p *Parser) parseLiteralList() ([]ast.Literal, error) {
	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return nil, err
	}
	var list []ast.Literal
	for p.peek().Type != lexer.TokenRParen {
		if len(list) > 0 {
			if _, err := p.expect(lexer.TokenComma); err != nil {
				return nil, err
			}
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		list = append(list, lit)
	}
	p.advance() // consume )
	if len(list) == 0 {
		return nil, fmt.Errorf("expected at least one value in list")
	}
	return list, nil
}

func (p *Parser) parseLiteral() (ast.Literal, error) {
	tok := p.advance()
	switch tok.Type {
	case lexer.TokenInt:
		n, err := strconv.ParseInt(tok.Val, 10, 64)
		if err != nil {
			return ast.Literal{}, fmt.Errorf("invalid integer %q at line %d", tok.Val, tok.Line)
		}
		return ast.Literal{Kind: "int", Int: n}, nil
	case lexer.TokenFloat:
		f, err := strconv.ParseFloat(tok.Val, 64)
		if err != nil {
			return ast.Literal{}, fmt.Errorf("invalid float %q at line %d", tok.Val, tok.Line)
		}
		return ast.Literal{Kind: "float", Float: f}, nil
	case lexer.TokenString:
		return ast.Literal{Kind: "string", Str: tok.Val}, nil
	case lexer.TokenTrue:
		return ast.Literal{Kind: "bool", Bool: true}, nil
	case lexer.TokenFalse:
		return ast.Literal{Kind: "bool", Bool: false}, nil
	case lexer.TokenNull:
		return ast.Literal{Kind: "null"}, nil
	default:
		return ast.Literal{}, unexpected("value", tok)
	}
}

func (p *Parser) parseNumber() (float64, error) {
	tok := p.advance()
	if tok.Type != lexer.TokenInt && tok.Type != lexer.TokenFloat {
		return 0, unexpected("number", tok)
	}
	f, err := strconv.ParseFloat(tok.Val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q at line %d", tok.Val, tok.Line)
	}
	return f, nil
}

func (p *Parser) parseBuffer() (ast.Stage, error) {
	p.advance() // consume "buffer"
	d, err := p.parseNumber()
	if err != nil {
		return nil, fmt.Errorf("buffer: %w", err)
	}
	return &ast.BufferStage{Distance: d}, nil
}

func (p *Parser) parseJoin() (ast.Stage, error) {
	p.advance() // consume "join"
	right, err := p.parseSource()
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	j := &ast.JoinStage{Right: right}

	if p.peek().Type == lexer.TokenOn {
		p.advance()
		left, err := p.parseColumn()
		if err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
		if _, err := p.expect(lexer.TokenEq); err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
		rightCol, err := p.parseColumn()
		if err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
		j.On = &ast.JoinKeys{Left: left, Right: rightCol}
		return j, nil
	}

	tok := p.advance()
	if tok.Type != lexer.TokenIdent {
		return nil, fmt.Errorf("join: %w", unexpected("'on' or a spatial predicate", tok))
	}
	switch tok.Val {
	case "intersects", "within", "contains", "overlaps":
		j.Predicate = tok.Val
	default:
		return nil, fmt.Errorf("join: unknown spatial predicate %q at line %d", tok.Val, tok.Line)
	}
	return j, nil
}

func (p *Parser) parseAggregate() (ast.Stage, error) {
	p.advance() // consume "aggregate"
	a := &ast.AggregateStage{}

	if p.peek().Type == lexer.TokenBy {
		p.advance()
		for {
			col, err := p.parseColumn()
			if err != nil {
				return nil, fmt.Errorf("aggregate: %w", err)
			}
			a.GroupBy = append(a.GroupBy, col)
			if p.peek().Type != lexer.TokenComma {
				break
			}
			p.advance()
		}
	}

	for {
		agg, err := p.parseAggregation()
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}
		a.Aggregations = append(a.Aggregations, agg)
		if p.peek().Type != lexer.TokenComma {
			break
		}
		p.advance()
	}
	return a, nil
}

// parseAggregation parses "fn(column) as alias" or "count(*) as alias".
func (p *Parser) parseAggregation() (ast.Aggregation, error) {
	fn, err := p.expect(lexer.TokenIdent)
	if err != nil {
		return ast.Aggregation{}, err
	}
	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return ast.Aggregation{}, err
	}
	var col string
	if p.peek().Type == lexer.TokenStar {
		p.advance()
		col = "*"
	} else if col, err = p.parseColumn(); err != nil {
		return ast.Aggregation{}, err
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return ast.Aggregation{}, err
	}
	if _, err := p.expect(lexer.TokenAs); err != nil {
		return ast.Aggregation{}, err
	}
	alias, err := p.parseColumn()
	if err != nil {
		return ast.Aggregation{}, err
	}
	return ast.Aggregation{Func: fn.Val, Column: col, Alias: alias}, nil
}

func (p *Parser) parseName() (ast.Stage, error) {
	p.advance() // consume "as"
	name, err := p.expect(lexer.TokenIdent)
	if err != nil {
		return nil, fmt.Errorf("as: %w", err)
	}
	return &ast.NameStage{Name: name.Val}, nil
}

func (p *Parser) parseSave() (ast.Stage, error) {
	p.advance() // consume "save"
	name, err := p.expect(lexer.TokenIdent)
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	return &ast.SaveStage{Name: name.Val}, nil
}

func (p *Parser) parseExport() (ast.Stage, error) {
	p.advance() // consume "export"
	format, err := p.expect(lexer.TokenIdent)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	path, err := p.expect(lexer.TokenString)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return &ast.ExportStage{Format: format.Val, Path: path.Val}, nil
}

func (p *Parser) parseColumn() (string, error) {
	tok := p.advance()
	if tok.Type != lexer.TokenIdent && tok.Type != lexer.TokenBacktickIdent {
		return "", unexpected("column name", tok)
	}
	return tok.Val, nil
}
