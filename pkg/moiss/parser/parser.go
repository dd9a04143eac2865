package parser

import "fmt"

// SyntaxError reports a grammar violation with the offending token's
// source position.
type SyntaxError struct {
	Expected string
	Got      string
	Msg      string
	Line     int
	Column   int
}

func (e *SyntaxError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("syntax error at line %d, column %d: expected %s, got %s",
		e.Line, e.Column, e.Expected, e.Got)
}

const (
	_ int = iota
	LOWEST
	LOGIC_OR    // or
	LOGIC_AND   // and
	EQUALS      // == !=
	LESSGREATER // < > <= >=
	SUM         // + -
	PRODUCT     // * /
	PREFIX      // not X, -X
	POSTFIX     // call, member access, indexing
)

var precedences = map[TokenType]int{
	OR:       LOGIC_OR,
	AND:      LOGIC_AND,
	EQ:       EQUALS,
	NOT_EQ:   EQUALS,
	LT:       LESSGREATER,
	GT:       LESSGREATER,
	LTE:      LESSGREATER,
	GTE:      LESSGREATER,
	PLUS:     SUM,
	MINUS:    SUM,
	ASTERISK: PRODUCT,
	SLASH:    PRODUCT,
	LPAREN:   POSTFIX,
	DOT:      POSTFIX,
	LBRACKET: POSTFIX,
}

var severities = map[string]bool{
	"info":     true,
	"warning":  true,
	"high":     true,
	"critical": true,
}

type (
	prefixParseFn func() Expression
	infixParseFn  func(Expression) Expression
)

// Parser consumes a buffered token stream and produces a Program. It
// stops at the first grammar violation; it never recovers silently.
type Parser struct {
	tokens []Token
	pos    int // index of curToken

	err *SyntaxError

	prefixParseFns map[TokenType]prefixParseFn
	infixParseFns  map[TokenType]infixParseFn
}

// Parse tokenizes and parses a complete source text.
func Parse(source string) (*Program, error) {
	tokens, err := Tokenize(source)
	if err != nil {
		return nil, err
	}
	return New(tokens).ParseProgram()
}

func New(tokens []Token) *Parser {
	if len(tokens) == 0 {
		tokens = []Token{{Type: EOF}}
	}
	p := &Parser{tokens: tokens}

	p.prefixParseFns = make(map[TokenType]prefixParseFn)
	p.registerPrefix(IDENT, p.parseIdentifier)
	p.registerPrefix(NUMBER, p.parseNumberLiteral)
	p.registerPrefix(STRING, p.parseStringLiteral)
	p.registerPrefix(TRUE, p.parseBooleanLiteral)
	p.registerPrefix(FALSE, p.parseBooleanLiteral)
	p.registerPrefix(NULL, p.parseNullLiteral)
	p.registerPrefix(NOT, p.parsePrefixExpression)
	p.registerPrefix(MINUS, p.parsePrefixExpression)
	p.registerPrefix(LPAREN, p.parseGroupedExpression)
	p.registerPrefix(LBRACKET, p.parseListLiteral)

	p.infixParseFns = make(map[TokenType]infixParseFn)
	for _, t := range []TokenType{OR, AND, EQ, NOT_EQ, LT, GT, LTE, GTE, PLUS, MINUS, ASTERISK, SLASH} {
		p.registerInfix(t, p.parseInfixExpression)
	}
	p.registerInfix(LPAREN, p.parseCallExpression)
	p.registerInfix(DOT, p.parseMemberExpression)
	p.registerInfix(LBRACKET, p.parseIndexExpression)

	return p
}

func (p *Parser) curToken() Token  { return p.tokenAt(0) }
func (p *Parser) peekToken() Token { return p.tokenAt(1) }

func (p *Parser) tokenAt(offset int) Token {
	i := p.pos + offset
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[i]
}

func (p *Parser) nextToken() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
}

func (p *Parser) curTokenIs(t TokenType) bool  { return p.curToken().Type == t }
func (p *Parser) peekTokenIs(t TokenType) bool { return p.peekToken().Type == t }

func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t TokenType) {
	tok := p.peekToken()
	p.setErr(&SyntaxError{Expected: t.String(), Got: tok.Type.String(), Line: tok.Line, Column: tok.Column})
}

func (p *Parser) failAt(tok Token, format string, args ...interface{}) {
	p.setErr(&SyntaxError{Msg: fmt.Sprintf(format, args...), Line: tok.Line, Column: tok.Column})
}

func (p *Parser) setErr(err *SyntaxError) {
	if p.err == nil {
		p.err = err
	}
}

// ParseProgram parses the whole token stream. The returned Program lists
// declarations in source order.
func (p *Parser) ParseProgram() (*Program, error) {
	program := &Program{}

	for !p.curTokenIs(EOF) && p.err == nil {
		var decl Declaration
		switch p.curToken().Type {
		case IMPORT:
			decl = p.parseImportDecl()
		case TYPE:
			decl = p.parseTypeDecl()
		case FUNCTION:
			decl = p.parseFunctionDecl()
		case PROTOCOL:
			decl = p.parseProtocolDecl()
		default:
			p.failAt(p.curToken(), "expected protocol, type, function, or import, got %s", p.curToken().Type)
		}
		if p.err != nil {
			return nil, p.err
		}
		program.Declarations = append(program.Declarations, decl)
		p.nextToken()
	}

	if p.err != nil {
		return nil, p.err
	}
	return program, nil
}

func (p *Parser) parseImportDecl() *ImportDecl {
	decl := &ImportDecl{Token: p.curToken()}
	if !p.expectPeek(IDENT) {
		return nil
	}
	decl.Path = p.parseDottedName()
	if !p.expectPeek(SEMICOLON) {
		return nil
	}
	return decl
}

func (p *Parser) parseTypeDecl() *TypeDecl {
	decl := &TypeDecl{Token: p.curToken()}
	if !p.expectPeek(IDENT) {
		return nil
	}
	decl.Name = p.curToken().Literal

	if p.peekTokenIs(EXTENDS) {
		p.nextToken()
		if !p.expectPeek(IDENT) {
			return nil
		}
		decl.Parent = p.curToken().Literal
	}

	if !p.expectPeek(LBRACE) {
		return nil
	}

	for !p.peekTokenIs(RBRACE) {
		if p.peekTokenIs(EOF) {
			p.failAt(p.curToken(), "unbalanced braces in type %s", decl.Name)
			return nil
		}
		if !p.expectPeek(IDENT) {
			return nil
		}
		field := &FieldDecl{Name: p.curToken().Literal}
		if !p.expectPeek(COLON) {
			return nil
		}
		if !p.expectPeek(IDENT) {
			return nil
		}
		field.TypeName = p.curToken().Literal
		if p.peekTokenIs(ASSIGN) {
			p.nextToken()
			p.nextToken()
			field.Default = p.parseExpression(LOWEST)
			if p.err != nil {
				return nil
			}
		}
		if !p.expectPeek(SEMICOLON) {
			return nil
		}
		decl.Fields = append(decl.Fields, field)
	}

	p.nextToken() // consume RBRACE
	return decl
}

func (p *Parser) parseFunctionDecl() *FunctionDecl {
	decl := &FunctionDecl{Token: p.curToken()}
	if !p.expectPeek(IDENT) {
		return nil
	}
	decl.Name = p.curToken().Literal

	if !p.expectPeek(LPAREN) {
		return nil
	}
	if !p.peekTokenIs(RPAREN) {
		for {
			if !p.expectPeek(IDENT) {
				return nil
			}
			param := &Param{Name: p.curToken().Literal}
			if p.peekTokenIs(COLON) {
				p.nextToken()
				if !p.expectPeek(IDENT) {
					return nil
				}
				param.TypeName = p.curToken().Literal
			}
			decl.Params = append(decl.Params, param)
			if !p.peekTokenIs(COMMA) {
				break
			}
			p.nextToken()
		}
	}
	if !p.expectPeek(RPAREN) {
		return nil
	}

	if p.peekTokenIs(ARROW) {
		p.nextToken()
		if !p.expectPeek(IDENT) {
			return nil
		}
		decl.ReturnType = p.curToken().Literal
	}

	if !p.expectPeek(LBRACE) {
		return nil
	}
	decl.Body = p.parseBlockStatement()
	return decl
}

func (p *Parser) parseProtocolDecl() *ProtocolDecl {
	decl := &ProtocolDecl{Token: p.curToken()}
	if !p.expectPeek(IDENT) {
		return nil
	}
	decl.Name = p.curToken().Literal

	if !p.expectPeek(LBRACE) {
		return nil
	}
	p.nextToken()

	// The input declaration, when present, must come first.
	if p.curTokenIs(INPUT) {
		decl.Input = p.parseInputDecl()
		if p.err != nil {
			return nil
		}
		p.nextToken()
	}

	for !p.curTokenIs(RBRACE) {
		if p.curTokenIs(EOF) {
			p.failAt(p.curToken(), "unbalanced braces in protocol %s", decl.Name)
			return nil
		}
		if p.curTokenIs(INPUT) {
			p.failAt(p.curToken(), "input declaration must be the first entry in a protocol body")
			return nil
		}
		stmt := p.parseStatement()
		if p.err != nil {
			return nil
		}
		decl.Body = append(decl.Body, stmt)
		p.nextToken()
	}

	return decl
}

func (p *Parser) parseInputDecl() *InputDecl {
	decl := &InputDecl{Token: p.curToken()}
	if !p.expectPeek(COLON) {
		return nil
	}
	if !p.expectPeek(IDENT) {
		return nil
	}
	decl.TypeName = p.curToken().Literal
	if !p.expectPeek(IDENT) {
		return nil
	}
	decl.Name = p.curToken().Literal
	if !p.expectPeek(SEMICOLON) {
		return nil
	}
	return decl
}

func (p *Parser) parseStatement() Statement {
	switch p.curToken().Type {
	case LET:
		return p.parseLetStatement()
	case IF:
		return p.parseIfStatement()
	case WHILE:
		return p.parseWhileStatement()
	case FOR:
		return p.parseForEachStatement()
	case TRACK:
		return p.parseTrackStatement()
	case ADMINISTER:
		return p.parseAdministerStatement()
	case ASSESS:
		return p.parseAssessStatement()
	case ALERT:
		return p.parseAlertStatement()
	case RETURN:
		return p.parseReturnStatement()
	case IDENT, LPAREN:
		return p.parseExpressionStatement()
	default:
		p.failAt(p.curToken(), "unexpected token %s at start of statement", p.curToken().Type)
		return nil
	}
}

func (p *Parser) parseBlockStatement() *BlockStatement {
	block := &BlockStatement{Token: p.curToken()}
	p.nextToken()

	for !p.curTokenIs(RBRACE) {
		if p.curTokenIs(EOF) {
			p.failAt(p.curToken(), "unbalanced braces: missing '}'")
			return nil
		}
		stmt := p.parseStatement()
		if p.err != nil {
			return nil
		}
		block.Statements = append(block.Statements, stmt)
		p.nextToken()
	}

	return block
}

func (p *Parser) parseLetStatement() *LetStatement {
	stmt := &LetStatement{Token: p.curToken()}
	if !p.expectPeek(IDENT) {
		return nil
	}
	stmt.Name = p.curToken().Literal

	if p.peekTokenIs(COLON) {
		p.nextToken()
		if !p.expectPeek(IDENT) {
			return nil
		}
		stmt.TypeName = p.curToken().Literal
	}

	if !p.expectPeek(ASSIGN) {
		return nil
	}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	if p.err != nil {
		return nil
	}
	if !p.expectPeek(SEMICOLON) {
		return nil
	}
	return stmt
}

func (p *Parser) parseIfStatement() *IfStatement {
	stmt := &IfStatement{Token: p.curToken()}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if p.err != nil {
		return nil
	}
	if !p.expectPeek(LBRACE) {
		return nil
	}
	stmt.Consequence = p.parseBlockStatement()
	if p.err != nil {
		return nil
	}

	if p.peekTokenIs(ELSE) {
		p.nextToken()
		if !p.expectPeek(LBRACE) {
			return nil
		}
		stmt.Alternative = p.parseBlockStatement()
		if p.err != nil {
			return nil
		}
	}
	return stmt
}

func (p *Parser) parseWhileStatement() *WhileStatement {
	stmt := &WhileStatement{Token: p.curToken()}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if p.err != nil {
		return nil
	}
	if !p.expectPeek(LBRACE) {
		return nil
	}
	stmt.Body = p.parseBlockStatement()
	return stmt
}

func (p *Parser) parseForEachStatement() *ForEachStatement {
	stmt := &ForEachStatement{Token: p.curToken()}
	if !p.expectPeek(IDENT) {
		return nil
	}
	stmt.Var = p.curToken().Literal
	if !p.expectPeek(IN) {
		return nil
	}
	p.nextToken()
	stmt.Iterable = p.parseExpression(LOWEST)
	if p.err != nil {
		return nil
	}
	if !p.expectPeek(LBRACE) {
		return nil
	}
	stmt.Body = p.parseBlockStatement()
	return stmt
}

func (p *Parser) parseTrackStatement() *TrackStatement {
	stmt := &TrackStatement{Token: p.curToken()}
	if !p.expectPeek(IDENT) {
		return nil
	}
	stmt.Target = p.parseDottedName()
	if p.err != nil {
		return nil
	}

	if p.peekTokenIs(USING) {
		p.nextToken()
		if !p.expectPeek(KAE) {
			return nil
		}
		stmt.UsingKAE = true
	}

	if !p.expectPeek(SEMICOLON) {
		return nil
	}
	return stmt
}

func (p *Parser) parseAdministerStatement() *AdministerStatement {
	stmt := &AdministerStatement{Token: p.curToken()}
	if !p.expectPeek(IDENT) {
		return nil
	}
	stmt.Drug = p.curToken().Literal

	// The dose clause is mandatory; a bare administer is a grammar error.
	if !p.expectPeek(DOSE) {
		return nil
	}
	if !p.expectPeek(COLON) {
		return nil
	}
	p.nextToken()
	stmt.Dose = p.parseExpression(LOWEST)
	if p.err != nil {
		return nil
	}
	if !p.expectPeek(SEMICOLON) {
		return nil
	}
	return stmt
}

func (p *Parser) parseAssessStatement() *AssessStatement {
	stmt := &AssessStatement{Token: p.curToken()}
	if !p.expectPeek(IDENT) {
		return nil
	}
	stmt.Target = p.parseDottedName()
	if p.err != nil {
		return nil
	}
	if !p.expectPeek(FOR) {
		return nil
	}
	if !p.expectPeek(IDENT) {
		return nil
	}
	stmt.Condition = p.curToken().Literal
	if !p.expectPeek(SEMICOLON) {
		return nil
	}
	return stmt
}

func (p *Parser) parseAlertStatement() *AlertStatement {
	stmt := &AlertStatement{Token: p.curToken(), Severity: "info"}
	p.nextToken()
	stmt.Message = p.parseExpression(LOWEST)
	if p.err != nil {
		return nil
	}

	if p.peekTokenIs(SEVERITY) {
		p.nextToken()
		if !p.expectPeek(COLON) {
			return nil
		}
		if !p.expectPeek(IDENT) {
			return nil
		}
		level := p.curToken().Literal
		if !severities[level] {
			p.failAt(p.curToken(), "unknown severity %q (expected info, warning, high, or critical)", level)
			return nil
		}
		stmt.Severity = level
	}

	if !p.expectPeek(SEMICOLON) {
		return nil
	}
	return stmt
}

func (p *Parser) parseReturnStatement() *ReturnStatement {
	stmt := &ReturnStatement{Token: p.curToken()}
	if p.peekTokenIs(SEMICOLON) {
		p.nextToken()
		return stmt
	}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	if p.err != nil {
		return nil
	}
	if !p.expectPeek(SEMICOLON) {
		return nil
	}
	return stmt
}

func (p *Parser) parseExpressionStatement() *ExpressionStatement {
	stmt := &ExpressionStatement{Token: p.curToken()}
	stmt.Expression = p.parseExpression(LOWEST)
	if p.err != nil {
		return nil
	}
	if !p.expectPeek(SEMICOLON) {
		return nil
	}
	return stmt
}

// parseDottedName joins a chain of identifiers around dots into a single
// path such as "p.lactate". The current token must be the first
// identifier; it ends on the last one.
func (p *Parser) parseDottedName() string {
	name := p.curToken().Literal
	for p.peekTokenIs(DOT) {
		p.nextToken()
		if !p.expectPeek(IDENT) {
			return ""
		}
		name += "." + p.curToken().Literal
	}
	return name
}

func (p *Parser) parseExpression(precedence int) Expression {
	prefix := p.prefixParseFns[p.curToken().Type]
	if prefix == nil {
		p.failAt(p.curToken(), "unexpected token %s in expression", p.curToken().Type)
		return nil
	}
	leftExp := prefix()

	for p.err == nil && !p.peekTokenIs(SEMICOLON) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken().Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()
		leftExp = infix(leftExp)
	}

	return leftExp
}

func (p *Parser) parseIdentifier() Expression {
	// Distinguish a constructor body from a code block: an identifier
	// followed by '{' is a constructor only when the brace introduces a
	// "field:" pair.
	if p.peekTokenIs(LBRACE) && p.tokenAt(2).Type == IDENT && p.tokenAt(3).Type == COLON {
		return p.parseConstructorExpression()
	}
	return &Identifier{Token: p.curToken(), Value: p.curToken().Literal}
}

func (p *Parser) parseConstructorExpression() Expression {
	ce := &ConstructorExpression{Token: p.curToken(), TypeName: p.curToken().Literal}
	p.nextToken() // the '{'

	for !p.peekTokenIs(RBRACE) {
		if p.peekTokenIs(EOF) {
			p.failAt(p.curToken(), "unbalanced braces in %s constructor", ce.TypeName)
			return nil
		}
		if !p.expectPeek(IDENT) {
			return nil
		}
		field := &ConstructorField{Name: p.curToken().Literal}
		if !p.expectPeek(COLON) {
			return nil
		}
		p.nextToken()
		field.Value = p.parseExpression(LOWEST)
		if p.err != nil {
			return nil
		}
		ce.Fields = append(ce.Fields, field)
		if p.peekTokenIs(COMMA) {
			p.nextToken()
		}
	}

	p.nextToken() // the '}'
	return ce
}

func (p *Parser) parseNumberLiteral() Expression {
	tok := p.curToken()
	return &NumberLiteral{Token: tok, Value: tok.Value, Unit: tok.Unit}
}

func (p *Parser) parseStringLiteral() Expression {
	return &StringLiteral{Token: p.curToken(), Value: p.curToken().Literal}
}

func (p *Parser) parseBooleanLiteral() Expression {
	return &BooleanLiteral{Token: p.curToken(), Value: p.curTokenIs(TRUE)}
}

func (p *Parser) parseNullLiteral() Expression {
	return &NullLiteral{Token: p.curToken()}
}

func (p *Parser) parsePrefixExpression() Expression {
	expression := &PrefixExpression{
		Token:    p.curToken(),
		Operator: p.curToken().Literal,
	}
	p.nextToken()
	expression.Right = p.parseExpression(PREFIX)
	return expression
}

func (p *Parser) parseInfixExpression(left Expression) Expression {
	expression := &InfixExpression{
		Token:    p.curToken(),
		Left:     left,
		Operator: p.curToken().Literal,
	}
	precedence := p.curPrecedence()
	p.nextToken()
	expression.Right = p.parseExpression(precedence)
	return expression
}

func (p *Parser) parseGroupedExpression() Expression {
	p.nextToken()
	exp := p.parseExpression(LOWEST)
	if !p.expectPeek(RPAREN) {
		return nil
	}
	return exp
}

func (p *Parser) parseListLiteral() Expression {
	list := &ListLiteral{Token: p.curToken()}
	list.Elements = p.parseExpressionList(RBRACKET)
	return list
}

func (p *Parser) parseCallExpression(fn Expression) Expression {
	exp := &CallExpression{Token: p.curToken(), Function: fn}
	exp.Arguments = p.parseExpressionList(RPAREN)
	return exp
}

func (p *Parser) parseMemberExpression(left Expression) Expression {
	exp := &MemberExpression{Token: p.curToken(), Object: left}
	if !p.expectPeek(IDENT) {
		return nil
	}
	exp.Member = p.curToken().Literal
	return exp
}

func (p *Parser) parseIndexExpression(left Expression) Expression {
	exp := &IndexExpression{Token: p.curToken(), Left: left}
	p.nextToken()
	exp.Index = p.parseExpression(LOWEST)
	if p.err != nil {
		return nil
	}
	if !p.expectPeek(RBRACKET) {
		return nil
	}
	return exp
}

func (p *Parser) parseExpressionList(end TokenType) []Expression {
	var args []Expression

	if p.peekTokenIs(end) {
		p.nextToken()
		return args
	}

	p.nextToken()
	args = append(args, p.parseExpression(LOWEST))

	for p.err == nil && p.peekTokenIs(COMMA) {
		p.nextToken()
		p.nextToken()
		args = append(args, p.parseExpression(LOWEST))
	}

	if !p.expectPeek(end) {
		return nil
	}
	return args
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken().Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken().Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) registerPrefix(tokenType TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

func (p *Parser) registerInfix(tokenType TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}
