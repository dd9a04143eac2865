package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/moisslang/moiss/pkg/moiss/units"
)

type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF

	// Literals
	IDENT  // variable names, field names, drug names
	NUMBER // all numeric literals are floating point
	STRING // string literals

	// Keywords
	PROTOCOL
	FUNCTION
	IMPORT
	INPUT
	TYPE
	EXTENDS
	TRACK
	USING
	KAE
	ASSESS
	FOR
	IN
	ADMINISTER
	DOSE
	IF
	ELSE
	WHILE
	RETURN
	LET
	ALERT
	SEVERITY
	AND
	OR
	NOT
	TRUE
	FALSE
	NULL

	// Operators
	ASSIGN   // =
	EQ       // ==
	NOT_EQ   // !=
	LT       // <
	GT       // >
	LTE      // <=
	GTE      // >=
	PLUS     // +
	MINUS    // -
	ASTERISK // *
	SLASH    // /
	ARROW    // ->

	// Delimiters
	COMMA     // ,
	SEMICOLON // ;
	COLON     // :
	DOT       // .

	LPAREN   // (
	RPAREN   // )
	LBRACE   // {
	RBRACE   // }
	LBRACKET // [
	RBRACKET // ]
)

// Token is one lexical unit of a MOISS source text. NUMBER tokens carry
// the parsed magnitude in Value and, when the literal was immediately
// followed by a registered unit suffix, that suffix in Unit.
type Token struct {
	Type    TokenType
	Literal string
	Value   float64
	Unit    string
	Line    int
	Column  int
}

// LexError reports an unrecognized character or unterminated string with
// its source position.
type LexError struct {
	Msg    string
	Line   int
	Column int
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

var keywords = map[string]TokenType{
	"protocol":   PROTOCOL,
	"function":   FUNCTION,
	"import":     IMPORT,
	"input":      INPUT,
	"type":       TYPE,
	"extends":    EXTENDS,
	"track":      TRACK,
	"using":      USING,
	"KAE":        KAE,
	"assess":     ASSESS,
	"for":        FOR,
	"in":         IN,
	"administer": ADMINISTER,
	"dose":       DOSE,
	"if":         IF,
	"else":       ELSE,
	"while":      WHILE,
	"return":     RETURN,
	"let":        LET,
	"alert":      ALERT,
	"severity":   SEVERITY,
	"and":        AND,
	"or":         OR,
	"not":        NOT,
	"true":       TRUE,
	"false":      FALSE,
	"null":       NULL,
}

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int
	column       int
	err          *LexError
}

func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

// Tokenize scans the whole source into a token slice, ending with EOF.
// The first lexical failure aborts the scan.
func Tokenize(source string) ([]Token, error) {
	l := NewLexer(source)
	var tokens []Token
	for {
		tok := l.NextToken()
		if l.err != nil {
			return nil, l.err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}

// Err returns the lexical error encountered so far, if any.
func (l *Lexer) Err() *LexError { return l.err }

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	if l.ch == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) NextToken() Token {
	var tok Token

	l.skipWhitespaceAndComments()

	tok.Line = l.line
	tok.Column = l.column

	switch l.ch {
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = EQ, "=="
		} else {
			tok = l.newToken(ASSIGN, tok)
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = NOT_EQ, "!="
		} else {
			l.fail(fmt.Sprintf("unexpected character %q", l.ch), tok)
			return tok
		}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = LTE, "<="
		} else {
			tok = l.newToken(LT, tok)
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = GTE, ">="
		} else {
			tok = l.newToken(GT, tok)
		}
	case '-':
		if l.peekChar() == '>' {
			l.readChar()
			tok.Type, tok.Literal = ARROW, "->"
		} else {
			tok = l.newToken(MINUS, tok)
		}
	case '+':
		tok = l.newToken(PLUS, tok)
	case '*':
		tok = l.newToken(ASTERISK, tok)
	case '/':
		tok = l.newToken(SLASH, tok)
	case ',':
		tok = l.newToken(COMMA, tok)
	case ';':
		tok = l.newToken(SEMICOLON, tok)
	case ':':
		tok = l.newToken(COLON, tok)
	case '.':
		tok = l.newToken(DOT, tok)
	case '(':
		tok = l.newToken(LPAREN, tok)
	case ')':
		tok = l.newToken(RPAREN, tok)
	case '{':
		tok = l.newToken(LBRACE, tok)
	case '}':
		tok = l.newToken(RBRACE, tok)
	case '[':
		tok = l.newToken(LBRACKET, tok)
	case ']':
		tok = l.newToken(RBRACKET, tok)
	case '"':
		str, ok := l.readString()
		if !ok {
			l.fail("unterminated string literal", tok)
			return tok
		}
		tok.Type = STRING
		tok.Literal = str
	case 0:
		tok.Type = EOF
		tok.Literal = ""
		return tok
	default:
		if isLetter(l.ch) {
			tok.Literal = l.readIdentifier()
			tok.Type = lookupIdent(tok.Literal)
			return tok
		}
		if isDigit(l.ch) {
			return l.readNumber(tok)
		}
		l.fail(fmt.Sprintf("unexpected character %q", l.ch), tok)
		return tok
	}

	l.readChar()
	return tok
}

func (l *Lexer) newToken(tokenType TokenType, tok Token) Token {
	tok.Type = tokenType
	tok.Literal = string(l.ch)
	return tok
}

func (l *Lexer) fail(msg string, tok Token) {
	l.err = &LexError{Msg: msg, Line: tok.Line, Column: tok.Column}
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readNumber scans a numeric literal and greedily attaches a following
// registered unit suffix, choosing the longest matching compound tag, so
// "0.1 mcg/kg/min" lexes as a single quantity token.
func (l *Lexer) readNumber(tok Token) Token {
	position := l.position
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	tok.Type = NUMBER
	tok.Literal = l.input[position:l.position]
	// The scanner only admits digit sequences with at most one interior
	// dot, so parsing cannot fail.
	tok.Value, _ = strconv.ParseFloat(tok.Literal, 64)
	tok.Unit = l.maybeReadUnit()
	return tok
}

// maybeReadUnit consumes a unit suffix after a number when one follows,
// extending it across '/' separators only while the longer compound tag
// stays registered. The lexer state is restored when no unit matches.
func (l *Lexer) maybeReadUnit() string {
	save := *l
	l.skipWhitespaceAndComments()
	if !isLetter(l.ch) {
		*l = save
		return ""
	}
	word := l.readIdentifier()
	if !units.IsTag(word) {
		*l = save
		return ""
	}
	unit := word
	for l.ch == '/' {
		mark := *l
		l.readChar()
		if !isLetter(l.ch) {
			*l = mark
			break
		}
		next := l.readIdentifier()
		if !units.IsTag(unit + "/" + next) {
			*l = mark
			break
		}
		unit = unit + "/" + next
	}
	return unit
}

func (l *Lexer) readString() (string, bool) {
	var out strings.Builder
	for {
		l.readChar()
		switch l.ch {
		case '"':
			l.readChar()
			return out.String(), true
		case 0:
			return "", false
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			case '"':
				out.WriteByte('"')
			case '\\':
				out.WriteByte('\\')
			case 0:
				return "", false
			default:
				out.WriteByte(l.ch)
			}
		default:
			out.WriteByte(l.ch)
		}
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func lookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

var tokenNames = map[TokenType]string{
	ILLEGAL:    "ILLEGAL",
	EOF:        "EOF",
	IDENT:      "IDENT",
	NUMBER:     "NUMBER",
	STRING:     "STRING",
	PROTOCOL:   "protocol",
	FUNCTION:   "function",
	IMPORT:     "import",
	INPUT:      "input",
	TYPE:       "type",
	EXTENDS:    "extends",
	TRACK:      "track",
	USING:      "using",
	KAE:        "KAE",
	ASSESS:     "assess",
	FOR:        "for",
	IN:         "in",
	ADMINISTER: "administer",
	DOSE:       "dose",
	IF:         "if",
	ELSE:       "else",
	WHILE:      "while",
	RETURN:     "return",
	LET:        "let",
	ALERT:      "alert",
	SEVERITY:   "severity",
	AND:        "and",
	OR:         "or",
	NOT:        "not",
	TRUE:       "true",
	FALSE:      "false",
	NULL:       "null",
	ASSIGN:     "=",
	EQ:         "==",
	NOT_EQ:     "!=",
	LT:         "<",
	GT:         ">",
	LTE:        "<=",
	GTE:        ">=",
	PLUS:       "+",
	MINUS:      "-",
	ASTERISK:   "*",
	SLASH:      "/",
	ARROW:      "->",
	COMMA:      ",",
	SEMICOLON:  ";",
	COLON:      ":",
	DOT:        ".",
	LPAREN:     "(",
	RPAREN:     ")",
	LBRACE:     "{",
	RBRACE:     "}",
	LBRACKET:   "[",
	RBRACKET:   "]",
}
