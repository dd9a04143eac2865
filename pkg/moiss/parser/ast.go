package parser

import (
	"bytes"
	"strings"
)

type Node interface {
	TokenLiteral() string
	String() string
}

// Statement nodes appear inside protocol, function, and block bodies.
type Statement interface {
	Node
	statementNode()
}

// Expression nodes produce a value when evaluated.
type Expression interface {
	Node
	expressionNode()
}

// Declaration nodes appear at the top level of a program.
type Declaration interface {
	Node
	declarationNode()
}

// Program is an ordered sequence of imports, type declarations, function
// declarations, and protocols, preserved in source order.
type Program struct {
	Declarations []Declaration
}

func (p *Program) TokenLiteral() string {
	if len(p.Declarations) > 0 {
		return p.Declarations[0].TokenLiteral()
	}
	return ""
}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, d := range p.Declarations {
		out.WriteString(d.String())
	}
	return out.String()
}

type ImportDecl struct {
	Token Token // the 'import' token
	Path  string
}

func (id *ImportDecl) declarationNode()     {}
func (id *ImportDecl) TokenLiteral() string { return id.Token.Literal }
func (id *ImportDecl) String() string       { return "import " + id.Path + ";" }

type FieldDecl struct {
	Name     string
	TypeName string
	Default  Expression
}

type TypeDecl struct {
	Token  Token // the 'type' token
	Name   string
	Parent string // extends clause, empty when absent
	Fields []*FieldDecl
}

func (td *TypeDecl) declarationNode()     {}
func (td *TypeDecl) TokenLiteral() string { return td.Token.Literal }
func (td *TypeDecl) String() string {
	var out bytes.Buffer
	out.WriteString("type " + td.Name)
	if td.Parent != "" {
		out.WriteString(" extends " + td.Parent)
	}
	out.WriteString(" { ")
	for _, f := range td.Fields {
		out.WriteString(f.Name + ": " + f.TypeName)
		if f.Default != nil {
			out.WriteString(" = " + f.Default.String())
		}
		out.WriteString("; ")
	}
	out.WriteString("}")
	return out.String()
}

type Param struct {
	Name     string
	TypeName string // optional annotation, empty when absent
}

type FunctionDecl struct {
	Token      Token // the 'function' token
	Name       string
	Params     []*Param
	ReturnType string // optional annotation, empty when absent
	Body       *BlockStatement
}

func (fd *FunctionDecl) declarationNode()     {}
func (fd *FunctionDecl) TokenLiteral() string { return fd.Token.Literal }
func (fd *FunctionDecl) String() string {
	var params []string
	for _, p := range fd.Params {
		s := p.Name
		if p.TypeName != "" {
			s += ": " + p.TypeName
		}
		params = append(params, s)
	}
	out := "function " + fd.Name + "(" + strings.Join(params, ", ") + ")"
	if fd.ReturnType != "" {
		out += " -> " + fd.ReturnType
	}
	return out + " " + fd.Body.String()
}

type InputDecl struct {
	Token    Token // the 'input' token
	TypeName string
	Name     string
}

type ProtocolDecl struct {
	Token Token // the 'protocol' token
	Name  string
	Input *InputDecl // nil when the protocol declares no input
	Body  []Statement
}

func (pd *ProtocolDecl) declarationNode()     {}
func (pd *ProtocolDecl) TokenLiteral() string { return pd.Token.Literal }
func (pd *ProtocolDecl) String() string {
	var out bytes.Buffer
	out.WriteString("protocol " + pd.Name + " { ")
	if pd.Input != nil {
		out.WriteString("input: " + pd.Input.TypeName + " " + pd.Input.Name + "; ")
	}
	for _, s := range pd.Body {
		out.WriteString(s.String())
	}
	out.WriteString("}")
	return out.String()
}

type BlockStatement struct {
	Token      Token // the '{' token
	Statements []Statement
}

func (bs *BlockStatement) statementNode()       {}
func (bs *BlockStatement) TokenLiteral() string { return bs.Token.Literal }
func (bs *BlockStatement) String() string {
	var out bytes.Buffer
	out.WriteString("{ ")
	for _, s := range bs.Statements {
		out.WriteString(s.String())
	}
	out.WriteString("}")
	return out.String()
}

type LetStatement struct {
	Token    Token // the 'let' token
	Name     string
	TypeName string // optional annotation, empty when absent
	Value    Expression
}

func (ls *LetStatement) statementNode()       {}
func (ls *LetStatement) TokenLiteral() string { return ls.Token.Literal }
func (ls *LetStatement) String() string {
	out := "let " + ls.Name
	if ls.TypeName != "" {
		out += ": " + ls.TypeName
	}
	return out + " = " + ls.Value.String() + "; "
}

type IfStatement struct {
	Token       Token // the 'if' token
	Condition   Expression
	Consequence *BlockStatement
	Alternative *BlockStatement // nil when no else branch
}

func (is *IfStatement) statementNode()       {}
func (is *IfStatement) TokenLiteral() string { return is.Token.Literal }
func (is *IfStatement) String() string {
	out := "if " + is.Condition.String() + " " + is.Consequence.String()
	if is.Alternative != nil {
		out += " else " + is.Alternative.String()
	}
	return out
}

type WhileStatement struct {
	Token     Token // the 'while' token
	Condition Expression
	Body      *BlockStatement
}

func (ws *WhileStatement) statementNode()       {}
func (ws *WhileStatement) TokenLiteral() string { return ws.Token.Literal }
func (ws *WhileStatement) String() string {
	return "while " + ws.Condition.String() + " " + ws.Body.String()
}

type ForEachStatement struct {
	Token    Token // the 'for' token
	Var      string
	Iterable Expression
	Body     *BlockStatement
}

func (fs *ForEachStatement) statementNode()       {}
func (fs *ForEachStatement) TokenLiteral() string { return fs.Token.Literal }
func (fs *ForEachStatement) String() string {
	return "for " + fs.Var + " in " + fs.Iterable.String() + " " + fs.Body.String()
}

// TrackStatement records one sample of a patient quantity, optionally
// feeding the KAE trend estimator.
type TrackStatement struct {
	Token    Token  // the 'track' token
	Target   string // fully qualified dotted path, e.g. "p.lactate"
	UsingKAE bool
}

func (ts *TrackStatement) statementNode()       {}
func (ts *TrackStatement) TokenLiteral() string { return ts.Token.Literal }
func (ts *TrackStatement) String() string {
	out := "track " + ts.Target
	if ts.UsingKAE {
		out += " using KAE"
	}
	return out + "; "
}

type AdministerStatement struct {
	Token Token // the 'administer' token
	Drug  string
	Dose  Expression
}

func (as *AdministerStatement) statementNode()       {}
func (as *AdministerStatement) TokenLiteral() string { return as.Token.Literal }
func (as *AdministerStatement) String() string {
	return "administer " + as.Drug + " dose: " + as.Dose.String() + "; "
}

type AssessStatement struct {
	Token     Token  // the 'assess' token
	Target    string // dotted path of the assessed record
	Condition string
}

func (as *AssessStatement) statementNode()       {}
func (as *AssessStatement) TokenLiteral() string { return as.Token.Literal }
func (as *AssessStatement) String() string {
	return "assess " + as.Target + " for " + as.Condition + "; "
}

type AlertStatement struct {
	Token    Token // the 'alert' token
	Message  Expression
	Severity string
}

func (as *AlertStatement) statementNode()       {}
func (as *AlertStatement) TokenLiteral() string { return as.Token.Literal }
func (as *AlertStatement) String() string {
	return "alert " + as.Message.String() + " severity: " + as.Severity + "; "
}

type ReturnStatement struct {
	Token Token      // the 'return' token
	Value Expression // nil for a bare return
}

func (rs *ReturnStatement) statementNode()       {}
func (rs *ReturnStatement) TokenLiteral() string { return rs.Token.Literal }
func (rs *ReturnStatement) String() string {
	if rs.Value == nil {
		return "return; "
	}
	return "return " + rs.Value.String() + "; "
}

type ExpressionStatement struct {
	Token      Token // the first token of the expression
	Expression Expression
}

func (es *ExpressionStatement) statementNode()       {}
func (es *ExpressionStatement) TokenLiteral() string { return es.Token.Literal }
func (es *ExpressionStatement) String() string {
	return es.Expression.String() + "; "
}

type Identifier struct {
	Token Token
	Value string
}

func (i *Identifier) expressionNode()      {}
func (i *Identifier) TokenLiteral() string { return i.Token.Literal }
func (i *Identifier) String() string       { return i.Value }

// NumberLiteral is a floating-point literal, optionally carrying the unit
// tag the lexer attached to it.
type NumberLiteral struct {
	Token Token
	Value float64
	Unit  string
}

func (nl *NumberLiteral) expressionNode()      {}
func (nl *NumberLiteral) TokenLiteral() string { return nl.Token.Literal }
func (nl *NumberLiteral) String() string {
	if nl.Unit != "" {
		return nl.Token.Literal + " " + nl.Unit
	}
	return nl.Token.Literal
}

type StringLiteral struct {
	Token Token
	Value string
}

func (sl *StringLiteral) expressionNode()      {}
func (sl *StringLiteral) TokenLiteral() string { return sl.Token.Literal }
func (sl *StringLiteral) String() string       { return `"` + sl.Value + `"` }

type BooleanLiteral struct {
	Token Token
	Value bool
}

func (bl *BooleanLiteral) expressionNode()      {}
func (bl *BooleanLiteral) TokenLiteral() string { return bl.Token.Literal }
func (bl *BooleanLiteral) String() string       { return bl.Token.Literal }

type NullLiteral struct {
	Token Token
}

func (nl *NullLiteral) expressionNode()      {}
func (nl *NullLiteral) TokenLiteral() string { return nl.Token.Literal }
func (nl *NullLiteral) String() string       { return "null" }

type ListLiteral struct {
	Token    Token // the '[' token
	Elements []Expression
}

func (ll *ListLiteral) expressionNode()      {}
func (ll *ListLiteral) TokenLiteral() string { return ll.Token.Literal }
func (ll *ListLiteral) String() string {
	var elems []string
	for _, e := range ll.Elements {
		elems = append(elems, e.String())
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

type PrefixExpression struct {
	Token    Token // the prefix token ('not' or '-')
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode()      {}
func (pe *PrefixExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PrefixExpression) String() string {
	if pe.Operator == "not" {
		return "(not " + pe.Right.String() + ")"
	}
	return "(" + pe.Operator + pe.Right.String() + ")"
}

type InfixExpression struct {
	Token    Token // the operator token
	Left     Expression
	Operator string
	Right    Expression
}

func (ie *InfixExpression) expressionNode()      {}
func (ie *InfixExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *InfixExpression) String() string {
	return "(" + ie.Left.String() + " " + ie.Operator + " " + ie.Right.String() + ")"
}

// MemberExpression is a field read such as p.bp. Chained members nest:
// med.scores.qsofa parses as ((med.scores).qsofa).
type MemberExpression struct {
	Token  Token // the '.' token
	Object Expression
	Member string
}

func (me *MemberExpression) expressionNode()      {}
func (me *MemberExpression) TokenLiteral() string { return me.Token.Literal }
func (me *MemberExpression) String() string {
	return me.Object.String() + "." + me.Member
}

type IndexExpression struct {
	Token Token // the '[' token
	Left  Expression
	Index Expression
}

func (ie *IndexExpression) expressionNode()      {}
func (ie *IndexExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *IndexExpression) String() string {
	return "(" + ie.Left.String() + "[" + ie.Index.String() + "])"
}

type CallExpression struct {
	Token     Token // the '(' token
	Function  Expression
	Arguments []Expression
}

func (ce *CallExpression) expressionNode()      {}
func (ce *CallExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *CallExpression) String() string {
	var args []string
	for _, a := range ce.Arguments {
		args = append(args, a.String())
	}
	return ce.Function.String() + "(" + strings.Join(args, ", ") + ")"
}

type ConstructorField struct {
	Name  string
	Value Expression
}

// ConstructorExpression instantiates a declared type:
// Culture { organism: "E_coli", mic: 0.5 }
type ConstructorExpression struct {
	Token    Token // the type name token
	TypeName string
	Fields   []*ConstructorField
}

func (ce *ConstructorExpression) expressionNode()      {}
func (ce *ConstructorExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *ConstructorExpression) String() string {
	var fields []string
	for _, f := range ce.Fields {
		fields = append(fields, f.Name+": "+f.Value.String())
	}
	return ce.TypeName + " { " + strings.Join(fields, ", ") + " }"
}
