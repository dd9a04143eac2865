package parser

import (
	"testing"
)

func TestNextTokenBasics(t *testing.T) {
	input := `protocol Check {
    input: Patient p;
    let x = 5;
    if x >= 2 { alert "hi" severity: info; }
}`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{PROTOCOL, "protocol"},
		{IDENT, "Check"},
		{LBRACE, "{"},
		{INPUT, "input"},
		{COLON, ":"},
		{IDENT, "Patient"},
		{IDENT, "p"},
		{SEMICOLON, ";"},
		{LET, "let"},
		{IDENT, "x"},
		{ASSIGN, "="},
		{NUMBER, "5"},
		{SEMICOLON, ";"},
		{IF, "if"},
		{IDENT, "x"},
		{GTE, ">="},
		{NUMBER, "2"},
		{LBRACE, "{"},
		{ALERT, "alert"},
		{STRING, "hi"},
		{SEVERITY, "severity"},
		{COLON, ":"},
		{IDENT, "info"},
		{SEMICOLON, ";"},
		{RBRACE, "}"},
		{RBRACE, "}"},
		{EOF, ""},
	}

	l := NewLexer(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d]: wrong type. expected=%s, got=%s (%q)", i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d]: wrong literal. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestUnitSuffixes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		value float64
		unit  string
	}{
		{"simple mass", "5 mg", 5, "mg"},
		{"no space", "5mg", 5, "mg"},
		{"pressure", "65 mmHg", 65, "mmHg"},
		{"compound rate", "0.1 mcg/kg/min", 0.1, "mcg/kg/min"},
		{"weight dose", "15.0 mg/kg", 15, "mg/kg"},
		{"concentration", "2.0 mmol/L", 2, "mmol/L"},
		{"time", "30 min", 30, "min"},
		{"plain number", "42", 42, ""},
		{"decimal", "3.14", 3.14, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Tokenize(tt.input)
			if err != nil {
				t.Fatalf("Tokenize(%q): %v", tt.input, err)
			}
			if len(tokens) != 2 {
				t.Fatalf("expected single NUMBER + EOF, got %d tokens", len(tokens))
			}
			tok := tokens[0]
			if tok.Type != NUMBER {
				t.Fatalf("expected NUMBER, got %s", tok.Type)
			}
			if tok.Value != tt.value {
				t.Errorf("value: expected %g, got %g", tt.value, tok.Value)
			}
			if tok.Unit != tt.unit {
				t.Errorf("unit: expected %q, got %q", tt.unit, tok.Unit)
			}
		})
	}
}

func TestUnitDoesNotSwallowDivision(t *testing.T) {
	// "10 / 2" must stay three tokens: the slash is arithmetic, not a
	// compound unit separator.
	tokens, err := Tokenize("10 / 2")
	if err != nil {
		t.Fatal(err)
	}
	want := []TokenType{NUMBER, SLASH, NUMBER, EOF}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(tokens))
	}
	for i, w := range want {
		if tokens[i].Type != w {
			t.Errorf("token %d: expected %s, got %s", i, w, tokens[i].Type)
		}
	}

	// With a united left operand: "5 mg / 2" keeps "mg" on the number
	// but leaves the division alone, because "mg/..." only extends
	// while the longer compound stays registered and there is no space
	// inside a compound tag.
	tokens, err = Tokenize("5 mg / 2")
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Unit != "mg" {
		t.Errorf("expected unit mg, got %q", tokens[0].Unit)
	}
	if tokens[1].Type != SLASH {
		t.Errorf("expected SLASH after quantity, got %s", tokens[1].Type)
	}
}

func TestIdentifierNotAUnit(t *testing.T) {
	// A following word that is not a registered tag stays a separate
	// identifier token.
	tokens, err := Tokenize("let t = 10\ntrack p;")
	if err != nil {
		t.Fatal(err)
	}
	var sawTrack bool
	for _, tok := range tokens {
		if tok.Type == NUMBER && tok.Unit != "" {
			t.Errorf("number absorbed %q as a unit", tok.Unit)
		}
		if tok.Type == TRACK {
			sawTrack = true
		}
	}
	if !sawTrack {
		t.Error("track keyword lost")
	}
}

func TestStringEscapes(t *testing.T) {
	tokens, err := Tokenize(`"line\none\ttab \"quoted\" back\\slash"`)
	if err != nil {
		t.Fatal(err)
	}
	got := tokens[0].Literal
	want := "line\none\ttab \"quoted\" back\\slash"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCommentsSkipped(t *testing.T) {
	tokens, err := Tokenize("let x = 1; // trailing comment\n// full line\nlet y = 2;")
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, tok := range tokens {
		if tok.Type == LET {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 let tokens, got %d", count)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated string", `alert "never closed`},
		{"unknown character", "let x = 5 @ 3;"},
		{"bare bang", "if x ! y {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			if err == nil {
				t.Fatalf("Tokenize(%q): expected error", tt.input)
			}
			lexErr, ok := err.(*LexError)
			if !ok {
				t.Fatalf("expected *LexError, got %T", err)
			}
			if lexErr.Line < 1 {
				t.Errorf("missing line position in %v", lexErr)
			}
		})
	}
}

func TestPositionTracking(t *testing.T) {
	tokens, err := Tokenize("let x = 1;\nlet y = 2;")
	if err != nil {
		t.Fatal(err)
	}
	// The second let starts on line 2.
	var second *Token
	count := 0
	for i := range tokens {
		if tokens[i].Type == LET {
			count++
			if count == 2 {
				second = &tokens[i]
			}
		}
	}
	if second == nil || second.Line != 2 {
		t.Fatalf("expected second let on line 2, got %+v", second)
	}
}

func TestArrowAndMinus(t *testing.T) {
	tokens, err := Tokenize("-> - 5")
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Type != ARROW {
		t.Errorf("expected ARROW, got %s", tokens[0].Type)
	}
	if tokens[1].Type != MINUS {
		t.Errorf("expected MINUS, got %s", tokens[1].Type)
	}
}

func TestKAEIsRecognized(t *testing.T) {
	tokens, err := Tokenize("track p.hr using KAE;")
	if err != nil {
		t.Fatal(err)
	}
	var sawKAE bool
	for _, tok := range tokens {
		if tok.Type == KAE {
			sawKAE = true
		}
	}
	if !sawKAE {
		t.Error("KAE keyword not recognized")
	}
}
