package scanner

import "testing"

func lines(ls ...string) GetLineFunc {
	i := 0
	return func() (string, bool) {
		if i >= len(ls) {
			return "", false
		}
		l := ls[i]
		i++
		return l, true
	}
}

func TestIdentifierAndReservedWord(t *testing.T) {
	s := New(lines("PRINT count$"))
	if !s.GetLine() {
		t.Fatal("GetLine returned false")
	}
	tok, err := s.GetToken()
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.Type != TReserved || tok.Literal != "PRINT" {
		t.Errorf("got %+v, want reserved PRINT", tok)
	}
	tok, err = s.GetToken()
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.Type != TIdentifier || tok.Literal != "count$" {
		t.Errorf("got %+v, want identifier count$", tok)
	}
}

func TestSaveTokenPushback(t *testing.T) {
	s := New(lines("A B"))
	s.GetLine()
	first, _ := s.GetToken()
	s.SaveToken(first)
	replay, _ := s.GetToken()
	if replay != first {
		t.Errorf("replayed token %+v != original %+v", replay, first)
	}
	second, _ := s.GetToken()
	if second.Literal != "B" {
		t.Errorf("got %+v, want identifier B", second)
	}
}

func TestLineContinuation(t *testing.T) {
	s := New(lines("LET x = 1 + _", "2"))
	if !s.GetLine() {
		t.Fatal("GetLine returned false")
	}
	var got []string
	for {
		tok, err := s.GetToken()
		if err != nil {
			t.Fatalf("GetToken: %v", err)
		}
		if tok.Type == TEOL {
			break
		}
		if tok.Type == TIntegerLiteral {
			got = append(got, tok.Literal)
		}
	}
	tokCountCheck(t, s)
}

func tokCountCheck(t *testing.T, s *Scanner) {
	t.Helper()
	if s.LineNumber() != 2 {
		t.Errorf("LineNumber = %d, want 2 after following continuation", s.LineNumber())
	}
}

func TestCommentsStripped(t *testing.T) {
	s := New(lines("X = 1 ' trailing comment", "REM whole line is a comment", "Y = 2"))
	s.GetLine()
	var toks []Token
	for {
		tok, _ := s.GetToken()
		if tok.Type == TEOL {
			break
		}
		toks = append(toks, tok)
	}
	if len(toks) != 3 {
		t.Fatalf("got %d tokens before EOL, want 3 (X = 1), got %+v", len(toks), toks)
	}

	s.GetLine()
	tok, _ := s.GetToken()
	if tok.Type != TEOL {
		t.Errorf("REM-only line should yield immediate EOL, got %+v", tok)
	}

	s.GetLine()
	tok, _ = s.GetToken()
	if tok.Literal != "Y" {
		t.Errorf("got %+v, want identifier Y", tok)
	}
}

func TestStringLiteral(t *testing.T) {
	s := New(lines(`PRINT "Hello, World!"`))
	s.GetLine()
	s.GetToken() // PRINT
	tok, err := s.GetToken()
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.Type != TStringLiteral || tok.Literal != "Hello, World!" {
		t.Errorf("got %+v, want string literal Hello, World!", tok)
	}
}

func TestUnterminatedStringIsError(t *testing.T) {
	s := New(lines(`PRINT "oops`))
	s.GetLine()
	s.GetToken() // PRINT
	if _, err := s.GetToken(); err == nil {
		t.Fatal("expected error for unterminated string literal")
	}
}

func TestMultiCharOperators(t *testing.T) {
	s := New(lines("A <= B <> C >= D"))
	s.GetLine()
	var ops []string
	for {
		tok, _ := s.GetToken()
		if tok.Type == TEOL {
			break
		}
		if tok.Type == TOperator {
			ops = append(ops, tok.Literal)
		}
	}
	want := []string{"<=", "<>", ">="}
	if len(ops) != len(want) {
		t.Fatalf("got ops %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d: got %q, want %q", i, ops[i], want[i])
		}
	}
}

func TestNumericLiteralRadixes(t *testing.T) {
	cases := map[string]int32{
		"10":    10,
		"0x1f":  31,
		"0b101": 5,
		"017":   15,
		"1_000": 1000,
	}
	for text, want := range cases {
		got, err := ParseInteger(text)
		if err != nil {
			t.Errorf("ParseInteger(%q): %v", text, err)
			continue
		}
		if got != want {
			t.Errorf("ParseInteger(%q) = %d, want %d", text, got, want)
		}
	}
}

func TestParseSignedInteger(t *testing.T) {
	got, err := ParseSignedInteger("-0x10")
	if err != nil {
		t.Fatalf("ParseSignedInteger: %v", err)
	}
	if got != -16 {
		t.Errorf("got %d, want -16", got)
	}
}
