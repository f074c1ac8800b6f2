// Package scanner implements the line-buffered lexer.
//
// A Scanner pulls one physical line at a time from a host-supplied
// GetLine callback, transparently splices `_`-terminated continuation
// lines into a single logical line, and hands tokens to the compiler
// with one-token pushback (SaveToken). Comments (REM or ') run to the
// end of the line and never reach the parser.
package scanner

import (
	"strings"

	"github.com/pkg/errors"
)

// GetLineFunc fills in the next physical line of source (without a
// trailing newline) from whatever the host considers "the next line" —
// REPL stdin, a file, or a paste buffer. It returns false at EOF. This
// is the Go shape of the original's getLine(cookie, buf, len,
// *lineNumber) host contract; the line-number side channel is exposed
// as LineNumber.
type GetLineFunc func() (line string, ok bool)

// Scanner is a line-buffered lexer with one-token pushback.
type Scanner struct {
	getLine    GetLineFunc
	line       string
	pos        int
	lineNumber int
	saved      *Token
	atEOF      bool
}

// New creates a Scanner that pulls physical lines from getLine.
func New(getLine GetLineFunc) *Scanner {
	return &Scanner{getLine: getLine}
}

// LineNumber returns the 1-based number of the physical line the
// scanner is currently positioned on (the last line fetched via
// GetLine, after following any continuations).
func (s *Scanner) LineNumber() int { return s.lineNumber }

// GetLine obtains the next logical source line from the host, splicing
// in continuation lines (`_` at end of line) until one without a
// trailing continuation marker is read. Returns false at EOF.
func (s *Scanner) GetLine() bool {
	var b strings.Builder
	for {
		raw, ok := s.getLine()
		if !ok {
			if b.Len() == 0 {
				s.atEOF = true
				return false
			}
			break
		}
		s.lineNumber++
		raw = strings.TrimRight(raw, "\r\n")
		trimmed := strings.TrimRight(raw, " \t")
		if strings.HasSuffix(trimmed, "_") {
			b.WriteString(strings.TrimSuffix(trimmed, "_"))
			b.WriteByte(' ')
			continue
		}
		b.WriteString(raw)
		break
	}
	s.line = b.String()
	s.pos = 0
	s.saved = nil
	return true
}

// SaveToken pushes tok back; the next GetToken call returns it again
// instead of scanning further.
func (s *Scanner) SaveToken(tok Token) {
	s.saved = &tok
}

// GetToken returns the next token, honouring a pending SaveToken.
func (s *Scanner) GetToken() (Token, error) {
	if s.saved != nil {
		tok := *s.saved
		s.saved = nil
		return tok, nil
	}
	return s.scan()
}

func (s *Scanner) scan() (Token, error) {
	s.skipSpaceAndComments()
	if s.pos >= len(s.line) {
		return Token{Type: TEOL, Line: s.lineNumber}, nil
	}
	ch := s.line[s.pos]
	switch {
	case isDigit(ch):
		return s.scanNumber()
	case isIdentStart(ch):
		return s.scanIdentifier()
	case ch == '"':
		return s.scanString()
	default:
		return s.scanOperator()
	}
}

func (s *Scanner) skipSpaceAndComments() {
	for s.pos < len(s.line) {
		ch := s.line[s.pos]
		if ch == ' ' || ch == '\t' {
			s.pos++
			continue
		}
		if ch == '\'' {
			s.pos = len(s.line)
			return
		}
		if s.matchesWord("REM") {
			s.pos = len(s.line)
			return
		}
		break
	}
}

func (s *Scanner) matchesWord(word string) bool {
	n := len(word)
	if s.pos+n > len(s.line) {
		return false
	}
	if !strings.EqualFold(s.line[s.pos:s.pos+n], word) {
		return false
	}
	if s.pos+n < len(s.line) && isIdentPart(s.line[s.pos+n]) {
		return false
	}
	return true
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func (s *Scanner) scanIdentifier() (Token, error) {
	start := s.pos
	for s.pos < len(s.line) && isIdentPart(s.line[s.pos]) {
		s.pos++
	}
	if s.pos < len(s.line) && s.line[s.pos] == '$' {
		s.pos++
	}
	name := s.line[start:s.pos]
	if IsReserved(name) {
		return Token{Type: TReserved, Literal: strings.ToUpper(name), Line: s.lineNumber}, nil
	}
	return Token{Type: TIdentifier, Literal: name, Line: s.lineNumber}, nil
}

func (s *Scanner) scanString() (Token, error) {
	s.pos++ // opening quote
	start := s.pos
	for s.pos < len(s.line) && s.line[s.pos] != '"' {
		s.pos++
	}
	if s.pos >= len(s.line) {
		return Token{}, errors.Errorf("line %d: unterminated string literal", s.lineNumber)
	}
	lit := s.line[start:s.pos]
	s.pos++ // closing quote
	return Token{Type: TStringLiteral, Literal: lit, Line: s.lineNumber}, nil
}

func (s *Scanner) scanNumber() (Token, error) {
	start := s.pos
	for s.pos < len(s.line) && (isIdentPart(s.line[s.pos])) {
		s.pos++
	}
	text := s.line[start:s.pos]
	val, err := ParseInteger(text)
	if err != nil {
		return Token{}, errors.Wrapf(err, "line %d", s.lineNumber)
	}
	return Token{Type: TIntegerLiteral, IntValue: val, Line: s.lineNumber}, nil
}

// twoCharOperators lists the multi-character operator spellings the
// scanner recognises; single-character operators fall through to the
// default case below.
var twoCharOperators = []string{"<=", ">=", "<>"}

func (s *Scanner) scanOperator() (Token, error) {
	rest := s.line[s.pos:]
	for _, op := range twoCharOperators {
		if strings.HasPrefix(rest, op) {
			s.pos += len(op)
			return Token{Type: TOperator, Literal: op, Line: s.lineNumber}, nil
		}
	}
	ch := s.line[s.pos]
	s.pos++
	return Token{Type: TOperator, Literal: string(ch), Line: s.lineNumber}, nil
}
