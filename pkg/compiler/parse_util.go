package compiler

import "github.com/dbetz/picobasic/pkg/scanner"

// getToken fetches the next token, turning a scanner error into a
// ParseError so every call site can ignore the error return.
func (c *Compiler) getToken() scanner.Token {
	tok, err := c.scanner.GetToken()
	if err != nil {
		c.fail("%v", err)
	}
	return tok
}

func (c *Compiler) saveToken(t scanner.Token) { c.scanner.SaveToken(t) }

// peek returns the next token without consuming it.
func (c *Compiler) peek() scanner.Token {
	tok := c.getToken()
	c.saveToken(tok)
	return tok
}

// expectOperator consumes the next token, failing unless it is the
// operator/punctuation spelled lit (e.g. "(", ")", "=", ",").
func (c *Compiler) expectOperator(lit string) {
	tok := c.getToken()
	if tok.Type != scanner.TOperator || tok.Literal != lit {
		c.fail("expected %q", lit)
	}
}

// expectReserved consumes the next token, failing unless it is the
// reserved word word (case-insensitive; scanner already upper-cases).
func (c *Compiler) expectReserved(word string) {
	tok := c.getToken()
	if tok.Type != scanner.TReserved || tok.Literal != word {
		c.fail("expected %s", word)
	}
}

// expectIdentifier consumes and returns the next identifier's name.
func (c *Compiler) expectIdentifier() string {
	tok := c.getToken()
	if tok.Type != scanner.TIdentifier {
		c.fail("expected an identifier")
	}
	return tok.Literal
}

// matchOperator consumes and reports true if the next token is the
// operator lit; otherwise it leaves the token unconsumed.
func (c *Compiler) matchOperator(lit string) bool {
	tok := c.getToken()
	if tok.Type == scanner.TOperator && tok.Literal == lit {
		return true
	}
	c.saveToken(tok)
	return false
}

// matchReserved consumes and reports true if the next token is the
// reserved word; otherwise it leaves the token unconsumed.
func (c *Compiler) matchReserved(word string) bool {
	tok := c.getToken()
	if tok.Type == scanner.TReserved && tok.Literal == word {
		return true
	}
	c.saveToken(tok)
	return false
}

// isEndOfStatement reports whether the next token ends a statement
// (end of line or a `:` statement separator), without consuming it.
func (c *Compiler) isEndOfStatement() bool {
	tok := c.peek()
	return tok.Type == scanner.TEOL || (tok.Type == scanner.TOperator && tok.Literal == ":")
}
