package compiler

import "fmt"

// ParseError is raised for every compile-time failure: syntax, an
// unterminated block, an undefined label, a type mismatch, or an
// unknown identifier. Compile recovers it at the top of the per-call
// error target and returns it as a normal error, matching the
// non-local unwind db_compiler.c performs via setjmp/longjmp.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// fail raises a ParseError that unwinds to Compile's recover point.
func (c *Compiler) fail(format string, args ...interface{}) {
	panic(&ParseError{Line: c.scanner.LineNumber(), Message: fmt.Sprintf(format, args...)})
}
