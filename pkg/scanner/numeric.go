package scanner

import "github.com/pkg/errors"

// ParseInteger parses the text of an integer literal as the scanner
// does: optional 0x/0X hex, 0b/0B binary, a leading zero followed by
// more digits as octal, otherwise decimal; `_` between digits is a
// separator and is ignored. A character that is not a valid digit for
// the selected radix is an error; the literal is not cut short there.
// The VAL intrinsic does not call this function: it uses its own parser
// in pkg/intrinsics, which uses the same radix prefixes but stops at the
// first invalid digit instead of failing.
func ParseInteger(text string) (int32, error) {
	if text == "" {
		return 0, errors.New("empty numeric literal")
	}
	base := 10
	digits := text
	switch {
	case len(text) > 1 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X'):
		base = 16
		digits = text[2:]
	case len(text) > 1 && text[0] == '0' && (text[1] == 'b' || text[1] == 'B'):
		base = 2
		digits = text[2:]
	case len(text) > 1 && text[0] == '0':
		base = 8
		digits = text[1:]
	}
	if digits == "" {
		return 0, errors.Errorf("invalid numeric literal %q", text)
	}
	var value int64
	any := false
	for i := 0; i < len(digits); i++ {
		ch := digits[i]
		if ch == '_' {
			continue
		}
		d, ok := digitValue(ch)
		if !ok || d >= base {
			return 0, errors.Errorf("invalid digit %q in numeric literal %q", string(ch), text)
		}
		value = value*int64(base) + int64(d)
		any = true
	}
	if !any {
		return 0, errors.Errorf("invalid numeric literal %q", text)
	}
	return int32(value), nil
}

func digitValue(ch byte) (int, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0'), true
	case ch >= 'a' && ch <= 'f':
		return int(ch-'a') + 10, true
	case ch >= 'A' && ch <= 'F':
		return int(ch-'A') + 10, true
	default:
		return 0, false
	}
}

// ParseSignedInteger parses an optionally sign-prefixed literal, the
// form VAL accepts (e.g. "-42", "+0x1f"); ParseInteger itself never
// sees a leading sign since the scanner treats +/- as operators.
func ParseSignedInteger(text string) (int32, error) {
	if text == "" {
		return 0, errors.New("empty numeric literal")
	}
	neg := false
	switch text[0] {
	case '-':
		neg = true
		text = text[1:]
	case '+':
		text = text[1:]
	}
	v, err := ParseInteger(text)
	if err != nil {
		return 0, err
	}
	if neg {
		v = -v
	}
	return v, nil
}
