package compiler

import "github.com/dbetz/picobasic/pkg/heap"

// AddIntrinsic registers a host-implemented function as a callable
// global, usable from BASIC source exactly like a user DEF FN/SUB.
// signature follows db_compiler.c's AddIntrinsic1 convention: a
// return-type letter, "=", then one letter per argument -- 'i' for an
// Integer/Byte argument, 's' for a String argument. A return letter of
// ' ' (space) or an omitted "=ret" clause means the intrinsic is a
// SUB with no return value; callers besides pkg/intrinsics always
// pass one of "i=...", "s=...", or a bare argument list for a sub.
//
// The concrete host logic behind handler lives in pkg/intrinsics; this
// package only needs the call signature to type-check call sites and
// the Intrinsic handle to emit into CALL's operand.
func (c *Compiler) AddIntrinsic(name string, handler heap.IntrinsicHandler, signature string) error {
	retLetter, argLetters := parseSignature(signature)

	fnType, err := c.Heap.NewType(heap.TypeFunction)
	if err != nil {
		return err
	}
	tp, err := c.Heap.GetType(fnType)
	if err != nil {
		return err
	}
	if retLetter == 0 || retLetter == ' ' {
		tp.Function.ReturnType = 0
	} else {
		tp.Function.ReturnType = c.letterType(retLetter)
	}

	var head, tail heap.Handle
	for i, letter := range argLetters {
		argType := c.letterType(letter)
		lh, err := c.Heap.NewLocal("", argType, int32(i+1))
		if err != nil {
			return err
		}
		if head == heap.NilHandle {
			head = lh
		} else {
			prev, err := c.Heap.GetLocal(tail)
			if err != nil {
				return err
			}
			prev.Next = lh
		}
		tail = lh
	}
	tp.Function.ArgsHead = head
	tp.Function.ArgsCount = len(argLetters)

	ih, err := c.Heap.NewIntrinsic(handler)
	if err != nil {
		return err
	}

	sh, err := c.Globals.AddGlobal(name, heap.ClassConstant, fnType)
	if err != nil {
		return err
	}
	sym := c.globalSymbol(sh)
	sym.HValue = ih
	return nil
}

func (c *Compiler) letterType(letter byte) heap.Handle {
	switch letter {
	case 's':
		return c.stringType
	default:
		return c.integerType
	}
}

// parseSignature splits "s=sii" into ('s', []byte{'s','i','i'}); a
// signature with no "=" (a SUB: all arguments, no return value)
// returns a zero return letter and the whole string as arguments.
func parseSignature(signature string) (ret byte, args []byte) {
	for i := 0; i < len(signature); i++ {
		if signature[i] == '=' {
			if i > 0 {
				ret = signature[0]
			}
			return ret, []byte(signature[i+1:])
		}
	}
	return 0, []byte(signature)
}
