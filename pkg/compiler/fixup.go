package compiler

import "github.com/dbetz/picobasic/pkg/bytecode"

// Forward references (branch targets whose address isn't known yet,
// and RETURN's jump to the function epilog) are threaded as a linked
// list through the bytecode stream itself: each unresolved operand
// slot holds the previous slot's own offset (or -1
// for the end of the chain) until the target address is known, at
// which point the whole chain is walked and every slot is overwritten
// with its real branch offset.

// addFixup links site (the offset of a 4-byte placeholder operand)
// onto the front of the chain rooted at *head.
func (c *Compiler) addFixup(head *int32, site int) {
	c.patchWord4(site, *head)
	*head = int32(site)
}

// resolveFixupChain walks the chain rooted at head, patching every
// site with its relative branch offset to target. head is passed by
// value, so each caller resets its own head to -1 afterwards.
func (c *Compiler) resolveFixupChain(head int32, target int) {
	for head != -1 {
		site := int(head)
		next := c.readWord4(site)
		c.patchWord4(site, int32(target-(site+4)))
		head = next
	}
}

func (c *Compiler) patchWord4(site int, v int32) {
	b := bytecode.PutWord4(nil, v)
	copy(c.code[site:site+4], b)
}

func (c *Compiler) readWord4(site int) int32 {
	return bytecode.GetWord4(c.code, site)
}

// labelFor returns the label record for name, creating an undefined
// one on first reference (a forward GOTO/GOSUB).
func (c *Compiler) labelFor(name string) *label {
	if c.labels == nil {
		c.labels = make(map[string]*label)
	}
	l, ok := c.labels[name]
	if !ok {
		l = &label{fixups: -1}
		c.labels[name] = l
	}
	return l
}

// defineLabel marks name as defined at the current pc, resolving every
// branch that referenced it before its definition was seen.
func (c *Compiler) defineLabel(name string) {
	l := c.labelFor(name)
	if l.defined {
		c.fail("label %q is already defined", name)
	}
	l.defined = true
	l.pc = c.pc()
	c.resolveFixupChain(l.fixups, l.pc)
	l.fixups = -1
}

// referenceLabel emits a branch to name, chaining onto its fixup list
// if it is not yet defined.
func (c *Compiler) referenceLabel(op bytecode.Opcode, name string) {
	l := c.labelFor(name)
	if l.defined {
		c.emitOp(op)
		site := c.pc()
		c.emitWord4(int32(l.pc - (site + 4)))
		return
	}
	c.emitOp(op)
	site := c.pc()
	c.emitWord4(0)
	c.addFixup(&l.fixups, site)
}

// checkLabelsDefined fails compilation if any GOTO/GOSUB target was
// never defined within the code object that referenced it.
func (c *Compiler) checkLabelsDefined() {
	for name, l := range c.labels {
		if !l.defined {
			c.fail("undefined label %q", name)
		}
	}
}
