/*
 * Copyright 2025 Oakjit Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mir

import (
	"github.com/oakvm/oakjit/bytecode"
)

// Peephole is the structural cleanup pass: select-pattern diamond
// rewriting, compare and branch fusion, suspend check elision, local
// value numbering over extended basic blocks, and dead instruction
// removal.
type Peephole struct{}

type _SelectEdit struct {
	bb   *BasicBlock
	t    *BasicBlock
	f    *BasicBlock
	join *BasicBlock
	cond Reg
}

// selectArm accepts a diamond arm: a block with the diamond head as its
// sole predecessor, no phis, no exception edge, at most one trivial
// pure definition, and an unconditional jump out.
func selectArm(bb *BasicBlock, head *BasicBlock) (*BasicBlock, bool) {
	if len(bb.Pred) != 1 || bb.Pred[0] != head {
		return nil, false
	}
	if len(bb.Phi) != 0 || bb.Catch != nil {
		return nil, false
	}
	if len(bb.Ins) > 1 {
		return nil, false
	}
	if len(bb.Ins) == 1 {
		switch bb.Ins[0].(type) {
		case *IrConstInt, *IrMove:
			break
		default:
			return nil, false
		}
	}
	sw, ok := bb.Term.(*IrSwitch)
	if !ok || len(sw.Br) != 0 {
		return nil, false
	}
	return sw.Ln, true
}

func (self Peephole) matchSelect(bb *BasicBlock) (_SelectEdit, bool) {
	sw, ok := bb.Term.(*IrSwitch)
	if !ok || len(sw.Br) != 1 {
		return _SelectEdit{}, false
	}
	t, ok := sw.Br[1]
	if !ok || t == sw.Ln {
		return _SelectEdit{}, false
	}
	jt, ok := selectArm(t, bb)
	if !ok {
		return _SelectEdit{}, false
	}
	jf, ok := selectArm(sw.Ln, bb)
	if !ok || jt != jf {
		return _SelectEdit{}, false
	}

	/* the join must merge the two arms, and no more than one phi may
	 * actually differ between them */
	differing := 0
	for _, phi := range jt.Phi {
		vt, okt := phi.V[t]
		vf, okf := phi.V[sw.Ln]
		if !okt || !okf {
			return _SelectEdit{}, false
		}
		if *vt != *vf {
			differing++
		}
	}
	if len(jt.Phi) == 0 || differing > 1 {
		return _SelectEdit{}, false
	}
	return _SelectEdit{bb: bb, t: t, f: sw.Ln, join: jt, cond: sw.V}, true
}

func (self Peephole) commitSelect(cfg *CFG, e _SelectEdit) {
	/* hoist the arm bodies into the head */
	e.bb.Ins = append(e.bb.Ins, e.t.Ins...)
	e.bb.Ins = append(e.bb.Ins, e.f.Ins...)
	e.t.Ins = nil
	e.f.Ins = nil

	phis := e.join.Phi[:0]
	for _, phi := range e.join.Phi {
		vt := *phi.V[e.t]
		vf := *phi.V[e.f]
		delete(phi.V, e.t)
		delete(phi.V, e.f)

		if vt == vf {
			/* both arms agree, no select needed */
			if len(phi.V) == 0 {
				e.join.Ins = append([]IrNode{IrCopy(phi.R, vt)}, e.join.Ins...)
			} else {
				phi.V[e.bb] = regnewref(vt)
				phis = append(phis, phi)
			}
			continue
		}

		sel := &IrSelect{Cond: e.cond, T: vt, F: vf}
		if len(phi.V) == 0 {
			/* two-input phi: deleted outright, its name moves onto
			 * the select */
			sel.R = phi.R
		} else {
			/* wider phi: the diamond's two inputs collapse into one
			 * select-fed entry, the other predecessors keep theirs */
			sel.R = cfg.CreateReg(phi.R.Ref())
			phi.V[e.bb] = regnewref(sel.R)
			phis = append(phis, phi)
		}
		e.bb.Ins = append(e.bb.Ins, sel)
	}
	e.join.Phi = phis
	e.bb.Term = &IrSwitch{Ln: e.join}
}

func (self Peephole) rewriteSelects(cfg *CFG) {
	/* collect the edits read-only, then commit: the diamond rewrite
	 * deletes blocks, which must never happen mid-traversal */
	var edits []_SelectEdit
	taken := make(map[int]bool)

	cfg.AllNodes(func(bb *BasicBlock) {
		if e, ok := self.matchSelect(bb); ok {
			if !taken[e.bb.Id] && !taken[e.t.Id] && !taken[e.f.Id] && !taken[e.join.Id] {
				taken[e.bb.Id] = true
				taken[e.t.Id] = true
				taken[e.f.Id] = true
				edits = append(edits, e)
			}
		}
	})

	if len(edits) != 0 {
		for _, e := range edits {
			self.commitSelect(cfg, e)
		}
		cfg.Rebuild()
	}
}

// fuseBranches rewrites "r = x cmp y; switch r {1 => T, _ => F}" into a
// fused compare-and-branch, valid only when the compare's sole use is
// that branch.
func (self Peephole) fuseBranches(cfg *CFG) {
	uses := regUseCount(cfg)
	defs := regDefs(cfg)

	cfg.AllNodes(func(bb *BasicBlock) {
		sw, ok := bb.Term.(*IrSwitch)
		if !ok || len(sw.Br) != 1 {
			return
		}
		taken, ok := sw.Br[1]
		if !ok {
			return
		}
		be, ok := defs[sw.V].(*IrBinaryExpr)
		if !ok || !be.Op.IsCompare() || uses[sw.V] != 1 {
			return
		}

		/* the definition must sit in this very block */
		at := -1
		for i, p := range bb.Ins {
			if p == be {
				at = i
			}
		}
		if at < 0 {
			return
		}

		bb.RemoveRange(at, at+1)
		bb.Term = &IrCmpBranch{Op: be.Op, X: be.X, Y: be.Y, To: taken, Ln: sw.Ln}
	})
}

func trivialReturn(bb *BasicBlock) bool {
	if len(bb.Ins) != 0 || len(bb.Phi) != 0 {
		return false
	}
	_, ok := bb.Term.(*IrReturn)
	return ok
}

// elideSuspendChecks skips the safepoint poll on branches that only
// lead to trivial return blocks: the method is about to leave anyway.
func (self Peephole) elideSuspendChecks(cfg *CFG) {
	cfg.AllNodes(func(bb *BasicBlock) {
		all := true
		n := 0
		bb.successors(func(p *BasicBlock) {
			n++
			if !trivialReturn(p) {
				all = false
			}
		})
		if !all || n == 0 {
			return
		}
		for _, p := range bb.Ins {
			if sc, ok := p.(*IrSuspendCheck); ok {
				sc.Flags |= SuspendCheckElided
			}
		}
	})
}

func (self Peephole) Apply(cfg *CFG) {
	/* clear dead phi cycles first: a stale phi reading a compare would
	 * otherwise defeat the single-use test of the branch fusion */
	removeDeadInstructions(cfg)
	if !cfg.Unit.Disable.Has(bytecode.DisablePeephole) {
		self.rewriteSelects(cfg)
		self.fuseBranches(cfg)
		self.elideSuspendChecks(cfg)
	}
	if !cfg.Unit.Disable.Has(bytecode.DisableLVN) {
		LVN{}.Apply(cfg)
	}
	removeDeadInstructions(cfg)
}
