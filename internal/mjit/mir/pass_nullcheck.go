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
	"github.com/bits-and-blooms/bitset"
	"github.com/oakvm/oakjit/bytecode"
)

// NullCheckElim proves object dereferences non-null with a forward
// any-path dataflow: one bit per SSA register, set while the value may
// still be null. Confluence is set union, so a register stays nullable
// as long as any incoming path leaves it unproven.
type NullCheckElim struct {
	defs map[Reg]IrNode
	out  map[int]*bitset.BitSet
	mark map[IrNode]struct{}
}

func (self *NullCheckElim) Name() string {
	return "Null Check Elimination"
}

func (self *NullCheckElim) Order() TraversalOrder {
	return TraverseReversePostOrder
}

// nullCheckedReg extracts the register a node implicitly null-checks.
func nullCheckedReg(p IrNode) (Reg, bool) {
	switch v := p.(type) {
	case *IrFieldGet:
		return v.Obj, true
	case *IrFieldPut:
		return v.Obj, true
	case *IrArrayGet:
		return v.Arr, true
	case *IrArrayPut:
		return v.Arr, true
	case *IrArrayLength:
		return v.Arr, true
	case *IrInvoke:
		if v.Kind != IrInvokeStatic && len(v.Args) != 0 {
			return v.Args[0], true
		}
		return Pn, false
	default:
		return Pn, false
	}
}

func (self *NullCheckElim) Gate(cfg *CFG) bool {
	if cfg.Unit.Disable.Has(bytecode.DisableNullCheckElim) {
		return false
	}
	found := false
	cfg.AllNodes(func(bb *BasicBlock) {
		for _, p := range bb.Ins {
			if _, ok := nullCheckedReg(p); ok {
				found = true
			}
		}
	})
	return found
}

func (self *NullCheckElim) Start(cfg *CFG) {
	self.defs = regDefs(cfg)
	self.out = make(map[int]*bitset.BitSet, len(cfg.Blocks))
	self.mark = make(map[IrNode]struct{})

	/* total check count for the statistics line */
	cfg.AllNodes(func(bb *BasicBlock) {
		for _, p := range bb.Ins {
			if _, ok := nullCheckedReg(p); ok {
				cfg.Stats.NullChecks++
			}
		}
	})
}

func (self *NullCheckElim) bit(st *bitset.BitSet, r Reg) bool {
	if r.Kind() == K_zero {
		return r.Ref()
	}
	return st.Test(uint(r.Index()))
}

func (self *NullCheckElim) setBit(st *bitset.BitSet, r Reg, maybeNull bool) {
	if r.Kind() == K_zero {
		return
	}
	if maybeNull {
		st.Set(uint(r.Index()))
	} else {
		st.Clear(uint(r.Index()))
	}
}

// guardedReg decodes a null-test branch: a conditional whose compared
// value is the null register. It reports the tested register and the
// successor on which the register is proven non-null.
func (self *NullCheckElim) guardedReg(pred *BasicBlock) (Reg, *BasicBlock) {
	switch tr := pred.Term.(type) {
	case *IrCmpBranch:
		return nullTestEdge(tr.Op, tr.X, tr.Y, tr.To, tr.Ln)

	case *IrSwitch:
		if len(tr.Br) != 1 {
			return Pn, nil
		}
		taken, ok := tr.Br[1]
		if !ok {
			return Pn, nil
		}
		be, ok := self.defs[tr.V].(*IrBinaryExpr)
		if !ok {
			return Pn, nil
		}
		return nullTestEdge(be.Op, be.X, be.Y, taken, tr.Ln)

	default:
		return Pn, nil
	}
}

func nullTestEdge(op IrBinaryOp, x Reg, y Reg, taken *BasicBlock, fall *BasicBlock) (Reg, *BasicBlock) {
	r := Pn
	if y == Pn && x.Ref() && x.Kind() != K_zero {
		r = x
	} else if x == Pn && y.Ref() && y.Kind() != K_zero {
		r = y
	} else {
		return Pn, nil
	}
	if taken == fall {
		return Pn, nil
	}
	switch op {
	case IrCmpEq:
		return r, fall
	case IrCmpNe:
		return r, taken
	default:
		return Pn, nil
	}
}

// edgeState derives the state flowing along the pred -> bb edge,
// narrowing by the predecessor's null-test branch when one exists.
func (self *NullCheckElim) edgeState(pred *BasicBlock, bb *BasicBlock) *bitset.BitSet {
	st, ok := self.out[pred.Id]
	if !ok {
		return nil
	}
	if r, nb := self.guardedReg(pred); nb == bb && pred.Catch != bb {
		st = st.Clone()
		self.setBit(st, r, false)
	}
	return st
}

func (self *NullCheckElim) RunOnBlock(cfg *CFG, bb *BasicBlock) bool {
	var st *bitset.BitSet

	/* copy the first computed predecessor, union the rest */
	for _, p := range bb.Pred {
		es := self.edgeState(p, bb)
		if es == nil {
			continue
		}
		if st == nil {
			st = es.Clone()
		} else {
			st.InPlaceUnion(es)
		}
	}
	if st == nil {
		st = bitset.New(uint(cfg.maxreg))
	}

	/* a phi is nullable when any of its inputs still is */
	for _, phi := range bb.Phi {
		if !phi.R.Ref() {
			continue
		}
		nullable := false
		for _, v := range phi.V {
			if self.bit(st, *v) {
				nullable = true
			}
		}
		self.setBit(st, phi.R, nullable)
	}

	for _, p := range bb.Ins {
		/* the checked use decides elimination, then the surviving
		 * check itself proves non-nullity for everything after it */
		if r, ok := nullCheckedReg(p); ok {
			if !self.bit(st, r) {
				self.mark[p] = struct{}{}
			} else {
				delete(self.mark, p)
				self.setBit(st, r, false)
			}
		}

		switch v := p.(type) {
		case *IrLoadArg:
			if v.R.Ref() {
				recv := v.Id == 0 && !cfg.Method.Static
				self.setBit(st, v.R, !recv)
			}
		case *IrNewInstance:
			self.setBit(st, v.R, false)
		case *IrNewArray:
			self.setBit(st, v.R, false)
		case *IrMove:
			if v.R.Ref() {
				self.setBit(st, v.R, self.bit(st, v.V))
			}
		case *IrFieldGet:
			if v.R.Ref() {
				self.setBit(st, v.R, true)
			}
		case *IrArrayGet:
			if v.R.Ref() {
				self.setBit(st, v.R, true)
			}
		case *IrInvoke:
			if v.HasR && v.R.Ref() {
				self.setBit(st, v.R, true)
			}
		case *IrSelect:
			if v.R.Ref() {
				self.setBit(st, v.R, self.bit(st, v.T) || self.bit(st, v.F))
			}
		}
	}

	if prev, ok := self.out[bb.Id]; ok && prev.Equal(st) {
		return false
	}
	self.out[bb.Id] = st
	return true
}

func (self *NullCheckElim) End(cfg *CFG) {
	for p := range self.mark {
		if c, ok := p.(IrChecked); ok {
			*c.OptFlags() |= NullCheckElided
			cfg.Stats.NullElided++
		}
	}
	self.defs = nil
	self.out = nil
	self.mark = nil
}

func (self *NullCheckElim) Apply(cfg *CFG) {
	RunToFixPoint(cfg, self)
}
