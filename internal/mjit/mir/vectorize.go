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
	"github.com/oakvm/oakjit/isa"
)

type _VecAction int

const (
	_VecSkip _VecAction = iota
	_VecLoadOp
	_VecStoreOp
	_VecBinOp
	_VecRedOp
	_VecSuspend
)

type _VecIns struct {
	act _VecAction
	ins IrNode
	red int
}

// _Reduction is an add-reduction accumulator: a header phi fed by the
// preheader initial value and by phi + x from within the loop.
type _Reduction struct {
	Phi    *IrPhi
	Init   Reg
	Next   Reg
	Arg    Reg
	Update *IrBinaryExpr
}

// _VecPlan is a validated vectorization of one counted innermost loop.
// Nothing is mutated until the whole plan checks out.
type _VecPlan struct {
	lp    *_Loop
	ph    *BasicBlock
	tc    _TripCount
	latch *BasicBlock
	et    isa.Elem
	lanes int
	restr isa.Restrictions
	body  []_VecIns
	reds  []_Reduction

	/* runtime disambiguation, at most one base pair */
	aliasA   Reg
	aliasB   Reg
	hasAlias bool

	loopdef map[Reg]bool
	defs    map[Reg]IrNode
}

func vecOpAllowed(op IrBinaryOp, restr isa.Restrictions) bool {
	switch op {
	case IrOpAdd, IrOpSub, IrOpAnd, IrOpOr, IrOpXor:
		return true
	case IrOpMul:
		return !restr.Has(isa.NoMul)
	case IrOpShl:
		return !restr.Has(isa.NoShift)
	case IrOpShr, IrOpUshr:
		return !restr.Has(isa.NoShift) && !restr.Has(isa.NoShr)
	case IrOpMin, IrOpMax:
		return !restr.Has(isa.NoMinMax)
	default:
		return false
	}
}

// trySetVectorLength fixes the lane count from the first array element
// type seen; every later access must agree.
func (self *_VecPlan) trySetVectorLength(cfg *CFG, et isa.Elem) bool {
	if self.lanes != 0 {
		return self.et == et
	}
	lanes, restr := isa.VectorLanes(cfg.Unit.Target, cfg.Unit.Features, et)
	if lanes <= 1 {
		return false
	}
	self.et, self.lanes, self.restr = et, lanes, restr
	return true
}

// operandOK accepts a scalar operand of a vector operation: a value
// produced by an already vectorized instruction, a loop invariant, or a
// constant materialized inside the loop (hoisted at codegen).
func (self *_VecPlan) operandOK(r Reg, produced map[Reg]bool) bool {
	if produced[r] {
		return true
	}
	if !self.loopdef[r] {
		return true
	}
	_, ok := self.defs[r].(*IrConstInt)
	return ok
}

// inLoopUseCount counts uses of r within the loop body only; escaping
// uses are the caller's concern.
func inLoopUseCount(lp *_Loop, r Reg) int {
	n := 0
	count := func(p IrNode) {
		if use, ok := p.(IrUsages); ok {
			for _, u := range use.Usages() {
				if *u == r {
					n++
				}
			}
		}
	}
	for _, bb := range lp.Body {
		for _, p := range bb.Phi {
			count(p)
		}
		for _, p := range bb.Ins {
			count(p)
		}
		if bb.Term != nil {
			count(bb.Term)
		}
	}
	return n
}

func (self *_VecPlan) findReductions() bool {
	for _, phi := range self.lp.Header.Phi {
		if phi == self.tc.Ind.Phi {
			continue
		}
		rv, ok := phi.V[self.latch]
		iv, iok := phi.V[self.ph]
		if !ok || !iok {
			return false
		}
		upd, ok := self.defs[*rv].(*IrBinaryExpr)
		if !ok || upd.Op != IrOpAdd {
			return false
		}
		arg := upd.Y
		if upd.Y == phi.R {
			arg = upd.X
		} else if upd.X != phi.R {
			return false
		}

		/* within the loop the accumulator feeds nothing but its own
		 * update, and the update nothing but the phi */
		if inLoopUseCount(self.lp, phi.R) != 1 || inLoopUseCount(self.lp, *rv) != 1 {
			return false
		}
		self.reds = append(self.reds, _Reduction{
			Phi:    phi,
			Init:   *iv,
			Next:   *rv,
			Arg:    arg,
			Update: upd,
		})
	}
	return true
}

func (self *_VecPlan) redIndex(p IrNode) int {
	for i, rd := range self.reds {
		if rd.Update == p {
			return i
		}
	}
	return -1
}

// classify walks the loop body in order and tags every instruction with
// its vector translation, rejecting anything it cannot express.
func (self *_VecPlan) classify(cfg *CFG) bool {
	produced := make(map[Reg]bool)
	var loads, stores []Reg

	for _, p := range self.latch.Ins {
		switch v := p.(type) {
		case *IrSuspendCheck:
			self.body = append(self.body, _VecIns{act: _VecSuspend, ins: p})

		case *IrConstInt:
			self.body = append(self.body, _VecIns{act: _VecSkip, ins: p})

		case *IrArrayGet:
			if v.Idx != self.tc.Ind.Phi.R || self.loopdef[v.Arr] {
				return false
			}
			if !self.trySetVectorLength(cfg, v.Elem) {
				return false
			}
			loads = append(loads, v.Arr)
			produced[v.R] = true
			self.body = append(self.body, _VecIns{act: _VecLoadOp, ins: p})

		case *IrArrayPut:
			if v.Idx != self.tc.Ind.Phi.R || self.loopdef[v.Arr] {
				return false
			}
			if !self.trySetVectorLength(cfg, v.Elem) {
				return false
			}
			if !self.operandOK(v.V, produced) {
				return false
			}
			stores = append(stores, v.Arr)
			self.body = append(self.body, _VecIns{act: _VecStoreOp, ins: p})

		case *IrBinaryExpr:
			if v == self.tc.Ind.Update {
				self.body = append(self.body, _VecIns{act: _VecSkip, ins: p})
				break
			}
			if i := self.redIndex(p); i >= 0 {
				if !self.operandOK(self.reds[i].Arg, produced) {
					return false
				}
				self.body = append(self.body, _VecIns{act: _VecRedOp, ins: p, red: i})
				break
			}
			if !vecOpAllowed(v.Op, self.restr) {
				return false
			}
			if !self.operandOK(v.X, produced) || !self.operandOK(v.Y, produced) {
				return false
			}
			produced[v.R] = true
			self.body = append(self.body, _VecIns{act: _VecBinOp, ins: p})

		default:
			return false
		}
	}

	if self.lanes == 0 {
		return false
	}
	return self.checkAliasing(loads, stores)
}

// checkAliasing pairs every store base against every differently named
// load base. One pair is handled with a runtime disambiguation test;
// more than one is rejected.
func (self *_VecPlan) checkAliasing(loads []Reg, stores []Reg) bool {
	seen := make(map[[2]Reg]bool)
	for _, s := range stores {
		for _, l := range loads {
			if s == l {
				continue
			}
			k := [2]Reg{s, l}
			if l < s {
				k = [2]Reg{l, s}
			}
			if !seen[k] {
				seen[k] = true
				if len(seen) > 1 {
					return false
				}
				self.aliasA, self.aliasB, self.hasAlias = s, l, true
			}
		}
	}
	return true
}

// tryVectorize versions a counted innermost loop: a vector loop handles
// the first tc - tc%lanes iterations and the original scalar loop picks
// up from there, serving both as remainder cleanup and as the fallback
// for the aliasing case. The scalar loop is dropped only when neither
// duty remains.
func tryVectorize(cfg *CFG, lp *_Loop, ph *BasicBlock, tc _TripCount) bool {
	if cfg.Unit.Debuggable {
		return false
	}
	if len(lp.Body) != 2 || len(lp.Latches) != 1 || lp.Latches[0] == lp.Header {
		return false
	}
	if tc.Block != lp.Header || tc.Ind.Init != 0 || tc.Ind.Step != 1 {
		return false
	}

	latch := lp.Latches[0]
	if lp.Header.Catch != nil || latch.Catch != nil {
		return false
	}
	for _, p := range lp.Header.Ins {
		if _, ok := p.(*IrConstInt); !ok {
			return false
		}
	}
	if sw, ok := latch.Term.(*IrSwitch); !ok || len(sw.Br) != 0 || sw.Ln != lp.Header {
		return false
	}

	plan := &_VecPlan{
		lp:      lp,
		ph:      ph,
		tc:      tc,
		latch:   latch,
		loopdef: loopDefs(lp),
		defs:    regDefs(cfg),
	}

	/* values that escape the loop must be header phis; everything else
	 * is private to an iteration and safe to widen */
	phis := make(map[Reg]bool)
	for _, phi := range lp.Header.Phi {
		phis[phi.R] = true
	}
	private := make(map[Reg]bool)
	for r := range plan.loopdef {
		if !phis[r] {
			private[r] = true
		}
	}
	if regsUsedOutside(cfg, lp, private) {
		return false
	}

	if !plan.findReductions() {
		return false
	}
	if !plan.classify(cfg) {
		return false
	}
	if len(plan.reds) != 0 && plan.restr.Has(isa.NoReduction) {
		return false
	}
	vtc := tc.Count - tc.Count%int64(plan.lanes)
	if vtc <= 0 {
		return false
	}

	plan.emit(cfg, vtc, plan.hasAlias || vtc != tc.Count)
	return true
}

func (self *_VecPlan) emit(cfg *CFG, vtc int64, keepScalar bool) {
	vpre := cfg.CreateBlock()
	vhead := cfg.CreateBlock()
	vbody := cfg.CreateBlock()
	vexit := cfg.CreateBlock()

	/* preheader constants */
	zero := cfg.CreateReg(false)
	bound := cfg.CreateReg(false)
	step := cfg.CreateReg(false)
	vpre.Ins = append(vpre.Ins,
		&IrConstInt{R: zero, V: 0},
		&IrConstInt{R: bound, V: vtc},
		&IrConstInt{R: step, V: int64(self.lanes)},
	)

	/* scalar operand -> vector register, with on-demand hoisting of
	 * invariants and in-loop constants into the preheader */
	vecOf := make(map[Reg]Reg)
	getVec := func(r Reg) Reg {
		if v, ok := vecOf[r]; ok {
			return v
		}
		s := r
		if c, ok := self.defs[r].(*IrConstInt); ok && self.loopdef[r] {
			s = cfg.CreateReg(false)
			vpre.Ins = append(vpre.Ins, &IrConstInt{R: s, V: c.V})
		}
		v := cfg.CreateReg(false)
		vpre.Ins = append(vpre.Ins, &IrVecReplicate{R: v, V: s, Elem: self.et, Lanes: self.lanes})
		vecOf[r] = v
		return v
	}

	/* vector induction */
	vi := cfg.CreateReg(false)
	viNext := cfg.CreateReg(false)
	vhead.Phi = append(vhead.Phi, &IrPhi{R: vi, V: map[*BasicBlock]*Reg{
		vpre:  regnewref(zero),
		vbody: regnewref(viNext),
	}})

	/* reduction accumulators start from a replicated zero, the real
	 * initial value joins after the horizontal reduce */
	vacc := make([]Reg, len(self.reds))
	vaccNext := make([]Reg, len(self.reds))
	for i := range self.reds {
		vz := cfg.CreateReg(false)
		vpre.Ins = append(vpre.Ins, &IrVecReplicate{R: vz, V: zero, Elem: self.et, Lanes: self.lanes})
		vacc[i] = cfg.CreateReg(false)
		vaccNext[i] = cfg.CreateReg(false)
		vhead.Phi = append(vhead.Phi, &IrPhi{R: vacc[i], V: map[*BasicBlock]*Reg{
			vpre:  regnewref(vz),
			vbody: regnewref(vaccNext[i]),
		}})
	}

	vpre.Term = &IrSwitch{Ln: vhead}
	vhead.Term = &IrCmpBranch{Op: IrCmpLt, X: vi, Y: bound, To: vbody, Ln: vexit}

	/* widen the body in original order */
	for _, tag := range self.body {
		switch tag.act {
		case _VecSuspend:
			vbody.Ins = append(vbody.Ins, &IrSuspendCheck{})
		case _VecLoadOp:
			v := tag.ins.(*IrArrayGet)
			vr := cfg.CreateReg(false)
			vecOf[v.R] = vr
			vbody.Ins = append(vbody.Ins, &IrVecLoad{R: vr, Arr: v.Arr, Idx: vi, Elem: self.et, Lanes: self.lanes})
		case _VecStoreOp:
			v := tag.ins.(*IrArrayPut)
			vbody.Ins = append(vbody.Ins, &IrVecStore{Arr: v.Arr, Idx: vi, V: getVec(v.V), Elem: self.et, Lanes: self.lanes})
		case _VecBinOp:
			v := tag.ins.(*IrBinaryExpr)
			vr := cfg.CreateReg(false)
			x, y := getVec(v.X), getVec(v.Y)
			vecOf[v.R] = vr
			vbody.Ins = append(vbody.Ins, &IrVecBinary{R: vr, X: x, Y: y, Op: v.Op, Elem: self.et, Lanes: self.lanes})
		case _VecRedOp:
			i := tag.red
			vbody.Ins = append(vbody.Ins, &IrVecBinary{
				R:     vaccNext[i],
				X:     vacc[i],
				Y:     getVec(self.reds[i].Arg),
				Op:    IrOpAdd,
				Elem:  self.et,
				Lanes: self.lanes,
			})
		}
	}
	vbody.Ins = append(vbody.Ins, &IrBinaryExpr{R: viNext, Op: IrOpAdd, X: vi, Y: step})
	vbody.Term = &IrSwitch{Ln: vhead}

	/* epilogue: fold the lanes back into scalars */
	sum := make([]Reg, len(self.reds))
	for i, rd := range self.reds {
		rr := cfg.CreateReg(false)
		sum[i] = cfg.CreateReg(false)
		vexit.Ins = append(vexit.Ins,
			&IrVecReduce{R: rr, V: vacc[i], Op: IrOpAdd, Elem: self.et, Lanes: self.lanes},
			&IrBinaryExpr{R: sum[i], Op: IrOpAdd, X: rd.Init, Y: rr},
		)
	}

	if keepScalar {
		/* the scalar loop resumes at vtc, or runs in full from the
		 * preheader when the bases may alias */
		self.tc.Ind.Phi.V[vexit] = regnewref(bound)
		for i, rd := range self.reds {
			rd.Phi.V[vexit] = regnewref(sum[i])
		}
		vexit.Term = &IrSwitch{Ln: self.lp.Header}
		if self.hasAlias {
			self.ph.Term = &IrCmpBranch{Op: IrCmpNe, X: self.aliasA, Y: self.aliasB, To: vpre, Ln: self.lp.Header}
		} else {
			self.ph.Term = &IrSwitch{Ln: vpre}
		}
	} else {
		/* the scalar loop goes away entirely; route its final values
		 * to the epilogue results */
		repl := map[Reg]Reg{self.tc.Ind.Phi.R: bound}
		for i, rd := range self.reds {
			repl[rd.Phi.R] = sum[i]
		}
		exit := self.tc.exitTarget(self.lp)
		rewriteUsesOutside(cfg, self.lp, repl)
		for _, phi := range exit.Phi {
			if r, ok := phi.V[self.tc.Block]; ok {
				phi.V[vexit] = regnewref(*r)
			}
		}
		vexit.Term = &IrSwitch{Ln: exit}
		self.ph.Term = &IrSwitch{Ln: vpre}
	}
	cfg.Rebuild()
}

// rewriteUsesOutside substitutes registers in every block outside the
// loop body, the loop-closed counterpart of the phi rewiring above.
func rewriteUsesOutside(cfg *CFG, lp *_Loop, repl map[Reg]Reg) {
	cfg.AllNodes(func(bb *BasicBlock) {
		if lp.contains(bb) {
			return
		}
		visit := func(p IrNode) {
			if use, ok := p.(IrUsages); ok {
				for _, u := range use.Usages() {
					if r, ok := repl[*u]; ok {
						*u = r
					}
				}
			}
		}
		for _, p := range bb.Phi {
			visit(p)
		}
		for _, p := range bb.Ins {
			visit(p)
		}
		if bb.Term != nil {
			visit(bb.Term)
		}
	})
}
