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

// LoopOpt runs the loop transformations: induction variable
// simplification, dead and single-trip loop removal, and
// vectorization of eligible innermost counted loops.
type LoopOpt struct{}

// regsUsedOutside reports whether any register in rs is used by a block
// outside the loop body.
func regsUsedOutside(cfg *CFG, lp *_Loop, rs map[Reg]bool) bool {
	found := false
	cfg.AllNodes(func(bb *BasicBlock) {
		if lp.contains(bb) {
			return
		}
		visit := func(p IrNode) {
			if use, ok := p.(IrUsages); ok {
				for _, u := range use.Usages() {
					if rs[*u] {
						found = true
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
	return found
}

// simplifyInduction replaces every out-of-loop use of a counted
// induction variable with its final value, computed as a constant in
// the exit target. The in-loop phi/update cycle then serves the exit
// test alone.
func (self LoopOpt) simplifyInduction(cfg *CFG, lp *_Loop, ph *BasicBlock, tc _TripCount) bool {
	if cfg.Unit.Debuggable {
		return false
	}

	exit := tc.exitTarget(lp)
	if exit == nil {
		return false
	}

	lastPhi := tc.Ind.Init + tc.Count*tc.Ind.Step
	lastNext := lastPhi
	if tc.OnNext {
		/* the rotated test reads the update, which runs once more than
		 * the value the phi ever carries */
		lastNext += tc.Ind.Step
	}

	vals := map[Reg]int64{tc.Ind.Phi.R: lastPhi, tc.Ind.Next: lastNext}
	made := make(map[int64]Reg)

	rewrite := func(p IrNode) {
		use, ok := p.(IrUsages)
		if !ok {
			return
		}
		for _, u := range use.Usages() {
			v, hit := vals[*u]
			if !hit {
				continue
			}
			nr, ok := made[v]
			if !ok {
				nr = cfg.CreateReg(false)
				exit.Ins = append([]IrNode{&IrConstInt{R: nr, V: v}}, exit.Ins...)
				made[v] = nr
			}
			*u = nr
		}
	}

	cfg.AllNodes(func(bb *BasicBlock) {
		if lp.contains(bb) {
			return
		}
		for _, p := range bb.Phi {
			rewrite(p)
		}
		for _, p := range bb.Ins {
			rewrite(p)
		}
		if bb.Term != nil {
			rewrite(bb.Term)
		}
	})
	return len(made) != 0
}

// exitTarget is the out-of-loop successor of the exit test, valid for
// value placement only when every path leaving the loop goes there.
func (self _TripCount) exitTarget(lp *_Loop) *BasicBlock {
	if self.Test == nil {
		return nil
	}
	if !lp.contains(self.Test.To) {
		return self.Test.To
	}
	return self.Test.Ln
}

// loopDefs collects every register defined inside the loop.
func loopDefs(lp *_Loop) map[Reg]bool {
	rs := make(map[Reg]bool)
	for _, bb := range lp.Body {
		for _, p := range bb.Phi {
			for _, d := range p.Definitions() {
				rs[*d] = true
			}
		}
		for _, p := range bb.Ins {
			if def, ok := p.(IrDefinitions); ok {
				for _, d := range def.Definitions() {
					rs[*d] = true
				}
			}
		}
	}
	return rs
}

// loopHasEffects reports whether the loop body does anything observable
// beyond driving its own counter.
func loopHasEffects(lp *_Loop) bool {
	for _, bb := range lp.Body {
		for _, p := range bb.Ins {
			if _, ok := p.(*IrSuspendCheck); ok {
				/* the safepoint poll dies with the loop */
				continue
			}
			if _, impure := p.(IrImpure); impure {
				return true
			}
			if insCanThrow(p) {
				return true
			}
		}
	}
	return false
}

// removeDeadLoop deletes a counted loop whose body has no observable
// effect and whose values are unused outside: the preheader jumps
// straight to the exit target.
func (self LoopOpt) removeDeadLoop(cfg *CFG, lp *_Loop, ph *BasicBlock, tc _TripCount) bool {
	exit := tc.exitTarget(lp)
	if exit == nil || loopHasEffects(lp) {
		return false
	}
	if len(exit.Phi) != 0 && tc.Count != 0 {
		return false
	}
	if regsUsedOutside(cfg, lp, loopDefs(lp)) {
		return false
	}
	/* a latch-side test means the body runs before the first check */
	if tc.Block != lp.Header {
		return false
	}

	for _, phi := range exit.Phi {
		if _, ok := phi.V[tc.Block]; !ok {
			return false
		}
		phi.V[ph] = phi.V[tc.Block]
	}
	ph.Term = &IrSwitch{Ln: exit}
	cfg.Rebuild()
	return true
}

// unrollOneTrip removes the back edge of a loop proven to run exactly
// once, leaving its body as straight-line code.
func (self LoopOpt) unrollOneTrip(cfg *CFG, lp *_Loop, ph *BasicBlock, tc _TripCount) bool {
	if tc.Count != 1 || len(lp.Latches) != 1 {
		return false
	}
	/* a rotated test reads the update, so the body already ran before
	 * the first check and Count understates the executions by one */
	if tc.OnNext || tc.Block != lp.Header {
		return false
	}

	/* out-of-loop uses of the header phis would see the wrong version
	 * once the back edge is gone */
	phis := make(map[Reg]bool)
	for _, phi := range lp.Header.Phi {
		phis[phi.R] = true
	}
	if regsUsedOutside(cfg, lp, phis) {
		return false
	}

	exit := tc.exitTarget(lp)
	latch := lp.Latches[0]
	if exit == nil || len(exit.Phi) != 0 {
		return false
	}
	if latch.Catch == lp.Header {
		return false
	}

	latch.ReplaceSuccessor(lp.Header, exit)
	cfg.Rebuild()

	/* the header phis lost the latch input; fold the survivors */
	for _, phi := range lp.Header.Phi {
		if _, ok := phi.V[ph]; !ok || len(phi.V) != 1 {
			return true
		}
	}
	for _, phi := range lp.Header.Phi {
		lp.Header.Ins = append([]IrNode{IrCopy(phi.R, *phi.V[ph])}, lp.Header.Ins...)
	}
	lp.Header.Phi = nil
	return true
}

func (self LoopOpt) round(cfg *CFG) bool {
	loops := findLoops(cfg)
	if len(loops) == 0 {
		return false
	}

	/* innermost loops are those no other loop nests inside */
	inner := make(map[*_Loop]bool, len(loops))
	for _, lp := range loops {
		inner[lp] = true
	}
	for _, lp := range loops {
		if lp.Parent != nil {
			inner[lp.Parent] = false
		}
	}

	defs := regDefs(cfg)
	changed := false

	for _, lp := range loops {
		if len(lp.Latches) != 1 {
			continue
		}
		ph := lp.Preheader()
		if ph == nil {
			continue
		}
		tc := analyzeTripCount(lp, ph, defs)
		if !tc.Known {
			continue
		}

		if self.simplifyInduction(cfg, lp, ph, tc) {
			changed = true
		}
		if self.removeDeadLoop(cfg, lp, ph, tc) {
			return true
		}
		if self.unrollOneTrip(cfg, lp, ph, tc) {
			return true
		}
		if inner[lp] && !cfg.Unit.Disable.Has(bytecode.DisableVectorize) {
			if tryVectorize(cfg, lp, ph, tc) {
				return true
			}
		}
	}
	return changed
}

func (self LoopOpt) Apply(cfg *CFG) {
	if cfg.Unit.Disable.Has(bytecode.DisableLoopOpt) {
		return
	}

	/* every structural change invalidates the loop forest, so restart
	 * the analysis after each one, with a hard cap for safety */
	for i := 0; i < len(cfg.Blocks)+1; i++ {
		if !self.round(cfg) {
			break
		}
	}
	removeDeadInstructions(cfg)
}
