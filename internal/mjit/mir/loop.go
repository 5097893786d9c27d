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
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// _Loop is one natural loop: the header, the latch carrying the back
// edge, and the body blocks keyed by id. Loops sharing a header are
// merged into one with several latches, which the optimizers then leave
// alone.
type _Loop struct {
	Header  *BasicBlock
	Latches []*BasicBlock
	Body    map[int]*BasicBlock
	Parent  *_Loop
}

func (self *_Loop) contains(bb *BasicBlock) bool {
	_, ok := self.Body[bb.Id]
	return ok
}

// Preheader returns the sole out-of-loop predecessor of the header when
// it branches to the header unconditionally, otherwise nil.
func (self *_Loop) Preheader() *BasicBlock {
	var ph *BasicBlock
	for _, p := range self.Header.Pred {
		if self.contains(p) {
			continue
		}
		if ph != nil {
			return nil
		}
		ph = p
	}
	if ph == nil || ph.Catch != nil {
		return nil
	}
	if sw, ok := ph.Term.(*IrSwitch); !ok || len(sw.Br) != 0 {
		return nil
	}
	return ph
}

// Exits collects every (block in loop, successor outside loop) edge.
func (self *_Loop) Exits() (ret [][2]*BasicBlock) {
	for _, bb := range self.Body {
		bb.successors(func(p *BasicBlock) {
			if !self.contains(p) {
				ret = append(ret, [2]*BasicBlock{bb, p})
			}
		})
	}
	sort.Slice(ret, func(i int, j int) bool {
		if ret[i][0].Id != ret[j][0].Id {
			return ret[i][0].Id < ret[j][0].Id
		}
		return ret[i][1].Id < ret[j][1].Id
	})
	return
}

// findLoops discovers every natural loop from the dominator-identified
// back edges and arranges the result innermost-first.
func findLoops(cfg *CFG) []*_Loop {
	byHeader := make(map[int]*_Loop)

	cfg.AllNodes(func(bb *BasicBlock) {
		bb.successors(func(h *BasicBlock) {
			if !cfg.Dominates(h, bb) {
				return
			}
			lp := byHeader[h.Id]
			if lp == nil {
				lp = &_Loop{Header: h, Body: map[int]*BasicBlock{h.Id: h}}
				byHeader[h.Id] = lp
			}
			lp.Latches = append(lp.Latches, bb)
			floodLoopBody(lp, bb)
		})
	})

	loops := make([]*_Loop, 0, len(byHeader))
	for _, lp := range byHeader {
		loops = append(loops, lp)
	}

	/* innermost first: a nested loop's body is strictly smaller */
	sort.Slice(loops, func(i int, j int) bool {
		if len(loops[i].Body) != len(loops[j].Body) {
			return len(loops[i].Body) < len(loops[j].Body)
		}
		return loops[i].Header.Id < loops[j].Header.Id
	})

	/* parent is the smallest enclosing loop */
	for i, lp := range loops {
		for _, outer := range loops[i+1:] {
			if outer != lp && outer.contains(lp.Header) {
				lp.Parent = outer
				break
			}
		}
	}
	return loops
}

// floodLoopBody walks backwards from the latch until the header,
// collecting every block on a path to the back edge.
func floodLoopBody(lp *_Loop, latch *BasicBlock) {
	q := []*BasicBlock{latch}
	for len(q) != 0 {
		bb := q[len(q)-1]
		q = q[:len(q)-1]
		if lp.contains(bb) {
			continue
		}
		lp.Body[bb.Id] = bb
		q = append(q, bb.Pred...)
	}
}

// linearOrder computes a topological order of the graph with back edges
// removed, the order blocks would take in the final code layout.
func linearOrder(cfg *CFG) []*BasicBlock {
	g := simple.NewDirectedGraph()
	cfg.AllNodes(func(bb *BasicBlock) {
		g.AddNode(simple.Node(bb.Id))
	})
	cfg.AllNodes(func(bb *BasicBlock) {
		bb.successors(func(p *BasicBlock) {
			if bb.Id != p.Id && !cfg.Dominates(p, bb) {
				g.SetEdge(simple.Edge{F: simple.Node(bb.Id), T: simple.Node(p.Id)})
			}
		})
	})

	order, err := topo.Sort(g)
	if err != nil {
		/* irreducible flow leaves cycles behind even without the
		 * dominator back edges; fall back to block id order */
		ret := make([]*BasicBlock, 0, len(cfg.Blocks))
		cfg.AllNodes(func(bb *BasicBlock) {
			ret = append(ret, bb)
		})
		return ret
	}

	ret := make([]*BasicBlock, 0, len(order))
	for _, n := range order {
		if bb := cfg.GetBasicBlock(int(n.ID())); bb != nil {
			ret = append(ret, bb)
		}
	}
	return ret
}

// _Induction is a basic linear induction variable: a header phi fed by
// a constant from the preheader and by phi + step from within the loop.
type _Induction struct {
	Phi    *IrPhi
	Init   int64
	Step   int64
	Update *IrBinaryExpr
	Next   Reg
}

// _TripCount is the result of trip count analysis against the loop's
// sole exit test. OnNext marks the rotated form, where the test reads
// the incremented value rather than the phi.
type _TripCount struct {
	Known  bool
	Count  int64
	OnNext bool
	Test   *IrCmpBranch
	Block  *BasicBlock
	Ind    _Induction
}

// chaseCopies resolves r through any chain of register moves down to
// the register the value was actually computed into. The builder and
// the select rewrite both leave plain copies behind, and the analysis
// must see through them.
func chaseCopies(defs map[Reg]IrNode, r Reg) Reg {
	for {
		mv, ok := defs[r].(*IrMove)
		if !ok {
			return r
		}
		r = mv.V
	}
}

func constDef(defs map[Reg]IrNode, r Reg) (int64, bool) {
	if c, ok := defs[chaseCopies(defs, r)].(*IrConstInt); ok {
		return c.V, true
	}
	return 0, false
}

// findInductions recognizes every header phi of the shape
// i = phi(preheader: const, latch: i + const).
func findInductions(lp *_Loop, ph *BasicBlock, defs map[Reg]IrNode) (ret []_Induction) {
	for _, phi := range lp.Header.Phi {
		if _, has := phi.V[ph]; !has {
			continue
		}
		iv := _Induction{Phi: phi}
		ok := true

		for bb, r := range phi.V {
			if bb == ph {
				iv.Init, ok = constDef(defs, *r)
			} else if lp.contains(bb) {
				nr := chaseCopies(defs, *r)
				upd, updok := defs[nr].(*IrBinaryExpr)
				if !updok || upd.Op != IrOpAdd {
					ok = false
					break
				}
				x, y := chaseCopies(defs, upd.X), chaseCopies(defs, upd.Y)
				if y == phi.R {
					x, y = y, x
				}
				if x != phi.R {
					ok = false
					break
				}
				if iv.Step, ok = constDef(defs, y); ok {
					iv.Update = upd
					iv.Next = nr
				}
			} else {
				ok = false
			}
			if !ok {
				break
			}
		}
		if ok && iv.Update != nil && len(phi.V) == 2 {
			ret = append(ret, iv)
		}
	}
	return
}

// analyzeTripCount proves a static trip count for loops with a single
// conditional exit testing a recognized induction variable against a
// constant bound with one of <, <=, or !=.
func analyzeTripCount(lp *_Loop, ph *BasicBlock, defs map[Reg]IrNode) _TripCount {
	exits := lp.Exits()
	if ph == nil || len(exits) != 1 {
		return _TripCount{}
	}

	eb := exits[0][0]
	br, ok := eb.Term.(*IrCmpBranch)
	if !ok {
		return _TripCount{}
	}

	/* normalize to "continue while i op bound" */
	op, iv, bound := br.Op, br.X, br.Y
	if !lp.contains(br.To) {
		op = op.Negated()
	}
	n, cok := constDef(defs, bound)
	if !cok {
		if n, cok = constDef(defs, iv); !cok {
			return _TripCount{}
		}
		iv, bound = bound, iv
		op = op.Mirrored()
	}
	iv = chaseCopies(defs, iv)

	for _, ind := range findInductions(lp, ph, defs) {
		onPhi := iv == ind.Phi.R
		onNext := iv == ind.Next
		if !onPhi && !onNext {
			continue
		}

		init, step := ind.Init, ind.Step
		if onNext {
			/* the rotated form tests i+step; shift the window */
			init += step
		}

		tc, known := int64(0), false
		switch op {
		case IrCmpLt:
			tc, known = countUp(init, step, n)
		case IrCmpLe:
			if n != math.MaxInt64 {
				tc, known = countUp(init, step, n+1)
			}
		case IrCmpNe:
			if step != 0 && (n-init)%step == 0 && (n-init)/step >= 0 {
				tc, known = (n-init)/step, true
			}
		}
		if known {
			return _TripCount{Known: true, Count: tc, OnNext: onNext, Test: br, Block: eb, Ind: ind}
		}
	}
	return _TripCount{}
}

func countUp(init int64, step int64, n int64) (int64, bool) {
	if step <= 0 {
		return 0, false
	}
	if init >= n {
		return 0, true
	}
	return (n - init + step - 1) / step, true
}
