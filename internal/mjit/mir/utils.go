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
	"github.com/oleiade/lane"
)

func regnewref(v Reg) (r *Reg) {
	r = new(Reg)
	*r = v
	return
}

func addImmediateDominated(dom map[int][]*BasicBlock, bb *BasicBlock, q *lane.Queue) {
	for _, p := range dom[bb.Id] {
		q.Enqueue(p)
	}
}

// regUseCount tallies how many times each SSA register is read anywhere
// in the graph, phi operands and terminators included.
func regUseCount(cfg *CFG) map[Reg]int {
	n := make(map[Reg]int)
	countUses := func(p IrNode) {
		if u, ok := p.(IrUsages); ok {
			for _, r := range u.Usages() {
				if r.Kind() != K_zero {
					n[*r]++
				}
			}
		}
	}
	cfg.AllNodes(func(bb *BasicBlock) {
		for _, p := range bb.Phi {
			countUses(p)
		}
		for _, p := range bb.Ins {
			countUses(p)
		}
		if bb.Term != nil {
			countUses(bb.Term)
		}
	})
	return n
}

// regDefs maps every SSA register to its unique defining node.
func regDefs(cfg *CFG) map[Reg]IrNode {
	d := make(map[Reg]IrNode)
	cfg.AllNodes(func(bb *BasicBlock) {
		for _, p := range bb.Phi {
			d[p.R] = p
		}
		for _, p := range bb.Ins {
			if def, ok := p.(IrDefinitions); ok {
				for _, r := range def.Definitions() {
					d[*r] = p
				}
			}
		}
	})
	return d
}

// removeDeadInstructions deletes phis and pure instructions whose
// results are never read, iterating until nothing more can be removed.
// Minimal phi insertion leaves a dead phi behind every loop-carried
// temporary, and those block later loop analysis. A phi whose only
// reader is its own back-edge operand counts as unread: the renamer
// produces such self-cycles for temporaries that live entirely inside
// one iteration.
func removeDeadInstructions(cfg *CFG) {
	for {
		uses := regUseCount(cfg)
		done := true

		cfg.AllNodes(func(bb *BasicBlock) {
			phi := bb.Phi[:0]
			for _, p := range bb.Phi {
				n := uses[p.R]
				for _, v := range p.V {
					if *v == p.R {
						n--
					}
				}
				if n <= 0 {
					done = false
				} else {
					phi = append(phi, p)
				}
			}
			bb.Phi = phi

			ins := bb.Ins[:0]
			for _, p := range bb.Ins {
				if isDeadInstruction(p, uses) {
					done = false
				} else {
					ins = append(ins, p)
				}
			}
			bb.Ins = ins
		})

		if done {
			break
		}
	}
}

func isDeadInstruction(p IrNode, uses map[Reg]int) bool {
	if _, ok := p.(IrImpure); ok {
		return false
	}
	if insCanThrow(p) {
		return false
	}
	def, ok := p.(IrDefinitions)
	if !ok {
		return false
	}
	for _, r := range def.Definitions() {
		if uses[*r] != 0 {
			return false
		}
	}
	return true
}
