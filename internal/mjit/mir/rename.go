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

type _Renamer struct {
	count map[Reg]int
	stack map[Reg][]int
}

func newRenamer() _Renamer {
	return _Renamer{
		count: make(map[Reg]int),
		stack: make(map[Reg][]int),
	}
}

func (self _Renamer) popr(r Reg) {
	if n := len(self.stack[r]); n != 0 {
		self.stack[r] = self.stack[r][:n-1]
	}
}

func (self _Renamer) topr(r Reg) int {
	if n := len(self.stack[r]); n == 0 {
		return 0
	} else {
		return self.stack[r][n-1]
	}
}

func (self _Renamer) pushr(r Reg) (i int) {
	i = self.count[r]
	self.count[r] = i + 1
	self.stack[r] = append(self.stack[r], i)
	return
}

func (self _Renamer) renameuses(ins IrNode) {
	if u, ok := ins.(IrUsages); ok {
		for _, a := range u.Usages() {
			if a.Kind() != K_zero {
				*a = a.Derive(self.topr(*a))
			}
		}
	}
}

func (self _Renamer) renamedefs(ins IrNode, buf *[]Reg) {
	if s, ok := ins.(IrDefinitions); ok {
		for _, def := range s.Definitions() {
			if def.Kind() != K_zero {
				*buf = append(*buf, *def)
				*def = def.Derive(self.pushr(*def))
			}
		}
	}
}

func (self _Renamer) renameblock(cfg *CFG, bb *BasicBlock) {
	var r Reg
	var d []Reg
	var n IrNode

	/* rename Phi nodes */
	for _, n = range bb.Phi {
		self.renamedefs(n, &d)
	}

	/* rename body */
	for _, n = range bb.Ins {
		self.renameuses(n)
		self.renamedefs(n, &d)
	}

	/* rename terminators */
	self.renameuses(bb.Term)

	/* rename all the Phi nodes of its successors */
	bb.successors(func(sb *BasicBlock) {
		for _, phi := range sb.Phi {
			if v, ok := phi.V[bb]; ok && v.Kind() != K_zero {
				r = *v
				phi.V[bb] = regnewref(r.Derive(self.topr(r)))
			}
		}
	})

	/* rename all its children in the dominator tree */
	for _, p := range cfg.DominatorOf[bb.Id] {
		self.renameblock(cfg, p)
	}

	/* pop the definitions */
	for _, s := range d {
		self.popr(s)
	}
}

func renameRegisters(cfg *CFG) {
	rr := newRenamer()
	rr.renameblock(cfg, cfg.Root)
	normalizeRegisters(cfg)
}

func assignRegisters(rr []*Reg, rm map[Reg]Reg) {
	for _, r := range rr {
		if r.Kind() != K_zero {
			if _, ok := rm[*r]; ok {
				panic("rename: register redefined: " + r.String())
			} else {
				v := r.Normalize(len(rm))
				*r, rm[*r] = v, v
			}
		}
	}
}

func replaceRegisters(rr []*Reg, rm map[Reg]Reg) {
	for _, r := range rr {
		if r.Kind() != K_zero {
			if v, ok := rm[*r]; ok {
				*r = v
			} else {
				panic("rename: use of undefined register: " + r.String())
			}
		}
	}
}

func normalizeRegisters(cfg *CFG) {
	q := lane.NewQueue()
	r := make(map[Reg]Reg)

	/* find all the register definitions */
	for q.Enqueue(cfg.Root); !q.Empty(); {
		p := q.Dequeue().(*BasicBlock)
		addImmediateDominated(cfg.DominatorOf, p, q)

		/* assign Phi nodes */
		for _, n := range p.Phi {
			assignRegisters(n.Definitions(), r)
		}

		/* assign instructions */
		for _, n := range p.Ins {
			if d, ok := n.(IrDefinitions); ok {
				assignRegisters(d.Definitions(), r)
			}
		}
	}

	/* normalize each block */
	for q.Enqueue(cfg.Root); !q.Empty(); {
		p := q.Dequeue().(*BasicBlock)
		addImmediateDominated(cfg.DominatorOf, p, q)

		/* replace Phi nodes */
		for _, n := range p.Phi {
			replaceRegisters(n.Usages(), r)
		}

		/* replace instructions */
		for _, n := range p.Ins {
			if u, ok := n.(IrUsages); ok {
				replaceRegisters(u.Usages(), r)
			}
		}

		/* replace terminators */
		if u, ok := p.Term.(IrUsages); ok {
			replaceRegisters(u.Usages(), r)
		}
	}

	/* later passes allocate fresh registers after this point */
	cfg.maxreg = len(r)
}
