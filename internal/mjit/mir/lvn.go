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
	"fmt"

	"github.com/bytedance/gopkg/util/logger"
)

// _MaxValueEntries bounds the value table. Methods large enough to
// overflow it abort value numbering instead of crashing.
const _MaxValueEntries = 4096

/* the epoch alias class is clobbered by anything that can run user code */
const _AliasEpoch = "@all"

// _ValueTable maps value identities to the canonical register holding
// them, with per-alias-class memory versions so stores invalidate the
// loads they may alias. Versions are site tokens derived from block and
// instruction identity, so re-evaluating a block against the same
// incoming state reproduces the same outgoing state and the global
// fixed point converges.
type _ValueTable struct {
	good bool
	vals map[string]Reg
	mem  map[string]string
}

func newValueTable() *_ValueTable {
	return &_ValueTable{
		good: true,
		vals: make(map[string]Reg),
		mem:  make(map[string]string),
	}
}

func (self *_ValueTable) clone() *_ValueTable {
	r := newValueTable()
	r.good = self.good
	for k, v := range self.vals {
		r.vals[k] = v
	}
	for k, v := range self.mem {
		r.mem[k] = v
	}
	return r
}

func (self *_ValueTable) equal(other *_ValueTable) bool {
	if other == nil || self.good != other.good {
		return false
	}
	if len(self.vals) != len(other.vals) || len(self.mem) != len(other.mem) {
		return false
	}
	for k, v := range self.vals {
		if w, ok := other.vals[k]; !ok || w != v {
			return false
		}
	}
	for k, v := range self.mem {
		if w, ok := other.mem[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// merge intersects the other table into this one at the merge site
// named by at. A value survives only when both sides agree on its
// canonical register; with strict SSA that register's unique definition
// then lies on every incoming path, so it dominates the merge point and
// the replacement stays sound. Disagreeing memory versions collapse to
// the merge site's own token.
func (self *_ValueTable) merge(other *_ValueTable, at string) {
	for k, v := range self.vals {
		if w, ok := other.vals[k]; !ok || w != v {
			delete(self.vals, k)
		}
	}
	for k, v := range self.mem {
		if w, ok := other.mem[k]; !ok || w != v {
			self.mem[k] = at
		}
	}
	for k := range other.mem {
		if _, ok := self.mem[k]; !ok {
			self.mem[k] = at
		}
	}
	self.good = self.good && other.good
}

func (self *_ValueTable) ver(key string) string {
	return self.mem[key]
}

func (self *_ValueTable) bump(key string, at string) {
	self.mem[key] = at
}

func (self *_ValueTable) define(vid string, r Reg) {
	if len(self.vals) >= _MaxValueEntries {
		self.good = false
		return
	}
	if _, ok := self.vals[vid]; !ok {
		self.vals[vid] = r
	}
}

// vid computes the value identity of a pure (or memory-reading) node,
// or ok=false for nodes that cannot be numbered.
func (self *_ValueTable) vid(p IrNode) (string, *Reg, bool) {
	switch v := p.(type) {
	case *IrConstInt:
		return fmt.Sprintf("$%d", v.V), &v.R, true

	case *IrLoadArg:
		return fmt.Sprintf("#%d", v.Id), &v.R, true

	case *IrUnaryExpr:
		return fmt.Sprintf("(%s %s)", v.Op, v.V), &v.R, true

	case *IrBinaryExpr:
		x, y := v.X, v.Y
		if v.Op.IsCommutative() && x > y {
			x, y = y, x
		}
		return fmt.Sprintf("(%s %s %s)", v.Op, x, y), &v.R, true

	case *IrCompare:
		return fmt.Sprintf("(cmp %s %s)", v.X, v.Y), &v.R, true

	case *IrSelect:
		return fmt.Sprintf("(sel %s %s %s)", v.Cond, v.T, v.F), &v.R, true

	case *IrArrayLength:
		return fmt.Sprintf("(len %s)", v.Arr), &v.R, true

	case *IrFieldGet:
		if !v.Field.Resolved || v.Field.Volatile {
			return "", nil, false
		}
		key := fmt.Sprintf("f%d.%d@%d", v.Field.Declaring.Unit, v.Field.Declaring.Index, v.Field.Offset)
		id := fmt.Sprintf("(iget %s %s e%s v%s)", key, v.Obj, self.ver(_AliasEpoch), self.ver(key))
		return id, &v.R, true

	case *IrStaticGet:
		if !v.Field.Resolved || v.Field.Volatile {
			return "", nil, false
		}
		key := fmt.Sprintf("s%d.%d@%d", v.Class.Unit, v.Class.Index, v.Field.Offset)
		id := fmt.Sprintf("(sget %s e%s v%s)", key, self.ver(_AliasEpoch), self.ver(key))
		return id, &v.R, true

	case *IrArrayGet:
		key := fmt.Sprintf("a%d", v.Elem)
		id := fmt.Sprintf("(aget %s %s e%s v%s)", v.Arr, v.Idx, self.ver(_AliasEpoch), self.ver(key))
		return id, &v.R, true

	default:
		return "", nil, false
	}
}

// effects applies a node's memory side effects to the version state,
// stamping the clobbered classes with the site token at.
func (self *_ValueTable) effects(p IrNode, at string) {
	switch v := p.(type) {
	case *IrFieldPut:
		if v.Field.Resolved {
			self.bump(fmt.Sprintf("f%d.%d@%d", v.Field.Declaring.Unit, v.Field.Declaring.Index, v.Field.Offset), at)
		} else {
			self.bump(_AliasEpoch, at)
		}
	case *IrStaticPut:
		if v.Field.Resolved {
			self.bump(fmt.Sprintf("s%d.%d@%d", v.Class.Unit, v.Class.Index, v.Field.Offset), at)
		} else {
			self.bump(_AliasEpoch, at)
		}
	case *IrArrayPut:
		self.bump(fmt.Sprintf("a%d", v.Elem), at)
	case *IrInvoke:
		self.bump(_AliasEpoch, at)
	case *IrNewInstance:
		/* allocation may run a class initializer */
		self.bump(_AliasEpoch, at)
	case *IrFieldGet:
		if !v.Field.Resolved {
			self.bump(_AliasEpoch, at)
		}
	case *IrStaticGet:
		if !v.Field.Resolved {
			self.bump(_AliasEpoch, at)
		}
	}
}

// step value-numbers one block against the table. With rewrite set,
// redundant definitions collapse into copies from the canonical
// register, and a later dead-code sweep removes the copies.
func (self *_ValueTable) step(bb *BasicBlock, rewrite bool) bool {
	changed := false
	for i, p := range bb.Ins {
		if id, def, ok := self.vid(p); ok {
			if r, hit := self.vals[id]; hit && r != *def {
				if rewrite {
					bb.Ins[i] = IrCopy(*def, r)
					changed = true
				}
			} else {
				self.define(id, *def)
			}
		}
		self.effects(p, fmt.Sprintf("b%d.%d", bb.Id, i))
		if !self.good {
			return changed
		}
	}
	return changed
}

// LVN eliminates straight-line redundancy over extended basic blocks: a
// value table flows down every single-predecessor chain, forking at
// branch points.
type LVN struct{}

func (self LVN) Apply(cfg *CFG) {
	if cfg.lvnDisabled {
		return
	}
	good := true

	var walk func(bb *BasicBlock, tb *_ValueTable)
	walk = func(bb *BasicBlock, tb *_ValueTable) {
		tb.step(bb, true)
		if !tb.good {
			good = false
			return
		}
		bb.successors(func(p *BasicBlock) {
			if len(p.Pred) == 1 {
				walk(p, tb.clone())
			}
		})
	}

	cfg.AllNodes(func(bb *BasicBlock) {
		if good && len(bb.Pred) != 1 {
			walk(bb, newValueTable())
		}
	})

	if !good {
		logger.Warnf("mir: %s: local value numbering overflow, aborted", cfg.Method.Name)
	}
}
