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

// _ClassIds dedups class identities across compile units. Resolved
// classes key by their declaring unit plus class index; unresolved
// accesses get a synthetic per-site identity that is never provably
// initialized.
type _ClassIds struct {
	cu    *bytecode.CompileUnit
	reps  []bytecode.TypeRef
	types map[bytecode.TypeRef]int
	fake  map[bytecode.FieldRef]int
	fakem map[bytecode.MethodRef]int
	init  []bool
}

func newClassIds(cu *bytecode.CompileUnit) *_ClassIds {
	return &_ClassIds{
		cu:    cu,
		types: make(map[bytecode.TypeRef]int),
		fake:  make(map[bytecode.FieldRef]int),
		fakem: make(map[bytecode.MethodRef]int),
	}
}

func (self *_ClassIds) count() int {
	return len(self.init)
}

func (self *_ClassIds) ofType(tr bytecode.TypeRef) int {
	if id, ok := self.types[tr]; ok {
		return id
	}

	/* refs from different units may alias one loaded class */
	for id, rep := range self.reps {
		if self.cu.Resolver.SameClass(tr, rep) {
			self.types[tr] = id
			return id
		}
	}

	id := len(self.init)
	self.reps = append(self.reps, tr)
	self.types[tr] = id
	self.init = append(self.init, self.cu.Resolver.IsInitialized(tr))
	return id
}

func (self *_ClassIds) ofField(fr bytecode.FieldRef) int {
	if id, ok := self.fake[fr]; ok {
		return id
	}
	id := len(self.init)
	self.fake[fr] = id
	self.init = append(self.init, false)
	return id
}

func (self *_ClassIds) ofMethod(mr bytecode.MethodRef) int {
	if id, ok := self.fakem[mr]; ok {
		return id
	}
	id := len(self.init)
	self.fakem[mr] = id
	self.init = append(self.init, false)
	return id
}

// classOf maps a static access site to its class identity, or -1 when
// the node carries no class initialization check.
func (self *_ClassIds) classOf(p IrNode) int {
	switch v := p.(type) {
	case *IrNewInstance:
		return self.ofType(v.Class)
	case *IrStaticGet:
		if v.Field.Resolved {
			return self.ofType(v.Class)
		}
		return self.ofField(v.Ref)
	case *IrStaticPut:
		if v.Field.Resolved {
			return self.ofType(v.Class)
		}
		return self.ofField(v.Ref)
	case *IrInvoke:
		if v.Kind != IrInvokeStatic {
			return -1
		}
		if v.Method.Resolved {
			return self.ofType(v.Method.Declaring)
		}
		return self.ofMethod(v.Ref)
	default:
		return -1
	}
}

// ClassInitElim removes redundant class initialization checks with the
// same any-path union dataflow as NullCheckElim, over two bits per
// class: still-needs-init and still-needs-cache-load.
type ClassInitElim struct {
	ids       *_ClassIds
	out       map[int]*bitset.BitSet
	markInit  map[IrNode]struct{}
	markCache map[IrNode]struct{}
}

func (self *ClassInitElim) Name() string {
	return "Class Init Check Elimination"
}

func (self *ClassInitElim) Order() TraversalOrder {
	return TraverseReversePostOrder
}

func (self *ClassInitElim) Gate(cfg *CFG) bool {
	if cfg.Unit.Disable.Has(bytecode.DisableClassInitElim) {
		return false
	}
	ids := newClassIds(cfg.Unit)
	found := false
	cfg.AllNodes(func(bb *BasicBlock) {
		for _, p := range bb.Ins {
			if ids.classOf(p) >= 0 {
				found = true
			}
		}
	})
	return found
}

func (self *ClassInitElim) Start(cfg *CFG) {
	self.ids = newClassIds(cfg.Unit)
	self.out = make(map[int]*bitset.BitSet, len(cfg.Blocks))
	self.markInit = make(map[IrNode]struct{})
	self.markCache = make(map[IrNode]struct{})

	/* assign identities up front so the lattice width is fixed */
	cfg.AllNodes(func(bb *BasicBlock) {
		for _, p := range bb.Ins {
			if self.ids.classOf(p) >= 0 {
				cfg.Stats.InitChecks++
			}
		}
	})
}

/* bit layout: class c occupies bits 2c (needs init) and 2c+1 (needs cache load) */

func (self *ClassInitElim) entryState() *bitset.BitSet {
	n := self.ids.count()
	st := bitset.New(uint(2 * n))
	for c := 0; c < n; c++ {
		if !self.ids.init[c] {
			st.Set(uint(2 * c))
			st.Set(uint(2*c + 1))
		}
	}
	return st
}

func (self *ClassInitElim) RunOnBlock(cfg *CFG, bb *BasicBlock) bool {
	var st *bitset.BitSet

	/* copy the first computed predecessor, union the rest */
	for _, p := range bb.Pred {
		ps, ok := self.out[p.Id]
		if !ok {
			continue
		}
		if st == nil {
			st = ps.Clone()
		} else {
			st.InPlaceUnion(ps)
		}
	}
	if st == nil {
		st = self.entryState()
	}

	for _, p := range bb.Ins {
		c := self.ids.classOf(p)
		if c < 0 {
			continue
		}
		bi, bc := uint(2*c), uint(2*c+1)

		if !st.Test(bi) {
			self.markInit[p] = struct{}{}
		} else {
			delete(self.markInit, p)
		}
		if !st.Test(bc) {
			self.markCache[p] = struct{}{}
		} else {
			delete(self.markCache, p)
		}

		/* the surviving check initializes the class for all later uses */
		st.Clear(bi)
		st.Clear(bc)
	}

	if prev, ok := self.out[bb.Id]; ok && prev.Equal(st) {
		return false
	}
	self.out[bb.Id] = st
	return true
}

func (self *ClassInitElim) End(cfg *CFG) {
	for p := range self.markInit {
		if c, ok := p.(IrChecked); ok {
			*c.OptFlags() |= ClassInitElided
			cfg.Stats.InitElided++
		}
	}
	for p := range self.markCache {
		if c, ok := p.(IrChecked); ok {
			*c.OptFlags() |= ClassInCacheElided
		}
	}
	self.ids = nil
	self.out = nil
	self.markInit = nil
	self.markCache = nil
}

func (self *ClassInitElim) Apply(cfg *CFG) {
	RunToFixPoint(cfg, self)
}
