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
	"sort"
	"strings"

	"github.com/oakvm/oakjit/bytecode"
	"github.com/oleiade/lane"
)

type CFG struct {
	Root              *BasicBlock
	Depth             map[int]int
	Blocks            map[int]*BasicBlock
	DominatedBy       map[int]*BasicBlock
	DominatorOf       map[int][]*BasicBlock
	DominanceFrontier map[int][]*BasicBlock
	Unit              *bytecode.CompileUnit
	Method            *bytecode.Method
	Stats             CheckStats
	maxid             int
	maxreg            int
	lvnDisabled       bool
}

func newCFG(root *BasicBlock, fn *bytecode.Method, cu *bytecode.CompileUnit) *CFG {
	return &CFG{
		Root:              root,
		Unit:              cu,
		Method:            fn,
		Depth:             make(map[int]int),
		Blocks:            make(map[int]*BasicBlock),
		DominatedBy:       make(map[int]*BasicBlock),
		DominatorOf:       make(map[int][]*BasicBlock),
		DominanceFrontier: make(map[int][]*BasicBlock),
	}
}

// GetBasicBlock looks up a block by id. Dead or stale ids yield nil, and
// callers treat that as "no dataflow through this edge", not an error.
func (self *CFG) GetBasicBlock(id int) *BasicBlock {
	return self.Blocks[id]
}

func (self *CFG) CreateBlock() (bb *BasicBlock) {
	self.maxid++
	bb = &BasicBlock{Id: self.maxid}
	return
}

// CreateReg makes a fresh SSA register. Only valid after renaming; the
// new name never collides with normalized registers already in the graph.
func (self *CFG) CreateReg(ref bool) Reg {
	i := self.maxreg
	self.maxreg++
	if ref {
		return Pn.Normalize(i)
	}
	return Rz.Normalize(i)
}

// Rebuild recomputes predecessor lists, reachability, the dominator tree,
// the dominance frontier and the dominator tree depth. Unreachable blocks
// drop out of the block table; their ids become stale.
func (self *CFG) Rebuild() {
	for _, bb := range self.Blocks {
		bb.Pred = bb.Pred[:0]
	}

	/* rebuild the block table and predecessor lists with a DFS */
	blocks := make(map[int]*BasicBlock)
	stack := lane.NewStack()
	stack.Push(self.Root)
	blocks[self.Root.Id] = self.Root
	self.Root.Pred = self.Root.Pred[:0]

	for !stack.Empty() {
		bb := stack.Pop().(*BasicBlock)
		bb.successors(func(p *BasicBlock) {
			if _, ok := blocks[p.Id]; !ok {
				p.Pred = p.Pred[:0]
				blocks[p.Id] = p
				stack.Push(p)
			}
			p.Pred = append(p.Pred, bb)
		})
	}
	self.Blocks = blocks

	/* drop phi operands that no longer match an incoming edge, either
	 * because the predecessor died or because it was rewired elsewhere */
	for _, bb := range blocks {
		if len(bb.Phi) == 0 {
			continue
		}
		pred := make(map[*BasicBlock]bool, len(bb.Pred))
		for _, p := range bb.Pred {
			pred[p] = true
		}
		for _, phi := range bb.Phi {
			for p := range phi.V {
				if !pred[p] {
					delete(phi.V, p)
				}
			}
		}
	}

	/* recompute dominators */
	dt := buildDominatorTree(self.Root)
	self.DominatedBy = dt.DominatedBy
	self.DominatorOf = dt.DominatorOf
	self.DominanceFrontier = computeDominanceFrontier(dt, blocks)

	/* dominator tree depth */
	self.Depth = make(map[int]int, len(blocks))
	q := lane.NewQueue()
	q.Enqueue(self.Root)
	for !q.Empty() {
		p := q.Dequeue().(*BasicBlock)
		for _, v := range self.DominatorOf[p.Id] {
			self.Depth[v.Id] = self.Depth[p.Id] + 1
			q.Enqueue(v)
		}
	}

	if self.maxid < maxBlockId(blocks) {
		self.maxid = maxBlockId(blocks)
	}
}

func maxBlockId(blocks map[int]*BasicBlock) (r int) {
	for id := range blocks {
		if id > r {
			r = id
		}
	}
	return
}

// Dominates reports whether block a dominates block b.
func (self *CFG) Dominates(a *BasicBlock, b *BasicBlock) bool {
	for b != nil {
		if a == b {
			return true
		}
		b = self.DominatedBy[b.Id]
	}
	return false
}

// PostOrder visits every reachable block in dominator tree post-order.
func (self *CFG) PostOrder(action func(bb *BasicBlock)) {
	self.postorder(self.Root, action)
}

func (self *CFG) postorder(bb *BasicBlock, action func(bb *BasicBlock)) {
	for _, p := range self.DominatorOf[bb.Id] {
		self.postorder(p, action)
	}
	action(bb)
}

// ReversePostOrder visits every reachable block so that each block's
// dominator is visited before the block itself.
func (self *CFG) ReversePostOrder(action func(bb *BasicBlock)) {
	q := lane.NewQueue()
	q.Enqueue(self.Root)
	for !q.Empty() {
		p := q.Dequeue().(*BasicBlock)
		for _, v := range self.DominatorOf[p.Id] {
			q.Enqueue(v)
		}
		action(p)
	}
}

// PreOrderDFS walks the graph edges depth-first from the entry block.
func (self *CFG) PreOrderDFS(action func(bb *BasicBlock)) {
	v := map[int]struct{}{self.Root.Id: {}}
	s := lane.NewStack()
	s.Push(self.Root)
	for !s.Empty() {
		bb := s.Pop().(*BasicBlock)
		action(bb)
		bb.successors(func(p *BasicBlock) {
			if _, ok := v[p.Id]; !ok {
				v[p.Id] = struct{}{}
				s.Push(p)
			}
		})
	}
}

// AllNodes visits every live block in ascending id order. Blocks removed
// by the action while the walk is in flight are skipped.
func (self *CFG) AllNodes(action func(bb *BasicBlock)) {
	ids := make([]int, 0, len(self.Blocks))
	for id := range self.Blocks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if bb, ok := self.Blocks[id]; ok {
			action(bb)
		}
	}
}

// MergeBlocks folds b into a. The contract requires b to be a's sole
// successor and a to be b's sole predecessor; when the precondition does
// not hold the merge is a defensive no-op reporting false.
func (self *CFG) MergeBlocks(a *BasicBlock, b *BasicBlock) bool {
	sw, ok := a.Term.(*IrSwitch)
	if !ok || len(sw.Br) != 0 || sw.Ln != b {
		return false
	}
	if len(b.Pred) != 1 || b.Pred[0] != a || len(b.Phi) != 0 {
		return false
	}
	if a.Catch != nil && b.Catch != nil && a.Catch != b.Catch {
		return false
	}

	/* splice the body and take over the terminator */
	a.Ins = append(a.Ins, b.Ins...)
	a.Term = b.Term
	if b.Catch != nil {
		a.Catch = b.Catch
	}

	/* rewire the successors' predecessor lists and phi operands */
	b.successors(func(rb *BasicBlock) {
		for i, p := range rb.Pred {
			if p == b {
				rb.Pred[i] = a
			}
		}
		for _, v := range rb.Phi {
			if r, ok := v.V[b]; ok {
				v.V[a] = r
				delete(v.V, b)
			}
		}
	})

	/* mark b dead */
	b.Pred = nil
	b.Term = nil
	b.Ins = nil
	b.Catch = nil
	delete(self.Blocks, b.Id)
	return true
}

// KillUnreachable voids a block whose predecessor set became empty, and
// recursively propagates death to successors it exclusively fed.
func (self *CFG) KillUnreachable(bb *BasicBlock) {
	if bb == self.Root || len(bb.Pred) != 0 {
		return
	}

	var succ []*BasicBlock
	bb.successors(func(p *BasicBlock) {
		succ = append(succ, p)
	})

	/* void the block before touching the successors */
	bb.Ins = nil
	bb.Phi = nil
	bb.Term = nil
	bb.Catch = nil
	delete(self.Blocks, bb.Id)

	for _, p := range succ {
		p.delPred(bb)
		self.KillUnreachable(p)
	}
}

func (self *CFG) String() string {
	var sb strings.Builder
	self.AllNodes(func(bb *BasicBlock) {
		sb.WriteString(bb.String())
	})
	return sb.String()
}
