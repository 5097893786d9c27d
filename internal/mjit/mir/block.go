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
	"strings"
)

// BasicBlock is one node of the control flow graph. Catch, when set, is
// the exception successor covering the block's throwing instructions; it
// participates in predecessor lists and dominance like any other edge.
type BasicBlock struct {
	Id      int
	Phi     []*IrPhi
	Ins     []IrNode
	Pred    []*BasicBlock
	Term    IrTerminator
	Catch   *BasicBlock
	visited bool
}

func (self *BasicBlock) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "bb_%d:\n", self.Id)
	for _, p := range self.Phi {
		fmt.Fprintf(&sb, "    %s\n", p)
	}
	for _, p := range self.Ins {
		fmt.Fprintf(&sb, "    %s\n", p)
	}
	if self.Term != nil {
		fmt.Fprintf(&sb, "    %s\n", self.Term)
	}
	if self.Catch != nil {
		fmt.Fprintf(&sb, "    catch => bb_%d\n", self.Catch.Id)
	}
	return sb.String()
}

func (self *BasicBlock) termBranch(to *BasicBlock) {
	self.Term = &IrSwitch{Ln: to}
}

func (self *BasicBlock) termCondition(v Reg, t *BasicBlock, f *BasicBlock) {
	self.Term = &IrSwitch{V: v, Ln: f, Br: map[int64]*BasicBlock{1: t}}
}

// successors enumerates every outgoing edge, including the catch edge.
func (self *BasicBlock) successors(fn func(*BasicBlock)) {
	if self.Term != nil {
		for it := self.Term.Successors(); it.Next(); {
			fn(it.Block())
		}
	}
	if self.Catch != nil {
		fn(self.Catch)
	}
}

// ReplaceSuccessor rewrites every edge from self to old so it points at
// rb instead. Phi operands in old are not touched; callers own those.
func (self *BasicBlock) ReplaceSuccessor(old *BasicBlock, rb *BasicBlock) {
	if self.Catch == old {
		self.Catch = rb
	}
	switch tr := self.Term.(type) {
	case *IrSwitch:
		if tr.Ln == old {
			tr.Ln = rb
		}
		for k, v := range tr.Br {
			if v == old {
				tr.Br[k] = rb
			}
		}
	case *IrCmpBranch:
		if tr.To == old {
			tr.To = rb
		}
		if tr.Ln == old {
			tr.Ln = rb
		}
	}
}

func (self *BasicBlock) delPred(bb *BasicBlock) {
	for i, p := range self.Pred {
		if p == bb {
			self.Pred = append(self.Pred[:i], self.Pred[i+1:]...)
			break
		}
	}
	for _, phi := range self.Phi {
		delete(phi.V, bb)
	}
}

// InsertAt splices p into the instruction list at position i.
func (self *BasicBlock) InsertAt(i int, p IrNode) {
	self.Ins = append(self.Ins, nil)
	copy(self.Ins[i+1:], self.Ins[i:])
	self.Ins[i] = p
}

// RemoveRange deletes instructions [i, j) from the block body.
func (self *BasicBlock) RemoveRange(i int, j int) {
	self.Ins = append(self.Ins[:i], self.Ins[j:]...)
}

// canThrow reports whether any instruction may still raise at runtime,
// accounting for checks already proven redundant.
func (self *BasicBlock) canThrow() bool {
	for _, v := range self.Ins {
		if insCanThrow(v) {
			return true
		}
	}
	return false
}

func insCanThrow(v IrNode) bool {
	switch p := v.(type) {
	case *IrNewInstance, *IrNewArray, *IrInvoke:
		return true
	case *IrBinaryExpr:
		return p.Op == IrOpDiv
	case *IrArrayLength:
		return !p.Flags.Has(NullCheckElided)
	case *IrArrayGet:
		return !p.Flags.Has(NullCheckElided) || !p.Flags.Has(RangeCheckElided)
	case *IrArrayPut:
		return !p.Flags.Has(NullCheckElided) || !p.Flags.Has(RangeCheckElided)
	case *IrFieldGet:
		return !p.Flags.Has(NullCheckElided)
	case *IrFieldPut:
		return !p.Flags.Has(NullCheckElided)
	case *IrStaticGet:
		return !p.Flags.Has(ClassInitElided)
	case *IrStaticPut:
		return !p.Flags.Has(ClassInitElided)
	default:
		return false
	}
}
