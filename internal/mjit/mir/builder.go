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
	"github.com/oakvm/oakjit/bytecode"
	"github.com/oakvm/oakjit/isa"
)

var _BinaryOps = [bytecode.OP_max]IrBinaryOp{
	bytecode.OP_add:  IrOpAdd,
	bytecode.OP_sub:  IrOpSub,
	bytecode.OP_mul:  IrOpMul,
	bytecode.OP_div:  IrOpDiv,
	bytecode.OP_and:  IrOpAnd,
	bytecode.OP_or:   IrOpOr,
	bytecode.OP_xor:  IrOpXor,
	bytecode.OP_shl:  IrOpShl,
	bytecode.OP_shr:  IrOpShr,
	bytecode.OP_ushr: IrOpUshr,
}

var _CompareOps = [bytecode.OP_max]IrBinaryOp{
	bytecode.OP_if_eq:  IrCmpEq,
	bytecode.OP_if_ne:  IrCmpNe,
	bytecode.OP_if_lt:  IrCmpLt,
	bytecode.OP_if_ge:  IrCmpGe,
	bytecode.OP_if_gt:  IrCmpGt,
	bytecode.OP_if_le:  IrCmpLe,
	bytecode.OP_if_eqz: IrCmpEq,
	bytecode.OP_if_nez: IrCmpNe,
	bytecode.OP_if_ltz: IrCmpLt,
	bytecode.OP_if_gez: IrCmpGe,
	bytecode.OP_if_gtz: IrCmpGt,
	bytecode.OP_if_lez: IrCmpLe,
}

func vreg(i uint16, ref bool) Reg {
	if ref {
		return Pv(i)
	}
	return Rv(i)
}

type _GraphBuilder struct {
	fn   *bytecode.Method
	cu   *bytecode.CompileUnit
	nb   int
	bbs  map[int32]*BasicBlock
	lead map[int32]bool
}

func newGraphBuilder(fn *bytecode.Method, cu *bytecode.CompileUnit) *_GraphBuilder {
	return &_GraphBuilder{
		fn:   fn,
		cu:   cu,
		bbs:  make(map[int32]*BasicBlock),
		lead: make(map[int32]bool),
	}
}

func (self *_GraphBuilder) newBlock() *BasicBlock {
	self.nb++
	return &BasicBlock{Id: self.nb}
}

// blockAt returns the block led by instruction index i, creating it on
// first use. Targets outside the method body are malformed input.
func (self *_GraphBuilder) blockAt(i int32) *BasicBlock {
	if i < 0 || i >= int32(len(self.fn.Code)) {
		panic(fmt.Sprintf("builder: branch target %d outside of method body", i))
	}
	if bb, ok := self.bbs[i]; ok {
		return bb
	}
	bb := self.newBlock()
	self.bbs[i] = bb
	return bb
}

// handler returns the catch entry point covering instruction i, or -1.
// Later ranges take precedence, matching innermost-try nesting order.
func (self *_GraphBuilder) handler(i int32) int32 {
	r := int32(-1)
	for _, t := range self.fn.Tries {
		if i >= t.Start && i < t.End {
			r = t.Handler
		}
	}
	return r
}

func (self *_GraphBuilder) markLeaders() {
	code := self.fn.Code
	mark := func(i int32) {
		if i >= 0 && int(i) < len(code) {
			self.lead[i] = true
		}
	}

	mark(0)
	for i, v := range code {
		switch {
		case v.Op == bytecode.OP_goto:
			mark(v.Br)
			mark(int32(i) + 1)
		case v.Op == bytecode.OP_switch:
			for _, t := range v.Sw {
				mark(t)
			}
			mark(int32(i) + 1)
		case v.Op.IsConditional():
			mark(v.Br)
			mark(int32(i) + 1)
		case v.Op.IsReturn() || v.Op == bytecode.OP_throw:
			mark(int32(i) + 1)
		case v.Op.CanThrow() && self.handler(int32(i)) >= 0:
			mark(int32(i) + 1)
		}
	}
	for _, t := range self.fn.Tries {
		mark(t.Handler)
	}
}

func (self *_GraphBuilder) build() *CFG {
	self.markLeaders()

	/* the root block implicitly defines every virtual register, then
	 * loads the incoming arguments over the parameter registers */
	root := self.newBlock()
	for i := uint16(0); i < self.fn.NumRegs; i++ {
		root.Ins = append(root.Ins,
			&IrConstInt{R: Rv(i), V: 0},
			IrCopy(Pv(i), Pn),
		)
	}
	base := self.fn.FirstInReg()
	for j := uint16(0); j < self.fn.NumIns; j++ {
		ref := int(j) < len(self.fn.InsRef) && self.fn.InsRef[j]
		root.Ins = append(root.Ins, &IrLoadArg{
			R:  vreg(base+j, ref),
			Id: int(j),
		})
	}
	root.termBranch(self.blockAt(0))

	/* translate every instruction into its leader's block */
	var cur *BasicBlock
	for i := range self.fn.Code {
		if self.lead[int32(i)] {
			nb := self.blockAt(int32(i))
			if cur != nil && cur.Term == nil {
				cur.termBranch(nb)
			}
			cur = nb
		}
		if cur == nil {
			panic(fmt.Sprintf("builder: unreachable instruction %d has no leader", i))
		}
		self.translate(cur, int32(i))
	}
	if cur != nil && cur.Term == nil {
		panic("builder: method body does not terminate")
	}

	cfg := newCFG(root, self.fn, self.cu)
	cfg.maxid = self.nb
	cfg.Rebuild()
	return cfg
}

// catchOn attaches the exception edge for a throwing instruction. The
// leader marking pass guarantees at most one throwing instruction per
// block inside a try range.
func (self *_GraphBuilder) catchOn(bb *BasicBlock, i int32) {
	if h := self.handler(i); h >= 0 {
		bb.Catch = self.blockAt(h)
	}
}

// suspendOn inserts a safepoint poll ahead of backward branches.
func suspendOn(bb *BasicBlock, from int32, to int32) {
	if to <= from {
		bb.Ins = append(bb.Ins, &IrSuspendCheck{})
	}
}

func (self *_GraphBuilder) translate(bb *BasicBlock, i int32) {
	v := &self.fn.Code[i]
	switch v.Op {
	default:
		panic(fmt.Sprintf("builder: invalid opcode %d at %d", v.Op, i))

	case bytecode.OP_nop:
		break

	case bytecode.OP_const:
		bb.Ins = append(bb.Ins, &IrConstInt{R: Rv(v.VA), V: v.Lit})

	case bytecode.OP_const_null:
		bb.Ins = append(bb.Ins, IrCopy(Pv(v.VA), Pn))

	case bytecode.OP_move:
		bb.Ins = append(bb.Ins, IrCopy(Rv(v.VA), Rv(v.VB)))

	case bytecode.OP_move_object:
		bb.Ins = append(bb.Ins, IrCopy(Pv(v.VA), Pv(v.VB)))

	case bytecode.OP_move_result, bytecode.OP_move_result_object:
		if i > 0 && self.fn.Code[i-1].Op.IsInvoke() && !self.lead[i] {
			break
		}

		/* the verifier normally guarantees adjacency; tolerate the
		 * violation with an undefined result instead of aborting */
		logger.Warnf("mir: %s: move-result at %d without adjacent invoke", self.fn.Name, i)
		if v.Op == bytecode.OP_move_result_object {
			bb.Ins = append(bb.Ins, IrCopy(Pv(v.VA), Pn))
		} else {
			bb.Ins = append(bb.Ins, &IrConstInt{R: Rv(v.VA), V: 0})
		}

	case bytecode.OP_neg:
		bb.Ins = append(bb.Ins, &IrUnaryExpr{R: Rv(v.VA), V: Rv(v.VB), Op: IrOpNegate})

	case bytecode.OP_not:
		bb.Ins = append(bb.Ins, &IrUnaryExpr{R: Rv(v.VA), V: Rv(v.VB), Op: IrOpBitwiseNot})

	case bytecode.OP_add, bytecode.OP_sub, bytecode.OP_mul, bytecode.OP_div,
		bytecode.OP_and, bytecode.OP_or, bytecode.OP_xor,
		bytecode.OP_shl, bytecode.OP_shr, bytecode.OP_ushr:
		if v.Op == bytecode.OP_div {
			self.catchOn(bb, i)
		}
		bb.Ins = append(bb.Ins, &IrBinaryExpr{
			R:  Rv(v.VA),
			X:  Rv(v.VB),
			Y:  Rv(v.VC),
			Op: _BinaryOps[v.Op],
		})

	case bytecode.OP_add_lit, bytecode.OP_mul_lit:
		op := IrOpAdd
		if v.Op == bytecode.OP_mul_lit {
			op = IrOpMul
		}
		bb.Ins = append(bb.Ins,
			&IrConstInt{R: Tr(0), V: v.Lit},
			&IrBinaryExpr{R: Rv(v.VA), X: Rv(v.VB), Y: Tr(0), Op: op},
		)

	case bytecode.OP_cmp:
		bb.Ins = append(bb.Ins, &IrCompare{R: Rv(v.VA), X: Rv(v.VB), Y: Rv(v.VC)})

	case bytecode.OP_if_eq, bytecode.OP_if_ne, bytecode.OP_if_lt,
		bytecode.OP_if_ge, bytecode.OP_if_gt, bytecode.OP_if_le:
		refa := v.Refs&bytecode.RefA != 0
		refb := v.Refs&bytecode.RefB != 0
		bb.Ins = append(bb.Ins, &IrBinaryExpr{
			R:  Tr(0),
			X:  vreg(v.VA, refa),
			Y:  vreg(v.VB, refb),
			Op: _CompareOps[v.Op],
		})
		suspendOn(bb, i, v.Br)
		bb.termCondition(Tr(0), self.blockAt(v.Br), self.blockAt(i+1))

	case bytecode.OP_if_eqz, bytecode.OP_if_nez, bytecode.OP_if_ltz,
		bytecode.OP_if_gez, bytecode.OP_if_gtz, bytecode.OP_if_lez:
		refa := v.Refs&bytecode.RefA != 0
		x := vreg(v.VA, refa)
		bb.Ins = append(bb.Ins, &IrBinaryExpr{
			R:  Tr(0),
			X:  x,
			Y:  x.Zero(),
			Op: _CompareOps[v.Op],
		})
		suspendOn(bb, i, v.Br)
		bb.termCondition(Tr(0), self.blockAt(v.Br), self.blockAt(i+1))

	case bytecode.OP_goto:
		suspendOn(bb, i, v.Br)
		bb.termBranch(self.blockAt(v.Br))

	case bytecode.OP_switch:
		br := make(map[int64]*BasicBlock, len(v.Sw))
		for k, t := range v.Sw {
			br[v.Lit+int64(k)] = self.blockAt(t)
		}
		bb.Term = &IrSwitch{V: Rv(v.VA), Ln: self.blockAt(i + 1), Br: br}

	case bytecode.OP_new_instance:
		self.catchOn(bb, i)
		bb.Ins = append(bb.Ins, &IrNewInstance{R: Pv(v.VA), Class: v.Class})

	case bytecode.OP_new_array:
		self.catchOn(bb, i)
		bb.Ins = append(bb.Ins, &IrNewArray{R: Pv(v.VA), Len: Rv(v.VB), Elem: v.Elem})

	case bytecode.OP_array_length:
		self.catchOn(bb, i)
		bb.Ins = append(bb.Ins, &IrArrayLength{R: Rv(v.VA), Arr: Pv(v.VB)})

	case bytecode.OP_aget:
		self.catchOn(bb, i)
		bb.Ins = append(bb.Ins, &IrArrayGet{
			R:    vreg(v.VA, v.Elem == isa.Ref),
			Arr:  Pv(v.VB),
			Idx:  Rv(v.VC),
			Elem: v.Elem,
		})

	case bytecode.OP_aput:
		self.catchOn(bb, i)
		bb.Ins = append(bb.Ins, &IrArrayPut{
			Arr:  Pv(v.VB),
			Idx:  Rv(v.VC),
			V:    vreg(v.VA, v.Elem == isa.Ref),
			Elem: v.Elem,
		})

	case bytecode.OP_iget, bytecode.OP_iget_object:
		self.catchOn(bb, i)
		bb.Ins = append(bb.Ins, &IrFieldGet{
			R:     vreg(v.VA, v.Op == bytecode.OP_iget_object),
			Obj:   Pv(v.VB),
			Field: self.cu.Resolver.ResolveField(v.Field),
		})

	case bytecode.OP_iput, bytecode.OP_iput_object:
		self.catchOn(bb, i)
		bb.Ins = append(bb.Ins, &IrFieldPut{
			Obj:   Pv(v.VB),
			V:     vreg(v.VA, v.Op == bytecode.OP_iput_object),
			Field: self.cu.Resolver.ResolveField(v.Field),
		})

	case bytecode.OP_sget:
		self.catchOn(bb, i)
		fi := self.cu.Resolver.ResolveField(v.Field)
		bb.Ins = append(bb.Ins, &IrStaticGet{
			R:     Rv(v.VA),
			Ref:   v.Field,
			Class: fi.Declaring,
			Field: fi,
		})

	case bytecode.OP_sput:
		self.catchOn(bb, i)
		fi := self.cu.Resolver.ResolveField(v.Field)
		bb.Ins = append(bb.Ins, &IrStaticPut{
			V:     Rv(v.VA),
			Ref:   v.Field,
			Class: fi.Declaring,
			Field: fi,
		})

	case bytecode.OP_invoke_virtual, bytecode.OP_invoke_direct, bytecode.OP_invoke_static:
		self.catchOn(bb, i)
		args := make([]Reg, 0, len(v.Args))
		for k, a := range v.Args {
			ref := k < len(v.ArgRef) && v.ArgRef[k]
			args = append(args, vreg(a, ref))
		}
		p := &IrInvoke{
			Kind:   invokeKind(v.Op),
			Method: self.cu.Resolver.ResolveMethod(v.Method),
			Ref:    v.Method,
			Args:   args,
		}

		/* fold an adjacent move-result into the call */
		if int(i+1) < len(self.fn.Code) && !self.lead[i+1] {
			if nx := &self.fn.Code[i+1]; nx.Op.IsMoveResult() {
				p.HasR = true
				p.R = vreg(nx.VA, nx.Op == bytecode.OP_move_result_object)
			}
		}
		bb.Ins = append(bb.Ins, p)

	case bytecode.OP_return_void:
		bb.Term = &IrReturn{}

	case bytecode.OP_return:
		bb.Term = &IrReturn{R: []Reg{Rv(v.VA)}}

	case bytecode.OP_return_object:
		bb.Term = &IrReturn{R: []Reg{Pv(v.VA)}}

	case bytecode.OP_throw:
		self.catchOn(bb, i)
		bb.Term = &IrThrow{V: Pv(v.VA)}
	}
}

func invokeKind(op bytecode.Op) IrInvokeKind {
	switch op {
	case bytecode.OP_invoke_virtual:
		return IrInvokeVirtual
	case bytecode.OP_invoke_direct:
		return IrInvokeDirect
	default:
		return IrInvokeStatic
	}
}
