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
	"testing"

	"github.com/oakvm/oakjit/bytecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopOptCFG(t *testing.T, fn *bytecode.Method, cu *bytecode.CompileUnit) *CFG {
	cfg := buildSSA(t, fn, cu)
	Peephole{}.Apply(cfg)
	LoopOpt{}.Apply(cfg)
	return cfg
}

// returnDef resolves the register returned by the method to its defining
// instruction.
func returnDef(t *testing.T, cfg *CFG) IrNode {
	t.Helper()
	var r Reg
	found := false
	cfg.AllNodes(func(bb *BasicBlock) {
		if ret, ok := bb.Term.(*IrReturn); ok && len(ret.R) == 1 {
			r = ret.R[0]
			found = true
		}
	})
	require.True(t, found, "method must end in a single-value return")
	return regDefs(cfg)[r]
}

// A counted loop whose body only drives the counter vanishes entirely.
func TestLoopOpt_DeadLoopRemoved(t *testing.T) {
	cu := testUnit(testResolver{}, bytecode.DisableVectorize)
	cfg := loopOptCFG(t, countedMethod(bytecode.OP_if_ge, 10, 1), cu)

	assert.Len(t, findLoops(cfg), 0)
	eachIns(cfg, func(p IrNode) {
		_, ok := p.(*IrSuspendCheck)
		assert.False(t, ok, "the safepoint poll dies with the loop")
	})
}

// The counter's final value is a compile time constant, so returning it
// must not keep the loop alive.
func TestLoopOpt_InductionFinalValue(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "final",
		NumRegs: 2,
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_const, VA: 0, Lit: 0},
			{Op: bytecode.OP_const, VA: 1, Lit: 10},
			{Op: bytecode.OP_if_ge, VA: 0, VB: 1, Br: 5},
			{Op: bytecode.OP_add_lit, VA: 0, VB: 0, Lit: 1},
			{Op: bytecode.OP_goto, Br: 2},
			{Op: bytecode.OP_return, VA: 0},
		},
	}
	cu := testUnit(testResolver{}, bytecode.DisableVectorize)
	cfg := loopOptCFG(t, fn, cu)

	assert.Len(t, findLoops(cfg), 0)
	c, ok := returnDef(t, cfg).(*IrConstInt)
	require.True(t, ok, "the return value must collapse to a constant")
	assert.Equal(t, int64(10), c.V)
}

// A loop with an observable store stays, but the out-of-loop use of the
// counter is still folded to its final value.
func TestLoopOpt_EffectfulLoopKept(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "stores",
		NumRegs: 3,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_const, VA: 0, Lit: 0},
			{Op: bytecode.OP_const, VA: 1, Lit: 10},
			{Op: bytecode.OP_if_ge, VA: 0, VB: 1, Br: 6},
			{Op: bytecode.OP_iput, VA: 0, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_add_lit, VA: 0, VB: 0, Lit: 1},
			{Op: bytecode.OP_goto, Br: 2},
			{Op: bytecode.OP_return, VA: 0},
		},
	}
	cu := testUnit(testResolver{}, bytecode.DisableVectorize)
	cfg := loopOptCFG(t, fn, cu)

	assert.Len(t, findLoops(cfg), 1)
	c, ok := returnDef(t, cfg).(*IrConstInt)
	require.True(t, ok)
	assert.Equal(t, int64(10), c.V)
}

// A loop proven to run exactly once becomes straight-line code.
func TestLoopOpt_OneTripUnrolled(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "onetrip",
		NumRegs: 4,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_const, VA: 0, Lit: 0},
			{Op: bytecode.OP_const, VA: 1, Lit: 1},
			{Op: bytecode.OP_const, VA: 2, Lit: 7},
			{Op: bytecode.OP_if_ge, VA: 0, VB: 1, Br: 7},
			{Op: bytecode.OP_aput, VA: 2, VB: 3, VC: 0},
			{Op: bytecode.OP_add_lit, VA: 0, VB: 0, Lit: 1},
			{Op: bytecode.OP_goto, Br: 3},
			{Op: bytecode.OP_return_void},
		},
	}
	cu := testUnit(testResolver{}, bytecode.DisableVectorize)
	cfg := loopOptCFG(t, fn, cu)

	assert.Len(t, findLoops(cfg), 0)
	puts := 0
	eachIns(cfg, func(p IrNode) {
		if _, ok := p.(*IrArrayPut); ok {
			puts++
		}
	})
	assert.Equal(t, 1, puts, "the store must survive the unroll")
	cfg.AllNodes(func(bb *BasicBlock) {
		assert.Len(t, bb.Phi, 0)
	})
}

// A bottom-tested loop runs its body once more than the counter phi
// advances. It must not be straightened into a single trip, and the
// counter's value after the loop is the incremented one.
func TestLoopOpt_BottomTestedLoop(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "bottomtest",
		NumRegs: 4,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_const, VA: 0, Lit: 0},
			{Op: bytecode.OP_const, VA: 1, Lit: 2},
			{Op: bytecode.OP_iput, VA: 0, VB: 3, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_add_lit, VA: 0, VB: 0, Lit: 1},
			{Op: bytecode.OP_if_lt, VA: 0, VB: 1, Br: 2},
			{Op: bytecode.OP_return, VA: 0},
		},
	}
	cu := testUnit(testResolver{}, bytecode.DisableVectorize)
	cfg := loopOptCFG(t, fn, cu)

	assert.Len(t, findLoops(cfg), 1, "two stores execute, the loop must stay")
	puts := 0
	eachIns(cfg, func(p IrNode) {
		if _, ok := p.(*IrFieldPut); ok {
			puts++
		}
	})
	assert.Equal(t, 1, puts)
	c, ok := returnDef(t, cfg).(*IrConstInt)
	require.True(t, ok, "the counter after the loop is still a known constant")
	assert.Equal(t, int64(2), c.V)
}

// Debuggable compiles keep induction variables observable.
func TestLoopOpt_DebuggableKeepsLoop(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "debug",
		NumRegs: 2,
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_const, VA: 0, Lit: 0},
			{Op: bytecode.OP_const, VA: 1, Lit: 10},
			{Op: bytecode.OP_if_ge, VA: 0, VB: 1, Br: 5},
			{Op: bytecode.OP_add_lit, VA: 0, VB: 0, Lit: 1},
			{Op: bytecode.OP_goto, Br: 2},
			{Op: bytecode.OP_return, VA: 0},
		},
	}
	cu := testUnit(testResolver{}, bytecode.DisableVectorize)
	cu.Debuggable = true
	cfg := loopOptCFG(t, fn, cu)

	assert.Len(t, findLoops(cfg), 1)
}

func TestLoopOpt_Disabled(t *testing.T) {
	cu := testUnit(testResolver{}, bytecode.DisableLoopOpt)
	cfg := loopOptCFG(t, countedMethod(bytecode.OP_if_ge, 10, 1), cu)
	assert.Len(t, findLoops(cfg), 1)
}
