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

// throwMethod puts the throw on the fallthrough side of the branch.
func throwMethod() *bytecode.Method {
	return &bytecode.Method{
		Name:    "mustbe",
		NumRegs: 2,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_if_eqz, VA: 0, Br: 2},
			{Op: bytecode.OP_throw, VA: 1},
			{Op: bytecode.OP_return_void},
		},
	}
}

func isThrowBlock(bb *BasicBlock) bool {
	_, ok := bb.Term.(*IrThrow)
	return ok
}

// condSwitch finds the single conditional switch in the graph.
func condSwitch(t *testing.T, cfg *CFG) *IrSwitch {
	t.Helper()
	var ret *IrSwitch
	cfg.AllNodes(func(bb *BasicBlock) {
		if sw, ok := bb.Term.(*IrSwitch); ok && len(sw.Br) != 0 {
			require.Nil(t, ret)
			ret = sw
		}
	})
	require.NotNil(t, ret)
	return ret
}

// The throw must end up on the taken edge so the straight-line path is
// the returning one.
func TestLayoutThrows_FlipsSwitch(t *testing.T) {
	cfg := buildSSA(t, throwMethod(), testUnit(testResolver{}, 0))
	LayoutThrows{}.Apply(cfg)

	sw := condSwitch(t, cfg)
	require.Len(t, sw.Br, 1)

	taken, ok := sw.Br[0]
	require.True(t, ok, "the flipped branch takes the zero key")
	assert.True(t, isThrowBlock(taken))
	assert.False(t, isThrowBlock(sw.Ln))
}

// Same shape after branch fusion: the compare-and-branch negates instead.
func TestLayoutThrows_NegatesCmpBranch(t *testing.T) {
	cfg := buildSSA(t, throwMethod(), testUnit(testResolver{}, 0))
	Peephole{}.Apply(cfg)
	LayoutThrows{}.Apply(cfg)

	var br *IrCmpBranch
	cfg.AllNodes(func(bb *BasicBlock) {
		if v, ok := bb.Term.(*IrCmpBranch); ok {
			br = v
		}
	})
	require.NotNil(t, br)
	assert.True(t, isThrowBlock(br.To))
	assert.False(t, isThrowBlock(br.Ln))
}

// The walk continues through straight-line blocks above the throw.
func TestLayoutThrows_WalksChain(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "chainthrow",
		NumRegs: 2,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_if_eqz, VA: 0, Br: 3},
			{Op: bytecode.OP_goto, Br: 2},
			{Op: bytecode.OP_throw, VA: 1},
			{Op: bytecode.OP_return_void},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	LayoutThrows{}.Apply(cfg)

	sw := condSwitch(t, cfg)
	_, ok := sw.Br[0]
	assert.True(t, ok, "the flip must reach through the goto chain")
	assert.False(t, isThrowBlock(sw.Ln))
}

func TestLayoutThrows_Disabled(t *testing.T) {
	cfg := buildSSA(t, throwMethod(), testUnit(testResolver{}, bytecode.DisableLayoutThrows))
	LayoutThrows{}.Apply(cfg)

	sw := condSwitch(t, cfg)
	_, ok := sw.Br[1]
	assert.True(t, ok, "the branch keeps its original sense")
}
