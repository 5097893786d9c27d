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

func countByType(cfg *CFG) (gets int, moves int) {
	eachIns(cfg, func(p IrNode) {
		switch p.(type) {
		case *IrFieldGet:
			gets++
		case *IrMove:
			moves++
		}
	})
	return
}

// Two loads of the same field with nothing in between collapse to one.
func TestGVN_RedundantLoad(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "reload",
		NumRegs: 3,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_iget, VA: 0, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_iget, VA: 1, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_add, VA: 0, VB: 0, VC: 1},
			{Op: bytecode.OP_return, VA: 0},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	new(GVN).Apply(cfg)

	gets, moves := countByType(cfg)
	assert.Equal(t, 1, gets, "the second load must become a copy")
	assert.GreaterOrEqual(t, moves, 1)
}

// A store to the same field kills the cached value.
func TestGVN_StoreClobbers(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "clobbered",
		NumRegs: 3,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_iget, VA: 0, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_iput, VA: 0, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_iget, VA: 1, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_return, VA: 1},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	new(GVN).Apply(cfg)

	gets, _ := countByType(cfg)
	assert.Equal(t, 2, gets, "the reload after the store must stay")
}

// A call may run arbitrary code, so cached field values do not survive
// it.
func TestGVN_InvokeClobbers(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "callclobber",
		NumRegs: 3,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_iget, VA: 0, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_invoke_static, Method: bytecode.MethodRef{Index: 0x20}},
			{Op: bytecode.OP_iget, VA: 1, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_return, VA: 1},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	new(GVN).Apply(cfg)

	gets, _ := countByType(cfg)
	assert.Equal(t, 2, gets)
}

// Volatile loads are never value numbered.
func TestGVN_VolatileLoad(t *testing.T) {
	r := testResolver{volatile: map[bytecode.FieldRef]bool{{Index: 0x10}: true}}
	fn := &bytecode.Method{
		Name:    "volatile",
		NumRegs: 3,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_iget, VA: 0, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_iget, VA: 1, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_return, VA: 1},
		},
	}
	cfg := buildSSA(t, fn, testUnit(r, 0))
	new(GVN).Apply(cfg)

	gets, _ := countByType(cfg)
	assert.Equal(t, 2, gets)
}

// A value computed on both sides of a diamond is still available after
// the merge only when both sides agree on the register holding it.
func TestGVN_AvailableAcrossMerge(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "acrossmerge",
		NumRegs: 4,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_iget, VA: 0, VB: 3, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_if_eqz, VA: 0, Br: 3},
			{Op: bytecode.OP_nop},
			{Op: bytecode.OP_iget, VA: 1, VB: 3, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_return, VA: 1},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	new(GVN).Apply(cfg)

	gets, _ := countByType(cfg)
	assert.Equal(t, 1, gets, "the load before the branch dominates the reload behind the merge")
}

// A store inside a loop body feeds the value table back into itself
// through the header merge. The pass must still reach a fixed point.
func TestGVN_StoreInLoopConverges(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "loopstore",
		NumRegs: 3,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_iget, VA: 0, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_iput, VA: 0, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_if_eqz, VA: 1, Br: 0},
			{Op: bytecode.OP_return_void},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	new(GVN).Apply(cfg)

	gets, _ := countByType(cfg)
	assert.Equal(t, 1, gets)
}

// Running the pass twice must not change the graph further.
func TestGVN_Idempotent(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "idem",
		NumRegs: 3,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_iget, VA: 0, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_iget, VA: 1, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_return, VA: 1},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	new(GVN).Apply(cfg)
	first := cfg.String()
	new(GVN).Apply(cfg)
	require.Equal(t, first, cfg.String())
}
