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

	"github.com/brianvoe/gofakeit/v6"
	"github.com/oakvm/oakjit/bytecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldGets(cfg *CFG) (ret []*IrFieldGet) {
	eachIns(cfg, func(p IrNode) {
		if v, ok := p.(*IrFieldGet); ok {
			ret = append(ret, v)
		}
	})
	return
}

// if (x != null) { y = x.f } must lose the null check on the guarded
// load.
func TestNullCheckElim_GuardedLoad(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "guarded",
		NumRegs: 2,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_if_eqz, VA: 1, Refs: bytecode.RefA, Br: 2},
			{Op: bytecode.OP_iget, VA: 0, VB: 1, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_return_void},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	new(NullCheckElim).Apply(cfg)

	gets := fieldGets(cfg)
	require.Len(t, gets, 1)
	assert.True(t, gets[0].Flags.Has(NullCheckElided))
	assert.Equal(t, 1, cfg.Stats.NullChecks)
	assert.Equal(t, 1, cfg.Stats.NullElided)
}

// An unguarded load keeps its check, and the stats say so.
func TestNullCheckElim_UnguardedLoad(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "unguarded",
		NumRegs: 2,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_iget, VA: 0, VB: 1, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_return_void},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	new(NullCheckElim).Apply(cfg)

	gets := fieldGets(cfg)
	require.Len(t, gets, 1)
	assert.False(t, gets[0].Flags.Has(NullCheckElided))
	assert.Equal(t, 1, cfg.Stats.NullChecks)
	assert.Equal(t, 0, cfg.Stats.NullElided)
}

// A second load of the same receiver is dominated by the first, whose
// implicit check already proved the receiver non-null.
func TestNullCheckElim_DominatingCheck(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "dominated",
		NumRegs: 3,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_iget, VA: 0, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_iget, VA: 1, VB: 2, Field: bytecode.FieldRef{Index: 0x11}},
			{Op: bytecode.OP_return_void},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	new(NullCheckElim).Apply(cfg)

	gets := fieldGets(cfg)
	require.Len(t, gets, 2)
	elided := 0
	for _, v := range gets {
		if v.Flags.Has(NullCheckElided) {
			elided++
		}
	}
	assert.Equal(t, 1, elided)
	assert.Equal(t, 2, cfg.Stats.NullChecks)
	assert.Equal(t, 1, cfg.Stats.NullElided)
}

// A freshly allocated object can never be null.
func TestNullCheckElim_NewInstance(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "fresh",
		NumRegs: 2,
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_new_instance, VA: 1, Class: bytecode.TypeRef{Index: 1}},
			{Op: bytecode.OP_iget, VA: 0, VB: 1, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_return_void},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	new(NullCheckElim).Apply(cfg)

	gets := fieldGets(cfg)
	require.Len(t, gets, 1)
	assert.True(t, gets[0].Flags.Has(NullCheckElided))
}

// The null side of the test proves nothing for the load behind a merge:
// the state is the union over predecessors.
func TestNullCheckElim_MergeKeepsCheck(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "merge",
		NumRegs: 2,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_if_eqz, VA: 1, Refs: bytecode.RefA, Br: 2},
			{Op: bytecode.OP_nop},
			{Op: bytecode.OP_iget, VA: 0, VB: 1, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_return_void},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	new(NullCheckElim).Apply(cfg)

	gets := fieldGets(cfg)
	require.Len(t, gets, 1)
	assert.False(t, gets[0].Flags.Has(NullCheckElided), "the null arm reaches the load, the check must stay")
}

// Random chains of guarded and unguarded loads, one receiver per
// segment. A load behind its receiver's non-null test loses the check;
// a load that no test dominates never does.
func TestNullCheckElim_RandomPlantedGuards(t *testing.T) {
	faker := gofakeit.New(7)

	for round := 0; round < 32; round++ {
		n := faker.Number(2, 6)
		guarded := make([]bool, n)
		var code []bytecode.Ins

		for i := 0; i < n; i++ {
			guarded[i] = faker.Bool()
			obj := uint16(n + i)
			if guarded[i] {
				at := int32(len(code))
				code = append(code, bytecode.Ins{Op: bytecode.OP_if_eqz, VA: obj, Refs: bytecode.RefA, Br: at + 2})
			}
			code = append(code, bytecode.Ins{Op: bytecode.OP_iget, VA: uint16(i), VB: obj, Field: bytecode.FieldRef{Index: uint32(0x10 + i)}})
		}
		code = append(code, bytecode.Ins{Op: bytecode.OP_return_void})

		refs := make([]bool, n)
		for i := range refs {
			refs[i] = true
		}
		fn := &bytecode.Method{
			Name:    "planted",
			NumRegs: uint16(2 * n),
			NumIns:  uint16(n),
			InsRef:  refs,
			Static:  true,
			Code:    code,
		}
		cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
		new(NullCheckElim).Apply(cfg)

		for _, v := range fieldGets(cfg) {
			seg := int(v.Field.Offset / 8)
			if v.Flags.Has(NullCheckElided) != guarded[seg] {
				t.Fatalf("round %d receiver %d: guarded %v, elided %v in\n%s",
					round, seg, guarded[seg], v.Flags.Has(NullCheckElided), cfg)
			}
		}
	}
}

func TestNullCheckElim_Disabled(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "disabled",
		NumRegs: 2,
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_new_instance, VA: 1, Class: bytecode.TypeRef{Index: 1}},
			{Op: bytecode.OP_iget, VA: 0, VB: 1, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_return_void},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, bytecode.DisableNullCheckElim))
	new(NullCheckElim).Apply(cfg)

	gets := fieldGets(cfg)
	require.Len(t, gets, 1)
	assert.False(t, gets[0].Flags.Has(NullCheckElided))
}
