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

// countedMethod builds `for (i = 0; !(i test bound); i += step) {}`
// with the exit test in the loop header.
func countedMethod(test bytecode.Op, bound int64, step int64) *bytecode.Method {
	return &bytecode.Method{
		Name:    "count",
		NumRegs: 2,
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_const, VA: 0, Lit: 0},
			{Op: bytecode.OP_const, VA: 1, Lit: bound},
			{Op: test, VA: 0, VB: 1, Br: 5},
			{Op: bytecode.OP_add_lit, VA: 0, VB: 0, Lit: step},
			{Op: bytecode.OP_goto, Br: 2},
			{Op: bytecode.OP_return_void},
		},
	}
}

// countedCFG lowers the method and fuses compares so the loop header
// ends in a compare-and-branch, the shape trip count analysis reads.
func countedCFG(t *testing.T, fn *bytecode.Method) *CFG {
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	Peephole{}.Apply(cfg)
	return cfg
}

func singleLoop(t *testing.T, cfg *CFG) *_Loop {
	loops := findLoops(cfg)
	require.Len(t, loops, 1)
	return loops[0]
}

func TestLoop_FindLoopsNested(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "nested",
		NumRegs: 2,
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_if_eqz, VA: 0, Br: 5},
			{Op: bytecode.OP_if_eqz, VA: 1, Br: 4},
			{Op: bytecode.OP_nop},
			{Op: bytecode.OP_goto, Br: 1},
			{Op: bytecode.OP_goto, Br: 0},
			{Op: bytecode.OP_return_void},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))
	loops := findLoops(cfg)
	require.Len(t, loops, 2)

	inner, outer := loops[0], loops[1]
	assert.Len(t, inner.Body, 2)
	assert.Len(t, outer.Body, 4)
	assert.Same(t, outer, inner.Parent)
	assert.Nil(t, outer.Parent)
	assert.True(t, outer.contains(inner.Header))
	assert.False(t, inner.contains(outer.Header))
	assert.Len(t, inner.Latches, 1)
	assert.Len(t, outer.Latches, 1)
}

func TestLoop_PreheaderAndExits(t *testing.T) {
	cfg := countedCFG(t, countedMethod(bytecode.OP_if_ge, 10, 1))
	lp := singleLoop(t, cfg)

	ph := lp.Preheader()
	require.NotNil(t, ph)
	assert.False(t, lp.contains(ph))

	exits := lp.Exits()
	require.Len(t, exits, 1)
	assert.Same(t, lp.Header, exits[0][0])
	assert.False(t, lp.contains(exits[0][1]))
}

func TestLoop_FindInductions(t *testing.T) {
	cfg := countedCFG(t, countedMethod(bytecode.OP_if_ge, 10, 1))
	lp := singleLoop(t, cfg)

	ivs := findInductions(lp, lp.Preheader(), regDefs(cfg))
	require.Len(t, ivs, 1)
	assert.Equal(t, int64(0), ivs[0].Init)
	assert.Equal(t, int64(1), ivs[0].Step)
	require.NotNil(t, ivs[0].Update)
	assert.Equal(t, IrOpAdd, ivs[0].Update.Op)
}

func TestLoop_TripCount(t *testing.T) {
	tests := []struct {
		name  string
		test  bytecode.Op
		bound int64
		step  int64
		known bool
		count int64
	}{
		{"lt", bytecode.OP_if_ge, 10, 1, true, 10},
		{"le", bytecode.OP_if_gt, 10, 1, true, 11},
		{"ne", bytecode.OP_if_eq, 10, 1, true, 10},
		{"lt_step3", bytecode.OP_if_ge, 10, 3, true, 4},
		{"ne_misaligned", bytecode.OP_if_eq, 10, 3, false, 0},
		{"ne_backwards", bytecode.OP_if_eq, -1, 1, false, 0},
		{"empty", bytecode.OP_if_ge, 0, 1, true, 0},
	}
	for _, tv := range tests {
		t.Run(tv.name, func(t *testing.T) {
			cfg := countedCFG(t, countedMethod(tv.test, tv.bound, tv.step))
			lp := singleLoop(t, cfg)
			tc := analyzeTripCount(lp, lp.Preheader(), regDefs(cfg))
			assert.Equal(t, tv.known, tc.Known)
			if tv.known {
				assert.Equal(t, tv.count, tc.Count)
				assert.Same(t, lp.Header, tc.Block)
			}
		})
	}
}

func TestLoop_TripCountNeedsConstBound(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "dynbound",
		NumRegs: 2,
		NumIns:  1,
		InsRef:  []bool{false},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_const, VA: 0, Lit: 0},
			{Op: bytecode.OP_if_ge, VA: 0, VB: 1, Br: 4},
			{Op: bytecode.OP_add_lit, VA: 0, VB: 0, Lit: 1},
			{Op: bytecode.OP_goto, Br: 1},
			{Op: bytecode.OP_return_void},
		},
	}
	cfg := countedCFG(t, fn)
	lp := singleLoop(t, cfg)
	tc := analyzeTripCount(lp, lp.Preheader(), regDefs(cfg))
	assert.False(t, tc.Known)
}

func TestLoop_LinearOrder(t *testing.T) {
	cfg := countedCFG(t, countedMethod(bytecode.OP_if_ge, 10, 1))
	order := linearOrder(cfg)
	require.Len(t, order, len(cfg.Blocks))

	pos := make(map[int]int, len(order))
	for i, bb := range order {
		pos[bb.Id] = i
	}

	lp := singleLoop(t, cfg)
	for _, latch := range lp.Latches {
		assert.Less(t, pos[lp.Header.Id], pos[latch.Id])
	}
	assert.Equal(t, cfg.Root.Id, order[0].Id)
}
