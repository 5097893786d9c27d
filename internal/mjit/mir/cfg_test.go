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
	"github.com/davecgh/go-spew/spew"
	"github.com/oakvm/oakjit/bytecode"
	"github.com/oakvm/oakjit/isa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testResolver maps field index high bits to the declaring class, so
// fields 0x10 and 0x11 belong to class 1 while field 0x20 belongs to
// class 2. Classes listed in init are reported as already initialized.
type testResolver struct {
	init     map[bytecode.TypeRef]bool
	volatile map[bytecode.FieldRef]bool
	broken   map[bytecode.FieldRef]bool
}

func (self testResolver) ResolveField(fr bytecode.FieldRef) bytecode.FieldInfo {
	if self.broken[fr] {
		return bytecode.FieldInfo{}
	}
	return bytecode.FieldInfo{
		Resolved:  true,
		Volatile:  self.volatile[fr],
		Declaring: bytecode.TypeRef{Unit: fr.Unit, Index: fr.Index >> 4},
		Offset:    8 * (fr.Index & 15),
	}
}

func (self testResolver) ResolveMethod(mr bytecode.MethodRef) bytecode.MethodInfo {
	return bytecode.MethodInfo{
		Resolved:  true,
		Declaring: bytecode.TypeRef{Unit: mr.Unit, Index: mr.Index >> 4},
	}
}

func (self testResolver) IsInitialized(tr bytecode.TypeRef) bool {
	return self.init[tr]
}

func (self testResolver) SameClass(a bytecode.TypeRef, b bytecode.TypeRef) bool {
	return a == b
}

func testUnit(r bytecode.Resolver, disable bytecode.DisableMask) *bytecode.CompileUnit {
	return &bytecode.CompileUnit{
		Target:   isa.X86_64,
		Features: isa.FeatureSSE41 | isa.FeatureAVX2,
		Resolver: r,
		Disable:  disable,
	}
}

func buildSSA(t *testing.T, fn *bytecode.Method, cu *bytecode.CompileUnit) *CFG {
	t.Helper()
	cfg := newGraphBuilder(fn, cu).build()
	insertPhiNodes(cfg)
	renameRegisters(cfg)
	return cfg
}

func eachIns(cfg *CFG, fv func(p IrNode)) {
	cfg.AllNodes(func(bb *BasicBlock) {
		for _, p := range bb.Ins {
			fv(p)
		}
	})
}

func TestCFG_DiamondDominators(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "diamond",
		NumRegs: 2,
		NumIns:  0,
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_if_eqz, VA: 1, Br: 3},
			{Op: bytecode.OP_const, VA: 0, Lit: 1},
			{Op: bytecode.OP_goto, Br: 4},
			{Op: bytecode.OP_const, VA: 0, Lit: 2},
			{Op: bytecode.OP_return, VA: 0},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))

	head := cfg.GetBasicBlock(cfg.Root.Id)
	require.NotNil(t, head)

	/* locate the join by its phi */
	var join *BasicBlock
	cfg.AllNodes(func(bb *BasicBlock) {
		if len(bb.Phi) != 0 {
			join = bb
		}
	})
	require.NotNil(t, join, "join block must merge the two arms with a phi")
	assert.Equal(t, 2, len(join.Pred))
	assert.True(t, cfg.Dominates(cfg.Root, join))
	for _, p := range join.Pred {
		assert.False(t, cfg.Dominates(p, join))
	}

	/* both arms contribute a distinct value */
	for _, phi := range join.Phi {
		assert.Equal(t, 2, len(phi.V))
	}
}

func TestCFG_MergeBlocks(t *testing.T) {
	a := &BasicBlock{Id: 1, Ins: []IrNode{&IrConstInt{R: Rv(0), V: 7}}}
	b := &BasicBlock{Id: 2, Term: &IrReturn{}}
	a.Term = &IrSwitch{Ln: b}
	b.Pred = []*BasicBlock{a}

	cfg := newCFG(a, nil, nil)
	cfg.Blocks[a.Id] = a
	cfg.Blocks[b.Id] = b

	require.True(t, cfg.MergeBlocks(a, b))
	assert.IsType(t, &IrReturn{}, a.Term)
	assert.Nil(t, cfg.GetBasicBlock(2))
}

func TestCFG_MergeBlocksRejectsSharedSuccessor(t *testing.T) {
	a := &BasicBlock{Id: 1}
	c := &BasicBlock{Id: 3}
	b := &BasicBlock{Id: 2, Term: &IrReturn{}}
	a.Term = &IrSwitch{Ln: b}
	c.Term = &IrSwitch{Ln: b}
	b.Pred = []*BasicBlock{a, c}

	cfg := newCFG(a, nil, nil)
	cfg.Blocks[a.Id] = a
	cfg.Blocks[b.Id] = b
	cfg.Blocks[c.Id] = c

	assert.False(t, cfg.MergeBlocks(a, b))
	assert.NotNil(t, cfg.GetBasicBlock(2))
}

func TestCFG_RebuildDropsUnreachable(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "deadcode",
		NumRegs: 1,
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_goto, Br: 2},
			{Op: bytecode.OP_return_void}, /* skipped over */
			{Op: bytecode.OP_return_void},
		},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))

	returns := 0
	cfg.AllNodes(func(bb *BasicBlock) {
		if _, ok := bb.Term.(*IrReturn); ok {
			returns++
		}
	})
	assert.Equal(t, 1, returns, "the jumped-over return must not survive the rebuild")
}

func TestCFG_CatchEdgeIsAnEdge(t *testing.T) {
	fn := &bytecode.Method{
		Name:    "trycatch",
		NumRegs: 3,
		NumIns:  1,
		InsRef:  []bool{true},
		Static:  true,
		Code: []bytecode.Ins{
			{Op: bytecode.OP_iget, VA: 0, VB: 2, Field: bytecode.FieldRef{Index: 0x10}},
			{Op: bytecode.OP_return, VA: 0},
			{Op: bytecode.OP_const, VA: 0, Lit: -1}, /* handler */
			{Op: bytecode.OP_return, VA: 0},
		},
		Tries: []bytecode.Try{{Start: 0, End: 1, Handler: 2}},
	}
	cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))

	var guarded, handler *BasicBlock
	cfg.AllNodes(func(bb *BasicBlock) {
		if bb.Catch != nil {
			guarded, handler = bb, bb.Catch
		}
	})
	require.NotNil(t, guarded, "the throwing load must carry its catch edge")
	assert.Contains(t, handler.Pred, guarded)
	assert.True(t, cfg.Dominates(guarded, handler))
}

// Random straight-line methods must always come out of renaming with
// every register defined exactly once.
func TestCFG_RandomSingleAssignment(t *testing.T) {
	faker := gofakeit.New(42)

	for round := 0; round < 32; round++ {
		var code []bytecode.Ins
		n := faker.Number(4, 24)
		for i := 0; i < n; i++ {
			va := uint16(faker.Number(0, 3))
			vb := uint16(faker.Number(0, 3))
			vc := uint16(faker.Number(0, 3))
			switch faker.Number(0, 2) {
			case 0:
				code = append(code, bytecode.Ins{Op: bytecode.OP_const, VA: va, Lit: int64(faker.Number(-100, 100))})
			case 1:
				code = append(code, bytecode.Ins{Op: bytecode.OP_move, VA: va, VB: vb})
			default:
				code = append(code, bytecode.Ins{Op: bytecode.OP_add, VA: va, VB: vb, VC: vc})
			}
		}
		code = append(code, bytecode.Ins{Op: bytecode.OP_return_void})

		fn := &bytecode.Method{Name: "random", NumRegs: 4, Static: true, Code: code}
		cfg := buildSSA(t, fn, testUnit(testResolver{}, 0))

		defs := make(map[Reg]int)
		cfg.AllNodes(func(bb *BasicBlock) {
			for _, phi := range bb.Phi {
				defs[phi.R]++
			}
			for _, p := range bb.Ins {
				if def, ok := p.(IrDefinitions); ok {
					for _, r := range def.Definitions() {
						if r.Kind() != K_zero {
							defs[*r]++
						}
					}
				}
			}
		})
		for r, k := range defs {
			if k != 1 {
				spew.Config.SortKeys = true
				t.Fatalf("register %s defined %d times in\n%s\n%s", r, k, cfg, spew.Sdump(defs))
			}
		}
	}
}
