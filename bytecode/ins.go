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

package bytecode

import (
	"fmt"

	"github.com/oakvm/oakjit/isa"
)

// Op is a decoded bytecode opcode. The decoder and verifier have already
// run, so every Ins carries resolved operands.
type Op uint8

const (
	OP_nop Op = iota
	OP_const
	OP_const_null
	OP_move
	OP_move_object
	OP_move_result
	OP_move_result_object
	OP_neg
	OP_not
	OP_add
	OP_sub
	OP_mul
	OP_div
	OP_and
	OP_or
	OP_xor
	OP_shl
	OP_shr
	OP_ushr
	OP_add_lit
	OP_mul_lit
	OP_cmp
	OP_if_eq
	OP_if_ne
	OP_if_lt
	OP_if_ge
	OP_if_gt
	OP_if_le
	OP_if_eqz
	OP_if_nez
	OP_if_ltz
	OP_if_gez
	OP_if_gtz
	OP_if_lez
	OP_goto
	OP_switch
	OP_new_instance
	OP_new_array
	OP_array_length
	OP_aget
	OP_aput
	OP_iget
	OP_iget_object
	OP_iput
	OP_iput_object
	OP_sget
	OP_sput
	OP_invoke_virtual
	OP_invoke_direct
	OP_invoke_static
	OP_return_void
	OP_return
	OP_return_object
	OP_throw
	OP_max
)

// Dataflow attributes per opcode, in the style of a per-instruction
// attribute table: which virtual registers are defined or used and whether
// the defined value is an object reference.
type attrs uint16

const (
	_A_def_a attrs = 1 << iota
	_A_use_a
	_A_use_b
	_A_use_c
	_A_ref_def
	_A_ref_b
	_A_null_check
	_A_clinit_check
	_A_range_check
	_A_branch
	_A_throws
)

var _OpAttrs = [OP_max]attrs{
	OP_const:              _A_def_a,
	OP_const_null:         _A_def_a | _A_ref_def,
	OP_move:               _A_def_a | _A_use_b,
	OP_move_object:        _A_def_a | _A_use_b | _A_ref_def | _A_ref_b,
	OP_move_result:        _A_def_a,
	OP_move_result_object: _A_def_a | _A_ref_def,
	OP_neg:                _A_def_a | _A_use_b,
	OP_not:                _A_def_a | _A_use_b,
	OP_add:                _A_def_a | _A_use_b | _A_use_c,
	OP_sub:                _A_def_a | _A_use_b | _A_use_c,
	OP_mul:                _A_def_a | _A_use_b | _A_use_c,
	OP_div:                _A_def_a | _A_use_b | _A_use_c | _A_throws,
	OP_and:                _A_def_a | _A_use_b | _A_use_c,
	OP_or:                 _A_def_a | _A_use_b | _A_use_c,
	OP_xor:                _A_def_a | _A_use_b | _A_use_c,
	OP_shl:                _A_def_a | _A_use_b | _A_use_c,
	OP_shr:                _A_def_a | _A_use_b | _A_use_c,
	OP_ushr:               _A_def_a | _A_use_b | _A_use_c,
	OP_add_lit:            _A_def_a | _A_use_b,
	OP_mul_lit:            _A_def_a | _A_use_b,
	OP_cmp:                _A_def_a | _A_use_b | _A_use_c,
	OP_if_eq:              _A_use_a | _A_use_b | _A_branch,
	OP_if_ne:              _A_use_a | _A_use_b | _A_branch,
	OP_if_lt:              _A_use_a | _A_use_b | _A_branch,
	OP_if_ge:              _A_use_a | _A_use_b | _A_branch,
	OP_if_gt:              _A_use_a | _A_use_b | _A_branch,
	OP_if_le:              _A_use_a | _A_use_b | _A_branch,
	OP_if_eqz:             _A_use_a | _A_branch,
	OP_if_nez:             _A_use_a | _A_branch,
	OP_if_ltz:             _A_use_a | _A_branch,
	OP_if_gez:             _A_use_a | _A_branch,
	OP_if_gtz:             _A_use_a | _A_branch,
	OP_if_lez:             _A_use_a | _A_branch,
	OP_goto:               _A_branch,
	OP_switch:             _A_use_a | _A_branch,
	OP_new_instance:       _A_def_a | _A_ref_def | _A_throws,
	OP_new_array:          _A_def_a | _A_use_b | _A_ref_def | _A_throws,
	OP_array_length:       _A_def_a | _A_use_b | _A_ref_b | _A_null_check | _A_throws,
	OP_aget:               _A_def_a | _A_use_b | _A_use_c | _A_ref_b | _A_null_check | _A_range_check | _A_throws,
	OP_aput:               _A_use_a | _A_use_b | _A_use_c | _A_ref_b | _A_null_check | _A_range_check | _A_throws,
	OP_iget:               _A_def_a | _A_use_b | _A_ref_b | _A_null_check | _A_throws,
	OP_iget_object:        _A_def_a | _A_use_b | _A_ref_def | _A_ref_b | _A_null_check | _A_throws,
	OP_iput:               _A_use_a | _A_use_b | _A_ref_b | _A_null_check | _A_throws,
	OP_iput_object:        _A_use_a | _A_use_b | _A_ref_b | _A_null_check | _A_throws,
	OP_sget:               _A_def_a | _A_clinit_check | _A_throws,
	OP_sput:               _A_use_a | _A_clinit_check | _A_throws,
	OP_invoke_virtual:     _A_null_check | _A_throws,
	OP_invoke_direct:      _A_null_check | _A_throws,
	OP_invoke_static:      _A_clinit_check | _A_throws,
	OP_return:             _A_use_a,
	OP_return_object:      _A_use_a,
	OP_throw:              _A_use_a | _A_throws,
}

func (self Op) DefinesA() bool     { return _OpAttrs[self]&_A_def_a != 0 }
func (self Op) UsesA() bool        { return _OpAttrs[self]&_A_use_a != 0 }
func (self Op) UsesB() bool        { return _OpAttrs[self]&_A_use_b != 0 }
func (self Op) UsesC() bool        { return _OpAttrs[self]&_A_use_c != 0 }
func (self Op) RefDef() bool       { return _OpAttrs[self]&_A_ref_def != 0 }
func (self Op) RefB() bool         { return _OpAttrs[self]&_A_ref_b != 0 }
func (self Op) HasNullCheck() bool { return _OpAttrs[self]&_A_null_check != 0 }
func (self Op) HasInitCheck() bool { return _OpAttrs[self]&_A_clinit_check != 0 }
func (self Op) CanThrow() bool     { return _OpAttrs[self]&_A_throws != 0 }

func (self Op) IsBranch() bool {
	return _OpAttrs[self]&_A_branch != 0
}

func (self Op) IsConditional() bool {
	return self >= OP_if_eq && self <= OP_if_lez
}

func (self Op) IsIfZero() bool {
	return self >= OP_if_eqz && self <= OP_if_lez
}

func (self Op) IsReturn() bool {
	return self == OP_return_void || self == OP_return || self == OP_return_object
}

func (self Op) IsInvoke() bool {
	return self == OP_invoke_virtual || self == OP_invoke_direct || self == OP_invoke_static
}

func (self Op) IsMoveResult() bool {
	return self == OP_move_result || self == OP_move_result_object
}

// Operand reference bits, filled in by the verifier for opcodes whose
// ref-ness is not implied by the opcode itself (if-eqz on an object, etc).
const (
	RefA uint8 = 1 << iota
	RefB
	RefC
)

// Ins is one decoded bytecode instruction. VA, VB and VC are the virtual
// register operands; their meaning depends on the opcode.
type Ins struct {
	Op     Op
	VA     uint16
	VB     uint16
	VC     uint16
	Refs   uint8
	Lit    int64
	Elem   isa.Elem
	Field  FieldRef
	Method MethodRef
	Class  TypeRef
	Br     int32
	Sw     []int32
	Args   []uint16
	ArgRef []bool
}

func (self Ins) String() string {
	return fmt.Sprintf("op_%d v%d, v%d, v%d", self.Op, self.VA, self.VB, self.VC)
}

// Try is one exception-handler range over instruction indices, delimiting
// [Start, End) with its catch handler entry point.
type Try struct {
	Start   int32
	End     int32
	Handler int32
}

// Method is a fully decoded method body ready for IR construction.
// InsRef marks which of the NumIns parameter registers hold object
// references; parameter 0 of an instance method is the receiver.
type Method struct {
	Name    string
	Code    []Ins
	Tries   []Try
	NumRegs uint16
	NumIns  uint16
	InsRef  []bool
	Static  bool
}

// FirstInReg returns the lowest virtual register holding an incoming
// parameter. Parameters occupy the highest NumIns registers.
func (self *Method) FirstInReg() uint16 {
	return self.NumRegs - self.NumIns
}
