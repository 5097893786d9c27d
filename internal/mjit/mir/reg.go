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
)

// Reg is a packed SSA register. Bit 63 tags object references, the kind
// bits distinguish virtual registers, temporaries, zero registers and
// normalized SSA names, the middle bits carry the SSA version and the
// low bits carry the register index.
type Reg uint64

const (
	_B_ref  = 63
	_B_kind = 59
	_B_ver  = 24
)

const (
	_M_ref  = 1
	_M_kind = 0x0f
)

const (
	_R_ref   = _M_ref << _B_ref
	_R_kind  = _M_kind << _B_kind
	_R_ver   = ((1 << (_B_kind - _B_ver)) - 1) << _B_ver
	_R_index = (1 << _B_ver) - 1
)

const (
	K_virt = 0
	K_zero = 13
	K_temp = 14
	K_norm = 15
)

const (
	Rz Reg = (0 << _B_ref) | (K_zero << _B_kind)
	Pn Reg = (1 << _B_ref) | (K_zero << _B_kind)
)

func mkreg(ref uint64, kind uint64, index uint64) Reg {
	return Reg(((ref & _M_ref) << _B_ref) | ((kind & _M_kind) << _B_kind) | (index & _R_index))
}

// Rv makes a scalar virtual register for bytecode register i.
func Rv(i uint16) Reg {
	return mkreg(0, K_virt, uint64(i))
}

// Pv makes a reference virtual register for bytecode register i.
func Pv(i uint16) Reg {
	return mkreg(1, K_virt, uint64(i))
}

// Tr makes the i-th scalar temporary.
func Tr(i int) Reg {
	return mkreg(0, K_temp, uint64(i))
}

// Pr makes the i-th reference temporary.
func Pr(i int) Reg {
	return mkreg(1, K_temp, uint64(i))
}

func (self Reg) Ref() bool {
	return self&_R_ref != 0
}

func (self Reg) Kind() uint8 {
	return uint8((self & _R_kind) >> _B_kind)
}

func (self Reg) Index() int {
	return int(self & _R_index)
}

func (self Reg) Version() int {
	return int((self & _R_ver) >> _B_ver)
}

func (self Reg) Zero() Reg {
	if self.Ref() {
		return Pn
	} else {
		return Rz
	}
}

// Derive tags the register with SSA version i, keeping both the kind
// and the register index intact.
func (self Reg) Derive(i int) Reg {
	return (self &^ _R_ver) | Reg((uint64(i)<<_B_ver)&_R_ver)
}

func (self Reg) Normalize(i int) Reg {
	return (self & _R_ref) | (K_norm << _B_kind) | Reg(i&_R_index)
}

func (self Reg) String() string {
	switch self.Kind() {
	default:
		if self.Ref() {
			return fmt.Sprintf("%%p%d.%d", self.Index(), self.Version())
		} else {
			return fmt.Sprintf("%%r%d.%d", self.Index(), self.Version())
		}

	/* zero registers */
	case K_zero:
		if self.Ref() {
			return "null"
		} else {
			return "$0"
		}

	/* temp registers */
	case K_temp:
		if self.Ref() {
			return fmt.Sprintf("%%tp%d.%d", self.Index(), self.Version())
		} else {
			return fmt.Sprintf("%%tr%d.%d", self.Index(), self.Version())
		}

	/* normalized SSA registers */
	case K_norm:
		if self.Ref() {
			return fmt.Sprintf("%%p%d", self.Index())
		} else {
			return fmt.Sprintf("%%r%d", self.Index())
		}
	}
}
