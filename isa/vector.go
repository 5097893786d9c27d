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

package isa

// Elem is the element type of an array reference, which determines the
// available vector lane count on each target.
type Elem uint8

const (
	Int8 Elem = iota
	Int16
	Int32
	Int64
	Float32
	Float64
	Ref
)

func (self Elem) Size() int {
	switch self {
	case Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	default:
		return 8
	}
}

func (self Elem) String() string {
	switch self {
	case Int8:
		return "i8"
	case Int16:
		return "i16"
	case Int32:
		return "i32"
	case Int64:
		return "i64"
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case Ref:
		return "ref"
	default:
		return "unknown"
	}
}

// Restrictions narrows which operations are vectorizable for a chosen
// element type on a chosen target.
type Restrictions uint32

const (
	NoMul Restrictions = 1 << iota
	NoDiv
	NoShift
	NoShr
	NoAbs
	NoMinMax
	NoSignedHAdd
	NoReduction
	NoHiBits
)

func (self Restrictions) Has(rv Restrictions) bool {
	return self&rv != 0
}

// VectorLanes returns the SIMD lane count for one element of type et on the
// given target, along with the operation restrictions that apply at that
// width. A zero lane count means the type cannot be vectorized there.
func VectorLanes(target Target, features Features, et Elem) (int, Restrictions) {
	switch target {
	case ARM:
		// 64-bit SIMD is assumed to be universally available on ARM.
		switch et {
		case Int8:
			return 8, NoMul | NoDiv | NoReduction
		case Int16:
			return 4, NoDiv | NoReduction
		case Int32:
			return 2, NoDiv | NoReduction
		default:
			return 0, 0
		}

	case ARM64:
		// 128-bit SIMD is part of the base AArch64 profile.
		switch et {
		case Int8:
			return 16, NoDiv | NoReduction
		case Int16:
			return 8, NoDiv | NoReduction
		case Int32:
			return 4, NoDiv
		case Int64:
			return 2, NoDiv | NoMul | NoMinMax
		case Float32:
			return 4, NoReduction
		case Float64:
			return 2, NoReduction
		default:
			return 0, 0
		}

	case X86, X86_64:
		// SSE4.1 gates 128-bit vectorization on x86.
		if !features.Has(FeatureSSE41) {
			return 0, 0
		}
		switch et {
		case Int8:
			return 16, NoMul | NoDiv | NoShift | NoAbs | NoSignedHAdd | NoReduction
		case Int16:
			return 8, NoDiv | NoAbs | NoSignedHAdd | NoReduction
		case Int32:
			return 4, NoDiv
		case Int64:
			return 2, NoMul | NoDiv | NoShr | NoAbs | NoMinMax
		case Float32:
			return 4, NoMinMax | NoReduction
		case Float64:
			return 2, NoMinMax | NoReduction
		default:
			return 0, 0
		}

	default:
		return 0, 0
	}
}
