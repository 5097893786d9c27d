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

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Target identifies the instruction set the method is being compiled for.
type Target uint8

const (
	X86 Target = iota
	X86_64
	ARM
	ARM64
)

func (self Target) String() string {
	switch self {
	case X86:
		return "x86"
	case X86_64:
		return "x86_64"
	case ARM:
		return "arm"
	case ARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// Features is the SIMD capability set of a concrete target CPU.
type Features uint32

const (
	FeatureSSE41 Features = 1 << iota
	FeatureAVX2
	FeatureNEON
)

func (self Features) Has(fv Features) bool {
	return self&fv != 0
}

// HostTarget maps the compiling process's own architecture to a Target.
func HostTarget() Target {
	switch runtime.GOARCH {
	case "386":
		return X86
	case "arm":
		return ARM
	case "arm64":
		return ARM64
	default:
		return X86_64
	}
}

// HostFeatures probes the host CPU for the SIMD features the vectorizer
// cares about.
func HostFeatures() (fv Features) {
	if cpuid.CPU.Supports(cpuid.SSE4) {
		fv |= FeatureSSE41
	}
	if cpuid.CPU.Supports(cpuid.AVX2) {
		fv |= FeatureAVX2
	}
	if cpuid.CPU.Supports(cpuid.ASIMD) {
		fv |= FeatureNEON
	}
	return
}
