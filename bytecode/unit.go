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
	"github.com/oakvm/oakjit/isa"
)

// DisableMask turns off individual optimization passes.
type DisableMask uint32

const (
	DisableNullCheckElim DisableMask = 1 << iota
	DisableClassInitElim
	DisableLVN
	DisableGVN
	DisablePeephole
	DisableCombineBlocks
	DisableLayoutThrows
	DisableLoopOpt
	DisableVectorize
)

func (self DisableMask) Has(m DisableMask) bool {
	return self&m != 0
}

// CompileUnit carries everything the backend needs to compile one method:
// the target description, the resolver, and per-compilation switches. It
// is immutable for the duration of a compilation.
type CompileUnit struct {
	Target     isa.Target
	Features   isa.Features
	Resolver   Resolver
	Disable    DisableMask
	Debuggable bool
	Verbose    bool
}
