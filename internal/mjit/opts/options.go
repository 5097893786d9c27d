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

package opts

import (
	"github.com/oakvm/oakjit/bytecode"
	"github.com/oakvm/oakjit/isa"
)

// Options collects every knob of one compilation.
type Options struct {
	Target     isa.Target
	Features   isa.Features
	Resolver   bytecode.Resolver
	Disable    bytecode.DisableMask
	Debuggable bool
	Verbose    bool
}

// BuildUnit freezes the options into the compile unit the backend
// consumes.
func (self *Options) BuildUnit() *bytecode.CompileUnit {
	return &bytecode.CompileUnit{
		Target:     self.Target,
		Features:   self.Features,
		Resolver:   self.Resolver,
		Disable:    self.Disable,
		Debuggable: self.Debuggable,
		Verbose:    self.Verbose,
	}
}

func GetDefaultOptions() Options {
	return Options{
		Target:   isa.HostTarget(),
		Features: isa.HostFeatures(),
		Disable:  bytecode.DisableMask(DisabledPasses),
		Verbose:  VerboseLogs,
	}
}
