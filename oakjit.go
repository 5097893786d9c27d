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

package oakjit

import (
	"fmt"

	"github.com/oakvm/oakjit/bytecode"
	"github.com/oakvm/oakjit/internal/mjit/mir"
	"github.com/oakvm/oakjit/internal/mjit/opts"
)

// CompiledMethod is the optimized form of one method. It wraps the final
// SSA graph; the textual disassembly and the check elimination counters
// are the observable surface.
type CompiledMethod struct {
	cfg *mir.CFG
}

// Disassemble renders the optimized graph block by block.
func (self *CompiledMethod) Disassemble() string {
	return self.cfg.String()
}

// Stats reports how many runtime safety checks the optimizer removed.
type Stats struct {
	NullChecks            int
	NullChecksElided      int
	ClassInitChecks       int
	ClassInitChecksElided int
}

func (self *CompiledMethod) Stats() Stats {
	return Stats{
		NullChecks:            self.cfg.Stats.NullChecks,
		NullChecksElided:      self.cfg.Stats.NullElided,
		ClassInitChecks:       self.cfg.Stats.InitChecks,
		ClassInitChecksElided: self.cfg.Stats.InitElided,
	}
}

// Compile lowers and optimizes one method for the configured target.
func Compile(fn *bytecode.Method, options ...Option) (ret *CompiledMethod, err error) {
	o := opts.GetDefaultOptions()
	for _, fv := range options {
		fv(&o)
	}
	if o.Resolver == nil {
		return nil, CompileError{Method: fn.Name, Reason: "no symbol resolver"}
	}

	/* the backend reports malformed input by panicking */
	defer func() {
		if v := recover(); v != nil {
			ret, err = nil, CompileError{Method: fn.Name, Reason: fmt.Sprint(v)}
		}
	}()
	return &CompiledMethod{cfg: mir.Compile(fn, o.BuildUnit())}, nil
}
