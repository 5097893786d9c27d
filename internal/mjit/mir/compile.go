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
	"github.com/bytedance/gopkg/util/logger"
	"github.com/oakvm/oakjit/bytecode"
)

type Pass interface {
	Apply(*CFG)
}

type PassDescriptor struct {
	Pass Pass
	Name string
}

var Passes = [...]PassDescriptor{
	{Name: "Null Check Elimination", Pass: new(NullCheckElim)},
	{Name: "Class Init Elimination", Pass: new(ClassInitElim)},
	{Name: "Global Value Numbering", Pass: new(GVN)},
	{Name: "Peephole Optimization", Pass: new(Peephole)},
	{Name: "Block Combination", Pass: new(CombineBlocks)},
	{Name: "Loop Optimization", Pass: new(LoopOpt)},
	{Name: "Throw Path Layout", Pass: new(LayoutThrows)},
}

func executePasses(cfg *CFG) {
	for _, p := range Passes {
		if cfg.Unit.Verbose {
			logger.Infof("mjit: running %s on %s", p.Name, cfg.Method.Name)
		}
		p.Pass.Apply(cfg)
	}
}

// Compile lowers one method to an optimized SSA graph.
func Compile(fn *bytecode.Method, cu *bytecode.CompileUnit) *CFG {
	cfg := newGraphBuilder(fn, cu).build()
	insertPhiNodes(cfg)
	renameRegisters(cfg)
	executePasses(cfg)
	if cu.Verbose {
		cfg.Stats.DumpCheckStats(fn.Name)
	}
	return cfg
}
