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
	"github.com/oakvm/oakjit/bytecode"
)

// CombineBlocks straightens the graph after the elimination passes:
// exception edges whose guarded instructions were all proven safe are
// dropped, straight-line block chains are merged, and handler blocks
// that lost their last incoming edge disappear with the rebuild.
type CombineBlocks struct{}

func (self CombineBlocks) Apply(cfg *CFG) {
	if cfg.Unit.Disable.Has(bytecode.DisableCombineBlocks) {
		return
	}

	/* a catch edge is only needed while something in the block can
	 * still throw */
	pruned := false
	cfg.AllNodes(func(bb *BasicBlock) {
		if bb.Catch != nil && !bb.canThrow() {
			bb.Catch = nil
			pruned = true
		}
	})
	if pruned {
		cfg.Rebuild()
	}

	/* merge chains until nothing moves; merging a pair can expose the
	 * next pair immediately, so retry from the merged block */
	for {
		merged := false
		cfg.AllNodes(func(bb *BasicBlock) {
			for {
				sw, ok := bb.Term.(*IrSwitch)
				if !ok || len(sw.Br) != 0 {
					return
				}
				if !cfg.MergeBlocks(bb, sw.Ln) {
					return
				}
				merged = true
			}
		})
		if !merged {
			break
		}
	}
	cfg.Rebuild()
}
