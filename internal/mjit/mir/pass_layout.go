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

// LayoutThrows steers throwing paths off the fallthrough edge. For every
// block ending in a throw, the pass walks back through its straight-line
// chain to the first conditional branch and flips that branch so the
// non-throwing side is the fallthrough, keeping the hot path straight in
// the final layout.
type LayoutThrows struct{}

func (self LayoutThrows) sink(bb *BasicBlock) {
	for !bb.visited {
		bb.visited = true
		if len(bb.Pred) != 1 {
			return
		}

		/* a chain entered through an exception edge stays where it is */
		p := bb.Pred[0]
		if p.Catch == bb {
			return
		}

		switch tr := p.Term.(type) {
		case *IrSwitch:
			if len(tr.Br) == 0 {
				bb = p
				continue
			}
			if t, ok := tr.Br[1]; ok && len(tr.Br) == 1 && tr.Ln == bb {
				/* invert the test by switching on the zero key, so the
				 * throw side becomes the taken branch */
				tr.Ln = t
				tr.Br = map[int64]*BasicBlock{0: bb}
			}
			return
		case *IrCmpBranch:
			if tr.Ln == bb {
				tr.Negate()
			}
			return
		default:
			return
		}
	}
}

func (self LayoutThrows) Apply(cfg *CFG) {
	if cfg.Unit.Disable.Has(bytecode.DisableLayoutThrows) {
		return
	}
	cfg.AllNodes(func(bb *BasicBlock) {
		bb.visited = false
	})
	cfg.AllNodes(func(bb *BasicBlock) {
		if _, ok := bb.Term.(*IrThrow); ok {
			self.sink(bb)
		}
	})
}
