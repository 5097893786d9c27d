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

	"github.com/bytedance/gopkg/util/logger"
	"github.com/oakvm/oakjit/bytecode"
)

// GVN extends local value numbering across the whole method: each
// block's table is prepared by intersecting its predecessors' outgoing
// tables, run forward, and diffed against the previous outgoing state
// until the method converges. A successful run disables standalone LVN
// for the rest of the compilation.
type GVN struct {
	good bool
	out  map[int]*_ValueTable
}

func (self *GVN) Name() string {
	return "Global Value Numbering"
}

func (self *GVN) Order() TraversalOrder {
	return TraverseReversePostOrder
}

func (self *GVN) Good() bool {
	return self.good
}

func (self *GVN) Gate(cfg *CFG) bool {
	return !cfg.Unit.Disable.Has(bytecode.DisableGVN)
}

func (self *GVN) Start(cfg *CFG) {
	self.good = true
	self.out = make(map[int]*_ValueTable, len(cfg.Blocks))
}

// prepare assembles the incoming table for a block from its
// predecessors' converged outgoing tables. The block's own id names the
// merge site, so repeated preparation yields identical tables.
func (self *GVN) prepare(bb *BasicBlock) *_ValueTable {
	var tb *_ValueTable
	at := fmt.Sprintf("m%d", bb.Id)
	for _, p := range bb.Pred {
		ps, ok := self.out[p.Id]
		if !ok {
			continue
		}
		if tb == nil {
			tb = ps.clone()
		} else {
			tb.merge(ps, at)
		}
	}
	if tb == nil {
		tb = newValueTable()
	}
	return tb
}

func (self *GVN) RunOnBlock(cfg *CFG, bb *BasicBlock) bool {
	tb := self.prepare(bb)
	tb.step(bb, false)

	if !tb.good {
		self.good = false
		return false
	}
	if prev, ok := self.out[bb.Id]; ok && prev.equal(tb) {
		return false
	}
	self.out[bb.Id] = tb
	return true
}

func (self *GVN) End(cfg *CFG) {
	defer func() {
		self.out = nil
	}()

	/* overflow: leave the graph exactly as it was and keep LVN enabled */
	if !self.good {
		logger.Warnf("mir: %s: global value numbering overflow, aborted", cfg.Method.Name)
		return
	}

	/* modification phase: replay every block against its converged
	 * incoming state and collapse the redundancies */
	cfg.ReversePostOrder(func(bb *BasicBlock) {
		tb := self.prepare(bb)
		tb.step(bb, true)
	})
	cfg.lvnDisabled = true
}

func (self *GVN) Apply(cfg *CFG) {
	RunToFixPoint(cfg, self)
}
