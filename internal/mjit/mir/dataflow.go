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

// TraversalOrder selects the block visiting order of the fixed-point
// driver.
type TraversalOrder uint8

const (
	TraversePreOrder TraversalOrder = iota
	TraverseReversePostOrder
	TraversePostOrder
	TraverseAllNodes
)

// DataflowPass is the shape every iterative analysis follows: a cheap
// applicability gate, pass-scoped state setup, a per-block transfer
// function reporting whether the block's outgoing state changed, and a
// commit phase that folds the final decisions into permanent flags.
type DataflowPass interface {
	Name() string
	Order() TraversalOrder
	Gate(cfg *CFG) bool
	Start(cfg *CFG)
	RunOnBlock(cfg *CFG, bb *BasicBlock) bool
	End(cfg *CFG)
}

// Aborter is implemented by passes with a bounded state space. The
// driver stops iterating as soon as Good reports false; End still runs
// so the pass releases its state and the graph stays valid.
type Aborter interface {
	Good() bool
}

func traverse(cfg *CFG, order TraversalOrder, action func(bb *BasicBlock)) {
	switch order {
	case TraversePreOrder:
		cfg.PreOrderDFS(action)
	case TraverseReversePostOrder:
		cfg.ReversePostOrder(action)
	case TraversePostOrder:
		cfg.PostOrder(action)
	default:
		cfg.AllNodes(action)
	}
}

// RunToFixPoint drives a dataflow pass to convergence. Transfer
// functions must be monotone over a bounded lattice, which guarantees
// termination.
func RunToFixPoint(cfg *CFG, p DataflowPass) {
	if !p.Gate(cfg) {
		return
	}

	p.Start(cfg)
	defer p.End(cfg)

	ab, bounded := p.(Aborter)
	for {
		done := true
		traverse(cfg, p.Order(), func(bb *BasicBlock) {
			if p.RunOnBlock(cfg, bb) {
				done = false
			}
		})
		if bounded && !ab.Good() {
			return
		}
		if done {
			return
		}
	}
}
