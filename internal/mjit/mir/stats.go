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
)

// CheckStats counts runtime safety checks seen and proven redundant for
// one method compilation. Observability only, never correctness.
type CheckStats struct {
	NullChecks int
	NullElided int
	InitChecks int
	InitElided int
}

func pct(n int, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// DumpCheckStats logs the per-method elimination ratios.
func (self *CheckStats) DumpCheckStats(name string) {
	logger.Infof(
		"mir: %s: null checks %d/%d eliminated (%.1f%%), class init checks %d/%d eliminated (%.1f%%)",
		name,
		self.NullElided, self.NullChecks, pct(self.NullElided, self.NullChecks),
		self.InitElided, self.InitChecks, pct(self.InitElided, self.InitChecks),
	)
}
