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
	"github.com/oakvm/oakjit/bytecode"
	"github.com/oakvm/oakjit/internal/mjit/opts"
	"github.com/oakvm/oakjit/isa"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithTarget selects the instruction set to compile for instead of the
// host architecture.
func WithTarget(target isa.Target) Option {
	return func(o *opts.Options) { o.Target = target }
}

// WithFeatures overrides the SIMD feature probe. Pass 0 to keep the
// optimizer away from vector instructions entirely.
func WithFeatures(features isa.Features) Option {
	return func(o *opts.Options) { o.Features = features }
}

// WithResolver supplies the symbol resolver for field, method, and class
// references. Compilation fails without one.
func WithResolver(r bytecode.Resolver) Option {
	return func(o *opts.Options) { o.Resolver = r }
}

// WithDisable turns off individual optimization passes.
//
// This value can also be configured with the `OAKJIT_DISABLE_PASSES`
// environment variable.
func WithDisable(mask bytecode.DisableMask) Option {
	return func(o *opts.Options) { o.Disable |= mask }
}

// WithDebuggable keeps every value observable at its source position,
// suppressing the transformations that would fold variables away.
func WithDebuggable(v bool) Option {
	return func(o *opts.Options) { o.Debuggable = v }
}

// WithVerbose logs each pass as it runs, along with the final check
// elimination statistics.
//
// This can also be enabled with the `OAKJIT_VERBOSE` environment
// variable.
func WithVerbose(v bool) Option {
	return func(o *opts.Options) { o.Verbose = v }
}
