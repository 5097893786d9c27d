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

// TypeRef identifies a class by its defining unit and index within that
// unit. Two refs with the same unit and index denote the same class.
type TypeRef struct {
	Unit  uint32
	Index uint32
}

// FieldRef names a field site in the bytecode, before resolution.
type FieldRef struct {
	Unit  uint32
	Index uint32
}

// MethodRef names a call site in the bytecode, before resolution.
type MethodRef struct {
	Unit  uint32
	Index uint32
}

// FieldInfo is the resolver's answer for a field site. Unresolved fields
// keep Resolved == false and carry no declaring class.
type FieldInfo struct {
	Resolved  bool
	Volatile  bool
	Declaring TypeRef
	Offset    uint32
}

// MethodInfo is the resolver's answer for a call site.
type MethodInfo struct {
	Resolved  bool
	Declaring TypeRef
	VTableIdx uint32
}

// Resolver answers type, field and method questions for a compile unit.
// Implementations are provided by the runtime; resolution never mutates
// shared state during compilation.
type Resolver interface {
	ResolveField(fr FieldRef) FieldInfo
	ResolveMethod(mr MethodRef) MethodInfo

	// IsInitialized reports whether the class is already initialized, so
	// its init check can be dropped at compile time.
	IsInitialized(tr TypeRef) bool

	// SameClass reports whether two refs resolve to the same class. Refs
	// from different units may still alias the same loaded class.
	SameClass(a TypeRef, b TypeRef) bool
}
