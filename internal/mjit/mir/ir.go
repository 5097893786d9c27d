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
	"sort"
	"strings"

	"github.com/oakvm/oakjit/bytecode"
	"github.com/oakvm/oakjit/isa"
)

type IrNode interface {
	fmt.Stringer
	irnode()
}

func (*IrPhi)          irnode() {}
func (*IrSwitch)       irnode() {}
func (*IrCmpBranch)    irnode() {}
func (*IrReturn)       irnode() {}
func (*IrThrow)        irnode() {}
func (*IrMove)         irnode() {}
func (*IrLoadArg)      irnode() {}
func (*IrConstInt)     irnode() {}
func (*IrUnaryExpr)    irnode() {}
func (*IrBinaryExpr)   irnode() {}
func (*IrCompare)      irnode() {}
func (*IrSelect)       irnode() {}
func (*IrNewInstance)  irnode() {}
func (*IrNewArray)     irnode() {}
func (*IrArrayLength)  irnode() {}
func (*IrArrayGet)     irnode() {}
func (*IrArrayPut)     irnode() {}
func (*IrFieldGet)     irnode() {}
func (*IrFieldPut)     irnode() {}
func (*IrStaticGet)    irnode() {}
func (*IrStaticPut)    irnode() {}
func (*IrInvoke)       irnode() {}
func (*IrSuspendCheck) irnode() {}
func (*IrVecReplicate) irnode() {}
func (*IrVecLoad)      irnode() {}
func (*IrVecStore)     irnode() {}
func (*IrVecBinary)    irnode() {}
func (*IrVecReduce)    irnode() {}

// IrUsages is implemented by nodes that read registers. The returned
// pointers alias the node's operand fields, so passes rewrite operands
// in place.
type IrUsages interface {
	IrNode
	Usages() []*Reg
}

// IrDefinitions is implemented by nodes that write registers.
type IrDefinitions interface {
	IrNode
	Definitions() []*Reg
}

// IrImpure marks nodes with side effects that must not be removed or
// deduplicated even when their value is unused.
type IrImpure interface {
	IrNode
	irimpure()
}

func (*IrNewInstance)  irimpure() {}
func (*IrNewArray)     irimpure() {}
func (*IrArrayPut)     irimpure() {}
func (*IrFieldPut)     irimpure() {}
func (*IrStaticPut)    irimpure() {}
func (*IrInvoke)       irimpure() {}
func (*IrSuspendCheck) irimpure() {}
func (*IrVecStore)     irimpure() {}

// OptFlags records per-instruction safety facts proven by the optimizer.
type OptFlags uint8

const (
	NullCheckElided OptFlags = 1 << iota
	ClassInitElided
	ClassInCacheElided
	RangeCheckElided
	SuspendCheckElided
)

func (self OptFlags) Has(f OptFlags) bool {
	return self&f != 0
}

// IrChecked is implemented by nodes that carry implicit runtime checks.
// Passes set bits on the returned flags to mark checks proven redundant.
type IrChecked interface {
	IrNode
	OptFlags() *OptFlags
}

func (self *IrArrayLength) OptFlags() *OptFlags { return &self.Flags }
func (self *IrArrayGet) OptFlags() *OptFlags    { return &self.Flags }
func (self *IrArrayPut) OptFlags() *OptFlags    { return &self.Flags }
func (self *IrFieldGet) OptFlags() *OptFlags    { return &self.Flags }
func (self *IrFieldPut) OptFlags() *OptFlags    { return &self.Flags }
func (self *IrStaticGet) OptFlags() *OptFlags   { return &self.Flags }
func (self *IrStaticPut) OptFlags() *OptFlags   { return &self.Flags }
func (self *IrInvoke) OptFlags() *OptFlags      { return &self.Flags }
func (self *IrNewInstance) OptFlags() *OptFlags { return &self.Flags }

func optsuffix(f OptFlags) string {
	var tags []string
	if f.Has(NullCheckElided) {
		tags = append(tags, "nonull")
	}
	if f.Has(ClassInitElided) {
		tags = append(tags, "noinit")
	}
	if f.Has(ClassInCacheElided) {
		tags = append(tags, "cached")
	}
	if f.Has(RangeCheckElided) {
		tags = append(tags, "norange")
	}
	if len(tags) == 0 {
		return ""
	}
	return " [" + strings.Join(tags, ",") + "]"
}

type IrPhi struct {
	R Reg
	V map[*BasicBlock]*Reg
}

func (self *IrPhi) String() string {
	nb := len(self.V)
	ret := make([]string, 0, nb)
	phi := make([]struct {
		b int
		r Reg
	}, 0, nb)

	/* add each path */
	for bb, reg := range self.V {
		phi = append(phi, struct {
			b int
			r Reg
		}{b: bb.Id, r: *reg})
	}

	/* sort by basic block ID */
	sort.Slice(phi, func(i int, j int) bool {
		return phi[i].b < phi[j].b
	})

	/* dump as string */
	for _, p := range phi {
		ret = append(ret, fmt.Sprintf("bb_%d: %s", p.b, p.r))
	}

	return fmt.Sprintf(
		"%s = φ(%s)",
		self.R,
		strings.Join(ret, ", "),
	)
}

func (self *IrPhi) Usages() (r []*Reg) {
	r = make([]*Reg, 0, len(self.V))
	for _, v := range self.V {
		r = append(r, v)
	}
	return
}

func (self *IrPhi) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrSuccessors interface {
	Next() bool
	Block() *BasicBlock
	Value() (int64, bool)
}

type IrTerminator interface {
	IrNode
	Successors() IrSuccessors
	irterminator()
}

func (*IrSwitch)    irterminator() {}
func (*IrCmpBranch) irterminator() {}
func (*IrReturn)    irterminator() {}
func (*IrThrow)     irterminator() {}

type _SwitchSuccessors struct {
	i  int
	kk []int64
	vv []*BasicBlock
}

func (self *_SwitchSuccessors) Next() bool {
	self.i++
	return self.i < len(self.vv)
}

func (self *_SwitchSuccessors) Block() *BasicBlock {
	return self.vv[self.i]
}

func (self *_SwitchSuccessors) Value() (int64, bool) {
	if self.i < len(self.kk) {
		return self.kk[self.i], true
	} else {
		return 0, false
	}
}

// IrSwitch transfers control based on V: the matching Br edge is taken,
// Ln otherwise. A two-way branch is a switch with a single key.
type IrSwitch struct {
	V  Reg
	Ln *BasicBlock
	Br map[int64]*BasicBlock
}

func (self *IrSwitch) iter() *_SwitchSuccessors {
	kk := make([]int64, 0, len(self.Br))
	for k := range self.Br {
		kk = append(kk, k)
	}
	sort.Slice(kk, func(i int, j int) bool {
		return kk[i] < kk[j]
	})
	vv := make([]*BasicBlock, 0, len(kk)+1)
	for _, k := range kk {
		vv = append(vv, self.Br[k])
	}
	vv = append(vv, self.Ln)
	return &_SwitchSuccessors{i: -1, kk: kk, vv: vv}
}

func (self *IrSwitch) String() string {
	nb := len(self.Br)

	/* unconditional goto */
	if nb == 0 {
		return fmt.Sprintf("goto bb_%d", self.Ln.Id)
	}

	/* dump the branch table in key order */
	it := self.iter()
	ret := make([]string, 0, nb)
	for it.Next() {
		if k, ok := it.Value(); ok {
			ret = append(ret, fmt.Sprintf("%d => bb_%d", k, it.Block().Id))
		}
	}
	return fmt.Sprintf(
		"switch %s { %s, _ => bb_%d }",
		self.V,
		strings.Join(ret, ", "),
		self.Ln.Id,
	)
}

func (self *IrSwitch) Usages() []*Reg {
	if len(self.Br) == 0 {
		return nil
	} else {
		return []*Reg{&self.V}
	}
}

func (self *IrSwitch) Successors() IrSuccessors {
	return self.iter()
}

// IrCmpBranch is a fused compare-and-branch: if "X op Y" holds, control
// transfers to To, otherwise to Ln. Op must be one of the IrCmp* ops.
type IrCmpBranch struct {
	Op IrBinaryOp
	X  Reg
	Y  Reg
	To *BasicBlock
	Ln *BasicBlock
}

func (self *IrCmpBranch) String() string {
	return fmt.Sprintf("if %s %s %s then bb_%d else bb_%d", self.X, self.Op, self.Y, self.To.Id, self.Ln.Id)
}

func (self *IrCmpBranch) Usages() []*Reg {
	return []*Reg{&self.X, &self.Y}
}

func (self *IrCmpBranch) Successors() IrSuccessors {
	return &_SwitchSuccessors{i: -1, kk: []int64{1}, vv: []*BasicBlock{self.To, self.Ln}}
}

// Negate flips the branch condition and swaps the targets in place. The
// observable control flow is unchanged.
func (self *IrCmpBranch) Negate() {
	self.Op = self.Op.Negated()
	self.To, self.Ln = self.Ln, self.To
}

type IrReturn struct {
	R []Reg
}

func (self *IrReturn) String() string {
	nb := len(self.R)
	ret := make([]string, 0, nb)
	for _, r := range self.R {
		ret = append(ret, r.String())
	}
	return "ret {" + strings.Join(ret, ", ") + "}"
}

func (self *IrReturn) Usages() (r []*Reg) {
	r = make([]*Reg, 0, len(self.R))
	for i := range self.R {
		r = append(r, &self.R[i])
	}
	return
}

func (self *IrReturn) Successors() IrSuccessors {
	return &_SwitchSuccessors{i: -1}
}

// IrThrow raises the exception object in V. Throwing blocks have no
// in-method successors unless a catch handler covers them.
type IrThrow struct {
	V Reg
}

func (self *IrThrow) String() string {
	return "throw " + self.V.String()
}

func (self *IrThrow) Usages() []*Reg {
	return []*Reg{&self.V}
}

func (self *IrThrow) Successors() IrSuccessors {
	return &_SwitchSuccessors{i: -1}
}

type IrMove struct {
	R Reg
	V Reg
}

// IrCopy makes a register copy from "from" into "to".
func IrCopy(to Reg, from Reg) *IrMove {
	return &IrMove{R: to, V: from}
}

func (self *IrMove) String() string {
	return fmt.Sprintf("%s = %s", self.R, self.V)
}

func (self *IrMove) Usages() []*Reg {
	return []*Reg{&self.V}
}

func (self *IrMove) Definitions() []*Reg {
	return []*Reg{&self.R}
}

// IrLoadArg loads the Id-th method argument. Argument 0 of an instance
// method is the receiver, which is known non-null on entry.
type IrLoadArg struct {
	R  Reg
	Id int
}

func (self *IrLoadArg) String() string {
	return fmt.Sprintf("%s = #arg(%d)", self.R, self.Id)
}

func (self *IrLoadArg) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrConstInt struct {
	R Reg
	V int64
}

func (self *IrConstInt) String() string {
	return fmt.Sprintf("%s = $%d", self.R, self.V)
}

func (self *IrConstInt) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrUnaryOp uint8

const (
	IrOpNegate IrUnaryOp = iota
	IrOpBitwiseNot
)

func (self IrUnaryOp) String() string {
	switch self {
	case IrOpNegate:
		return "negate"
	case IrOpBitwiseNot:
		return "not"
	default:
		panic(fmt.Sprintf("invalid unary operator: %d", self))
	}
}

type IrUnaryExpr struct {
	R  Reg
	V  Reg
	Op IrUnaryOp
}

func (self *IrUnaryExpr) String() string {
	return fmt.Sprintf("%s = %s %s", self.R, self.Op, self.V)
}

func (self *IrUnaryExpr) Usages() []*Reg {
	return []*Reg{&self.V}
}

func (self *IrUnaryExpr) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrBinaryOp uint8

const (
	IrOpAdd IrBinaryOp = iota
	IrOpSub
	IrOpMul
	IrOpDiv
	IrOpAnd
	IrOpOr
	IrOpXor
	IrOpShl
	IrOpShr
	IrOpUshr
	IrOpMin
	IrOpMax
	IrCmpEq
	IrCmpNe
	IrCmpLt
	IrCmpLe
	IrCmpGt
	IrCmpGe
)

func (self IrBinaryOp) String() string {
	switch self {
	case IrOpAdd:
		return "+"
	case IrOpSub:
		return "-"
	case IrOpMul:
		return "*"
	case IrOpDiv:
		return "/"
	case IrOpAnd:
		return "&"
	case IrOpOr:
		return "|"
	case IrOpXor:
		return "^"
	case IrOpShl:
		return "<<"
	case IrOpShr:
		return ">>"
	case IrOpUshr:
		return ">>>"
	case IrOpMin:
		return "min"
	case IrOpMax:
		return "max"
	case IrCmpEq:
		return "=="
	case IrCmpNe:
		return "!="
	case IrCmpLt:
		return "<"
	case IrCmpLe:
		return "<="
	case IrCmpGt:
		return ">"
	case IrCmpGe:
		return ">="
	default:
		panic(fmt.Sprintf("invalid binary operator: %d", self))
	}
}

// IsCompare reports whether the op yields a 0/1 comparison result.
func (self IrBinaryOp) IsCompare() bool {
	return self >= IrCmpEq
}

// Negated returns the comparison with the opposite truth value.
func (self IrBinaryOp) Negated() IrBinaryOp {
	switch self {
	case IrCmpEq:
		return IrCmpNe
	case IrCmpNe:
		return IrCmpEq
	case IrCmpLt:
		return IrCmpGe
	case IrCmpLe:
		return IrCmpGt
	case IrCmpGt:
		return IrCmpLe
	case IrCmpGe:
		return IrCmpLt
	default:
		panic("negate of non-comparison operator: " + self.String())
	}
}

// Mirrored returns the comparison with its operands swapped.
func (self IrBinaryOp) Mirrored() IrBinaryOp {
	switch self {
	case IrCmpEq, IrCmpNe:
		return self
	case IrCmpLt:
		return IrCmpGt
	case IrCmpLe:
		return IrCmpGe
	case IrCmpGt:
		return IrCmpLt
	case IrCmpGe:
		return IrCmpLe
	default:
		panic("mirror of non-comparison operator: " + self.String())
	}
}

// IsCommutative reports whether operand order is irrelevant.
func (self IrBinaryOp) IsCommutative() bool {
	switch self {
	case IrOpAdd, IrOpMul, IrOpAnd, IrOpOr, IrOpXor, IrOpMin, IrOpMax, IrCmpEq, IrCmpNe:
		return true
	default:
		return false
	}
}

type IrBinaryExpr struct {
	R  Reg
	X  Reg
	Y  Reg
	Op IrBinaryOp
}

func (self *IrBinaryExpr) String() string {
	return fmt.Sprintf("%s = %s %s %s", self.R, self.X, self.Op, self.Y)
}

func (self *IrBinaryExpr) Usages() []*Reg {
	return []*Reg{&self.X, &self.Y}
}

func (self *IrBinaryExpr) Definitions() []*Reg {
	return []*Reg{&self.R}
}

// IrCompare is the three-way comparison: R is -1, 0 or 1 as X is less
// than, equal to, or greater than Y.
type IrCompare struct {
	R Reg
	X Reg
	Y Reg
}

func (self *IrCompare) String() string {
	return fmt.Sprintf("%s = compare(%s, %s)", self.R, self.X, self.Y)
}

func (self *IrCompare) Usages() []*Reg {
	return []*Reg{&self.X, &self.Y}
}

func (self *IrCompare) Definitions() []*Reg {
	return []*Reg{&self.R}
}

// IrSelect picks T when Cond is non-zero, F otherwise, without a branch.
type IrSelect struct {
	R    Reg
	Cond Reg
	T    Reg
	F    Reg
}

func (self *IrSelect) String() string {
	return fmt.Sprintf("%s = select %s ? %s : %s", self.R, self.Cond, self.T, self.F)
}

func (self *IrSelect) Usages() []*Reg {
	return []*Reg{&self.Cond, &self.T, &self.F}
}

func (self *IrSelect) Definitions() []*Reg {
	return []*Reg{&self.R}
}

// IrNewInstance allocates a new object of Class. Allocation may trigger
// class initialization, so the node carries an init check.
type IrNewInstance struct {
	R     Reg
	Class bytecode.TypeRef
	Flags OptFlags
}

func (self *IrNewInstance) String() string {
	return fmt.Sprintf("%s = new class_%d@%d%s", self.R, self.Class.Index, self.Class.Unit, optsuffix(self.Flags))
}

func (self *IrNewInstance) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrNewArray struct {
	R    Reg
	Len  Reg
	Elem isa.Elem
}

func (self *IrNewArray) String() string {
	return fmt.Sprintf("%s = new %s[%s]", self.R, self.Elem, self.Len)
}

func (self *IrNewArray) Usages() []*Reg {
	return []*Reg{&self.Len}
}

func (self *IrNewArray) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrArrayLength struct {
	R     Reg
	Arr   Reg
	Flags OptFlags
}

func (self *IrArrayLength) String() string {
	return fmt.Sprintf("%s = len(%s)%s", self.R, self.Arr, optsuffix(self.Flags))
}

func (self *IrArrayLength) Usages() []*Reg {
	return []*Reg{&self.Arr}
}

func (self *IrArrayLength) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrArrayGet struct {
	R     Reg
	Arr   Reg
	Idx   Reg
	Elem  isa.Elem
	Flags OptFlags
}

func (self *IrArrayGet) String() string {
	return fmt.Sprintf("%s = %s[%s].%s%s", self.R, self.Arr, self.Idx, self.Elem, optsuffix(self.Flags))
}

func (self *IrArrayGet) Usages() []*Reg {
	return []*Reg{&self.Arr, &self.Idx}
}

func (self *IrArrayGet) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrArrayPut struct {
	Arr   Reg
	Idx   Reg
	V     Reg
	Elem  isa.Elem
	Flags OptFlags
}

func (self *IrArrayPut) String() string {
	return fmt.Sprintf("%s[%s].%s = %s%s", self.Arr, self.Idx, self.Elem, self.V, optsuffix(self.Flags))
}

func (self *IrArrayPut) Usages() []*Reg {
	return []*Reg{&self.Arr, &self.Idx, &self.V}
}

type IrFieldGet struct {
	R     Reg
	Obj   Reg
	Field bytecode.FieldInfo
	Flags OptFlags
}

func (self *IrFieldGet) String() string {
	return fmt.Sprintf("%s = %s.field@%d%s", self.R, self.Obj, self.Field.Offset, optsuffix(self.Flags))
}

func (self *IrFieldGet) Usages() []*Reg {
	return []*Reg{&self.Obj}
}

func (self *IrFieldGet) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrFieldPut struct {
	Obj   Reg
	V     Reg
	Field bytecode.FieldInfo
	Flags OptFlags
}

func (self *IrFieldPut) String() string {
	return fmt.Sprintf("%s.field@%d = %s%s", self.Obj, self.Field.Offset, self.V, optsuffix(self.Flags))
}

func (self *IrFieldPut) Usages() []*Reg {
	return []*Reg{&self.Obj, &self.V}
}

type IrStaticGet struct {
	R     Reg
	Ref   bytecode.FieldRef
	Class bytecode.TypeRef
	Field bytecode.FieldInfo
	Flags OptFlags
}

func (self *IrStaticGet) String() string {
	return fmt.Sprintf("%s = class_%d@%d.static@%d%s", self.R, self.Class.Index, self.Class.Unit, self.Field.Offset, optsuffix(self.Flags))
}

func (self *IrStaticGet) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrStaticPut struct {
	V     Reg
	Ref   bytecode.FieldRef
	Class bytecode.TypeRef
	Field bytecode.FieldInfo
	Flags OptFlags
}

func (self *IrStaticPut) String() string {
	return fmt.Sprintf("class_%d@%d.static@%d = %s%s", self.Class.Index, self.Class.Unit, self.Field.Offset, self.V, optsuffix(self.Flags))
}

func (self *IrStaticPut) Usages() []*Reg {
	return []*Reg{&self.V}
}

type IrInvokeKind uint8

const (
	IrInvokeVirtual IrInvokeKind = iota
	IrInvokeDirect
	IrInvokeStatic
)

func (self IrInvokeKind) String() string {
	switch self {
	case IrInvokeVirtual:
		return "virtual"
	case IrInvokeDirect:
		return "direct"
	case IrInvokeStatic:
		return "static"
	default:
		panic(fmt.Sprintf("invalid invoke kind: %d", self))
	}
}

// IrInvoke is a method call. Virtual and direct calls null-check their
// first argument; static calls init-check their declaring class.
type IrInvoke struct {
	R      Reg
	HasR   bool
	Kind   IrInvokeKind
	Method bytecode.MethodInfo
	Ref    bytecode.MethodRef
	Args   []Reg
	Flags  OptFlags
}

func (self *IrInvoke) String() string {
	nb := len(self.Args)
	ret := make([]string, 0, nb)
	for _, r := range self.Args {
		ret = append(ret, r.String())
	}
	s := fmt.Sprintf("invoke_%s method_%d@%d(%s)%s", self.Kind, self.Ref.Index, self.Ref.Unit, strings.Join(ret, ", "), optsuffix(self.Flags))
	if self.HasR {
		s = self.R.String() + " = " + s
	}
	return s
}

func (self *IrInvoke) Usages() (r []*Reg) {
	r = make([]*Reg, 0, len(self.Args))
	for i := range self.Args {
		r = append(r, &self.Args[i])
	}
	return
}

func (self *IrInvoke) Definitions() []*Reg {
	if self.HasR {
		return []*Reg{&self.R}
	} else {
		return nil
	}
}

// IrSuspendCheck polls for a pending safepoint. One is placed at every
// loop back edge during construction.
type IrSuspendCheck struct {
	Flags OptFlags
}

func (self *IrSuspendCheck) String() string {
	if self.Flags.Has(SuspendCheckElided) {
		return "suspend_check [elided]"
	}
	return "suspend_check"
}

func (self *IrSuspendCheck) OptFlags() *OptFlags {
	return &self.Flags
}

// IrVecReplicate broadcasts the scalar V into all Lanes lanes of R.
type IrVecReplicate struct {
	R     Reg
	V     Reg
	Elem  isa.Elem
	Lanes int
}

func (self *IrVecReplicate) String() string {
	return fmt.Sprintf("%s = replicate.%sx%d %s", self.R, self.Elem, self.Lanes, self.V)
}

func (self *IrVecReplicate) Usages() []*Reg {
	return []*Reg{&self.V}
}

func (self *IrVecReplicate) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrVecLoad struct {
	R     Reg
	Arr   Reg
	Idx   Reg
	Elem  isa.Elem
	Lanes int
}

func (self *IrVecLoad) String() string {
	return fmt.Sprintf("%s = vload.%sx%d %s[%s]", self.R, self.Elem, self.Lanes, self.Arr, self.Idx)
}

func (self *IrVecLoad) Usages() []*Reg {
	return []*Reg{&self.Arr, &self.Idx}
}

func (self *IrVecLoad) Definitions() []*Reg {
	return []*Reg{&self.R}
}

type IrVecStore struct {
	Arr   Reg
	Idx   Reg
	V     Reg
	Elem  isa.Elem
	Lanes int
}

func (self *IrVecStore) String() string {
	return fmt.Sprintf("vstore.%sx%d %s[%s], %s", self.Elem, self.Lanes, self.Arr, self.Idx, self.V)
}

func (self *IrVecStore) Usages() []*Reg {
	return []*Reg{&self.Arr, &self.Idx, &self.V}
}

type IrVecBinary struct {
	R     Reg
	X     Reg
	Y     Reg
	Op    IrBinaryOp
	Elem  isa.Elem
	Lanes int
}

func (self *IrVecBinary) String() string {
	return fmt.Sprintf("%s = %s %s.%sx%d %s", self.R, self.X, self.Op, self.Elem, self.Lanes, self.Y)
}

func (self *IrVecBinary) Usages() []*Reg {
	return []*Reg{&self.X, &self.Y}
}

func (self *IrVecBinary) Definitions() []*Reg {
	return []*Reg{&self.R}
}

// IrVecReduce folds all lanes of V into the scalar R with Op.
type IrVecReduce struct {
	R     Reg
	V     Reg
	Op    IrBinaryOp
	Elem  isa.Elem
	Lanes int
}

func (self *IrVecReduce) String() string {
	return fmt.Sprintf("%s = reduce_%s.%sx%d %s", self.R, self.Op, self.Elem, self.Lanes, self.V)
}

func (self *IrVecReduce) Usages() []*Reg {
	return []*Reg{&self.V}
}

func (self *IrVecReduce) Definitions() []*Reg {
	return []*Reg{&self.R}
}
