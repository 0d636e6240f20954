// operand.go - 操作数
//
// 操作数在整个管线中共享：IR 节点使用 Local/Arg/Temp 引用，
// 存储分配之后被改写为 Loc（寄存器 / 内存 / 组合寄存器），
// 机器指令同样使用这套操作数。

package ir

import "fmt"

// OperandKind 操作数种类
type OperandKind int

const (
	KindNone   OperandKind = iota
	KindLoc                // 物理位置
	KindImm                // 立即数
	KindSymbol             // 符号（调用目标、数据标签）
	KindLocal              // 局部变量引用（分配前）
	KindArg                // 参数引用（分配前）
	KindTemp               // 虚拟临时值（分配前）
	KindBlock              // 基本块目标
	KindCond               // 条件码
)

// UseDef 使用/定义标记
type UseDef int

const (
	UDNone UseDef = iota
	UDUse
	UDDef
)

// Cond 条件码
type Cond int

const (
	CondAlways Cond = iota
	CondNever
	CondEq
	CondNe
	CondLt
	CondLe
	CondGt
	CondGe
	CondLtUn // below
	CondLeUn // below or equal
	CondGtUn // above
	CondGeUn // above or equal
)

var condNames = [...]string{
	CondAlways: "always",
	CondNever:  "never",
	CondEq:     "eq",
	CondNe:     "ne",
	CondLt:     "lt",
	CondLe:     "le",
	CondGt:     "gt",
	CondGe:     "ge",
	CondLtUn:   "b",
	CondLeUn:   "be",
	CondGtUn:   "a",
	CondGeUn:   "ae",
}

func (c Cond) String() string {
	if c >= 0 && int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("cc(%d)", int(c))
}

// ParseCond 解析条件码名
func ParseCond(s string) (Cond, bool) {
	for i, name := range condNames {
		if name == s {
			return Cond(i), true
		}
	}
	return CondAlways, false
}

// Operand 操作数
type Operand struct {
	Kind  OperandKind
	Type  CoarseType
	Loc   Location
	Imm   int64
	Sym   string
	Index int // 局部变量/参数/临时值编号，或块序号
	Cond  Cond
	UD    UseDef
}

// ============================================================================
// 构造函数
// ============================================================================

// LocOp 位置操作数
func LocOp(loc Location, t CoarseType) Operand {
	return Operand{Kind: KindLoc, Loc: loc, Type: t}
}

// RegOp 寄存器操作数
func RegOp(r Reg) Operand {
	return Operand{Kind: KindLoc, Loc: r, Type: regType(r)}
}

// MemOp 内存操作数
func MemOp(m Mem, t CoarseType) Operand {
	return Operand{Kind: KindLoc, Loc: m, Type: t}
}

// Imm 立即数
func Imm(v int64, t CoarseType) Operand {
	return Operand{Kind: KindImm, Imm: v, Type: t}
}

// Sym 符号
func Sym(name string) Operand {
	return Operand{Kind: KindSymbol, Sym: name, Type: TypeIntPtr}
}

// Local 局部变量引用
func Local(i int, t CoarseType) Operand {
	return Operand{Kind: KindLocal, Index: i, Type: t}
}

// Arg 参数引用
func Arg(i int, t CoarseType) Operand {
	return Operand{Kind: KindArg, Index: i, Type: t}
}

// Temp 虚拟临时值
func Temp(i int, t CoarseType) Operand {
	return Operand{Kind: KindTemp, Index: i, Type: t}
}

// Block 块目标
func Block(seq int) Operand {
	return Operand{Kind: KindBlock, Index: seq}
}

// CC 条件码
func CC(c Cond) Operand {
	return Operand{Kind: KindCond, Cond: c}
}

// WithUD 设置使用/定义标记
func (o Operand) WithUD(ud UseDef) Operand {
	o.UD = ud
	return o
}

func regType(r Reg) CoarseType {
	if r.Class == RegFloat {
		return TypeFloat
	}
	if r.Size == 8 {
		return TypeInt64
	}
	return TypeInt32
}

// ============================================================================
// 查询
// ============================================================================

// IsReg 是否是寄存器位置
func (o Operand) IsReg() bool {
	if o.Kind != KindLoc {
		return false
	}
	_, ok := o.Loc.(Reg)
	return ok
}

// IsMem 是否是内存位置
func (o Operand) IsMem() bool {
	if o.Kind != KindLoc {
		return false
	}
	_, ok := o.Loc.(Mem)
	return ok
}

// IsComposite 是否是组合寄存器
func (o Operand) IsComposite() bool {
	if o.Kind != KindLoc {
		return false
	}
	_, ok := o.Loc.(Composite)
	return ok
}

// Reg 取寄存器，非寄存器时第二个返回值为 false
func (o Operand) Reg() (Reg, bool) {
	if o.Kind != KindLoc {
		return Reg{}, false
	}
	r, ok := o.Loc.(Reg)
	return r, ok
}

// Mem 取内存操作数
func (o Operand) Mem() (Mem, bool) {
	if o.Kind != KindLoc {
		return Mem{}, false
	}
	m, ok := o.Loc.(Mem)
	return m, ok
}

// IsVirtual 是否是分配前的引用
func (o Operand) IsVirtual() bool {
	return o.Kind == KindLocal || o.Kind == KindArg || o.Kind == KindTemp
}

// FitsInt8 立即数是否在有符号 8 位范围内
func (o Operand) FitsInt8() bool {
	return o.Kind == KindImm && o.Imm >= -128 && o.Imm <= 127
}

// FitsInt32 立即数是否在有符号 32 位范围内
func (o Operand) FitsInt32() bool {
	return o.Kind == KindImm && o.Imm >= -1<<31 && o.Imm <= 1<<31-1
}

func (o Operand) String() string {
	var s string
	switch o.Kind {
	case KindNone:
		s = "_"
	case KindLoc:
		s = o.Loc.String()
	case KindImm:
		s = fmt.Sprintf("#%d", o.Imm)
	case KindSymbol:
		s = "@" + o.Sym
	case KindLocal:
		s = fmt.Sprintf("l%d", o.Index)
	case KindArg:
		s = fmt.Sprintf("a%d", o.Index)
	case KindTemp:
		s = fmt.Sprintf("t%d", o.Index)
	case KindBlock:
		s = fmt.Sprintf("b%d", o.Index)
	case KindCond:
		s = "cc:" + o.Cond.String()
	}
	switch o.UD {
	case UDDef:
		s += "(def)"
	case UDUse:
		s += "(use)"
	}
	return s
}
