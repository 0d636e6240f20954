// location.go - 物理位置：寄存器、内存操作数、组合寄存器
//
// Location 是一个封闭的变体类型，只有三种实现：
//   - Reg       物理寄存器（或 "stack" 伪寄存器）
//   - Mem       基址寄存器 + 位移（可选比例索引，或绝对数据符号）
//   - Composite 跨越两个物理寄存器的值（如 x86 上 EDX:EAX 中的 64 位值）
//
// 使用处应对三种情况做完整的类型分支。

package ir

import (
	"fmt"
	"strings"
)

// RegClass 寄存器类别
type RegClass int

const (
	RegGPR      RegClass = iota // 通用寄存器
	RegFloat                    // 浮点（XMM）寄存器
	RegStack                    // 伪寄存器：栈上位置
	RegContents                 // 伪寄存器：内存内容
	RegMulti                    // 组合寄存器
)

func (c RegClass) String() string {
	switch c {
	case RegGPR:
		return "gpr"
	case RegFloat:
		return "float"
	case RegStack:
		return "stack"
	case RegContents:
		return "contents"
	case RegMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// Location 物理位置
type Location interface {
	isLocation()
	// Bytes 位置的字节宽度
	Bytes() int
	String() string
}

// ============================================================================
// 寄存器
// ============================================================================

// Reg 寄存器描述
// ID 是该类别内的硬件编号（GPR 0-15，XMM 0-15）
type Reg struct {
	Name     string
	ID       int
	Class    RegClass
	Size     int    // 字节
	Mask     uint64 // 寄存器集合位掩码
	StackLoc int    // 仅 RegStack 使用
}

func (Reg) isLocation() {}

// Bytes 实现 Location
func (r Reg) Bytes() int { return r.Size }

func (r Reg) String() string {
	if r.Class == RegStack {
		return fmt.Sprintf("stack(%d)", r.StackLoc)
	}
	return r.Name
}

// Equal 结构相等：类别、大小、编号以及栈偏移
func (r Reg) Equal(o Reg) bool {
	return r.Class == o.Class && r.Size == o.Size && r.ID == o.ID && r.StackLoc == o.StackLoc
}

// Same 是否是同一个物理寄存器（忽略访问宽度）
func (r Reg) Same(o Reg) bool {
	return r.Class == o.Class && r.ID == o.ID
}

// IsStack 是否是栈伪寄存器
func (r Reg) IsStack() bool { return r.Class == RegStack }

// ============================================================================
// 内存操作数
// ============================================================================

// Mem 内存操作数
// Symbol 非空时表示绝对数据地址（链接时重定位），此时 Base 无效
type Mem struct {
	Base     Reg
	Index    Reg
	HasIndex bool
	Scale    int // 1, 2, 4, 8
	Disp     int32
	Size     int
	Symbol   string
}

func (Mem) isLocation() {}

// Bytes 实现 Location
func (m Mem) Bytes() int { return m.Size }

func (m Mem) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	if m.Symbol != "" {
		sb.WriteString(m.Symbol)
	} else {
		sb.WriteString(m.Base.Name)
		if m.HasIndex {
			fmt.Fprintf(&sb, " + %s*%d", m.Index.Name, m.Scale)
		}
	}
	if m.Disp > 0 {
		fmt.Fprintf(&sb, " + %d", m.Disp)
	} else if m.Disp < 0 {
		fmt.Fprintf(&sb, " - %d", -int64(m.Disp))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Offset 返回位移增加 delta 后的新内存操作数
func (m Mem) Offset(delta int32, size int) Mem {
	m.Disp += delta
	m.Size = size
	return m
}

// Equal 结构相等
func (m Mem) Equal(o Mem) bool {
	if m.Symbol != o.Symbol || m.Disp != o.Disp || m.HasIndex != o.HasIndex {
		return false
	}
	if m.Symbol == "" && !m.Base.Same(o.Base) {
		return false
	}
	if m.HasIndex && (!m.Index.Same(o.Index) || m.Scale != o.Scale) {
		return false
	}
	return true
}

// ============================================================================
// 组合寄存器
// ============================================================================

// Composite 组合寄存器：低位在 Lo，高位在 Hi
type Composite struct {
	Lo, Hi Reg
}

func (Composite) isLocation() {}

// Bytes 实现 Location
func (c Composite) Bytes() int { return c.Lo.Size + c.Hi.Size }

// Mask 两个部分的并集
func (c Composite) Mask() uint64 { return c.Lo.Mask | c.Hi.Mask }

func (c Composite) String() string {
	return c.Hi.Name + ":" + c.Lo.Name
}

// Equal 结构相等
func (c Composite) Equal(o Composite) bool {
	return c.Lo.Equal(o.Lo) && c.Hi.Equal(o.Hi)
}

// SameLocation 比较两个位置是否相同
func SameLocation(a, b Location) bool {
	switch x := a.(type) {
	case Reg:
		y, ok := b.(Reg)
		return ok && x.Equal(y)
	case Mem:
		y, ok := b.(Mem)
		return ok && x.Equal(y)
	case Composite:
		y, ok := b.(Composite)
		return ok && x.Equal(y)
	}
	return false
}
