// ir.go - 与架构无关的中间表示
//
// 一个方法体是 Node 的有序列表。每个节点带有显式的 defs/uses 操作数，
// 操作数是局部变量、参数、虚拟临时值、立即数或符号，不涉及任何物理寄存器。
// BlockStart 标记基本块的开始；第一个节点总是属于块 0。

package ir

import (
	"fmt"
	"strings"
)

// ============================================================================
// IR 操作码
// ============================================================================

// Opcode IR 操作码
type Opcode int

const (
	IR_NOP Opcode = iota

	// 伪操作（由 Lowering 展开）
	IR_ENTER // 方法入口
	IR_RET   // 返回，uses: [值]
	IR_CALL  // 调用，uses: [符号, 参数...]，defs: [结果]
	IR_CONV  // 数值转换，uses: [源]，defs: [目标]

	// 数据移动
	IR_MOV // defs: [目标]，uses: [源]

	// 算术与位运算，defs: [目标]，uses: [a, b]
	IR_ADD
	IR_SUB
	IR_MUL
	IR_DIV
	IR_DIV_UN
	IR_REM
	IR_REM_UN
	IR_AND
	IR_OR
	IR_XOR
	IR_SHL
	IR_SHR
	IR_SHR_UN

	// 一元运算，defs: [目标]，uses: [a]
	IR_NEG
	IR_NOT

	// 比较与控制流
	IR_CMP   // uses: [a, b]，设置标志
	IR_BRIF  // uses: [条件码, 块]
	IR_BR    // uses: [块]
	IR_SETCC // defs: [目标]，uses: [条件码]

	// 间接访问，Size 由操作数类型决定
	IR_LDIND // defs: [目标]，uses: [地址]
	IR_STIND // uses: [地址, 值]

	// 数据符号
	IR_LDLABADDR     // defs: [目标]，uses: [符号]
	IR_LDLABCONTENTS // defs: [目标]，uses: [符号]
	IR_STLABCONTENTS // uses: [符号, 值]
)

var opcodeNames = [...]string{
	IR_NOP:           "nop",
	IR_ENTER:         "enter",
	IR_RET:           "ret",
	IR_CALL:          "call",
	IR_CONV:          "conv",
	IR_MOV:           "mov",
	IR_ADD:           "add",
	IR_SUB:           "sub",
	IR_MUL:           "mul",
	IR_DIV:           "div",
	IR_DIV_UN:        "div.un",
	IR_REM:           "rem",
	IR_REM_UN:        "rem.un",
	IR_AND:           "and",
	IR_OR:            "or",
	IR_XOR:           "xor",
	IR_SHL:           "shl",
	IR_SHR:           "shr",
	IR_SHR_UN:        "shr.un",
	IR_NEG:           "neg",
	IR_NOT:           "not",
	IR_CMP:           "cmp",
	IR_BRIF:          "brif",
	IR_BR:            "br",
	IR_SETCC:         "setcc",
	IR_LDIND:         "ldind",
	IR_STIND:         "stind",
	IR_LDLABADDR:     "ldlabaddr",
	IR_LDLABCONTENTS: "ldlabcontents",
	IR_STLABCONTENTS: "stlabcontents",
}

func (op Opcode) String() string {
	if op >= 0 && int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// ParseOpcode 从名字解析操作码
func ParseOpcode(s string) (Opcode, bool) {
	for i, name := range opcodeNames {
		if name == s {
			return Opcode(i), true
		}
	}
	return IR_NOP, false
}

// IsPseudo 是否是需要 Lowering 的伪操作
func (op Opcode) IsPseudo() bool {
	switch op {
	case IR_ENTER, IR_RET, IR_CALL, IR_CONV:
		return true
	}
	return false
}

// ============================================================================
// IR 节点
// ============================================================================

// ConvInfo 数值转换参数
// DestSize 为正表示有符号扩展/截断，为负表示无符号（零扩展）
type ConvInfo struct {
	DestSize int
	Overflow bool
	Unsigned bool // 源按无符号解释
}

// Node IR 节点
type Node struct {
	Op         Opcode
	Defs       []Operand
	Uses       []Operand
	BlockStart bool
	Sig        *Signature // IR_CALL 的被调方签名
	Conv       ConvInfo   // IR_CONV 使用
}

func (n *Node) String() string {
	var sb strings.Builder
	if len(n.Defs) > 0 {
		for i, d := range n.Defs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.String())
		}
		sb.WriteString(" = ")
	}
	sb.WriteString(n.Op.String())
	if n.Op == IR_CONV {
		fmt.Fprintf(&sb, ".%d", n.Conv.DestSize)
		if n.Conv.Overflow {
			sb.WriteString(".ovf")
		}
		if n.Conv.Unsigned {
			sb.WriteString(".un")
		}
	}
	for i, u := range n.Uses {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(u.String())
	}
	return sb.String()
}

// IsTerminator 是否结束基本块
func (n *Node) IsTerminator() bool {
	return n.Op == IR_BR || n.Op == IR_BRIF || n.Op == IR_RET
}

// ============================================================================
// 方法
// ============================================================================

// Method 一个方法体
type Method struct {
	Name   string
	Sig    Signature
	Locals []Type
	Nodes  []*Node
}

// Blocks 按 BlockStart 标记切分基本块
// 返回每个块的节点下标区间 [start, end)
func (m *Method) Blocks() [][2]int {
	var blocks [][2]int
	start := 0
	for i, n := range m.Nodes {
		if i > 0 && n.BlockStart {
			blocks = append(blocks, [2]int{start, i})
			start = i
		}
	}
	if len(m.Nodes) > 0 {
		blocks = append(blocks, [2]int{start, len(m.Nodes)})
	}
	return blocks
}

// UseCounts 统计每个临时值被使用的次数
func (m *Method) UseCounts() map[int]int {
	counts := make(map[int]int)
	for _, n := range m.Nodes {
		for _, u := range n.Uses {
			if u.Kind == KindTemp {
				counts[u.Index]++
			}
		}
	}
	return counts
}

// ============================================================================
// IR 构建器
// ============================================================================

// Builder IR 构建器
type Builder struct {
	method    *Method
	nextTemp  int
	nextBlock int
	pending   bool
}

// NewBuilder 创建构建器
func NewBuilder(name string, sig Signature, locals ...Type) *Builder {
	return &Builder{
		method: &Method{Name: name, Sig: sig, Locals: locals},
	}
}

// NewTemp 分配新的临时值
func (b *Builder) NewTemp(t CoarseType) Operand {
	op := Temp(b.nextTemp, t)
	b.nextTemp++
	return op
}

// StartBlock 开始一个新的基本块，返回块序号
func (b *Builder) StartBlock() int {
	if len(b.method.Nodes) > 0 || b.nextBlock > 0 {
		b.nextBlock++
	}
	b.pending = true
	return b.nextBlock
}

// Emit 追加节点
func (b *Builder) Emit(n *Node) *Node {
	if b.pending {
		n.BlockStart = len(b.method.Nodes) > 0
		b.pending = false
	}
	b.method.Nodes = append(b.method.Nodes, n)
	return n
}

// Op 追加普通节点
func (b *Builder) Op(op Opcode, defs []Operand, uses ...Operand) *Node {
	return b.Emit(&Node{Op: op, Defs: defs, Uses: uses})
}

// Enter 方法入口
func (b *Builder) Enter() { b.Emit(&Node{Op: IR_ENTER}) }

// Mov 数据移动
func (b *Builder) Mov(dst, src Operand) { b.Op(IR_MOV, []Operand{dst}, src) }

// Binary 二元运算
func (b *Builder) Binary(op Opcode, dst, x, y Operand) { b.Op(op, []Operand{dst}, x, y) }

// Cmp 比较
func (b *Builder) Cmp(x, y Operand) { b.Op(IR_CMP, nil, x, y) }

// Brif 条件跳转
func (b *Builder) Brif(c Cond, block int) { b.Op(IR_BRIF, nil, CC(c), Block(block)) }

// Br 无条件跳转
func (b *Builder) Br(block int) { b.Op(IR_BR, nil, Block(block)) }

// Call 调用
func (b *Builder) Call(sym string, sig *Signature, dst *Operand, args ...Operand) {
	n := &Node{Op: IR_CALL, Sig: sig, Uses: append([]Operand{Sym(sym)}, args...)}
	if dst != nil {
		n.Defs = []Operand{*dst}
	}
	b.Emit(n)
}

// Ret 返回
func (b *Builder) Ret(v *Operand) {
	n := &Node{Op: IR_RET}
	if v != nil {
		n.Uses = []Operand{*v}
	}
	b.Emit(n)
}

// Conv 数值转换
func (b *Builder) Conv(dst, src Operand, info ConvInfo) {
	b.Emit(&Node{Op: IR_CONV, Defs: []Operand{dst}, Uses: []Operand{src}, Conv: info})
}

// Build 返回构建的方法
func (b *Builder) Build() *Method {
	return b.method
}

// ============================================================================
// 调试输出
// ============================================================================

// Print 打印方法的 IR
func Print(m *Method) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "method %s(", m.Name)
	for i, p := range m.Sig.ParamTypes() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	fmt.Fprintf(&sb, ") %s\n", m.Sig.Ret)
	for i, l := range m.Locals {
		fmt.Fprintf(&sb, "  local l%d %s\n", i, l)
	}
	block := 0
	for i, n := range m.Nodes {
		if i == 0 || n.BlockStart {
			if i > 0 {
				block++
			}
			fmt.Fprintf(&sb, "b%d:\n", block)
		}
		fmt.Fprintf(&sb, "  %4d: %s\n", i, n)
	}
	return sb.String()
}
