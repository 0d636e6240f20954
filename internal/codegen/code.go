// Package codegen 把一个 IR 方法编译为机器码
//
// 编译管线（每个方法单线程执行）：
//  1. 存储分配：局部变量、参数、临时值映射到栈帧槽位或传入参数位置
//  2. Lowering：enter / ret / call / conv 伪操作展开为机器指令
//  3. 指令选择：按基本块贪心匹配最长的 IR 窗口
//  4. 窥孔优化：立即数收缩、清零惯用法
//  5. 编码：两遍汇编，输出字节、重定位和块偏移
//
// 所有值都驻留在栈帧中（spill-everything），模式只使用
// 目标提供的几个临时寄存器，因此不需要全局寄存器分配。
package codegen

import (
	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
	"github.com/tangzhangming/aotc/internal/target"
)

// Code 一个方法的编译状态
type Code struct {
	Method *ir.Method
	Target target.Target
	Conv   *target.Convention

	locals []ir.Operand
	args   []ir.Operand
	temps  map[int]ir.Operand

	// spills 入口处需要写回栈帧的寄存器参数
	spills []argSpill

	uses map[int]int

	// FrameSize 局部变量、参数副本与临时值占用的字节数（已按栈对齐取整）
	FrameSize int

	// lowered 伪操作节点下标 -> 展开后的指令
	lowered map[int][]mc.Inst

	// Blocks 指令选择的输出，按块序号排列
	Blocks [][]mc.Inst
}

// argSpill 寄存器参数到其栈帧副本的写回
type argSpill struct {
	reg  ir.Reg
	home ir.Operand
}

// NewCode 为方法创建编译状态；convention 为空时使用目标的默认约定
func NewCode(m *ir.Method, tgt target.Target, convention string) (*Code, error) {
	if m == nil {
		return nil, errors.InvalidInput("nil method")
	}
	conv, err := tgt.Convention(convention)
	if err != nil {
		return nil, err
	}
	return &Code{
		Method:  m,
		Target:  tgt,
		Conv:    conv,
		temps:   make(map[int]ir.Operand),
		uses:    m.UseCounts(),
		lowered: make(map[int][]mc.Inst),
	}, nil
}

// Operand 实现 target.Context：把局部变量、参数和临时值解析为位置
// 解析后的操作数沿用引用处的类型
func (c *Code) Operand(o ir.Operand) ir.Operand {
	var loc ir.Operand
	switch o.Kind {
	case ir.KindLocal:
		if o.Index < 0 || o.Index >= len(c.locals) {
			return o
		}
		loc = c.locals[o.Index]
	case ir.KindArg:
		if o.Index < 0 || o.Index >= len(c.args) {
			return o
		}
		loc = c.args[o.Index]
	case ir.KindTemp:
		t, ok := c.temps[o.Index]
		if !ok {
			return o
		}
		loc = t
	default:
		return o
	}
	if o.Type != ir.TypeVoid {
		loc.Type = o.Type
	}
	loc.UD = o.UD
	return loc
}

// SingleUse 实现 target.Context
func (c *Code) SingleUse(o ir.Operand) bool {
	return o.Kind == ir.KindTemp && c.uses[o.Index] == 1
}

// operands 解析一组操作数，遇到未分配的引用时报错
func (c *Code) operands(node int, ops []ir.Operand) ([]ir.Operand, error) {
	out := make([]ir.Operand, len(ops))
	for i, o := range ops {
		r := c.Operand(o)
		if r.IsVirtual() {
			return nil, errors.InvalidInput("operand %s has no storage", o).AtNode(node)
		}
		out[i] = r
	}
	return out, nil
}

// Listing 机器指令清单
func (c *Code) Listing() string {
	return mc.Print(c.Blocks)
}

// InstCount 已选择的机器指令条数（含标记）
func (c *Code) InstCount() int {
	n := 0
	for _, b := range c.Blocks {
		n += len(b)
	}
	return n
}
