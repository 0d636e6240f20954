// x86.go - 32 位 x86 目标
//
// 所有参数经由栈传递（cdecl 风格），返回值：
//   - int32 / 指针 -> EAX
//   - int64       -> EDX:EAX 组合寄存器
// 没有浮点返回寄存器，返回 double 的签名是不支持的调用约定。
// int64 的加减与位运算拆成 add/adc、sub/sbb 的寄存器对。

package target

import (
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
)

// X86 32 位 x86 目标
type X86 struct {
	descriptor
}

func newX86() *X86 {
	stack := []ir.Reg{StackPseudo()}
	eax, ecx, edx := GPR(RegAX, 4), GPR(RegCX, 4), GPR(RegDX, 4)

	sysv := &Convention{
		Name: "sysv",
		Params: map[Class][]ir.Reg{
			ClassInt32: stack,
			ClassInt64: stack,
			ClassPtr:   stack,
			ClassFloat: stack,
		},
		Overrides: map[Class][]ir.Reg{
			ClassValue: stack,
		},
		Returns: map[Class]ir.Location{
			ClassInt32: eax,
			ClassPtr:   eax,
			ClassInt64: ir.Composite{Lo: eax, Hi: edx},
		},
		CallerPreserves: MaskOf(eax, ecx, edx),
		CalleePreserves: MaskOf(GPR(RegBX, 4), GPR(RegSI, 4), GPR(RegDI, 4), GPR(RegBP, 4)),
	}

	t := &X86{descriptor{
		name:        "x86",
		ptrSize:     4,
		mode:        32,
		stackAlign:  4,
		conventions: map[string]*Convention{"sysv": sysv, "cdecl": sysv},
		defaultConv: "sysv",
	}}

	table := NewMatchTable()
	t.registerWidePatterns(table)
	t.registerIntPatterns(table)
	t.registerSSEPatterns(table)
	t.table = table
	return t
}

// ============================================================================
// int64 寄存器对运算
// ============================================================================

// half 取 8 字节操作数的低/高 4 字节
func half(o ir.Operand, hi bool) ir.Operand {
	switch o.Kind {
	case ir.KindImm:
		v := o.Imm
		if hi {
			v >>= 32
		}
		return ir.Imm(int64(int32(v)), ir.TypeInt32)
	case ir.KindLoc:
		switch l := o.Loc.(type) {
		case ir.Mem:
			var off int32
			if hi {
				off = 4
			}
			return ir.MemOp(l.Offset(off, 4), ir.TypeInt32)
		case ir.Composite:
			if hi {
				return ir.RegOp(l.Hi)
			}
			return ir.RegOp(l.Lo)
		}
	}
	return o
}

// wide 32 位目标上的 8 字节整数运算
func (t *X86) wide(ctx Context, n *ir.Node) bool {
	if len(n.Defs) == 0 {
		return false
	}
	dst := ctx.Operand(n.Defs[0])
	return !isFloat(dst) && t.Width(dst) == 8
}

type pairOp struct {
	lo, hi aluOp
}

var pairOps = map[ir.Opcode]pairOp{
	ir.IR_ADD: {aluOp{mc.AddRRM, mc.AddRMImm32}, aluOp{mc.AdcRRM, mc.AdcRMImm32}},
	ir.IR_SUB: {aluOp{mc.SubRRM, mc.SubRMImm32}, aluOp{mc.SbbRRM, mc.SbbRMImm32}},
	ir.IR_AND: {aluOp{mc.AndRRM, mc.AndRMImm32}, aluOp{mc.AndRRM, mc.AndRMImm32}},
	ir.IR_OR:  {aluOp{mc.OrRRM, mc.OrRMImm32}, aluOp{mc.OrRRM, mc.OrRMImm32}},
	ir.IR_XOR: {aluOp{mc.XorRRM, mc.XorRMImm32}, aluOp{mc.XorRRM, mc.XorRMImm32}},
}

func (t *X86) registerWidePatterns(table *MatchTable) {
	for op, pair := range pairOps {
		pair := pair
		table.Add(&Pattern{
			Name: op.String() + ".pair",
			Ops:  []ir.Opcode{op},
			Cond: func(ctx Context, nodes []*ir.Node) bool { return t.wide(ctx, nodes[0]) },
			Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
				n := nodes[0]
				dst := ctx.Operand(n.Defs[0])
				a, b := ctx.Operand(n.Uses[0]), ctx.Operand(n.Uses[1])
				eax := t.acc(0, 4)
				s := t.newSeq()
				// 低半部分的进位/借位由高半部分的 adc/sbb 消费，中间只允许 mov
				s.move(eax, half(a, false))
				s.operand2(pair.lo.rrm, pair.lo.rmImm, 4, eax, half(b, false))
				s.move(half(dst, false), eax)
				s.move(eax, half(a, true))
				s.operand2(pair.hi.rrm, pair.hi.rmImm, 4, eax, half(b, true))
				s.move(half(dst, true), eax)
				return s.result()
			},
		})
	}

	table.Add(&Pattern{
		Name: "not.pair",
		Ops:  []ir.Opcode{ir.IR_NOT},
		Cond: func(ctx Context, nodes []*ir.Node) bool { return t.wide(ctx, nodes[0]) },
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			n := nodes[0]
			dst, a := ctx.Operand(n.Defs[0]), ctx.Operand(n.Uses[0])
			eax := t.acc(0, 4)
			s := t.newSeq()
			for _, hi := range []bool{false, true} {
				s.move(eax, half(a, hi))
				s.add(mc.Not, 4, eax)
				s.move(half(dst, hi), eax)
			}
			return s.result()
		},
	})

	// neg lo; adc hi, 0; neg hi
	table.Add(&Pattern{
		Name: "neg.pair",
		Ops:  []ir.Opcode{ir.IR_NEG},
		Cond: func(ctx Context, nodes []*ir.Node) bool { return t.wide(ctx, nodes[0]) },
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			n := nodes[0]
			dst, a := ctx.Operand(n.Defs[0]), ctx.Operand(n.Uses[0])
			eax := t.acc(0, 4)
			s := t.newSeq()
			s.move(eax, half(a, false))
			s.add(mc.Neg, 4, eax)
			s.move(half(dst, false), eax)
			s.move(eax, half(a, true))
			s.add(mc.AdcRMImm32, 4, eax, ir.Imm(0, ir.TypeInt32))
			s.add(mc.Neg, 4, eax)
			s.move(half(dst, true), eax)
			return s.result()
		},
	})
}
