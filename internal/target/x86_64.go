// x86_64.go - x86-64 目标（System V AMD64）
//
// 整数参数：RDI, RSI, RDX, RCX, R8, R9，其余经由栈
// 浮点参数：XMM0-XMM7，其余经由栈
// 值类型总是经由栈传递。返回值在 RAX / XMM0。

package target

import "github.com/tangzhangming/aotc/internal/ir"

// X8664 x86-64 目标
type X8664 struct {
	descriptor
}

func newX8664() *X8664 {
	stack := StackPseudo()

	intRegs := []ir.Reg{
		GPR(RegDI, 8), GPR(RegSI, 8), GPR(RegDX, 8),
		GPR(RegCX, 8), GPR(RegR8, 8), GPR(RegR9, 8),
		stack,
	}
	floatRegs := make([]ir.Reg, 0, 9)
	for i := 0; i < 8; i++ {
		floatRegs = append(floatRegs, XMM(i))
	}
	floatRegs = append(floatRegs, stack)

	caller := []ir.Reg{
		GPR(RegAX, 8), GPR(RegCX, 8), GPR(RegDX, 8), GPR(RegSI, 8), GPR(RegDI, 8),
		GPR(RegR8, 8), GPR(RegR9, 8), GPR(RegR10, 8), GPR(RegR11, 8),
	}
	callee := []ir.Reg{
		GPR(RegBX, 8), GPR(RegBP, 8),
		GPR(RegR12, 8), GPR(RegR13, 8), GPR(RegR14, 8), GPR(RegR15, 8),
	}

	sysv := &Convention{
		Name: "sysv",
		Params: map[Class][]ir.Reg{
			ClassInt32: intRegs,
			ClassInt64: intRegs,
			ClassPtr:   intRegs,
			ClassFloat: floatRegs,
		},
		Overrides: map[Class][]ir.Reg{
			ClassValue: {stack},
		},
		Returns: map[Class]ir.Location{
			ClassInt32: GPR(RegAX, 8),
			ClassInt64: GPR(RegAX, 8),
			ClassPtr:   GPR(RegAX, 8),
			ClassFloat: XMM(0),
		},
		CallerPreserves: MaskOf(caller...) | 0xffff<<floatMaskShift,
		CalleePreserves: MaskOf(callee...),
	}

	t := &X8664{descriptor{
		name:        "x86_64",
		ptrSize:     8,
		mode:        64,
		stackAlign:  16,
		conventions: map[string]*Convention{"sysv": sysv},
		defaultConv: "sysv",
	}}

	table := NewMatchTable()
	t.registerIntPatterns(table)
	t.registerSSEPatterns(table)
	t.table = table
	return t
}
