// registers.go - x86 家族寄存器文件
//
// 通用寄存器的硬件编号与 ModR/M 编码一致：
//   0 AX  1 CX  2 DX  3 BX  4 SP  5 BP  6 SI  7 DI  8-15 R8-R15
// 同一个物理寄存器可以按 1/2/4/8 字节宽度访问，宽度是寄存器身份的一部分。

package target

import (
	"fmt"

	"github.com/tangzhangming/aotc/internal/ir"
)

// 通用寄存器编号
const (
	RegAX = iota
	RegCX
	RegDX
	RegBX
	RegSP
	RegBP
	RegSI
	RegDI
	RegR8
	RegR9
	RegR10
	RegR11
	RegR12
	RegR13
	RegR14
	RegR15
)

// 掩码分布：GPR 占 0-15 位，XMM 占 16-31 位，伪寄存器在其后
const (
	floatMaskShift = 16
	stackMask      = uint64(1) << 32
	contentsMask   = uint64(1) << 33
)

var gprNames64 = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var gprNames32 = [16]string{
	"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d",
}

var gprNames16 = [16]string{
	"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
	"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w",
}

var gprNames8 = [16]string{
	"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
	"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b",
}

// GPR 返回指定编号和宽度的通用寄存器
func GPR(id, size int) ir.Reg {
	var name string
	switch size {
	case 8:
		name = gprNames64[id]
	case 4:
		name = gprNames32[id]
	case 2:
		name = gprNames16[id]
	case 1:
		name = gprNames8[id]
	default:
		name = fmt.Sprintf("r%d/%d", id, size)
	}
	return ir.Reg{Name: name, ID: id, Class: ir.RegGPR, Size: size, Mask: 1 << uint(id)}
}

// XMM 返回 XMM 寄存器（按标量双精度使用，宽度 8）
func XMM(id int) ir.Reg {
	return ir.Reg{
		Name:  fmt.Sprintf("xmm%d", id),
		ID:    id,
		Class: ir.RegFloat,
		Size:  8,
		Mask:  1 << uint(floatMaskShift+id),
	}
}

// StackPseudo 栈伪寄存器，调用约定候选列表的最后一项
func StackPseudo() ir.Reg {
	return ir.Reg{Name: "stack", Class: ir.RegStack, Mask: stackMask}
}

// ContentsPseudo 内存内容伪寄存器，调用把它声明为 def 表示可能改写任意内存
func ContentsPseudo() ir.Reg {
	return ir.Reg{Name: "contents", Class: ir.RegContents, Mask: contentsMask}
}

// Resize 以新的宽度访问同一个寄存器
func Resize(r ir.Reg, size int) ir.Reg {
	if r.Class != ir.RegGPR {
		return r
	}
	return GPR(r.ID, size)
}

// MaskOf 寄存器集合的掩码
func MaskOf(regs ...ir.Reg) uint64 {
	var m uint64
	for _, r := range regs {
		m |= r.Mask
	}
	return m
}
