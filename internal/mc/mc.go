// Package mc 定义机器指令
//
// 机器指令由 Lowering 或指令选择生成，是编码器的输入。
// 每条指令的第一个槽位就是操作码 (Op)，操作数的个数和顺序由操作码固定：
//
//	XxxRMR        [rm, r]        rm <- rm op r
//	XxxRRM        [r, rm]        r  <- r op rm
//	XxxRMImm32/8  [rm, imm]
//	ImulRRMImm*   [r, rm, imm]
//	MovMM         [dst, src, scratch]  内存到内存（经由临时寄存器）
//	Movsx/Movzx   [r, rm]
//	Lea           [r, mem]
//	Neg/Not/Div   [rm]
//	ShlCL...      [rm]
//	Setcc         [cc, rm8]
//	Jmp           [block]
//	Jcc           [cc, block]
//	Call          [symbol, (ret def)]
//	Ret           [(ret use)]
//	Push/Pop      [r]
package mc

import (
	"fmt"
	"strings"

	"github.com/tangzhangming/aotc/internal/ir"
)

// Op 机器操作码
type Op int

const (
	Invalid Op = iota

	// 标记（不产生字节）
	Precall
	Postcall
	SaveCalleePreserves
	RestoreCalleePreserves

	// 数据移动
	MovRMR
	MovRRM
	MovRMImm32
	MovRImm64
	MovRImmSym
	MovMM
	Movsxb
	Movsxw
	Movsxd
	Movzxb
	Movzxw
	Lea

	// 算术
	AddRMR
	AddRRM
	AddRMImm32
	AddRMImm8
	AdcRRM
	AdcRMImm32
	SubRMR
	SubRRM
	SubRMImm32
	SubRMImm8
	SbbRRM
	SbbRMImm32
	AndRRM
	AndRMImm32
	AndRMImm8
	OrRRM
	OrRMImm32
	OrRMImm8
	XorRRM
	XorRMImm32
	XorRMImm8
	CmpRMR
	CmpRRM
	CmpRMImm32
	CmpRMImm8
	ImulRRM
	ImulRRMImm32
	ImulRRMImm8
	Neg
	Not
	Idiv
	Div
	Cdq
	ShlCL
	ShrCL
	SarCL

	// 控制流
	Setcc
	Jmp
	Jcc
	Call
	Ret
	Push
	Pop
	PushImm32
	PushImm8

	// 标量双精度
	MovsdRRM
	MovsdRMR
	Addsd
	Subsd
	Mulsd
	Divsd
	Cvtsi2sd
	Cvttsd2si

	numOps
)

var opNames = [numOps]string{
	Invalid:                "invalid",
	Precall:                "precall",
	Postcall:               "postcall",
	SaveCalleePreserves:    "savecalleepreserves",
	RestoreCalleePreserves: "restorecalleepreserves",
	MovRMR:                 "mov_rm_r",
	MovRRM:                 "mov_r_rm",
	MovRMImm32:             "mov_rm_imm32",
	MovRImm64:              "mov_r_imm64",
	MovRImmSym:             "mov_r_immsym",
	MovMM:                  "mov_m_m",
	Movsxb:                 "movsxb",
	Movsxw:                 "movsxw",
	Movsxd:                 "movsxd",
	Movzxb:                 "movzxb",
	Movzxw:                 "movzxw",
	Lea:                    "lea",
	AddRMR:                 "add_rm_r",
	AddRRM:                 "add_r_rm",
	AddRMImm32:             "add_rm_imm32",
	AddRMImm8:              "add_rm_imm8",
	AdcRRM:                 "adc_r_rm",
	AdcRMImm32:             "adc_rm_imm32",
	SubRMR:                 "sub_rm_r",
	SubRRM:                 "sub_r_rm",
	SubRMImm32:             "sub_rm_imm32",
	SubRMImm8:              "sub_rm_imm8",
	SbbRRM:                 "sbb_r_rm",
	SbbRMImm32:             "sbb_rm_imm32",
	AndRRM:                 "and_r_rm",
	AndRMImm32:             "and_rm_imm32",
	AndRMImm8:              "and_rm_imm8",
	OrRRM:                  "or_r_rm",
	OrRMImm32:              "or_rm_imm32",
	OrRMImm8:               "or_rm_imm8",
	XorRRM:                 "xor_r_rm",
	XorRMImm32:             "xor_rm_imm32",
	XorRMImm8:              "xor_rm_imm8",
	CmpRMR:                 "cmp_rm_r",
	CmpRRM:                 "cmp_r_rm",
	CmpRMImm32:             "cmp_rm_imm32",
	CmpRMImm8:              "cmp_rm_imm8",
	ImulRRM:                "imul_r_rm",
	ImulRRMImm32:           "imul_r_rm_imm32",
	ImulRRMImm8:            "imul_r_rm_imm8",
	Neg:                    "neg",
	Not:                    "not",
	Idiv:                   "idiv",
	Div:                    "div",
	Cdq:                    "cdq",
	ShlCL:                  "shl_cl",
	ShrCL:                  "shr_cl",
	SarCL:                  "sar_cl",
	Setcc:                  "setcc",
	Jmp:                    "jmp",
	Jcc:                    "jcc",
	Call:                   "call",
	Ret:                    "ret",
	Push:                   "push",
	Pop:                    "pop",
	PushImm32:              "push_imm32",
	PushImm8:               "push_imm8",
	MovsdRRM:               "movsd_r_rm",
	MovsdRMR:               "movsd_rm_r",
	Addsd:                  "addsd",
	Subsd:                  "subsd",
	Mulsd:                  "mulsd",
	Divsd:                  "divsd",
	Cvtsi2sd:               "cvtsi2sd",
	Cvttsd2si:              "cvttsd2si",
}

func (op Op) String() string {
	if op >= 0 && op < numOps && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("mc(%d)", int(op))
}

// IsMarker 是否是不产生字节的标记
func (op Op) IsMarker() bool {
	return op >= Precall && op <= RestoreCalleePreserves
}

// Inst 机器指令
type Inst struct {
	Op  Op
	W   int // 操作数宽度（字节）
	Ops []ir.Operand
}

// New 构造机器指令
func New(op Op, w int, ops ...ir.Operand) Inst {
	return Inst{Op: op, W: w, Ops: ops}
}

// Marker 构造标记指令
func Marker(op Op) Inst {
	return Inst{Op: op}
}

func (in Inst) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	if in.W != 0 && !in.Op.IsMarker() {
		fmt.Fprintf(&sb, ".%d", in.W*8)
	}
	for i, o := range in.Ops {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(o.String())
	}
	return sb.String()
}

// Print 打印指令列表
func Print(blocks [][]Inst) string {
	var sb strings.Builder
	for i, b := range blocks {
		fmt.Fprintf(&sb, "b%d:\n", i)
		for _, in := range b {
			fmt.Fprintf(&sb, "  %s\n", in)
		}
	}
	return sb.String()
}

// ReadsFlags 是否读取标志位
func (op Op) ReadsFlags() bool {
	switch op {
	case Jcc, Setcc, AdcRRM, AdcRMImm32, SbbRRM, SbbRMImm32:
		return true
	}
	return false
}
