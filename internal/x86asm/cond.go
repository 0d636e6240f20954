package x86asm

import (
	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
)

// 条件码的 tttn 编码，Jcc = 0F 80+cc，SETcc = 0F 90+cc
var condCodes = map[ir.Cond]byte{
	ir.CondEq:   0x4, // E/Z
	ir.CondNe:   0x5, // NE/NZ
	ir.CondLt:   0xC, // L
	ir.CondLe:   0xE, // LE
	ir.CondGt:   0xF, // G
	ir.CondGe:   0xD, // GE
	ir.CondLtUn: 0x2, // B
	ir.CondLeUn: 0x6, // BE
	ir.CondGtUn: 0x7, // A
	ir.CondGeUn: 0x3, // AE
}

// CondCode 条件码的 4 位编码
func CondCode(c ir.Cond) (byte, error) {
	cc, ok := condCodes[c]
	if !ok {
		return 0, errors.New(errors.E0902, "condition %s has no x86 encoding", c)
	}
	return cc, nil
}

func condOf(o ir.Operand) (ir.Cond, error) {
	if o.Kind != ir.KindCond {
		return 0, errors.Unsupported("operand %s is not a condition code", o)
	}
	return o.Cond, nil
}
