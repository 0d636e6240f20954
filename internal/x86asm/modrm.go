// modrm.go - ModR/M 与 SIB 寻址
//
// ModR/M: mod(2) reg(3) rm(3)
//   mod 00 [base]            rm=100 需要 SIB，rm=101 在 32 位下是绝对地址
//   mod 01 [base + disp8]
//   mod 10 [base + disp32]
//   mod 11 寄存器直接
// SIB: scale(2) index(3) base(3)，index=100 表示无索引
//
// 低三位为 101 的基址（EBP/RBP/R13）在 mod 00 下会被解释成绝对地址，
// 因此零位移时强制使用 mod 01 + disp8 0。
// 低三位为 100 的基址（ESP/RSP/R12）必须经由 SIB 编码。

package x86asm

import (
	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
)

const (
	modIndirect = 0
	modDisp8    = 1
	modDisp32   = 2
	modDirect   = 3

	rmSIB    = 4
	rmDisp32 = 5
	noIndex  = 4
)

// ModRM 一个寻址模式
type ModRM struct {
	Mod   byte
	Reg   byte // 低三位
	RM    byte // 低三位
	SIB   bool
	Scale int  // 1, 2, 4, 8
	Index byte // 低三位，noIndex 表示无索引
	Base  byte // 低三位
	Disp  int32
	// DispSize 位移字节数：0、1 或 4
	DispSize int
}

var scaleBits = map[int]byte{1: 0, 2: 1, 4: 2, 8: 3}

// Encode 生成 ModR/M [SIB] [disp] 字节
func (m ModRM) Encode() ([]byte, error) {
	if m.Mod > modDirect {
		return nil, errors.EncodingInvariant("mod %d out of range", m.Mod)
	}
	if m.Mod == modDirect && (m.SIB || m.DispSize != 0) {
		return nil, errors.EncodingInvariant("register-direct mode cannot carry a scaled index or displacement")
	}
	if m.SIB != (m.RM == rmSIB && m.Mod != modDirect) {
		return nil, errors.EncodingInvariant("rm=%d inconsistent with SIB=%v", m.RM, m.SIB)
	}
	switch m.Mod {
	case modDisp8:
		if m.DispSize != 1 {
			return nil, errors.EncodingInvariant("mod 01 requires an 8-bit displacement")
		}
	case modDisp32:
		if m.DispSize != 4 {
			return nil, errors.EncodingInvariant("mod 10 requires a 32-bit displacement")
		}
	}

	out := []byte{m.Mod<<6 | (m.Reg&7)<<3 | m.RM&7}
	if m.SIB {
		ss, ok := scaleBits[m.Scale]
		if !ok {
			return nil, errors.EncodingInvariant("invalid scale %d", m.Scale)
		}
		out = append(out, ss<<6|(m.Index&7)<<3|m.Base&7)
	}
	switch m.DispSize {
	case 1:
		out = append(out, byte(int8(m.Disp)))
	case 4:
		d := uint32(m.Disp)
		out = append(out, byte(d), byte(d>>8), byte(d>>16), byte(d>>24))
	}
	return out, nil
}

func fitsInt8(v int32) bool { return v >= -128 && v <= 127 }

// direct 寄存器直接寻址
func direct(reg byte, r ir.Reg) ModRM {
	return ModRM{Mod: modDirect, Reg: reg, RM: byte(r.ID & 7)}
}

// memory 基址 + 位移（可选比例索引）寻址
// 符号地址按目标模式编码为绝对 disp32，由调用者记录重定位
func memory(reg byte, m ir.Mem, mode int) (ModRM, error) {
	if m.Symbol != "" {
		if mode == 32 {
			return ModRM{Mod: modIndirect, Reg: reg, RM: rmDisp32, Disp: m.Disp, DispSize: 4}, nil
		}
		// 64 位下 rm=101 是 RIP 相对，绝对地址需要 SIB 无基址形式
		return ModRM{
			Mod: modIndirect, Reg: reg, RM: rmSIB,
			SIB: true, Scale: 1, Index: noIndex, Base: rmDisp32,
			Disp: m.Disp, DispSize: 4,
		}, nil
	}

	if m.Base.Class != ir.RegGPR {
		return ModRM{}, errors.EncodingInvariant("memory base %s is not a general-purpose register", m.Base)
	}
	base := byte(m.Base.ID & 7)
	r := ModRM{Reg: reg, RM: base, Disp: m.Disp}

	if m.HasIndex {
		if m.Index.ID == 4 {
			return ModRM{}, errors.EncodingInvariant("%s cannot be used as an index register", m.Index)
		}
		r.SIB, r.RM = true, rmSIB
		r.Scale, r.Index, r.Base = m.Scale, byte(m.Index.ID&7), base
	} else if base == rmSIB {
		r.SIB, r.RM = true, rmSIB
		r.Scale, r.Index, r.Base = 1, noIndex, base
	}

	switch {
	case m.Disp == 0 && base != rmDisp32:
		r.Mod = modIndirect
	case fitsInt8(m.Disp):
		r.Mod, r.DispSize = modDisp8, 1
	default:
		r.Mod, r.DispSize = modDisp32, 4
	}
	return r, nil
}
