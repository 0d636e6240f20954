// encode.go - 通用的指令形式编码

package x86asm

import (
	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/object"
)

// rex 构造 REX 前缀
func rex(w, r, x, b bool) byte {
	var v byte = 0x40
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

// form 一条带 ModR/M 的指令
type form struct {
	size    int    // 操作数宽度：2 加 66 前缀，8 加 REX.W
	noW     bool   // 宽度为 8 但不使用 REX.W（SSE 标量）
	f2      bool   // F2 前缀
	op      []byte // 操作码字节
	reg     int    // ModR/M.reg：寄存器编号或 /digit 扩展
	byteReg bool   // reg 字段是 8 位寄存器
	byteRM  bool   // rm 是 8 位寄存器
	imm     int64
	immSize int
}

// needsByteREX 64 位下 SPL/BPL/SIL/DIL 只能在有 REX 前缀时访问
func needsByteREX(id int) bool { return id >= 4 && id <= 7 }

// rm 发射 [66] [F2] [REX] op ModR/M [SIB] [disp] [imm]
func (a *Assembler) rm(f form, operand ir.Operand) error {
	if operand.Kind != ir.KindLoc {
		return errors.Unsupported("operand %s cannot be encoded as r/m", operand)
	}

	var (
		m        ModRM
		err      error
		sym      string
		addend   int64
		rexR     = f.reg >= 8
		rexX     bool
		rexB     bool
		forceREX = f.byteReg && needsByteREX(f.reg)
	)

	switch l := operand.Loc.(type) {
	case ir.Reg:
		if l.Class != ir.RegGPR && l.Class != ir.RegFloat {
			return errors.EncodingInvariant("pseudo register %s reached the encoder", l)
		}
		m = direct(byte(f.reg), l)
		rexB = l.ID >= 8
		if f.byteRM && l.Class == ir.RegGPR && needsByteREX(l.ID) {
			forceREX = true
		}
	case ir.Mem:
		if l.Symbol != "" {
			sym, addend = l.Symbol, int64(l.Disp)
			l.Disp = 0
		} else {
			rexB = l.Base.ID >= 8
			rexX = l.HasIndex && l.Index.ID >= 8
		}
		m, err = memory(byte(f.reg), l, a.mode)
		if err != nil {
			return err
		}
	case ir.Composite:
		return errors.EncodingInvariant("composite operand %s must be split before encoding", l)
	default:
		return errors.Unsupported("operand %s cannot be encoded as r/m", operand)
	}

	rexW := f.size == 8 && !f.noW
	needREX := rexW || rexR || rexX || rexB || forceREX
	if needREX && a.mode != 64 {
		return errors.EncodingInvariant("operand %s needs a REX prefix in 32-bit mode", operand)
	}

	modrm, err := m.Encode()
	if err != nil {
		return err
	}

	if f.size == 2 {
		a.emit(0x66)
	}
	if f.f2 {
		a.emit(0xF2)
	}
	if needREX {
		a.emit(rex(rexW, rexR, rexX, rexB))
	}
	a.emit(f.op...)
	a.emit(modrm...)
	if sym != "" {
		// 绝对地址的 disp32 位于 ModR/M 字节序列末尾
		off := len(a.code) - 4
		a.relocs = append(a.relocs, object.Reloc{
			Offset:  off,
			Symbol:  sym,
			Kind:    object.RelocAbs32,
			SymKind: object.SymData,
			Addend:  addend,
		})
	}
	if f.immSize > 0 {
		a.emitImm(f.imm, f.immSize)
	}
	return nil
}

// opReg 发射 [REX] op+reg 形式（push/pop/mov imm）
func (a *Assembler) opReg(base byte, r ir.Reg, w bool) error {
	b := r.ID >= 8
	if w || b {
		if a.mode != 64 {
			return errors.EncodingInvariant("register %s needs a REX prefix in 32-bit mode", r)
		}
		a.emit(rex(w, false, false, b))
	}
	a.emit(base + byte(r.ID&7))
	return nil
}

// regOf 取寄存器操作数
func regOf(o ir.Operand) (ir.Reg, error) {
	r, ok := o.Reg()
	if !ok || (r.Class != ir.RegGPR && r.Class != ir.RegFloat) {
		return ir.Reg{}, errors.Unsupported("operand %s is not a register", o)
	}
	return r, nil
}

// immOf 取立即数操作数
func immOf(o ir.Operand) (int64, error) {
	if o.Kind != ir.KindImm {
		return 0, errors.Unsupported("operand %s is not an immediate", o)
	}
	return o.Imm, nil
}

// immSize 宽度为 w 的操作数所带立即数的字节数（最多 4）
func immSize(w int) int {
	if w > 4 {
		return 4
	}
	return w
}
