// emit.go - 按操作码分派的指令发射器

package x86asm

import (
	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
	"github.com/tangzhangming/aotc/internal/object"
)

type emitFunc func(a *Assembler, in *mc.Inst) error

// emitters 机器操作码 -> 发射器
var emitters map[mc.Op]emitFunc

// ALU 操作码：rm,r / r,rm / 81 与 83 的 /digit 扩展
var (
	aluRMR = map[mc.Op]byte{
		mc.AddRMR: 0x01,
		mc.SubRMR: 0x29,
		mc.CmpRMR: 0x39,
	}
	aluRRM = map[mc.Op]byte{
		mc.AddRRM: 0x03,
		mc.AdcRRM: 0x13,
		mc.SubRRM: 0x2B,
		mc.SbbRRM: 0x1B,
		mc.AndRRM: 0x23,
		mc.OrRRM:  0x0B,
		mc.XorRRM: 0x33,
		mc.CmpRRM: 0x3B,
	}
	aluImm32 = map[mc.Op]int{
		mc.AddRMImm32: 0,
		mc.OrRMImm32:  1,
		mc.AdcRMImm32: 2,
		mc.SbbRMImm32: 3,
		mc.AndRMImm32: 4,
		mc.SubRMImm32: 5,
		mc.XorRMImm32: 6,
		mc.CmpRMImm32: 7,
	}
	aluImm8 = map[mc.Op]int{
		mc.AddRMImm8: 0,
		mc.OrRMImm8:  1,
		mc.AndRMImm8: 4,
		mc.SubRMImm8: 5,
		mc.XorRMImm8: 6,
		mc.CmpRMImm8: 7,
	}
	// F7 /digit
	unaryOps = map[mc.Op]int{
		mc.Not:  2,
		mc.Neg:  3,
		mc.Div:  6,
		mc.Idiv: 7,
	}
	// D3 /digit，移位次数在 CL
	shiftOps = map[mc.Op]int{
		mc.ShlCL: 4,
		mc.ShrCL: 5,
		mc.SarCL: 7,
	}
	// F2 0F xx
	sseOps = map[mc.Op]byte{
		mc.Addsd: 0x58,
		mc.Mulsd: 0x59,
		mc.Subsd: 0x5C,
		mc.Divsd: 0x5E,
	}
	extendOps = map[mc.Op][]byte{
		mc.Movsxb: {0x0F, 0xBE},
		mc.Movsxw: {0x0F, 0xBF},
		mc.Movzxb: {0x0F, 0xB6},
		mc.Movzxw: {0x0F, 0xB7},
	}
)

func init() {
	emitters = map[mc.Op]emitFunc{
		mc.MovRMR:       emitMovRMR,
		mc.MovRRM:       emitMovRRM,
		mc.MovRMImm32:   emitMovRMImm,
		mc.MovRImm64:    emitMovRImm64,
		mc.MovRImmSym:   emitMovRImmSym,
		mc.MovMM:        emitMovMM,
		mc.Movsxd:       emitMovsxd,
		mc.Lea:          emitLea,
		mc.ImulRRM:      emitImul,
		mc.ImulRRMImm32: emitImul,
		mc.ImulRRMImm8:  emitImul,
		mc.Cdq:          emitCdq,
		mc.Setcc:        emitSetcc,
		mc.Jmp:          emitJmp,
		mc.Jcc:          emitJcc,
		mc.Call:         emitCall,
		mc.Ret:          emitRet,
		mc.Push:         emitPush,
		mc.Pop:          emitPop,
		mc.PushImm32:    emitPushImm,
		mc.PushImm8:     emitPushImm,
		mc.MovsdRRM:     emitMovsd,
		mc.MovsdRMR:     emitMovsd,
		mc.Cvtsi2sd:     emitCvt,
		mc.Cvttsd2si:    emitCvt,
	}
	for op := range aluRMR {
		emitters[op] = emitALURMR
	}
	for op := range aluRRM {
		emitters[op] = emitALURRM
	}
	for op := range aluImm32 {
		emitters[op] = emitALUImm
	}
	for op := range aluImm8 {
		emitters[op] = emitALUImm
	}
	for op := range unaryOps {
		emitters[op] = emitUnary
	}
	for op := range shiftOps {
		emitters[op] = emitShift
	}
	for op := range sseOps {
		emitters[op] = emitSSE
	}
	for op := range extendOps {
		emitters[op] = emitExtend
	}
}

// operands 检查操作数个数
func operands(in *mc.Inst, n int) error {
	if len(in.Ops) < n {
		return errors.EncodingInvariant("%s needs %d operands, got %d", in.Op, n, len(in.Ops))
	}
	return nil
}

// ============================================================================
// 32 位下的 8 字节拆分
// ============================================================================

// splitWide 32 位模式下的 8 字节移动拆成两条 4 字节移动
func (a *Assembler) splitWide(in *mc.Inst) bool {
	return a.mode == 32 && in.W == 8
}

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

func emitHalves(a *Assembler, in *mc.Inst, fn emitFunc) error {
	for _, hi := range []bool{false, true} {
		ops := make([]ir.Operand, len(in.Ops))
		for i, o := range in.Ops {
			ops[i] = half(o, hi)
		}
		sub := mc.New(in.Op, 4, ops...)
		if err := fn(a, &sub); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// 数据移动
// ============================================================================

// mov rm, r: 88 /r (8 位), 89 /r
func emitMovRMR(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	if a.splitWide(in) {
		return emitHalves(a, in, emitMovRMR)
	}
	r, err := regOf(in.Ops[1])
	if err != nil {
		return err
	}
	op := byte(0x89)
	if in.W == 1 {
		op = 0x88
	}
	return a.rm(form{size: in.W, op: []byte{op}, reg: r.ID, byteReg: in.W == 1, byteRM: in.W == 1}, in.Ops[0])
}

// mov r, rm: 8A /r (8 位), 8B /r
func emitMovRRM(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	if a.splitWide(in) {
		return emitHalves(a, in, emitMovRRM)
	}
	r, err := regOf(in.Ops[0])
	if err != nil {
		return err
	}
	op := byte(0x8B)
	if in.W == 1 {
		op = 0x8A
	}
	return a.rm(form{size: in.W, op: []byte{op}, reg: r.ID, byteReg: in.W == 1, byteRM: in.W == 1}, in.Ops[1])
}

// mov rm, imm: C6 /0 ib, C7 /0 iw/id（64 位下 imm32 符号扩展）
func emitMovRMImm(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	if a.splitWide(in) {
		return emitHalves(a, in, emitMovRMImm)
	}
	v, err := immOf(in.Ops[1])
	if err != nil {
		return err
	}
	op := byte(0xC7)
	if in.W == 1 {
		op = 0xC6
	}
	return a.rm(form{size: in.W, op: []byte{op}, byteRM: in.W == 1, imm: v, immSize: immSize(in.W)}, in.Ops[0])
}

// movabs r64, imm64: REX.W B8+r io
func emitMovRImm64(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	r, err := regOf(in.Ops[0])
	if err != nil {
		return err
	}
	v, err := immOf(in.Ops[1])
	if err != nil {
		return err
	}
	if err := a.opReg(0xB8, r, true); err != nil {
		return err
	}
	a.emitImm(v, 8)
	return nil
}

// mov r32, imm32 符号地址: B8+r id，记录 ABS32
func emitMovRImmSym(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	r, err := regOf(in.Ops[0])
	if err != nil {
		return err
	}
	if in.Ops[1].Kind != ir.KindSymbol {
		return errors.Unsupported("operand %s is not a symbol", in.Ops[1])
	}
	if err := a.opReg(0xB8, r, false); err != nil {
		return err
	}
	a.emitReloc(in.Ops[1].Sym, object.RelocAbs32, object.SymData, 0)
	return nil
}

// chunkSize 内存复制的下一块大小
func chunkSize(remaining, word int) int {
	for _, c := range []int{8, 4, 2, 1} {
		if c <= word && c <= remaining {
			return c
		}
	}
	return 1
}

// emitMovMM 内存到内存复制：按字长分块，经由临时寄存器
// 源可以是内存或立即数
func emitMovMM(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 3); err != nil {
		return err
	}
	dst, ok := in.Ops[0].Mem()
	if !ok {
		return errors.Unsupported("mov_m_m destination %s is not memory", in.Ops[0])
	}
	scratch, err := regOf(in.Ops[2])
	if err != nil {
		return err
	}
	src := in.Ops[1]
	if src.Kind == ir.KindImm && in.W > 8 {
		return errors.Unsupported("immediate copy of %d bytes", in.W)
	}

	word := a.mode / 8
	for off := 0; off < in.W; {
		n := chunkSize(in.W-off, word)
		d := ir.MemOp(dst.Offset(int32(off), n), ir.TypeIntPtr)
		tmp := scratch
		tmp.Size = n
		t := ir.RegOp(tmp)

		var seq []mc.Inst
		switch src.Kind {
		case ir.KindImm:
			v := src.Imm >> (8 * uint(off))
			if n == 8 && (v < -1<<31 || v > 1<<31-1) {
				seq = append(seq, mc.New(mc.MovRImm64, 8, t, ir.Imm(v, ir.TypeInt64)),
					mc.New(mc.MovRMR, 8, d, t))
			} else {
				seq = append(seq, mc.New(mc.MovRMImm32, n, d, ir.Imm(v, ir.TypeInt64)))
			}
		case ir.KindLoc:
			sm, ok := src.Mem()
			if !ok {
				return errors.Unsupported("mov_m_m source %s is not memory", src)
			}
			s := ir.MemOp(sm.Offset(int32(off), n), ir.TypeIntPtr)
			seq = append(seq, mc.New(mc.MovRRM, n, t, s), mc.New(mc.MovRMR, n, d, t))
		default:
			return errors.Unsupported("mov_m_m source %s", src)
		}

		for i := range seq {
			var err error
			switch seq[i].Op {
			case mc.MovRImm64:
				err = emitMovRImm64(a, &seq[i])
			case mc.MovRMImm32:
				err = emitMovRMImm(a, &seq[i])
			case mc.MovRRM:
				err = emitMovRRM(a, &seq[i])
			default:
				err = emitMovRMR(a, &seq[i])
			}
			if err != nil {
				return err
			}
		}
		off += n
	}
	return nil
}

// movsx/movzx r, rm8/rm16: 0F BE/BF/B6/B7
func emitExtend(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	r, err := regOf(in.Ops[0])
	if err != nil {
		return err
	}
	byteSrc := in.Op == mc.Movsxb || in.Op == mc.Movzxb
	return a.rm(form{size: in.W, op: extendOps[in.Op], reg: r.ID, byteRM: byteSrc}, in.Ops[1])
}

// movsxd r64, rm32: REX.W 63 /r
func emitMovsxd(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	r, err := regOf(in.Ops[0])
	if err != nil {
		return err
	}
	return a.rm(form{size: 8, op: []byte{0x63}, reg: r.ID}, in.Ops[1])
}

// lea r, m: 8D /r
func emitLea(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	r, err := regOf(in.Ops[0])
	if err != nil {
		return err
	}
	if !in.Ops[1].IsMem() {
		return errors.Unsupported("lea source %s is not memory", in.Ops[1])
	}
	return a.rm(form{size: in.W, op: []byte{0x8D}, reg: r.ID}, in.Ops[1])
}

// ============================================================================
// 算术
// ============================================================================

func emitALURMR(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	r, err := regOf(in.Ops[1])
	if err != nil {
		return err
	}
	return a.rm(form{size: in.W, op: []byte{aluRMR[in.Op]}, reg: r.ID}, in.Ops[0])
}

func emitALURRM(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	r, err := regOf(in.Ops[0])
	if err != nil {
		return err
	}
	return a.rm(form{size: in.W, op: []byte{aluRRM[in.Op]}, reg: r.ID}, in.Ops[1])
}

// 81 /digit iw/id, 83 /digit ib, 80 /digit ib（8 位操作数）
func emitALUImm(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	v, err := immOf(in.Ops[1])
	if err != nil {
		return err
	}
	if ext, ok := aluImm8[in.Op]; ok {
		if v < -128 || v > 127 {
			return errors.EncodingInvariant("%s immediate %d does not fit 8 bits", in.Op, v)
		}
		return a.rm(form{size: in.W, op: []byte{0x83}, reg: ext, imm: v, immSize: 1}, in.Ops[0])
	}
	ext := aluImm32[in.Op]
	if in.W == 1 {
		return a.rm(form{size: 1, op: []byte{0x80}, reg: ext, byteRM: true, imm: v, immSize: 1}, in.Ops[0])
	}
	return a.rm(form{size: in.W, op: []byte{0x81}, reg: ext, imm: v, immSize: immSize(in.W)}, in.Ops[0])
}

// imul r, rm: 0F AF /r; imul r, rm, imm: 69 /r id, 6B /r ib
func emitImul(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	r, err := regOf(in.Ops[0])
	if err != nil {
		return err
	}
	switch in.Op {
	case mc.ImulRRM:
		return a.rm(form{size: in.W, op: []byte{0x0F, 0xAF}, reg: r.ID}, in.Ops[1])
	}
	if err := operands(in, 3); err != nil {
		return err
	}
	v, err := immOf(in.Ops[2])
	if err != nil {
		return err
	}
	if in.Op == mc.ImulRRMImm8 {
		return a.rm(form{size: in.W, op: []byte{0x6B}, reg: r.ID, imm: v, immSize: 1}, in.Ops[1])
	}
	return a.rm(form{size: in.W, op: []byte{0x69}, reg: r.ID, imm: v, immSize: immSize(in.W)}, in.Ops[1])
}

// F6/F7 /digit
func emitUnary(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 1); err != nil {
		return err
	}
	op := byte(0xF7)
	if in.W == 1 {
		op = 0xF6
	}
	return a.rm(form{size: in.W, op: []byte{op}, reg: unaryOps[in.Op], byteRM: in.W == 1}, in.Ops[0])
}

// cdq / cqo: 99
func emitCdq(a *Assembler, in *mc.Inst) error {
	switch in.W {
	case 8:
		if a.mode != 64 {
			return errors.EncodingInvariant("cqo in 32-bit mode")
		}
		a.emit(rex(true, false, false, false), 0x99)
	case 2:
		a.emit(0x66, 0x99)
	default:
		a.emit(0x99)
	}
	return nil
}

// D3 /digit
func emitShift(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 1); err != nil {
		return err
	}
	return a.rm(form{size: in.W, op: []byte{0xD3}, reg: shiftOps[in.Op]}, in.Ops[0])
}

// ============================================================================
// 控制流
// ============================================================================

// setcc rm8: 0F 90+cc /0
func emitSetcc(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	c, err := condOf(in.Ops[0])
	if err != nil {
		return err
	}
	cc, err := CondCode(c)
	if err != nil {
		return err
	}
	return a.rm(form{size: 1, op: []byte{0x0F, 0x90 + cc}, byteRM: true}, in.Ops[1])
}

func blockOf(o ir.Operand) (int, error) {
	if o.Kind != ir.KindBlock {
		return 0, errors.Unsupported("operand %s is not a block", o)
	}
	return o.Index, nil
}

// jmp rel32: E9 cd
func emitJmp(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 1); err != nil {
		return err
	}
	b, err := blockOf(in.Ops[0])
	if err != nil {
		return err
	}
	a.emit(0xE9)
	a.emitBranch(b)
	return nil
}

// jcc rel32: 0F 80+cc cd；never 不发射，always 发射 jmp
func emitJcc(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	c, err := condOf(in.Ops[0])
	if err != nil {
		return err
	}
	b, err := blockOf(in.Ops[1])
	if err != nil {
		return err
	}
	switch c {
	case ir.CondNever:
		return nil
	case ir.CondAlways:
		a.emit(0xE9)
		a.emitBranch(b)
		return nil
	}
	cc, err := CondCode(c)
	if err != nil {
		return err
	}
	a.emit(0x0F, 0x80+cc)
	a.emitBranch(b)
	return nil
}

// call rel32: E8 cd，PC32 重定位，addend -4；寄存器目标用 FF /2
func emitCall(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 1); err != nil {
		return err
	}
	target := in.Ops[0]
	if target.Kind == ir.KindSymbol {
		a.emit(0xE8)
		a.emitReloc(target.Sym, object.RelocPC32, object.SymFunc, -4)
		return nil
	}
	return a.rm(form{size: 4, op: []byte{0xFF}, reg: 2}, target)
}

func emitRet(a *Assembler, in *mc.Inst) error {
	a.emit(0xC3)
	return nil
}

// push r: 50+r，push m: FF /6
func emitPush(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 1); err != nil {
		return err
	}
	if r, ok := in.Ops[0].Reg(); ok && r.Class == ir.RegGPR {
		return a.opReg(0x50, r, false)
	}
	return a.rm(form{size: 4, op: []byte{0xFF}, reg: 6}, in.Ops[0])
}

// pop r: 58+r，pop m: 8F /0
func emitPop(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 1); err != nil {
		return err
	}
	if r, ok := in.Ops[0].Reg(); ok && r.Class == ir.RegGPR {
		return a.opReg(0x58, r, false)
	}
	return a.rm(form{size: 4, op: []byte{0x8F}, reg: 0}, in.Ops[0])
}

// push imm32: 68 id，push imm8: 6A ib
func emitPushImm(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 1); err != nil {
		return err
	}
	v, err := immOf(in.Ops[0])
	if err != nil {
		return err
	}
	if in.Op == mc.PushImm8 {
		a.emit(0x6A)
		a.emitImm(v, 1)
		return nil
	}
	a.emit(0x68)
	a.emitImm(v, 4)
	return nil
}

// ============================================================================
// 标量双精度
// ============================================================================

// movsd xmm, m64: F2 0F 10 /r；movsd m64, xmm: F2 0F 11 /r
func emitMovsd(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	xi, rmi, op := 0, 1, byte(0x10)
	if in.Op == mc.MovsdRMR {
		xi, rmi, op = 1, 0, 0x11
	}
	x, err := regOf(in.Ops[xi])
	if err != nil {
		return err
	}
	return a.rm(form{size: 8, noW: true, f2: true, op: []byte{0x0F, op}, reg: x.ID}, in.Ops[rmi])
}

func emitSSE(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	x, err := regOf(in.Ops[0])
	if err != nil {
		return err
	}
	return a.rm(form{size: 8, noW: true, f2: true, op: []byte{0x0F, sseOps[in.Op]}, reg: x.ID}, in.Ops[1])
}

// cvtsi2sd xmm, rm: F2 [REX.W] 0F 2A /r，W 为整数源宽度
// cvttsd2si r, xmm/m64: F2 [REX.W] 0F 2C /r，W 为整数目标宽度
func emitCvt(a *Assembler, in *mc.Inst) error {
	if err := operands(in, 2); err != nil {
		return err
	}
	r, err := regOf(in.Ops[0])
	if err != nil {
		return err
	}
	op := byte(0x2A)
	if in.Op == mc.Cvttsd2si {
		op = 0x2C
	}
	return a.rm(form{size: in.W, f2: true, op: []byte{0x0F, op}, reg: r.ID}, in.Ops[1])
}
