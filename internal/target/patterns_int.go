// patterns_int.go - 整数与指针运算的模式
//
// 所有值都位于栈帧槽位中，模式的形状统一为：
// 把操作数装入临时寄存器 -> 运算 -> 写回目标。
// 临时寄存器：AX 为累加器，CX 为第二操作数/地址，DX 为除法高位。

package target

import (
	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
)

// aluOp 二元运算对应的 r,rm 与 rm,imm32 操作码
type aluOp struct {
	rrm   mc.Op
	rmImm mc.Op
}

var aluOps = map[ir.Opcode]aluOp{
	ir.IR_ADD: {mc.AddRRM, mc.AddRMImm32},
	ir.IR_SUB: {mc.SubRRM, mc.SubRMImm32},
	ir.IR_AND: {mc.AndRRM, mc.AndRMImm32},
	ir.IR_OR:  {mc.OrRRM, mc.OrRMImm32},
	ir.IR_XOR: {mc.XorRRM, mc.XorRMImm32},
}

var shiftOps = map[ir.Opcode]mc.Op{
	ir.IR_SHL:    mc.ShlCL,
	ir.IR_SHR:    mc.SarCL,
	ir.IR_SHR_UN: mc.ShrCL,
}

// isFloat 操作数是否是浮点值
func isFloat(o ir.Operand) bool {
	return o.Type == ir.TypeFloat
}

// narrow 目标宽度不超过指针宽度的整数运算
func (d *descriptor) narrow(ctx Context, n *ir.Node) bool {
	if len(n.Defs) == 0 {
		return false
	}
	dst := ctx.Operand(n.Defs[0])
	return !isFloat(dst) && d.Width(dst) <= d.ptrSize
}

// operand2 把第二操作数作为 rm 或 imm32 附加到运算上
func (s *seq) operand2(rrm, rmImm mc.Op, w int, acc, b ir.Operand) {
	switch {
	case b.Kind == ir.KindImm && b.FitsInt32():
		s.add(rmImm, w, acc, b)
	case b.Kind == ir.KindLoc:
		s.add(rrm, w, acc, b)
	default:
		tmp := s.d.acc(1, w)
		s.move(tmp, b)
		s.add(rrm, w, acc, tmp)
	}
}

// compare 生成 cmp a, b，返回比较宽度
func (s *seq) compare(a, b ir.Operand) {
	w := s.d.Width(a)
	if a.Kind == ir.KindImm {
		w = s.d.Width(b)
	}
	acc := s.d.acc(0, w)
	s.move(acc, a)
	s.operand2(mc.CmpRRM, mc.CmpRMImm32, w, acc, b)
}

// compareFits 比较的两个操作数都是窄整数
func (d *descriptor) compareFits(ctx Context, n *ir.Node) bool {
	for _, u := range n.Uses {
		o := ctx.Operand(u)
		if isFloat(o) || (o.Kind == ir.KindLoc && d.Width(o) > d.ptrSize) {
			return false
		}
		if o.Kind == ir.KindImm && d.Width(o) > d.ptrSize && !o.FitsInt32() {
			return false
		}
	}
	return true
}

func (d *descriptor) registerIntPatterns(t *MatchTable) {
	t.Add(&Pattern{
		Name: "nop",
		Ops:  []ir.Opcode{ir.IR_NOP},
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			return nil, nil
		},
	})

	t.Add(&Pattern{
		Name: "mov",
		Ops:  []ir.Opcode{ir.IR_MOV},
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			n := nodes[0]
			s := d.newSeq()
			s.move(ctx.Operand(n.Defs[0]), ctx.Operand(n.Uses[0]))
			return s.result()
		},
	})

	for op, alu := range aluOps {
		alu := alu
		t.Add(&Pattern{
			Name: op.String(),
			Ops:  []ir.Opcode{op},
			Cond: func(ctx Context, nodes []*ir.Node) bool { return d.narrow(ctx, nodes[0]) },
			Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
				n := nodes[0]
				dst := ctx.Operand(n.Defs[0])
				w := d.Width(dst)
				acc := d.acc(0, w)
				s := d.newSeq()
				s.move(acc, ctx.Operand(n.Uses[0]))
				s.operand2(alu.rrm, alu.rmImm, w, acc, ctx.Operand(n.Uses[1]))
				s.move(dst, acc)
				return s.result()
			},
		})
	}

	t.Add(&Pattern{
		Name: "mul",
		Ops:  []ir.Opcode{ir.IR_MUL},
		Cond: func(ctx Context, nodes []*ir.Node) bool { return d.narrow(ctx, nodes[0]) },
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			n := nodes[0]
			dst := ctx.Operand(n.Defs[0])
			w := d.Width(dst)
			acc := d.acc(0, w)
			b := ctx.Operand(n.Uses[1])
			s := d.newSeq()
			s.move(acc, ctx.Operand(n.Uses[0]))
			if b.Kind == ir.KindImm && b.FitsInt32() {
				s.add(mc.ImulRRMImm32, w, acc, acc, b)
			} else {
				s.operand2(mc.ImulRRM, mc.ImulRRMImm32, w, acc, b)
			}
			s.move(dst, acc)
			return s.result()
		},
	})

	for _, op := range []ir.Opcode{ir.IR_DIV, ir.IR_DIV_UN, ir.IR_REM, ir.IR_REM_UN} {
		op := op
		t.Add(&Pattern{
			Name: op.String(),
			Ops:  []ir.Opcode{op},
			Cond: func(ctx Context, nodes []*ir.Node) bool { return d.narrow(ctx, nodes[0]) },
			Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
				return d.emitDivide(ctx, nodes[0], op)
			},
		})
	}

	for op, shift := range shiftOps {
		shift := shift
		t.Add(&Pattern{
			Name: op.String(),
			Ops:  []ir.Opcode{op},
			Cond: func(ctx Context, nodes []*ir.Node) bool { return d.narrow(ctx, nodes[0]) },
			Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
				n := nodes[0]
				dst := ctx.Operand(n.Defs[0])
				w := d.Width(dst)
				acc := d.acc(0, w)
				count := ctx.Operand(n.Uses[1])
				s := d.newSeq()
				s.move(acc, ctx.Operand(n.Uses[0]))
				cw := d.Width(count)
				if cw > d.ptrSize {
					cw = d.ptrSize
				}
				s.move(d.acc(1, cw), count)
				s.add(shift, w, acc)
				s.move(dst, acc)
				return s.result()
			},
		})
	}

	for op, unary := range map[ir.Opcode]mc.Op{ir.IR_NEG: mc.Neg, ir.IR_NOT: mc.Not} {
		unary := unary
		t.Add(&Pattern{
			Name: op.String(),
			Ops:  []ir.Opcode{op},
			Cond: func(ctx Context, nodes []*ir.Node) bool { return d.narrow(ctx, nodes[0]) },
			Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
				n := nodes[0]
				dst := ctx.Operand(n.Defs[0])
				w := d.Width(dst)
				acc := d.acc(0, w)
				s := d.newSeq()
				s.move(acc, ctx.Operand(n.Uses[0]))
				s.add(unary, w, acc)
				s.move(dst, acc)
				return s.result()
			},
		})
	}

	d.registerControlPatterns(t)
	d.registerMemoryPatterns(t)
}

// emitDivide 有符号除法用 cdq + idiv，无符号除法清零 DX 后用 div
func (d *descriptor) emitDivide(ctx Context, n *ir.Node, op ir.Opcode) ([]mc.Inst, error) {
	dst := ctx.Operand(n.Defs[0])
	w := d.Width(dst)
	ax, cx := d.acc(0, w), d.acc(1, w)
	s := d.newSeq()
	s.move(ax, ctx.Operand(n.Uses[0]))
	s.move(cx, ctx.Operand(n.Uses[1]))
	switch op {
	case ir.IR_DIV, ir.IR_REM:
		s.add(mc.Cdq, w)
		s.add(mc.Idiv, w, cx)
	default:
		edx := d.acc(2, 4)
		s.add(mc.XorRRM, 4, edx, edx)
		s.add(mc.Div, w, cx)
	}
	if op == ir.IR_REM || op == ir.IR_REM_UN {
		s.move(dst, d.acc(2, w))
	} else {
		s.move(dst, ax)
	}
	return s.result()
}

// ============================================================================
// 比较与控制流
// ============================================================================

func (d *descriptor) registerControlPatterns(t *MatchTable) {
	t.Add(&Pattern{
		Name: "br",
		Ops:  []ir.Opcode{ir.IR_BR},
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			return []mc.Inst{mc.New(mc.Jmp, 0, nodes[0].Uses[0])}, nil
		},
	})

	t.Add(&Pattern{
		Name: "cmp+brif",
		Ops:  []ir.Opcode{ir.IR_CMP, ir.IR_BRIF},
		Cond: func(ctx Context, nodes []*ir.Node) bool { return d.compareFits(ctx, nodes[0]) },
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			cmp, br := nodes[0], nodes[1]
			s := d.newSeq()
			s.compare(ctx.Operand(cmp.Uses[0]), ctx.Operand(cmp.Uses[1]))
			s.add(mc.Jcc, 0, br.Uses[0], br.Uses[1])
			return s.result()
		},
	})

	t.Add(&Pattern{
		Name: "cmp+setcc",
		Ops:  []ir.Opcode{ir.IR_CMP, ir.IR_SETCC},
		Cond: func(ctx Context, nodes []*ir.Node) bool {
			return d.compareFits(ctx, nodes[0]) && d.narrow(ctx, nodes[1])
		},
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			cmp, set := nodes[0], nodes[1]
			cc := set.Uses[0]
			if cc.Cond == ir.CondAlways || cc.Cond == ir.CondNever {
				return nil, errors.New(errors.E0902, "setcc with condition %s", cc.Cond)
			}
			dst := ctx.Operand(set.Defs[0])
			w := d.Width(dst)
			cl := ir.RegOp(GPR(RegCX, 1))
			s := d.newSeq()
			s.compare(ctx.Operand(cmp.Uses[0]), ctx.Operand(cmp.Uses[1]))
			s.add(mc.Setcc, 1, cc, cl)
			zw := 4
			if w == 8 {
				zw = 8
			}
			s.add(mc.Movzxb, zw, d.acc(0, zw), cl)
			s.move(dst, d.acc(0, w))
			return s.result()
		},
	})
}

// ============================================================================
// 间接访问与数据符号
// ============================================================================

// addrFusable add t, p, imm 的结果只被紧随其后的访问使用一次
func addrFusable(ctx Context, add *ir.Node, addr ir.Operand) bool {
	if len(add.Defs) != 1 || len(add.Uses) != 2 {
		return false
	}
	t := add.Defs[0]
	if t.Kind != ir.KindTemp || addr.Kind != ir.KindTemp || addr.Index != t.Index {
		return false
	}
	disp := add.Uses[1]
	if disp.Kind != ir.KindImm || !disp.FitsInt32() || add.Uses[0].Kind == ir.KindImm {
		return false
	}
	return ctx.SingleUse(t)
}

// indirect 装入地址并返回 [CX + disp] 形式的内存操作数
func (s *seq) indirect(addr ir.Operand, disp int32, w int, t ir.CoarseType) ir.Operand {
	cx := s.d.acc(1, s.d.ptrSize)
	s.move(cx, addr)
	base, _ := cx.Reg()
	return ir.MemOp(ir.Mem{Base: base, Disp: disp, Size: w}, t)
}

func (d *descriptor) registerMemoryPatterns(t *MatchTable) {
	ldind := func(ctx Context, dstOp, addr ir.Operand, disp int32) ([]mc.Inst, error) {
		dst := ctx.Operand(dstOp)
		s := d.newSeq()
		m := s.indirect(ctx.Operand(addr), disp, d.Width(dst), dst.Type)
		s.move(dst, m)
		return s.result()
	}
	stind := func(ctx Context, addr, valOp ir.Operand, disp int32) ([]mc.Inst, error) {
		val := ctx.Operand(valOp)
		s := d.newSeq()
		m := s.indirect(ctx.Operand(addr), disp, d.Width(val), val.Type)
		s.move(m, val)
		return s.result()
	}

	t.Add(&Pattern{
		Name: "add+ldind",
		Ops:  []ir.Opcode{ir.IR_ADD, ir.IR_LDIND},
		Cond: func(ctx Context, nodes []*ir.Node) bool {
			return addrFusable(ctx, nodes[0], nodes[1].Uses[0])
		},
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			add, ld := nodes[0], nodes[1]
			return ldind(ctx, ld.Defs[0], add.Uses[0], int32(add.Uses[1].Imm))
		},
	})

	t.Add(&Pattern{
		Name: "add+stind",
		Ops:  []ir.Opcode{ir.IR_ADD, ir.IR_STIND},
		Cond: func(ctx Context, nodes []*ir.Node) bool {
			return addrFusable(ctx, nodes[0], nodes[1].Uses[0])
		},
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			add, st := nodes[0], nodes[1]
			return stind(ctx, add.Uses[0], st.Uses[1], int32(add.Uses[1].Imm))
		},
	})

	t.Add(&Pattern{
		Name: "ldind",
		Ops:  []ir.Opcode{ir.IR_LDIND},
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			return ldind(ctx, nodes[0].Defs[0], nodes[0].Uses[0], 0)
		},
	})

	t.Add(&Pattern{
		Name: "stind",
		Ops:  []ir.Opcode{ir.IR_STIND},
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			return stind(ctx, nodes[0].Uses[0], nodes[0].Uses[1], 0)
		},
	})

	t.Add(&Pattern{
		Name: "ldlabaddr",
		Ops:  []ir.Opcode{ir.IR_LDLABADDR},
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			n := nodes[0]
			acc := d.acc(0, d.ptrSize)
			s := d.newSeq()
			s.add(mc.MovRImmSym, d.ptrSize, acc, n.Uses[0])
			s.move(ctx.Operand(n.Defs[0]), acc)
			return s.result()
		},
	})

	t.Add(&Pattern{
		Name: "ldlabcontents",
		Ops:  []ir.Opcode{ir.IR_LDLABCONTENTS},
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			n := nodes[0]
			dst := ctx.Operand(n.Defs[0])
			m := ir.MemOp(ir.Mem{Symbol: n.Uses[0].Sym, Size: d.Width(dst)}, dst.Type)
			s := d.newSeq()
			s.move(dst, m)
			return s.result()
		},
	})

	t.Add(&Pattern{
		Name: "stlabcontents",
		Ops:  []ir.Opcode{ir.IR_STLABCONTENTS},
		Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
			n := nodes[0]
			val := ctx.Operand(n.Uses[1])
			m := ir.MemOp(ir.Mem{Symbol: n.Uses[0].Sym, Size: d.Width(val)}, val.Type)
			s := d.newSeq()
			s.move(m, val)
			return s.result()
		},
	})
}
