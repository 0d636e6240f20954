// lower.go - 伪操作展开
//
// enter / ret / call / conv 的形状依赖调用约定和栈帧布局，
// 不适合用匹配表表达，因此在指令选择之前直接展开为机器指令。
// 展开的结果按节点下标保存，指令选择时原样拼接。

package codegen

import (
	"math"

	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
	"github.com/tangzhangming/aotc/internal/target"
)

// Lower 展开方法中的所有伪操作
func (c *Code) Lower() error {
	for i, n := range c.Method.Nodes {
		if !n.Op.IsPseudo() {
			continue
		}
		var (
			out []mc.Inst
			err error
		)
		switch n.Op {
		case ir.IR_ENTER:
			out, err = c.lowerEnter()
		case ir.IR_RET:
			out, err = c.lowerRet(i, n)
		case ir.IR_CALL:
			out, err = c.lowerCall(i, n)
		case ir.IR_CONV:
			out, err = c.lowerConv(i, n)
		}
		if err != nil {
			return errors.Annotate(err, c.Method.Name, i)
		}
		c.lowered[i] = out
	}
	return nil
}

// emitter 展开时使用的指令序列，遇到第一个错误后停止追加
type emitter struct {
	tgt target.Target
	out []mc.Inst
	err error
}

func (e *emitter) add(op mc.Op, w int, ops ...ir.Operand) {
	if e.err != nil {
		return
	}
	e.out = append(e.out, mc.New(op, w, ops...))
}

func (e *emitter) marker(op mc.Op) {
	if e.err != nil {
		return
	}
	e.out = append(e.out, mc.Marker(op))
}

func (e *emitter) move(dst, src ir.Operand) {
	if e.err != nil {
		return
	}
	in, err := e.tgt.Move(dst, src)
	if err != nil {
		e.err = err
		return
	}
	e.out = append(e.out, in)
}

func (e *emitter) result() ([]mc.Inst, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.out, nil
}

func (c *Code) newEmitter() *emitter {
	return &emitter{tgt: c.Target}
}

func (c *Code) fp() ir.Operand { return ir.RegOp(c.Target.FramePointer()) }
func (c *Code) sp() ir.Operand { return ir.RegOp(c.Target.StackPointer()) }

// ============================================================================
// 方法入口与返回
// ============================================================================

// lowerEnter push FP; mov FP, SP; 保存被调用者寄存器; sub SP, frame; 写回寄存器参数
func (c *Code) lowerEnter() ([]mc.Inst, error) {
	ptr := c.Target.PtrSize()
	e := c.newEmitter()
	e.add(mc.Push, ptr, c.fp())
	e.add(mc.MovRMR, ptr, c.fp(), c.sp())
	e.marker(mc.SaveCalleePreserves)
	if c.FrameSize > 0 {
		e.add(mc.SubRMImm32, ptr, c.sp(), ir.Imm(int64(c.FrameSize), ir.TypeIntPtr))
	}
	for _, s := range c.spills {
		e.move(s.home, ir.RegOp(s.reg))
	}
	return e.result()
}

// lowerRet mov retreg, v; 恢复被调用者寄存器; mov SP, FP; pop FP; ret
func (c *Code) lowerRet(i int, n *ir.Node) ([]mc.Inst, error) {
	ptr := c.Target.PtrSize()
	e := c.newEmitter()

	var retUse []ir.Operand
	if len(n.Uses) > 0 {
		if !c.Method.Sig.ReturnsValue() {
			return nil, errors.InvalidInput("void method %s returns a value", c.Method.Name)
		}
		loc, err := c.Conv.ReturnLocation(c.Method.Sig.Ret, ptr)
		if err != nil {
			return nil, err
		}
		vals, err := c.operands(i, n.Uses[:1])
		if err != nil {
			return nil, err
		}
		ret := ir.LocOp(loc, c.Method.Sig.Ret.Kind)
		e.move(ret, vals[0])
		retUse = append(retUse, ret.WithUD(ir.UDUse))
	}

	e.marker(mc.RestoreCalleePreserves)
	e.add(mc.MovRMR, ptr, c.sp(), c.fp())
	e.add(mc.Pop, ptr, c.fp())
	e.add(mc.Ret, 0, retUse...)
	return e.result()
}

// ============================================================================
// 调用
// ============================================================================

// lowerCall 按被调方签名放置参数，发射调用并取回返回值
func (c *Code) lowerCall(i int, n *ir.Node) ([]mc.Inst, error) {
	if n.Sig == nil {
		return nil, errors.InvalidInput("call without a callee signature")
	}
	if len(n.Uses) == 0 || n.Uses[0].Kind != ir.KindSymbol {
		return nil, errors.InvalidInput("call target must be a symbol")
	}
	ptr := c.Target.PtrSize()
	params := n.Sig.ParamTypes()
	args := n.Uses[1:]
	if len(args) != len(params) {
		return nil, errors.InvalidInput("call to %s passes %d arguments, signature has %d",
			n.Uses[0].Sym, len(args), len(params))
	}

	regs, stackSize, err := c.Conv.Resolve(params, ptr)
	if err != nil {
		return nil, err
	}
	vals, err := c.operands(i, args)
	if err != nil {
		return nil, err
	}
	reserve := alignUp(stackSize, c.Target.StackAlign())

	e := c.newEmitter()
	e.marker(mc.Precall)
	if reserve > 0 {
		e.add(mc.SubRMImm32, ptr, c.sp(), ir.Imm(int64(reserve), ir.TypeIntPtr))
	}
	for k, p := range params {
		size, err := target.SizeOf(p, ptr)
		if err != nil {
			return nil, err
		}
		var dst ir.Operand
		if r := regs[k]; r.IsStack() {
			dst = ir.MemOp(c.Target.OutgoingArgLocation(r.StackLoc, size), p.Kind)
		} else {
			dst = ir.LocOp(r, p.Kind)
		}
		e.move(dst, vals[k])
	}

	call := []ir.Operand{n.Uses[0]}
	var ret ir.Operand
	if n.Sig.ReturnsValue() {
		loc, err := c.Conv.ReturnLocation(n.Sig.Ret, ptr)
		if err != nil {
			return nil, err
		}
		ret = ir.LocOp(loc, n.Sig.Ret.Kind)
		call = append(call, ret.WithUD(ir.UDDef))
	}
	call = append(call, ir.RegOp(target.ContentsPseudo()).WithUD(ir.UDDef))
	e.add(mc.Call, 0, call...)

	if len(n.Defs) > 0 {
		if !n.Sig.ReturnsValue() {
			return nil, errors.InvalidInput("call to void %s has a destination", n.Uses[0].Sym)
		}
		dst, err := c.operands(i, n.Defs[:1])
		if err != nil {
			return nil, err
		}
		e.move(dst[0], ret)
	}
	if reserve > 0 {
		e.add(mc.AddRMImm32, ptr, c.sp(), ir.Imm(int64(reserve), ir.TypeIntPtr))
	}
	e.marker(mc.Postcall)
	return e.result()
}

// ============================================================================
// 数值转换
// ============================================================================

// lowerConv 经由一个临时寄存器扩展/截断，再写入目标
func (c *Code) lowerConv(i int, n *ir.Node) ([]mc.Inst, error) {
	info := n.Conv
	if info.Overflow {
		return nil, errors.New(errors.E0903, "overflow-checked conversion")
	}
	if info.Unsigned {
		return nil, errors.New(errors.E0903, "conversion from an unsigned source")
	}
	if len(n.Defs) != 1 || len(n.Uses) != 1 {
		return nil, errors.InvalidInput("conv needs one destination and one source")
	}
	ops, err := c.operands(i, []ir.Operand{n.Defs[0], n.Uses[0]})
	if err != nil {
		return nil, err
	}
	dst, src := ops[0], ops[1]

	switch {
	case dst.Type == ir.TypeFloat && src.Type == ir.TypeFloat:
		return c.convFloatMove(dst, src)
	case dst.Type == ir.TypeFloat:
		return c.convIntToFloat(dst, src)
	case src.Type == ir.TypeFloat:
		return c.convFloatToInt(dst, src, info)
	}
	return c.convInt(dst, src, info)
}

// destSize 转换目标大小与是否有符号
func destSize(info ir.ConvInfo) (int, bool, error) {
	size, signed := info.DestSize, true
	if size < 0 {
		size, signed = -size, false
	}
	switch size {
	case 1, 2, 4, 8:
		return size, signed, nil
	}
	return 0, false, errors.New(errors.E0903, "conversion to %d bytes", info.DestSize)
}

// foldConst 编译期截断并扩展立即数
func foldConst(v int64, size int, signed bool) int64 {
	if size == 8 {
		return v
	}
	bits := uint(size * 8)
	if signed {
		return v << (64 - bits) >> (64 - bits)
	}
	return int64(uint64(v) & (1<<bits - 1))
}

func (c *Code) convFloatMove(dst, src ir.Operand) ([]mc.Inst, error) {
	e := c.newEmitter()
	x := ir.RegOp(c.Target.FloatScratch())
	e.move(x, src)
	e.move(dst, x)
	return e.result()
}

// convIntToFloat cvtsi2sd，立即数源在编译期换算为双精度位模式
func (c *Code) convIntToFloat(dst, src ir.Operand) ([]mc.Inst, error) {
	e := c.newEmitter()
	if src.Kind == ir.KindImm {
		bits := int64(math.Float64bits(float64(src.Imm)))
		e.move(dst, ir.Imm(bits, ir.TypeInt64))
		return e.result()
	}
	w := c.Target.Width(src)
	if w > c.Target.PtrSize() || (w != 4 && w != 8) {
		return nil, errors.New(errors.E0903, "int%d to double on %s", w*8, c.Target.Name())
	}
	x := ir.RegOp(c.Target.FloatScratch())
	e.add(mc.Cvtsi2sd, w, x, src)
	e.move(dst, x)
	return e.result()
}

// convFloatToInt cvttsd2si，目标只能是 4 字节或指针宽度
func (c *Code) convFloatToInt(dst, src ir.Operand, info ir.ConvInfo) ([]mc.Inst, error) {
	size, _, err := destSize(info)
	if err != nil {
		return nil, err
	}
	if size != 4 && size != c.Target.PtrSize() {
		return nil, errors.New(errors.E0903, "double to %d-byte integer on %s", size, c.Target.Name())
	}
	w := c.Target.Width(dst)
	if w < size {
		w = size
	}
	if w > c.Target.PtrSize() {
		return nil, errors.New(errors.E0903, "double to %d-byte slot on %s", w, c.Target.Name())
	}
	e := c.newEmitter()
	acc := ir.RegOp(c.Target.Scratch(0, size))
	e.add(mc.Cvttsd2si, size, acc, src)
	if w > size {
		// 有符号截断结果扩展到目标宽度
		wide := ir.RegOp(c.Target.Scratch(0, w))
		e.add(mc.Movsxd, w, wide, acc)
		acc = wide
	}
	e.move(dst, acc)
	return e.result()
}

// convInt 整数扩展/截断
func (c *Code) convInt(dst, src ir.Operand, info ir.ConvInfo) ([]mc.Inst, error) {
	size, signed, err := destSize(info)
	if err != nil {
		return nil, err
	}
	ptr := c.Target.PtrSize()
	dstW := c.Target.Width(dst)
	e := c.newEmitter()

	if src.Kind == ir.KindImm {
		v := foldConst(src.Imm, size, signed)
		e.move(dst, ir.Imm(v, dst.Type))
		return e.result()
	}
	sm, ok := src.Mem()
	if !ok {
		return nil, errors.Unsupported("conversion source %s", src)
	}
	srcW := c.Target.Width(src)

	// 32 位目标上的 8 字节结果：低半部分在 EAX，高半部分由 cdq 或清零得到
	if dstW > ptr {
		if size == 8 && srcW == 8 {
			e.move(dst, src)
			return e.result()
		}
		lo := size
		if lo > 4 {
			lo = 4
		}
		eax := c.Target.Scratch(0, 4)
		edx := c.Target.Scratch(2, 4)
		c.extend(e, eax, sm, lo, srcW, signed)
		if signed {
			e.add(mc.Cdq, 4)
		} else {
			e.add(mc.XorRRM, 4, ir.RegOp(edx), ir.RegOp(edx))
		}
		e.move(dst, ir.LocOp(ir.Composite{Lo: eax, Hi: edx}, ir.TypeInt64))
		return e.result()
	}

	acc := c.Target.Scratch(0, dstW)
	c.extend(e, acc, sm, size, srcW, signed)
	e.move(dst, ir.RegOp(acc))
	return e.result()
}

// extend 把 src 的低 size 字节按符号扩展到 acc 的宽度
func (c *Code) extend(e *emitter, acc ir.Reg, src ir.Mem, size, srcW int, signed bool) {
	w := acc.Size
	r := ir.RegOp(acc)
	switch {
	case size == 1 || size == 2:
		e.add(extendOp(size, signed), w, r, ir.MemOp(src.Offset(0, size), ir.TypeInt32))
	case w == 8 && (size == 4 || srcW == 4):
		// 4 字节源扩展到 64 位：有符号用 movsxd，无符号写 32 位寄存器自动清零高位
		half := ir.MemOp(src.Offset(0, 4), ir.TypeInt32)
		if signed {
			e.add(mc.Movsxd, 8, r, half)
		} else {
			e.add(mc.MovRRM, 4, ir.RegOp(target.Resize(acc, 4)), half)
		}
	default:
		n := w
		if srcW < n {
			n = srcW
		}
		e.add(mc.MovRRM, n, ir.RegOp(target.Resize(acc, n)), ir.MemOp(src.Offset(0, n), ir.TypeInt32))
	}
}

func extendOp(size int, signed bool) mc.Op {
	switch {
	case size == 1 && signed:
		return mc.Movsxb
	case size == 1:
		return mc.Movzxb
	case signed:
		return mc.Movsxw
	}
	return mc.Movzxw
}
