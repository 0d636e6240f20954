// move.go - 单条数据移动指令的选择
//
// 调用、返回和入口的 Lowering 对每个值只生成一条移动指令，
// 操作码按源操作数的种类选择（立即数 / 寄存器 / 内存）。
// 32 位目标上 8 字节的移动由编码器拆成两条 4 字节移动。

package target

import (
	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
)

func (d *descriptor) Move(dst, src ir.Operand) (mc.Inst, error) {
	if dst.Kind != ir.KindLoc {
		return mc.Inst{}, errors.Unsupported("move destination %s is not a location", dst)
	}
	w := d.Width(dst)

	switch dl := dst.Loc.(type) {
	case ir.Reg:
		if dl.Class == ir.RegFloat {
			return d.moveToXMM(dst, src)
		}
		return d.moveToGPR(dst, src, w)
	case ir.Mem:
		return d.moveToMem(dst, src, w)
	case ir.Composite:
		return d.moveToComposite(dst, src)
	}
	return mc.Inst{}, errors.Unsupported("move destination %s", dst)
}

func (d *descriptor) moveToGPR(dst, src ir.Operand, w int) (mc.Inst, error) {
	switch src.Kind {
	case ir.KindImm:
		if w == 8 && !src.FitsInt32() {
			if d.mode != 64 {
				return mc.Inst{}, errors.Unsupported("64-bit immediate into %s", dst)
			}
			return mc.New(mc.MovRImm64, w, dst, src), nil
		}
		return mc.New(mc.MovRMImm32, w, dst, src), nil
	case ir.KindSymbol:
		return mc.New(mc.MovRImmSym, w, dst, src), nil
	case ir.KindLoc:
		switch sl := src.Loc.(type) {
		case ir.Reg:
			if sl.Class == ir.RegFloat {
				return mc.Inst{}, errors.Unsupported("move from %s to %s", src, dst)
			}
			return mc.New(mc.MovRMR, w, dst, src), nil
		case ir.Mem:
			return mc.New(mc.MovRRM, w, dst, src), nil
		}
	}
	return mc.Inst{}, errors.Unsupported("move from %s to %s", src, dst)
}

func (d *descriptor) moveToXMM(dst, src ir.Operand) (mc.Inst, error) {
	if src.Kind == ir.KindLoc {
		switch sl := src.Loc.(type) {
		case ir.Mem:
			return mc.New(mc.MovsdRRM, 8, dst, src), nil
		case ir.Reg:
			if sl.Class == ir.RegFloat {
				return mc.New(mc.MovsdRRM, 8, dst, src), nil
			}
		}
	}
	return mc.Inst{}, errors.Unsupported("move from %s to %s", src, dst)
}

func (d *descriptor) moveToMem(dst, src ir.Operand, w int) (mc.Inst, error) {
	scratch := ir.RegOp(d.Scratch(0, d.ptrSize))

	switch src.Kind {
	case ir.KindImm:
		switch {
		case w <= 4:
			return mc.New(mc.MovRMImm32, w, dst, src), nil
		case w == 8 && (d.mode == 32 || src.FitsInt32()):
			return mc.New(mc.MovRMImm32, w, dst, src), nil
		case w == 8:
			return mc.New(mc.MovMM, w, dst, src, scratch), nil
		}
	case ir.KindLoc:
		switch sl := src.Loc.(type) {
		case ir.Reg:
			if sl.Class == ir.RegFloat {
				return mc.New(mc.MovsdRMR, 8, dst, src), nil
			}
			return mc.New(mc.MovRMR, w, dst, src), nil
		case ir.Composite:
			return mc.New(mc.MovRMR, w, dst, src), nil
		case ir.Mem:
			return mc.New(mc.MovMM, w, dst, src, scratch), nil
		}
	}
	return mc.Inst{}, errors.Unsupported("move from %s to %s", src, dst)
}

func (d *descriptor) moveToComposite(dst, src ir.Operand) (mc.Inst, error) {
	switch src.Kind {
	case ir.KindImm:
		return mc.New(mc.MovRMImm32, 8, dst, src), nil
	case ir.KindLoc:
		if _, ok := src.Loc.(ir.Mem); ok {
			return mc.New(mc.MovRRM, 8, dst, src), nil
		}
	}
	return mc.Inst{}, errors.Unsupported("move from %s to %s", src, dst)
}
