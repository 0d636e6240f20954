// peephole.go - 窥孔优化
//
// 两个局部改写，都不改变指令条数：
//   - 立即数收缩：尾部立即数在 [-128, 127] 内时换用 imm8 形式
//   - 清零惯用法：mov reg, 0 改写为 xor reg, reg（只对寄存器目标生效）
//
// xor 会改写标志位，所以清零只在后续指令不读取当前标志时进行。

package codegen

import (
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
	"github.com/tangzhangming/aotc/internal/target"
)

// ============================================================================
// 立即数收缩
// ============================================================================

// imm8Forms imm32 操作码 -> imm8 操作码
// adc/sbb 只用于 int64 寄存器对的高半部分，保持 imm32 形式
var imm8Forms = map[mc.Op]mc.Op{
	mc.AddRMImm32:   mc.AddRMImm8,
	mc.SubRMImm32:   mc.SubRMImm8,
	mc.AndRMImm32:   mc.AndRMImm8,
	mc.OrRMImm32:    mc.OrRMImm8,
	mc.XorRMImm32:   mc.XorRMImm8,
	mc.CmpRMImm32:   mc.CmpRMImm8,
	mc.ImulRRMImm32: mc.ImulRRMImm8,
	mc.PushImm32:    mc.PushImm8,
}

// ImmShrinkPass 立即数收缩
type ImmShrinkPass struct{}

// NewImmShrinkPass 创建立即数收缩 Pass
func NewImmShrinkPass() *ImmShrinkPass {
	return &ImmShrinkPass{}
}

// Name 返回 Pass 名称
func (p *ImmShrinkPass) Name() string {
	return "imm-shrink"
}

// Run 运行 Pass
func (p *ImmShrinkPass) Run(blocks [][]mc.Inst) int {
	changes := 0
	for _, b := range blocks {
		for i := range b {
			in := &b[i]
			short, ok := imm8Forms[in.Op]
			if !ok || in.W == 1 || len(in.Ops) == 0 {
				continue
			}
			if !in.Ops[len(in.Ops)-1].FitsInt8() {
				continue
			}
			in.Op = short
			changes++
		}
	}
	return changes
}

// ============================================================================
// 清零惯用法
// ============================================================================

// ZeroIdiomPass mov reg, 0 -> xor reg, reg
type ZeroIdiomPass struct{}

// NewZeroIdiomPass 创建清零 Pass
func NewZeroIdiomPass() *ZeroIdiomPass {
	return &ZeroIdiomPass{}
}

// Name 返回 Pass 名称
func (p *ZeroIdiomPass) Name() string {
	return "zero-idiom"
}

// Run 运行 Pass
func (p *ZeroIdiomPass) Run(blocks [][]mc.Inst) int {
	changes := 0
	for _, b := range blocks {
		for i := range b {
			in := &b[i]
			if in.Op != mc.MovRMImm32 || in.W < 4 || len(in.Ops) != 2 {
				continue
			}
			r, ok := in.Ops[0].Reg()
			if !ok || r.Class != ir.RegGPR {
				continue
			}
			if in.Ops[1].Kind != ir.KindImm || in.Ops[1].Imm != 0 {
				continue
			}
			if flagsLive(b[i+1:]) {
				continue
			}
			// 32 位 xor 会清零 64 位寄存器的高半部分
			w := in.W
			if w > 4 {
				w = 4
				r = target.Resize(r, 4)
			}
			reg := ir.RegOp(r)
			*in = mc.New(mc.XorRRM, w, reg, reg)
			changes++
		}
	}
	return changes
}

// flagsLive 后续指令在标志被重新写入之前是否读取标志
func flagsLive(rest []mc.Inst) bool {
	for _, in := range rest {
		if in.Op.ReadsFlags() {
			return true
		}
		if writesFlags(in.Op) {
			return false
		}
	}
	return false
}

// writesFlags 会覆盖算术标志的指令
func writesFlags(op mc.Op) bool {
	switch op {
	case mc.AddRMR, mc.AddRRM, mc.AddRMImm32, mc.AddRMImm8,
		mc.SubRMR, mc.SubRRM, mc.SubRMImm32, mc.SubRMImm8,
		mc.AndRRM, mc.AndRMImm32, mc.AndRMImm8,
		mc.OrRRM, mc.OrRMImm32, mc.OrRMImm8,
		mc.XorRRM, mc.XorRMImm32, mc.XorRMImm8,
		mc.CmpRMR, mc.CmpRRM, mc.CmpRMImm32, mc.CmpRMImm8,
		mc.ImulRRM, mc.ImulRRMImm32, mc.ImulRRMImm8,
		mc.Neg, mc.Call:
		return true
	}
	return false
}
