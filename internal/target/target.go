// Package target 描述代码生成的目标架构
//
// 每个架构是一个实现 Target 接口的不可变值：寄存器文件、调用约定表、
// 指令匹配表以及栈帧布局钩子。目标在进程内只构建一次，
// 之后可以被并发编译的多个方法共享。
package target

import (
	"sort"
	"sync"

	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
)

// Target 架构能力接口
type Target interface {
	// Name 架构名（x86, x86_64）
	Name() string
	// PtrSize 指针宽度（字节）
	PtrSize() int
	// Mode 编码模式（32 或 64）
	Mode() int
	// StackAlign 调用点的栈对齐要求
	StackAlign() int

	FramePointer() ir.Reg
	StackPointer() ir.Reg
	// Scratch 第 i 个整数临时寄存器（0 为累加器），以 size 宽度访问
	Scratch(i, size int) ir.Reg
	FloatScratch() ir.Reg

	// DefaultConvention 默认调用约定名
	DefaultConvention() string
	// Convention 按名字查找调用约定，未知名字返回 UnsupportedOperand
	Convention(name string) (*Convention, error)

	// LocalLocation 帧内偏移 offset 处、大小为 size 的槽位
	LocalLocation(offset, size int) ir.Mem
	// IncomingArgLocation 调用者栈上传入参数的位置
	IncomingArgLocation(stackLoc, size int) ir.Mem
	// OutgoingArgLocation 调用点传出参数的位置
	OutgoingArgLocation(stackLoc, size int) ir.Mem

	// Width 操作数的字节宽度
	Width(o ir.Operand) int
	// Move 生成一条把 src 移到 dst 的机器指令
	Move(dst, src ir.Operand) (mc.Inst, error)

	// Patterns 指令匹配表
	Patterns() *MatchTable
}

// ============================================================================
// 共享描述
// ============================================================================

// descriptor 两个架构共用的不可变描述
type descriptor struct {
	name        string
	ptrSize     int
	mode        int
	stackAlign  int
	conventions map[string]*Convention
	defaultConv string
	table       *MatchTable
}

func (d *descriptor) Name() string    { return d.name }
func (d *descriptor) PtrSize() int    { return d.ptrSize }
func (d *descriptor) Mode() int       { return d.mode }
func (d *descriptor) StackAlign() int { return d.stackAlign }

func (d *descriptor) FramePointer() ir.Reg { return GPR(RegBP, d.ptrSize) }
func (d *descriptor) StackPointer() ir.Reg { return GPR(RegSP, d.ptrSize) }

// 整数临时寄存器：AX, CX, DX
var scratchIDs = [...]int{RegAX, RegCX, RegDX}

func (d *descriptor) Scratch(i, size int) ir.Reg {
	return GPR(scratchIDs[i], size)
}

func (d *descriptor) FloatScratch() ir.Reg { return XMM(0) }

func (d *descriptor) DefaultConvention() string { return d.defaultConv }

func (d *descriptor) Convention(name string) (*Convention, error) {
	if name == "" {
		name = d.defaultConv
	}
	c, ok := d.conventions[name]
	if !ok {
		return nil, errors.Unsupported("unknown calling convention %q for %s", name, d.name)
	}
	return c, nil
}

// 栈帧向下增长：[FP - offset - size]
func (d *descriptor) LocalLocation(offset, size int) ir.Mem {
	return ir.Mem{Base: d.FramePointer(), Disp: int32(-(offset + size)), Size: size}
}

// 返回地址和保存的 FP 之上：[FP + 2*ptr + stackLoc]
func (d *descriptor) IncomingArgLocation(stackLoc, size int) ir.Mem {
	return ir.Mem{Base: d.FramePointer(), Disp: int32(2*d.ptrSize + stackLoc), Size: size}
}

func (d *descriptor) OutgoingArgLocation(stackLoc, size int) ir.Mem {
	return ir.Mem{Base: d.StackPointer(), Disp: int32(stackLoc), Size: size}
}

func (d *descriptor) Width(o ir.Operand) int {
	if o.Kind == ir.KindLoc && o.Loc != nil && o.Loc.Bytes() > 0 {
		return o.Loc.Bytes()
	}
	switch o.Type {
	case ir.TypeInt32:
		return 4
	case ir.TypeInt64, ir.TypeFloat:
		return 8
	default:
		return d.ptrSize
	}
}

func (d *descriptor) Patterns() *MatchTable { return d.table }

// ============================================================================
// 目标注册表
// ============================================================================

var (
	registryOnce sync.Once
	registry     map[string]Target
)

func buildRegistry() {
	registry = map[string]Target{
		"x86":    newX86(),
		"x86_64": newX8664(),
	}
	registry["i386"] = registry["x86"]
	registry["amd64"] = registry["x86_64"]
}

// Lookup 按名字查找目标；"host" 返回当前机器的目标
func Lookup(name string) (Target, error) {
	if name == "host" || name == "" {
		return Host()
	}
	registryOnce.Do(buildRegistry)
	t, ok := registry[name]
	if !ok {
		return nil, errors.Unsupported("unknown target architecture %q", name)
	}
	return t, nil
}

// Names 已注册的目标名（排序）
func Names() []string {
	registryOnce.Do(buildRegistry)
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
