// alloc.go - 存储分配
//
// 本文件为方法的所有值分配位置：
// 1. 局部变量按声明顺序分配栈帧槽位（大小向上取整到指针宽度）
// 2. 参数按调用约定解析：栈上参数直接引用调用者的栈区，
//    寄存器参数在栈帧中分配副本槽位，由入口 Lowering 写回
// 3. 临时值：只在一个基本块内活跃的临时值按活跃区间线性扫描复用槽位，
//    跨块的临时值分配独占槽位
//
// 栈帧向下增长，槽位位置由目标的 LocalLocation 钩子决定。

package codegen

import (
	"sort"

	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/target"
)

// AllocateStorage 为局部变量、参数和临时值分配位置
func (c *Code) AllocateStorage() error {
	f := &frame{tgt: c.Target, free: make(map[int][]ir.Mem)}
	ptr := c.Target.PtrSize()

	// 局部变量
	c.locals = make([]ir.Operand, len(c.Method.Locals))
	for i, t := range c.Method.Locals {
		size, err := target.SizeOf(t, ptr)
		if err != nil {
			return err
		}
		c.locals[i] = ir.MemOp(f.slot(size), t.Kind)
	}

	// 参数
	params := c.Method.Sig.ParamTypes()
	regs, _, err := c.Conv.Resolve(params, ptr)
	if err != nil {
		return err
	}
	c.args = make([]ir.Operand, len(params))
	c.spills = c.spills[:0]
	for i, p := range params {
		size, err := target.SizeOf(p, ptr)
		if err != nil {
			return err
		}
		r := regs[i]
		if r.IsStack() {
			m := c.Target.IncomingArgLocation(r.StackLoc, size)
			c.args[i] = ir.MemOp(m, p.Kind)
			continue
		}
		home := ir.MemOp(f.slot(size), p.Kind)
		c.args[i] = home
		c.spills = append(c.spills, argSpill{reg: r, home: home})
	}

	// 临时值
	if err := c.allocateTemps(f); err != nil {
		return err
	}

	c.FrameSize = alignUp(f.size, c.Target.StackAlign())
	return nil
}

// ============================================================================
// 栈帧槽位
// ============================================================================

// frame 栈帧分配游标
type frame struct {
	tgt  target.Target
	size int
	// free 可复用的临时值槽位，按槽位大小分组
	free map[int][]ir.Mem
}

// slot 分配一个新槽位，返回的 Mem.Size 是值的实际大小
func (f *frame) slot(size int) ir.Mem {
	rounded := alignUp(size, f.tgt.PtrSize())
	m := f.tgt.LocalLocation(f.size, rounded)
	f.size += rounded
	m.Size = size
	return m
}

// reuse 优先复用空闲槽位
func (f *frame) reuse(size int) ir.Mem {
	rounded := alignUp(size, f.tgt.PtrSize())
	if list := f.free[rounded]; len(list) > 0 {
		m := list[len(list)-1]
		f.free[rounded] = list[:len(list)-1]
		m.Size = size
		return m
	}
	return f.slot(size)
}

// release 归还槽位
func (f *frame) release(m ir.Mem) {
	rounded := alignUp(m.Size, f.tgt.PtrSize())
	f.free[rounded] = append(f.free[rounded], m)
}

// ============================================================================
// 临时值活跃区间
// ============================================================================

// interval 临时值的活跃区间（节点下标，闭区间）
type interval struct {
	temp  int
	typ   ir.CoarseType
	start int
	end   int
	block int
	// crossBlock 在多个基本块中出现
	crossBlock bool
	slot       ir.Mem
}

// computeIntervals 计算所有临时值的活跃区间，按起点排序
func (c *Code) computeIntervals() []*interval {
	byTemp := make(map[int]*interval)
	touch := func(o ir.Operand, pos, block int) {
		if o.Kind != ir.KindTemp {
			return
		}
		iv, ok := byTemp[o.Index]
		if !ok {
			iv = &interval{temp: o.Index, typ: o.Type, start: pos, end: pos, block: block}
			byTemp[o.Index] = iv
			return
		}
		if pos > iv.end {
			iv.end = pos
		}
		if iv.block != block {
			iv.crossBlock = true
		}
	}

	for b, r := range c.Method.Blocks() {
		for i := r[0]; i < r[1]; i++ {
			n := c.Method.Nodes[i]
			for _, u := range n.Uses {
				touch(u, i, b)
			}
			for _, d := range n.Defs {
				touch(d, i, b)
			}
		}
	}

	out := make([]*interval, 0, len(byTemp))
	for _, iv := range byTemp {
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].start != out[j].start {
			return out[i].start < out[j].start
		}
		return out[i].temp < out[j].temp
	})
	return out
}

// allocateTemps 线性扫描：区间结束后其槽位可以被后面开始的区间复用
func (c *Code) allocateTemps(f *frame) error {
	intervals := c.computeIntervals()
	var active []*interval

	for _, cur := range intervals {
		size, err := tempSize(cur.typ, c.Target.PtrSize())
		if err != nil {
			return errors.Annotate(err, c.Method.Name, cur.start)
		}

		if cur.crossBlock {
			cur.slot = f.slot(size)
			c.temps[cur.temp] = ir.MemOp(cur.slot, cur.typ)
			continue
		}

		// 释放已经结束的区间
		kept := active[:0]
		for _, a := range active {
			if a.end < cur.start {
				f.release(a.slot)
			} else {
				kept = append(kept, a)
			}
		}
		active = kept

		cur.slot = f.reuse(size)
		c.temps[cur.temp] = ir.MemOp(cur.slot, cur.typ)
		active = insertByEnd(active, cur)
	}
	return nil
}

// insertByEnd 插入活跃列表，保持按终点排序
func insertByEnd(active []*interval, iv *interval) []*interval {
	i := sort.Search(len(active), func(i int) bool {
		return active[i].end >= iv.end
	})
	active = append(active, nil)
	copy(active[i+1:], active[i:])
	active[i] = iv
	return active
}

// tempSize 临时值的槽位大小
func tempSize(t ir.CoarseType, ptr int) (int, error) {
	if t == ir.TypeValue || t == ir.TypeVoid {
		return 0, errors.Unsupported("temporary of type %s", t)
	}
	return target.SizeOf(ir.T(t), ptr)
}

func alignUp(v, a int) int {
	if a <= 1 {
		return v
	}
	if r := v % a; r != 0 {
		return v + a - r
	}
	return v
}
