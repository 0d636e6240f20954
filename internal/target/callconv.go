// callconv.go - 调用约定与参数位置解析
//
// 调用约定把每个粗粒度类型类别映射到一个有序的候选位置列表，
// 列表的最后一项是栈伪寄存器。解析参数时每个候选列表维护一个游标
// （共享同一列表的类别，如 SysV 的 int32/int64/ptr，共用一个游标）：
//   - 游标在范围内时取 candidates[cursor]
//   - 否则取最后一项（栈），该类别之后的参数都落到栈上
//   - 无论结果如何，游标都前进一次
// 栈位置在当前栈游标处实体化，大小按指针宽度向上取整，分配后游标重新对齐。
// 返回值使用单独的单槽表，没有游标。

package target

import (
	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
)

// Class 调用约定使用的类型类别
type Class int

const (
	ClassInt32 Class = iota
	ClassInt64
	ClassPtr
	ClassFloat
	ClassValue
	ClassVoid
)

func (c Class) String() string {
	switch c {
	case ClassInt32:
		return "int32"
	case ClassInt64:
		return "int64"
	case ClassPtr:
		return "ptr"
	case ClassFloat:
		return "float"
	case ClassValue:
		return "value"
	default:
		return "void"
	}
}

// ClassOf 粗粒度类型到调用约定类别
func ClassOf(t ir.CoarseType) Class {
	switch t {
	case ir.TypeInt32:
		return ClassInt32
	case ir.TypeInt64:
		return ClassInt64
	case ir.TypeIntPtr, ir.TypeObject, ir.TypeRef:
		return ClassPtr
	case ir.TypeFloat:
		return ClassFloat
	case ir.TypeValue:
		return ClassValue
	default:
		return ClassVoid
	}
}

// Convention 调用约定
type Convention struct {
	Name string

	// Params 每个类别的候选位置，最后一项是栈伪寄存器
	Params map[Class][]ir.Reg

	// Overrides 架构覆盖，Params 中没有的类别在这里查找
	Overrides map[Class][]ir.Reg

	// Returns 返回值位置（Reg 或 Composite）
	Returns map[Class]ir.Location

	CallerPreserves uint64 // 调用者保存的寄存器掩码
	CalleePreserves uint64 // 被调用者保存的寄存器掩码
}

// candidates 查找类别的候选列表
func (c *Convention) candidates(cl Class) ([]ir.Reg, bool) {
	if list, ok := c.Params[cl]; ok && len(list) > 0 {
		return list, true
	}
	if list, ok := c.Overrides[cl]; ok && len(list) > 0 {
		return list, true
	}
	return nil, false
}

// Resolve 为参数列表分配位置
// 返回每个参数的位置（寄存器或带 StackLoc 的栈伪寄存器）以及栈区总大小
func (c *Convention) Resolve(params []ir.Type, ptrSize int) ([]ir.Reg, int, error) {
	cursors := make(map[*ir.Reg]int)
	locs := make([]ir.Reg, len(params))
	stackLoc := 0

	for i, p := range params {
		cl := ClassOf(p.Kind)
		list, ok := c.candidates(cl)
		if !ok {
			return nil, 0, errors.UnsupportedConvention(
				"calling convention %q has no locations for parameter %d of class %s", c.Name, i, cl)
		}

		// 游标按候选列表计数：共用整数寄存器序列的类别依次占用同一组寄存器
		key := &list[0]
		cur := cursors[key]
		if cur >= len(list) {
			cur = len(list) - 1
		}
		cand := list[cur]

		if cand.IsStack() {
			size, err := SizeOf(p, ptrSize)
			if err != nil {
				return nil, 0, err
			}
			// 栈槽按指针宽度取整，与 cdecl / System V 的参数压栈单位一致
			slot := alignUp(size, ptrSize)
			stackLoc = alignUp(stackLoc, ptrSize)

			r := cand
			r.Size = slot
			r.StackLoc = stackLoc
			locs[i] = r

			stackLoc = alignUp(stackLoc+slot, ptrSize)
		} else {
			size, err := SizeOf(p, ptrSize)
			if err != nil {
				return nil, 0, err
			}
			locs[i] = Resize(cand, size)
		}

		cursors[key]++
	}

	return locs, stackLoc, nil
}

// ReturnLocation 返回值位置，void 返回 nil
func (c *Convention) ReturnLocation(t ir.Type, ptrSize int) (ir.Location, error) {
	if t.Kind == ir.TypeVoid {
		return nil, nil
	}
	cl := ClassOf(t.Kind)
	loc, ok := c.Returns[cl]
	if !ok {
		return nil, errors.UnsupportedConvention(
			"calling convention %q cannot return a value of class %s", c.Name, cl)
	}
	if r, isReg := loc.(ir.Reg); isReg {
		size, err := SizeOf(t, ptrSize)
		if err != nil {
			return nil, err
		}
		return Resize(r, size), nil
	}
	return loc, nil
}

// IsCallerSaved 寄存器是否由调用者保存
func (c *Convention) IsCallerSaved(r ir.Reg) bool {
	return c.CallerPreserves&r.Mask != 0
}

// IsCalleeSaved 寄存器是否由被调用者保存
func (c *Convention) IsCalleeSaved(r ir.Reg) bool {
	return c.CalleePreserves&r.Mask != 0
}

// SizeOf 声明类型的字节大小
func SizeOf(t ir.Type, ptrSize int) (int, error) {
	switch t.Kind {
	case ir.TypeInt32:
		return 4, nil
	case ir.TypeInt64, ir.TypeFloat:
		return 8, nil
	case ir.TypeIntPtr, ir.TypeObject, ir.TypeRef:
		return ptrSize, nil
	case ir.TypeValue:
		if t.Size <= 0 {
			return 0, errors.Unsupported("value type with size %d", t.Size)
		}
		return t.Size, nil
	default:
		return 0, errors.Unsupported("type %s has no storage size", t)
	}
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
