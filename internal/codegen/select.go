// select.go - 指令选择
//
// 每个基本块内从当前位置开始，先尝试匹配表中最长的窗口，
// 失败后逐步缩短到单个节点；第一个匹配的模式消费整个窗口。
// 已展开的伪操作直接贡献其指令，不参与窗口匹配。

package codegen

import (
	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/mc"
)

// Select 为每个基本块选择机器指令
func (c *Code) Select() error {
	table := c.Target.Patterns()
	ranges := c.Method.Blocks()
	c.Blocks = make([][]mc.Inst, len(ranges))

	for b, r := range ranges {
		var out []mc.Inst
		for i := r[0]; i < r[1]; {
			if lowered, ok := c.lowered[i]; ok {
				out = append(out, lowered...)
				i++
				continue
			}

			n := c.window(i, r[1], table.MaxLen())
			matched := false
			for ; n > 0; n-- {
				nodes := c.Method.Nodes[i : i+n]
				p := table.Match(c, nodes)
				if p == nil {
					continue
				}
				insts, err := p.Emit(c, nodes)
				if err != nil {
					return errors.Annotate(err, c.Method.Name, i)
				}
				out = append(out, insts...)
				i += n
				matched = true
				break
			}
			if !matched {
				node := c.Method.Nodes[i]
				return errors.SelectionFailure(i, "no pattern matches %s", node).InMethod(c.Method.Name)
			}
		}
		c.Blocks[b] = out
	}
	return nil
}

// window 从 start 开始、不跨越块末尾与伪操作的最大窗口
func (c *Code) window(start, end, limit int) int {
	n := 0
	for i := start; i < end && n < limit; i++ {
		if c.Method.Nodes[i].Op.IsPseudo() {
			break
		}
		n++
	}
	return n
}
