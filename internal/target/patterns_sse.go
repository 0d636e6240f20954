// patterns_sse.go - 标量双精度运算
//
// 只覆盖 addsd/subsd/mulsd/divsd，操作数经由 XMM0。

package target

import (
	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
)

var sseOps = map[ir.Opcode]mc.Op{
	ir.IR_ADD: mc.Addsd,
	ir.IR_SUB: mc.Subsd,
	ir.IR_MUL: mc.Mulsd,
	ir.IR_DIV: mc.Divsd,
}

func (d *descriptor) registerSSEPatterns(t *MatchTable) {
	for op, sse := range sseOps {
		sse := sse
		t.Add(&Pattern{
			Name: op.String() + ".sd",
			Ops:  []ir.Opcode{op},
			Cond: func(ctx Context, nodes []*ir.Node) bool {
				return len(nodes[0].Defs) == 1 && isFloat(ctx.Operand(nodes[0].Defs[0]))
			},
			Emit: func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error) {
				n := nodes[0]
				b := ctx.Operand(n.Uses[1])
				if b.Kind != ir.KindLoc {
					return nil, errors.Unsupported("double operand %s must be a location", b)
				}
				x := ir.RegOp(d.FloatScratch())
				s := d.newSeq()
				s.move(x, ctx.Operand(n.Uses[0]))
				s.add(sse, 8, x, b)
				s.move(ctx.Operand(n.Defs[0]), x)
				return s.result()
			},
		})
	}
}
