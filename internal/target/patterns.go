// patterns.go - 指令匹配表
//
// 匹配表把 IR 操作码序列（签名，如 "cmp,brif"）映射到一组模式。
// 同一签名下的模式按注册顺序尝试，第一个条件成立的模式生效。
// 指令选择器从最长窗口开始向下尝试，最长的匹配获胜。

package target

import (
	"strings"

	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
)

// Context 模式匹配时的方法上下文
type Context interface {
	// Operand 把局部变量、参数和临时值解析为物理位置，其他操作数原样返回
	Operand(o ir.Operand) ir.Operand
	// SingleUse 临时值是否恰好被使用一次
	SingleUse(o ir.Operand) bool
}

// Pattern 一个匹配模式
type Pattern struct {
	Name string
	Ops  []ir.Opcode
	// Cond 附加条件，nil 表示总是匹配
	Cond func(ctx Context, nodes []*ir.Node) bool
	// Emit 生成替换的机器指令
	Emit func(ctx Context, nodes []*ir.Node) ([]mc.Inst, error)
}

// MatchTable 指令匹配表，构建完成后只读
type MatchTable struct {
	patterns map[string][]*Pattern
	maxLen   int
	count    int
}

// NewMatchTable 创建空的匹配表
func NewMatchTable() *MatchTable {
	return &MatchTable{patterns: make(map[string][]*Pattern)}
}

// Add 注册模式
func (t *MatchTable) Add(p *Pattern) {
	key := Signature(p.Ops)
	t.patterns[key] = append(t.patterns[key], p)
	if len(p.Ops) > t.maxLen {
		t.maxLen = len(p.Ops)
	}
	t.count++
}

// MaxLen 最长模式的节点数
func (t *MatchTable) MaxLen() int { return t.maxLen }

// Len 模式总数
func (t *MatchTable) Len() int { return t.count }

// Match 查找与节点序列匹配的模式
func (t *MatchTable) Match(ctx Context, nodes []*ir.Node) *Pattern {
	ops := make([]ir.Opcode, len(nodes))
	for i, n := range nodes {
		ops[i] = n.Op
	}
	for _, p := range t.patterns[Signature(ops)] {
		if p.Cond == nil || p.Cond(ctx, nodes) {
			return p
		}
	}
	return nil
}

// Signature 操作码序列的签名
func Signature(ops []ir.Opcode) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, ",")
}

// ============================================================================
// 指令序列构建
// ============================================================================

// seq 模式发射时使用的指令序列，遇到第一个错误后停止追加
type seq struct {
	d   *descriptor
	out []mc.Inst
	err error
}

func (d *descriptor) newSeq() *seq {
	return &seq{d: d}
}

func (s *seq) add(op mc.Op, w int, ops ...ir.Operand) {
	if s.err != nil {
		return
	}
	s.out = append(s.out, mc.New(op, w, ops...))
}

func (s *seq) move(dst, src ir.Operand) {
	if s.err != nil {
		return
	}
	in, err := s.d.Move(dst, src)
	if err != nil {
		s.err = err
		return
	}
	s.out = append(s.out, in)
}

func (s *seq) result() ([]mc.Inst, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

// acc 第 i 个临时寄存器操作数
func (d *descriptor) acc(i, w int) ir.Operand {
	return ir.RegOp(d.Scratch(i, w))
}
