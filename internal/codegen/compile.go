// compile.go - 单个方法的编译入口

package codegen

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
	"github.com/tangzhangming/aotc/internal/object"
	"github.com/tangzhangming/aotc/internal/target"
	"github.com/tangzhangming/aotc/internal/x86asm"
)

// maxPeepholeRounds 窥孔 Pipeline 的最大轮数
const maxPeepholeRounds = 4

// Options 编译选项
type Options struct {
	// Convention 调用约定名，空串使用目标默认值
	Convention string
	// Peephole 是否运行窥孔优化
	Peephole bool
	Logger   *zap.Logger
}

// DefaultOptions 默认编译选项
func DefaultOptions() Options {
	return Options{Peephole: true}
}

// Result 一个方法的编译结果
type Result struct {
	Name         string
	Code         []byte
	Relocs       []object.Reloc
	Insts        [][]mc.Inst
	BlockOffsets []int
	FrameSize    int
	Peephole     PassStats
}

// Listing 机器指令清单
func (r *Result) Listing() string {
	return mc.Print(r.Insts)
}

// Compile 编译一个方法；任何错误都是致命的，不产生部分输出
func Compile(m *ir.Method, tgt target.Target, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		return nil, errors.InvalidInput("nil method")
	}
	log = log.With(zap.String("method", m.Name), zap.String("arch", tgt.Name()))

	c, err := NewCode(m, tgt, opts.Convention)
	if err != nil {
		return nil, errors.Annotate(err, m.Name, -1)
	}

	if err := c.AllocateStorage(); err != nil {
		return nil, errors.Annotate(err, m.Name, -1)
	}
	log.Debug("storage allocated",
		zap.Int("locals", len(c.locals)),
		zap.Int("args", len(c.args)),
		zap.Int("temps", len(c.temps)),
		zap.Int("frame", c.FrameSize))

	if err := c.Lower(); err != nil {
		return nil, err
	}
	log.Debug("pseudo-ops lowered", zap.Int("nodes", len(c.lowered)))

	if err := c.Select(); err != nil {
		return nil, err
	}
	log.Debug("instructions selected",
		zap.Int("blocks", len(c.Blocks)),
		zap.Int("insts", c.InstCount()))

	res := &Result{Name: m.Name, FrameSize: c.FrameSize}
	if opts.Peephole {
		pm := NewPeepholePipeline()
		pm.RunUntilFixed(c.Blocks, maxPeepholeRounds)
		res.Peephole = pm.Stats()
		log.Debug("peephole done", zap.Int("changes", res.Peephole.TotalChanges),
			zap.Int("passes", res.Peephole.PassesRun))
	}

	asm := x86asm.New(tgt.Mode())
	out, err := asm.Assemble(c.Blocks)
	if err != nil {
		return nil, errors.Annotate(err, m.Name, -1)
	}
	log.Debug("encoded",
		zap.Int("bytes", len(out.Code)),
		zap.Int("relocs", len(out.Relocs)))

	res.Code = out.Code
	res.Relocs = out.Relocs
	res.Insts = c.Blocks
	res.BlockOffsets = out.BlockOffsets
	return res, nil
}
