// Package driver 编译整个单元并把结果写入代码段
//
// 每个方法各自拥有 codegen.Code，可以在工作池中并行编译；
// 结果按方法顺序追加到 Sink，保证输出与并行度无关。
package driver

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tangzhangming/aotc/internal/codegen"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/object"
	"github.com/tangzhangming/aotc/internal/target"
)

//go:generate mockgen -write_package_comment=false -package=$GOPACKAGE -destination=mock_sink_test.go github.com/tangzhangming/aotc/internal/driver Sink

// Sink 接收编译好的函数，*object.Section 是标准实现
type Sink interface {
	AppendFunction(name string, code []byte, relocs []object.Reloc) (*object.Symbol, error)
}

// Policy 方法编译失败时的处理方式
type Policy int

const (
	// Abort 第一个错误即终止整个单元
	Abort Policy = iota
	// Skip 跳过失败的方法，错误汇总返回
	Skip
)

// ParsePolicy 解析 on_error 配置值
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "abort":
		return Abort, nil
	case "skip":
		return Skip, nil
	}
	return Abort, fmt.Errorf("unknown error policy %q", s)
}

func (p Policy) String() string {
	if p == Skip {
		return "skip"
	}
	return "abort"
}

// Options 驱动选项
type Options struct {
	Codegen codegen.Options
	Policy  Policy
	// Workers 并行编译数；1 为顺序编译，0 使用 CPU 核数
	Workers int
	Logger  *zap.Logger
}

// Stats 统计信息，可在编译过程中并发读取
type Stats struct {
	Compiled atomic.Int64
	Failed   atomic.Int64
	Bytes    atomic.Int64
	Relocs   atomic.Int64
	// PeepholeChanges 窥孔优化的改写总数
	PeepholeChanges atomic.Int64
}

// Report 一次编译的结果
type Report struct {
	Symbols []*object.Symbol
	// Skipped Skip 策略下被跳过的方法的错误（multierr 组合）
	Skipped error
	// Results 每个成功方法的编译结果，按方法顺序
	Results []*codegen.Result
}

// Driver 编译驱动
type Driver struct {
	tgt   target.Target
	opts  Options
	log   *zap.Logger
	stats Stats
}

// New 创建驱动
func New(tgt target.Target, opts Options) *Driver {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Codegen.Logger == nil {
		opts.Codegen.Logger = log
	}
	return &Driver{tgt: tgt, opts: opts, log: log}
}

// Stats 返回统计信息
func (d *Driver) Stats() *Stats {
	return &d.stats
}

// outcome 单个方法的编译结果
type outcome struct {
	res *codegen.Result
	err error
}

// Run 编译 methods 并按顺序追加到 sink
// 取消只在方法之间检查；Abort 策略下返回第一个（按方法顺序）错误，sink 不被写入
func (d *Driver) Run(ctx context.Context, methods []*ir.Method, sink Sink) (*Report, error) {
	outcomes, err := d.compileAll(ctx, methods)
	if err != nil {
		return nil, err
	}

	rep := &Report{}
	if d.opts.Policy == Abort {
		for _, o := range outcomes {
			if o.err != nil {
				return nil, o.err
			}
		}
	}

	for i, o := range outcomes {
		m := methods[i]
		if o.err != nil {
			d.log.Warn("method skipped", zap.String("method", m.Name), zap.Error(o.err))
			rep.Skipped = multierr.Append(rep.Skipped, o.err)
			continue
		}
		sym, err := sink.AppendFunction(m.Name, o.res.Code, o.res.Relocs)
		if err != nil {
			return nil, fmt.Errorf("append %s: %w", m.Name, err)
		}
		d.stats.Bytes.Add(int64(len(o.res.Code)))
		d.stats.Relocs.Add(int64(len(o.res.Relocs)))
		rep.Symbols = append(rep.Symbols, sym)
		rep.Results = append(rep.Results, o.res)
	}

	d.log.Info("unit compiled",
		zap.Int("methods", len(methods)),
		zap.Int64("compiled", d.stats.Compiled.Load()),
		zap.Int64("failed", d.stats.Failed.Load()),
		zap.Int64("bytes", d.stats.Bytes.Load()),
		zap.Int64("relocs", d.stats.Relocs.Load()))
	return rep, nil
}

// compileAll 编译所有方法，结果按方法下标存放
func (d *Driver) compileAll(ctx context.Context, methods []*ir.Method) ([]outcome, error) {
	out := make([]outcome, len(methods))
	workers := d.opts.Workers
	if workers > len(methods) {
		workers = len(methods)
	}

	if workers <= 1 {
		for i, m := range methods {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i] = d.compileOne(m)
			if out[i].err != nil && d.opts.Policy == Abort {
				break
			}
		}
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = d.compileOne(methods[i])
				if out[i].err != nil && d.opts.Policy == Abort {
					cancel()
				}
			}
		}()
	}

feed:
	for i := range methods {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// 由调用者取消时不返回部分结果；Abort 触发的取消由 Run 报告具体错误
	if err := ctx.Err(); err != nil && !d.aborted(out) {
		return nil, err
	}
	return out, nil
}

func (d *Driver) aborted(out []outcome) bool {
	if d.opts.Policy != Abort {
		return false
	}
	for _, o := range out {
		if o.err != nil {
			return true
		}
	}
	return false
}

func (d *Driver) compileOne(m *ir.Method) outcome {
	res, err := codegen.Compile(m, d.tgt, d.opts.Codegen)
	if err != nil {
		d.stats.Failed.Inc()
		return outcome{err: err}
	}
	d.stats.Compiled.Inc()
	d.stats.PeepholeChanges.Add(int64(res.Peephole.TotalChanges))
	return outcome{res: res}
}
