package errors

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ============================================================================
// 错误报告器
// ============================================================================

// Reporter 错误报告器
// 驱动程序可能从多个 worker 报告错误，所有方法都加锁
type Reporter struct {
	mu        sync.Mutex
	formatter *Formatter
	out       io.Writer
	errors    []*CodegenError
	warnings  []*CodegenError
}

// NewReporter 创建错误报告器，输出到 stderr
func NewReporter() *Reporter {
	return NewReporterTo(os.Stderr)
}

// NewReporterTo 创建输出到 w 的错误报告器
func NewReporterTo(w io.Writer) *Reporter {
	return &Reporter{
		formatter: NewFormatter(),
		out:       w,
	}
}

// SetFormatter 设置格式化器
func (r *Reporter) SetFormatter(f *Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formatter = f
}

// Report 报告任意错误；非 CodegenError 按 E0930 包装
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}
	ce, ok := As(err)
	if !ok {
		ce = New(E0930, "%v", err)
	}
	if ce.Level == LevelWarning {
		r.ReportWarning(ce)
		return
	}
	r.ReportError(ce)
}

// ReportError 报告错误
func (r *Reporter) ReportError(err *CodegenError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	fmt.Fprint(r.out, r.formatter.Format(err))
}

// ReportWarning 报告警告
func (r *Reporter) ReportWarning(err *CodegenError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err.Level = LevelWarning
	r.warnings = append(r.warnings, err)
	fmt.Fprint(r.out, r.formatter.Format(err))
}

// HasErrors 是否有错误
func (r *Reporter) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors) > 0
}

// ErrorCount 错误数量
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

// WarningCount 警告数量
func (r *Reporter) WarningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

// Errors 返回所有错误
func (r *Reporter) Errors() []*CodegenError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*CodegenError(nil), r.errors...)
}

// Clear 清空
func (r *Reporter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = nil
	r.warnings = nil
}
