package errors

import (
	"fmt"
	"strings"
)

// ============================================================================
// 格式化器
// ============================================================================

// Formatter 错误格式化器
type Formatter struct {
	Colors    bool // 是否使用颜色
	ShowHints bool // 是否显示修复建议
}

// NewFormatter 创建默认格式化器
func NewFormatter() *Formatter {
	return &Formatter{
		Colors:    true,
		ShowHints: true,
	}
}

// Format 格式化代码生成错误
//
//	error[E0910]: no instruction pattern for ldind
//	 --> method main, node 4
//	 = kind: SelectionFailure
//	 = help: ...
func (f *Formatter) Format(err *CodegenError) string {
	var sb strings.Builder

	levelStr := f.colorize(err.Level.String(), f.levelColor(err.Level))
	codeStr := f.colorize(fmt.Sprintf("[%s]", err.Code), f.levelColor(err.Level))
	fmt.Fprintf(&sb, "%s%s: %s\n", levelStr, codeStr, err.Message)

	if err.Method != "" {
		arrow := f.colorize("-->", ColorCyan)
		where := "method " + err.Method
		if err.Node >= 0 {
			where += fmt.Sprintf(", node %d", err.Node)
		}
		fmt.Fprintf(&sb, " %s %s\n", arrow, f.colorize(where, ColorCyan))
	}

	fmt.Fprintf(&sb, "%s %s\n", f.colorize(" = kind:", ColorCyan), err.Kind)

	if f.ShowHints {
		hints := err.Hints
		if len(hints) == 0 {
			hints = Suggestions(err.Code)
		}
		for _, hint := range hints {
			fmt.Fprintf(&sb, "%s %s\n", f.colorize(" = help:", ColorCyan), hint)
		}
	}
	return sb.String()
}

// FormatAll 格式化多个错误，末尾附加汇总行
func (f *Formatter) FormatAll(errs []*CodegenError) string {
	var sb strings.Builder
	for _, e := range errs {
		sb.WriteString(f.Format(e))
		sb.WriteByte('\n')
	}
	if n := len(errs); n > 0 {
		summary := fmt.Sprintf("aborting due to %d previous error", n)
		if n > 1 {
			summary += "s"
		}
		sb.WriteString(f.colorize(summary, ColorBoldRed))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (f *Formatter) levelColor(level Level) Color {
	switch level {
	case LevelError:
		return ColorBoldRed
	case LevelWarning:
		return ColorBoldYellow
	case LevelNote:
		return ColorBoldWhite
	default:
		return ColorCyan
	}
}

func (f *Formatter) colorize(s string, color Color) string {
	if !f.Colors {
		return s
	}
	return Colorize(s, color)
}
