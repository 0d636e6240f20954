// Package errors 提供代码生成后端的错误处理系统
package errors

// ============================================================================
// 错误级别
// ============================================================================

// Level 错误级别
type Level int

const (
	LevelError   Level = iota // 错误
	LevelWarning              // 警告
	LevelNote                 // 提示
	LevelHelp                 // 帮助
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	case LevelHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ============================================================================
// 错误类别
// ============================================================================

// Kind 错误类别，每一类都是致命的，中止当前方法的编译
type Kind int

const (
	KindUnsupportedOperand Kind = iota // 表中不认识的操作数、寻址组合、条件码或调用约定类别
	KindSelectionFailure               // 任何窗口大小都没有匹配的指令模式
	KindEncodingInvariant              // 编码器收到内部不一致的寻址模式
	KindInvalidInput                   // IR 输入或配置格式错误
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedOperand:
		return "UnsupportedOperand"
	case KindSelectionFailure:
		return "SelectionFailure"
	case KindEncodingInvariant:
		return "EncodingInvariantViolation"
	case KindInvalidInput:
		return "InvalidInput"
	default:
		return "Unknown"
	}
}

// ============================================================================
// 后端错误码 (E09xx)
// ============================================================================

const (
	// E0900-E0909: 不支持的操作数
	E0900 = "E0900" // 不支持的操作数或寻址组合
	E0901 = "E0901" // 调用约定不支持该类型类别
	E0902 = "E0902" // 不支持的条件码
	E0903 = "E0903" // 不支持的数值转换

	// E0910-E0919: 指令选择
	E0910 = "E0910" // 没有匹配的指令模式

	// E0920-E0929: 编码器
	E0920 = "E0920" // 寻址模式内部不一致
	E0921 = "E0921" // 跳转目标块不存在

	// E0930-E0939: 输入
	E0930 = "E0930" // IR 输入格式错误
	E0931 = "E0931" // 配置错误
)

// codeKinds 错误码所属类别
var codeKinds = map[string]Kind{
	E0900: KindUnsupportedOperand,
	E0901: KindUnsupportedOperand,
	E0902: KindUnsupportedOperand,
	E0903: KindUnsupportedOperand,
	E0910: KindSelectionFailure,
	E0920: KindEncodingInvariant,
	E0921: KindEncodingInvariant,
	E0930: KindInvalidInput,
	E0931: KindInvalidInput,
}

// KindOf 返回错误码所属类别
func KindOf(code string) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindInvalidInput
}
