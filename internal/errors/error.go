package errors

import (
	stderrors "errors"
	"fmt"
)

// ============================================================================
// 代码生成错误
// ============================================================================

// CodegenError 代码生成错误
type CodegenError struct {
	Code    string   // 错误码 (E0910)
	Kind    Kind     // 错误类别
	Level   Level    // 错误级别
	Method  string   // 出错的方法
	Node    int      // 出错的 IR 节点下标，-1 表示未知
	Message string   // 主消息
	Hints   []string // 修复建议
}

// Error 实现 error 接口
func (e *CodegenError) Error() string {
	prefix := e.Kind.String()
	if e.Method != "" {
		if e.Node >= 0 {
			return fmt.Sprintf("%s[%s] %s@%d: %s", prefix, e.Code, e.Method, e.Node, e.Message)
		}
		return fmt.Sprintf("%s[%s] %s: %s", prefix, e.Code, e.Method, e.Message)
	}
	return fmt.Sprintf("%s[%s]: %s", prefix, e.Code, e.Message)
}

// New 按错误码创建错误
func New(code string, format string, args ...interface{}) *CodegenError {
	return &CodegenError{
		Code:    code,
		Kind:    KindOf(code),
		Level:   LevelError,
		Node:    -1,
		Message: fmt.Sprintf(format, args...),
	}
}

// Unsupported 不支持的操作数
func Unsupported(format string, args ...interface{}) *CodegenError {
	return New(E0900, format, args...)
}

// UnsupportedConvention 调用约定不支持该类型类别
func UnsupportedConvention(format string, args ...interface{}) *CodegenError {
	return New(E0901, format, args...)
}

// SelectionFailure 指令选择失败
func SelectionFailure(node int, format string, args ...interface{}) *CodegenError {
	e := New(E0910, format, args...)
	e.Node = node
	return e
}

// EncodingInvariant 编码器不变量被破坏
func EncodingInvariant(format string, args ...interface{}) *CodegenError {
	return New(E0920, format, args...)
}

// InvalidInput 输入格式错误
func InvalidInput(format string, args ...interface{}) *CodegenError {
	return New(E0930, format, args...)
}

// InMethod 标注所属方法（已有标注时保持不变）
func (e *CodegenError) InMethod(name string) *CodegenError {
	if e.Method == "" {
		e.Method = name
	}
	return e
}

// AtNode 标注 IR 节点（已有标注时保持不变）
func (e *CodegenError) AtNode(node int) *CodegenError {
	if e.Node < 0 {
		e.Node = node
	}
	return e
}

// ============================================================================
// 查询
// ============================================================================

// As 在错误链中查找 CodegenError
func As(err error) (*CodegenError, bool) {
	var ce *CodegenError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsKind 错误链中是否有指定类别的 CodegenError
func IsKind(err error, k Kind) bool {
	ce, ok := As(err)
	return ok && ce.Kind == k
}

// Annotate 给错误链中的 CodegenError 标注方法和节点，其他错误原样返回
func Annotate(err error, method string, node int) error {
	if err == nil {
		return nil
	}
	if ce, ok := As(err); ok {
		ce.InMethod(method)
		if node >= 0 {
			ce.AtNode(node)
		}
	}
	return err
}
