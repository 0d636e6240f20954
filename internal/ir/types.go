// types.go - 粗粒度类型与方法签名
//
// 后端不关心源语言的完整类型系统，只使用少量的粗粒度类型类别
// (int32 / int64 / 指针 / 浮点 / 值类型) 来决定大小、调用约定和指令宽度。

package ir

import "fmt"

// ============================================================================
// 粗粒度类型
// ============================================================================

// CoarseType 粗粒度类型类别
type CoarseType int

const (
	TypeVoid   CoarseType = iota // 无值
	TypeInt32                    // 32 位整数
	TypeInt64                    // 64 位整数
	TypeIntPtr                   // 本机整数
	TypeObject                   // 对象引用
	TypeRef                      // 托管指针
	TypeFloat                    // 双精度浮点
	TypeValue                    // 值类型（结构体）
)

var coarseNames = map[CoarseType]string{
	TypeVoid:   "void",
	TypeInt32:  "int32",
	TypeInt64:  "int64",
	TypeIntPtr: "intptr",
	TypeObject: "object",
	TypeRef:    "ref",
	TypeFloat:  "float",
	TypeValue:  "value",
}

func (t CoarseType) String() string {
	if name, ok := coarseNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseCoarseType 从名字解析粗粒度类型
func ParseCoarseType(s string) (CoarseType, bool) {
	for t, name := range coarseNames {
		if name == s {
			return t, true
		}
	}
	return TypeVoid, false
}

// IsPointer 是否是指针宽度的类型
func (t CoarseType) IsPointer() bool {
	return t == TypeIntPtr || t == TypeObject || t == TypeRef
}

// IsInteger 是否按整数寄存器处理
func (t CoarseType) IsInteger() bool {
	return t == TypeInt32 || t == TypeInt64 || t.IsPointer()
}

// ============================================================================
// 声明类型
// ============================================================================

// Type 局部变量、参数或返回值的声明类型
type Type struct {
	Kind CoarseType
	Size int // 仅值类型使用，字节数
}

// T 构造简单类型
func T(kind CoarseType) Type {
	return Type{Kind: kind}
}

// ValueType 构造值类型
func ValueType(size int) Type {
	return Type{Kind: TypeValue, Size: size}
}

func (t Type) String() string {
	if t.Kind == TypeValue {
		return fmt.Sprintf("value[%d]", t.Size)
	}
	return t.Kind.String()
}

// ============================================================================
// 方法签名
// ============================================================================

// Signature 方法签名
type Signature struct {
	HasThis     bool   // 是否有隐式接收者
	ThisIsValue bool   // 接收者是否是值类型（按托管指针传递）
	Params      []Type // 声明的参数（不含接收者）
	Ret         Type   // 返回类型
}

// ParamTypes 返回包含接收者在内的参数类型列表
// 值类型接收者以托管指针形式传递
func (s *Signature) ParamTypes() []Type {
	out := make([]Type, 0, len(s.Params)+1)
	if s.HasThis {
		if s.ThisIsValue {
			out = append(out, T(TypeRef))
		} else {
			out = append(out, T(TypeObject))
		}
	}
	return append(out, s.Params...)
}

// ReturnsValue 是否有返回值
func (s *Signature) ReturnsValue() bool {
	return s.Ret.Kind != TypeVoid
}
