// Package object 提供代码段、符号和重定位记录
//
// 代码生成器把每个方法的字节和重定位追加到共享的 Section 中。
// Section 是唯一跨方法共享的可变状态，所有写入都在互斥锁下串行进行。
package object

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/btree"
	"golang.org/x/crypto/blake2b"
)

// RelocKind 重定位类型
type RelocKind int

const (
	RelocPC32  RelocKind = iota // 32 位 PC 相对（调用目标）
	RelocAbs32                  // 32 位绝对地址（数据）
)

func (k RelocKind) String() string {
	switch k {
	case RelocPC32:
		return "PC32"
	case RelocAbs32:
		return "ABS32"
	default:
		return fmt.Sprintf("reloc(%d)", int(k))
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (k RelocKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// SymbolKind 符号类型
type SymbolKind int

const (
	SymFunc SymbolKind = iota // 函数
	SymData                   // 数据对象
)

func (k SymbolKind) String() string {
	if k == SymData {
		return "object"
	}
	return "func"
}

// MarshalText 实现 encoding.TextMarshaler
func (k SymbolKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Reloc 重定位记录
type Reloc struct {
	Offset  int        `json:"offset"`
	Symbol  string     `json:"symbol"`
	Kind    RelocKind  `json:"kind"`
	SymKind SymbolKind `json:"symkind"`
	Addend  int64      `json:"addend"`
}

func (r Reloc) String() string {
	return fmt.Sprintf("%#x %s %s%+d (%s)", r.Offset, r.Kind, r.Symbol, r.Addend, r.SymKind)
}

// Symbol 段内定义的符号
type Symbol struct {
	Name   string     `json:"name"`
	Kind   SymbolKind `json:"kind"`
	Offset int        `json:"offset"`
	Size   int        `json:"size"`
}

// ============================================================================
// 代码段
// ============================================================================

// FunctionAlign 函数起始对齐，填充字节为 int3
const FunctionAlign = 16

const padByte = 0xCC

// Section 代码段
type Section struct {
	Name string

	mu     sync.Mutex
	data   []byte
	relocs []Reloc
	byName map[string]*Symbol
	byAddr *btree.BTreeG[*Symbol]
}

// NewSection 创建代码段
func NewSection(name string) *Section {
	return &Section{
		Name:   name,
		byName: make(map[string]*Symbol),
		byAddr: btree.NewG[*Symbol](8, func(a, b *Symbol) bool {
			return a.Offset < b.Offset
		}),
	}
}

// AppendFunction 追加一个函数的机器码，返回定义的符号
// 重定位偏移从函数内偏移改写为段内偏移
func (s *Section) AppendFunction(name string, code []byte, relocs []Reloc) (*Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byName[name]; dup {
		return nil, fmt.Errorf("symbol %q already defined in section %s", name, s.Name)
	}

	for len(s.data)%FunctionAlign != 0 {
		s.data = append(s.data, padByte)
	}
	base := len(s.data)
	s.data = append(s.data, code...)

	for _, r := range relocs {
		r.Offset += base
		s.relocs = append(s.relocs, r)
	}

	sym := &Symbol{Name: name, Kind: SymFunc, Offset: base, Size: len(code)}
	s.byName[name] = sym
	s.byAddr.ReplaceOrInsert(sym)
	return sym, nil
}

// Lookup 按名字查找符号
func (s *Section) Lookup(name string) (*Symbol, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, ok := s.byName[name]
	return sym, ok
}

// SymbolAt 查找覆盖 offset 的函数符号
func (s *Section) SymbolAt(offset int) (*Symbol, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *Symbol
	s.byAddr.DescendLessOrEqual(&Symbol{Offset: offset}, func(sym *Symbol) bool {
		found = sym
		return false
	})
	if found == nil || offset >= found.Offset+found.Size {
		return nil, false
	}
	return found, true
}

// Symbols 按偏移排序的符号列表
func (s *Section) Symbols() []Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Symbol, 0, s.byAddr.Len())
	s.byAddr.Ascend(func(sym *Symbol) bool {
		out = append(out, *sym)
		return true
	})
	return out
}

// Relocs 重定位列表副本
func (s *Section) Relocs() []Reloc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Reloc(nil), s.relocs...)
}

// Bytes 段内容副本
func (s *Section) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

// Len 段大小
func (s *Section) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// BuildID 代码字节与重定位记录的 BLAKE2b-256 摘要
func (s *Section) BuildID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, _ := blake2b.New256(nil)
	h.Write(s.data)
	var buf [8]byte
	for _, r := range s.relocs {
		binary.LittleEndian.PutUint64(buf[:], uint64(r.Offset))
		h.Write(buf[:])
		h.Write([]byte(r.Symbol))
		binary.LittleEndian.PutUint64(buf[:], uint64(r.Addend))
		h.Write(buf[:])
		h.Write([]byte{byte(r.Kind), byte(r.SymKind)})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
