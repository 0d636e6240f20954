// Package x86asm 把机器指令编码为 x86 / x86-64 字节
//
// 指令编码格式：
// [66] [F2] [REX] [操作码] [ModR/M] [SIB] [位移] [立即数]
//
// REX 前缀（仅 64 位模式）：
// - REX.W: 64 位操作数
// - REX.R: 扩展 ModR/M.reg 字段
// - REX.X: 扩展 SIB.index 字段
// - REX.B: 扩展 ModR/M.r/m 或 SIB.base 字段
//
// 汇编分两遍：第一遍顺序发射字节，记录每个基本块的起始偏移、
// 块内跳转的占位位置以及符号重定位；第二遍回填相对跳转。
package x86asm

import (
	"encoding/binary"

	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/mc"
	"github.com/tangzhangming/aotc/internal/object"
)

// Assembler x86 汇编器，每个方法使用一个实例
type Assembler struct {
	mode   int            // 32 或 64
	code   []byte         // 生成的机器码
	blocks map[int]int    // 块序号 -> 代码偏移
	fixups []fixup        // 块内跳转
	relocs []object.Reloc // 符号重定位
}

// fixup 待回填的相对跳转
type fixup struct {
	offset int // 4 字节占位的偏移
	block  int // 目标块序号
}

// Result 一个方法的汇编结果
type Result struct {
	Code         []byte
	Relocs       []object.Reloc
	BlockOffsets []int
}

// New 创建汇编器，mode 为 32 或 64
func New(mode int) *Assembler {
	return &Assembler{
		mode:   mode,
		code:   make([]byte, 0, 256),
		blocks: make(map[int]int),
	}
}

// Reset 重置汇编器状态
func (a *Assembler) Reset() {
	a.code = a.code[:0]
	a.blocks = make(map[int]int)
	a.fixups = nil
	a.relocs = nil
}

// Len 当前代码长度
func (a *Assembler) Len() int { return len(a.code) }

// Bytes 当前已发射的字节（未回填）
func (a *Assembler) Bytes() []byte { return a.code }

// Assemble 汇编一个方法的全部基本块
func (a *Assembler) Assemble(blocks [][]mc.Inst) (*Result, error) {
	a.Reset()
	offsets := make([]int, len(blocks))

	// 第一遍：发射
	for seq, b := range blocks {
		a.Block(seq)
		offsets[seq] = len(a.code)
		for i := range b {
			if err := a.Inst(&b[i]); err != nil {
				return nil, err
			}
		}
	}

	// 第二遍：回填块内跳转
	if err := a.Resolve(); err != nil {
		return nil, err
	}

	code := make([]byte, len(a.code))
	copy(code, a.code)
	return &Result{
		Code:         code,
		Relocs:       append([]object.Reloc(nil), a.relocs...),
		BlockOffsets: offsets,
	}, nil
}

// Block 记录块的起始偏移
func (a *Assembler) Block(seq int) {
	a.blocks[seq] = len(a.code)
}

// Inst 发射一条机器指令
func (a *Assembler) Inst(in *mc.Inst) error {
	if in.Op.IsMarker() {
		return nil
	}
	fn, ok := emitters[in.Op]
	if !ok {
		return errors.Unsupported("no encoder for %s", in.Op)
	}
	return fn(a, in)
}

// Resolve 回填所有块内跳转：目标块起点 - 占位偏移 - 4
func (a *Assembler) Resolve() error {
	for _, f := range a.fixups {
		target, ok := a.blocks[f.block]
		if !ok {
			return errors.New(errors.E0921, "branch at offset %#x targets unknown block b%d", f.offset, f.block)
		}
		rel := int32(target - f.offset - 4)
		binary.LittleEndian.PutUint32(a.code[f.offset:], uint32(rel))
	}
	return nil
}

// ============================================================================
// 底层写入
// ============================================================================

// emit 写入字节
func (a *Assembler) emit(bytes ...byte) {
	a.code = append(a.code, bytes...)
}

// emitImm 按宽度写入小端立即数
func (a *Assembler) emitImm(v int64, size int) {
	switch size {
	case 1:
		a.code = append(a.code, byte(v))
	case 2:
		a.code = binary.LittleEndian.AppendUint16(a.code, uint16(v))
	case 4:
		a.code = binary.LittleEndian.AppendUint32(a.code, uint32(v))
	case 8:
		a.code = binary.LittleEndian.AppendUint64(a.code, uint64(v))
	}
}

// emitBranch 写入 4 字节占位并记录目标块
func (a *Assembler) emitBranch(block int) {
	a.fixups = append(a.fixups, fixup{offset: len(a.code), block: block})
	a.emitImm(0, 4)
}

// emitReloc 写入 4 字节占位并记录符号重定位
func (a *Assembler) emitReloc(sym string, kind object.RelocKind, symKind object.SymbolKind, addend int64) {
	a.relocs = append(a.relocs, object.Reloc{
		Offset:  len(a.code),
		Symbol:  sym,
		Kind:    kind,
		SymKind: symKind,
		Addend:  addend,
	})
	a.emitImm(0, 4)
}
