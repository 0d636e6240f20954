package x86asm_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
	"github.com/tangzhangming/aotc/internal/target"
	"github.com/tangzhangming/aotc/internal/x86asm"
)

// decoded 解码出的 [REX] 8B ModR/M [SIB] [disp] 形式
type decoded struct {
	rex      byte
	reg      int
	base     int
	disp     int32
	dispSize int
	hasSIB   bool
	length   int
}

// decodeLoad 解码 mov r, [base + disp]
func decodeLoad(code []byte) decoded {
	var d decoded
	i := 0
	if code[i]&0xF0 == 0x40 {
		d.rex = code[i]
		i++
	}
	Expect(code[i]).To(Equal(byte(0x8B)))
	i++

	modrm := code[i]
	i++
	mod := modrm >> 6
	d.reg = int(modrm>>3&7) | int(d.rex>>2&1)<<3
	rm := int(modrm & 7)
	if rm == 4 {
		d.hasSIB = true
		sib := code[i]
		i++
		Expect(sib>>3&7).To(Equal(byte(4)), "no index expected")
		rm = int(sib & 7)
	}
	d.base = rm | int(d.rex&1)<<3

	switch mod {
	case 0:
		Expect(rm).NotTo(Equal(5), "mod 00 with base 101 means absolute")
	case 1:
		d.disp, d.dispSize = int32(int8(code[i])), 1
		i++
	case 2:
		d.disp, d.dispSize = int32(binary.LittleEndian.Uint32(code[i:])), 4
		i += 4
	}
	d.length = i
	return d
}

func load(a *x86asm.Assembler, base ir.Reg, disp int32) []byte {
	start := a.Len()
	in := mc.New(mc.MovRRM, 8,
		ir.RegOp(target.GPR(target.RegAX, 8)),
		ir.MemOp(ir.Mem{Base: base, Disp: disp, Size: 8}, ir.TypeInt64))
	Expect(a.Inst(&in)).To(Succeed())
	return a.Bytes()[start:]
}

var _ = Describe("ModRM", func() {
	It("should reject register-direct mode with a SIB byte", func() {
		_, err := x86asm.ModRM{Mod: 3, RM: 4, SIB: true, Scale: 1, Index: 4}.Encode()
		Expect(err).To(HaveOccurred())
		Expect(errors.IsKind(err, errors.KindEncodingInvariant)).To(BeTrue())
	})

	It("should reject a displacement size that disagrees with mod", func() {
		_, err := x86asm.ModRM{Mod: 1, RM: 0, Disp: 8, DispSize: 4}.Encode()
		Expect(codeOf(err)).To(Equal(errors.E0920))
	})

	It("should encode a plain base + disp8", func() {
		b, err := x86asm.ModRM{Mod: 1, Reg: 0, RM: 5, Disp: -8, DispSize: 1}.Encode()
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(Equal([]byte{0x45, 0xF8}))
	})
})

var _ = Describe("Addressing", func() {
	var a *x86asm.Assembler

	BeforeEach(func() {
		a = x86asm.New(64)
	})

	It("should round-trip base and displacement for every base register", func() {
		disps := []int32{0, 1, -1, 127, -128, 128, -129, 100000, -100000}
		for id := 0; id < 16; id++ {
			for _, disp := range disps {
				code := load(a, target.GPR(id, 8), disp)
				d := decodeLoad(code)
				Expect(d.length).To(Equal(len(code)))
				Expect(d.base).To(Equal(id))
				Expect(d.reg).To(Equal(target.RegAX))
				Expect(d.disp).To(Equal(disp))
			}
		}
	})

	It("should force disp8 0 for bases whose low bits are 101", func() {
		for _, id := range []int{target.RegBP, target.RegR13} {
			d := decodeLoad(load(a, target.GPR(id, 8), 0))
			Expect(d.dispSize).To(Equal(1))
			Expect(d.disp).To(BeZero())
		}
		d := decodeLoad(load(a, target.GPR(target.RegBX, 8), 0))
		Expect(d.dispSize).To(BeZero())
	})

	It("should add exactly one SIB byte for an RSP base", func() {
		plain := load(a, target.GPR(target.RegBX, 8), 8)
		sp := load(a, target.GPR(target.RegSP, 8), 8)
		Expect(len(sp)).To(Equal(len(plain) + 1))
		Expect(sp).To(Equal([]byte{0x48, 0x8B, 0x44, 0x24, 0x08}))

		r12 := load(a, target.GPR(target.RegR12, 8), 8)
		Expect(decodeLoad(r12).hasSIB).To(BeTrue())
	})

	It("should reject RSP as an index register", func() {
		in := mc.New(mc.MovRRM, 8,
			ir.RegOp(target.GPR(target.RegAX, 8)),
			ir.MemOp(ir.Mem{
				Base:     target.GPR(target.RegAX, 8),
				Index:    target.GPR(target.RegSP, 8),
				HasIndex: true,
				Scale:    1,
			}, ir.TypeInt64))
		Expect(codeOf(a.Inst(&in))).To(Equal(errors.E0920))
	})

	It("should encode a scaled index", func() {
		in := mc.New(mc.MovRRM, 4,
			ir.RegOp(target.GPR(target.RegAX, 4)),
			ir.MemOp(ir.Mem{
				Base:     target.GPR(target.RegBX, 8),
				Index:    target.GPR(target.RegSI, 8),
				HasIndex: true,
				Scale:    4,
				Size:     4,
			}, ir.TypeInt32))
		Expect(a.Inst(&in)).To(Succeed())
		// mov eax, [rbx + rsi*4]
		Expect(a.Bytes()).To(Equal([]byte{0x8B, 0x04, 0xB3}))
	})
})
