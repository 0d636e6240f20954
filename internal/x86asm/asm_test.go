package x86asm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
	"github.com/tangzhangming/aotc/internal/object"
	"github.com/tangzhangming/aotc/internal/target"
	"github.com/tangzhangming/aotc/internal/x86asm"
)

func gpr(id, size int) ir.Operand { return ir.RegOp(target.GPR(id, size)) }

func frame(disp int32, size int) ir.Operand {
	return ir.MemOp(ir.Mem{Base: target.GPR(target.RegBP, 8), Disp: disp, Size: size}, ir.TypeInt64)
}

func frame32(disp int32, size int) ir.Operand {
	return ir.MemOp(ir.Mem{Base: target.GPR(target.RegBP, 4), Disp: disp, Size: size}, ir.TypeInt32)
}

func assemble(mode int, blocks ...[]mc.Inst) (*x86asm.Result, error) {
	return x86asm.New(mode).Assemble(blocks)
}

var _ = Describe("Assembler", func() {
	Context("x86-64 instructions", func() {
		It("should encode the standard prologue and epilogue", func() {
			res, err := assemble(64, []mc.Inst{
				mc.New(mc.Push, 8, gpr(target.RegBP, 8)),
				mc.New(mc.MovRMR, 8, gpr(target.RegBP, 8), gpr(target.RegSP, 8)),
				mc.New(mc.MovRMR, 8, frame(-8, 8), gpr(target.RegAX, 8)),
				mc.New(mc.Pop, 8, gpr(target.RegBP, 8)),
				mc.New(mc.Ret, 0),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{
				0x55,
				0x48, 0x89, 0xE5,
				0x48, 0x89, 0x45, 0xF8,
				0x5D,
				0xC3,
			}))
		})

		It("should encode extended registers with REX.B", func() {
			res, err := assemble(64, []mc.Inst{
				mc.New(mc.Push, 8, gpr(target.RegR12, 8)),
				mc.New(mc.MovRRM, 8, gpr(target.RegAX, 8),
					ir.MemOp(ir.Mem{Base: target.GPR(target.RegR13, 8), Size: 8}, ir.TypeInt64)),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{0x41, 0x54, 0x49, 0x8B, 0x45, 0x00}))
		})

		It("should pick 83 for 8-bit immediates and reject out of range values", func() {
			res, err := assemble(64, []mc.Inst{
				mc.New(mc.SubRMImm8, 8, gpr(target.RegSP, 8), ir.Imm(16, ir.TypeInt64)),
				mc.New(mc.AddRMImm32, 8, gpr(target.RegSP, 8), ir.Imm(16, ir.TypeInt64)),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{
				0x48, 0x83, 0xEC, 0x10,
				0x48, 0x81, 0xC4, 0x10, 0x00, 0x00, 0x00,
			}))

			_, err = assemble(64, []mc.Inst{
				mc.New(mc.AddRMImm8, 4, gpr(target.RegAX, 4), ir.Imm(200, ir.TypeInt32)),
			})
			Expect(codeOf(err)).To(Equal(errors.E0920))
		})

		It("should zero a register with xor", func() {
			res, err := assemble(64, []mc.Inst{
				mc.New(mc.XorRRM, 4, gpr(target.RegAX, 4), gpr(target.RegAX, 4)),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{0x33, 0xC0}))
		})

		It("should encode sign extension and division", func() {
			res, err := assemble(64, []mc.Inst{
				mc.New(mc.Movsxd, 8, gpr(target.RegAX, 8), frame(-4, 4)),
				mc.New(mc.Cdq, 8),
				mc.New(mc.Idiv, 8, frame(-16, 8)),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{
				0x48, 0x63, 0x45, 0xFC,
				0x48, 0x99,
				0x48, 0xF7, 0x7D, 0xF0,
			}))
		})

		It("should encode scalar double arithmetic without REX.W", func() {
			res, err := assemble(64, []mc.Inst{
				mc.New(mc.MovsdRRM, 8, ir.RegOp(target.XMM(0)), frame(-8, 8)),
				mc.New(mc.Addsd, 8, ir.RegOp(target.XMM(0)), frame(-16, 8)),
				mc.New(mc.MovsdRMR, 8, frame(-24, 8), ir.RegOp(target.XMM(0))),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{
				0xF2, 0x0F, 0x10, 0x45, 0xF8,
				0xF2, 0x0F, 0x58, 0x45, 0xF0,
				0xF2, 0x0F, 0x11, 0x45, 0xE8,
			}))
		})

		It("should need REX for byte access to sil", func() {
			res, err := assemble(64, []mc.Inst{
				mc.New(mc.Setcc, 1, ir.CC(ir.CondLt), gpr(target.RegSI, 1)),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{0x40, 0x0F, 0x9C, 0xC6}))
		})
	})

	Context("branches", func() {
		It("should fix up a forward jump", func() {
			res, err := assemble(64,
				[]mc.Inst{mc.New(mc.Jmp, 0, ir.Block(1))},
				[]mc.Inst{mc.New(mc.Ret, 0)},
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{0xE9, 0x00, 0x00, 0x00, 0x00, 0xC3}))
			Expect(res.BlockOffsets).To(Equal([]int{0, 5}))
		})

		It("should fix up a backward jump", func() {
			res, err := assemble(64,
				[]mc.Inst{mc.New(mc.Ret, 0)},
				[]mc.Inst{mc.New(mc.Jmp, 0, ir.Block(0))},
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{0xC3, 0xE9, 0xFA, 0xFF, 0xFF, 0xFF}))
		})

		It("should encode conditional jumps with 0F 80+cc", func() {
			res, err := assemble(64,
				[]mc.Inst{
					mc.New(mc.Jcc, 0, ir.CC(ir.CondEq), ir.Block(1)),
					mc.New(mc.Jcc, 0, ir.CC(ir.CondGtUn), ir.Block(1)),
				},
				[]mc.Inst{mc.New(mc.Ret, 0)},
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{
				0x0F, 0x84, 0x06, 0x00, 0x00, 0x00,
				0x0F, 0x87, 0x00, 0x00, 0x00, 0x00,
				0xC3,
			}))
		})

		It("should drop never and turn always into jmp", func() {
			res, err := assemble(64,
				[]mc.Inst{
					mc.New(mc.Jcc, 0, ir.CC(ir.CondNever), ir.Block(1)),
					mc.New(mc.Jcc, 0, ir.CC(ir.CondAlways), ir.Block(1)),
				},
				[]mc.Inst{mc.New(mc.Ret, 0)},
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{0xE9, 0x00, 0x00, 0x00, 0x00, 0xC3}))
		})

		It("should fail on an unknown block", func() {
			_, err := assemble(64, []mc.Inst{mc.New(mc.Jmp, 0, ir.Block(7))})
			Expect(codeOf(err)).To(Equal(errors.E0921))
		})
	})

	Context("relocations", func() {
		It("should record a PC32 call relocation", func() {
			res, err := assemble(64, []mc.Inst{
				mc.Marker(mc.Precall),
				mc.New(mc.Call, 0, ir.Sym("callee"), gpr(target.RegAX, 8).WithUD(ir.UDDef)),
				mc.Marker(mc.Postcall),
				mc.New(mc.Ret, 0),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{0xE8, 0x00, 0x00, 0x00, 0x00, 0xC3}))
			Expect(res.Relocs).To(ConsistOf(object.Reloc{
				Offset:  1,
				Symbol:  "callee",
				Kind:    object.RelocPC32,
				SymKind: object.SymFunc,
				Addend:  -4,
			}))
		})

		It("should address data symbols absolutely in 32-bit mode", func() {
			data := ir.MemOp(ir.Mem{Symbol: "counter", Disp: 4, Size: 4}, ir.TypeInt32)
			res, err := assemble(32, []mc.Inst{
				mc.New(mc.MovRRM, 4, gpr(target.RegAX, 4), data),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{0x8B, 0x05, 0x00, 0x00, 0x00, 0x00}))
			Expect(res.Relocs).To(HaveLen(1))
			Expect(res.Relocs[0].Offset).To(Equal(2))
			Expect(res.Relocs[0].Kind).To(Equal(object.RelocAbs32))
			Expect(res.Relocs[0].SymKind).To(Equal(object.SymData))
			Expect(res.Relocs[0].Addend).To(Equal(int64(4)))
		})

		It("should address data symbols through SIB in 64-bit mode", func() {
			data := ir.MemOp(ir.Mem{Symbol: "counter", Size: 4}, ir.TypeInt32)
			res, err := assemble(64, []mc.Inst{
				mc.New(mc.MovRRM, 4, gpr(target.RegAX, 4), data),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{0x8B, 0x04, 0x25, 0x00, 0x00, 0x00, 0x00}))
			Expect(res.Relocs[0].Offset).To(Equal(3))
			Expect(res.Relocs[0].Symbol).To(Equal("counter"))
		})

		It("should record an absolute relocation for a symbol address load", func() {
			res, err := assemble(32, []mc.Inst{
				mc.New(mc.MovRImmSym, 4, gpr(target.RegAX, 4), ir.Sym("table")),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{0xB8, 0x00, 0x00, 0x00, 0x00}))
			Expect(res.Relocs[0].Offset).To(Equal(1))
		})
	})

	Context("32-bit mode", func() {
		It("should split 8-byte moves into halves", func() {
			res, err := assemble(32, []mc.Inst{
				mc.New(mc.MovRMImm32, 8, frame32(-8, 8), ir.Imm(0x100000002, ir.TypeInt64)),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{
				0xC7, 0x45, 0xF8, 0x02, 0x00, 0x00, 0x00,
				0xC7, 0x45, 0xFC, 0x01, 0x00, 0x00, 0x00,
			}))
		})

		It("should store a composite register pair", func() {
			pair := ir.LocOp(ir.Composite{
				Lo: target.GPR(target.RegAX, 4),
				Hi: target.GPR(target.RegDX, 4),
			}, ir.TypeInt64)
			res, err := assemble(32, []mc.Inst{
				mc.New(mc.MovRMR, 8, frame32(-8, 8), pair),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{
				0x89, 0x45, 0xF8,
				0x89, 0x55, 0xFC,
			}))
		})

		It("should copy memory in word-sized chunks", func() {
			res, err := assemble(32, []mc.Inst{
				mc.New(mc.MovMM, 6, frame32(-8, 6), frame32(-16, 6), gpr(target.RegAX, 4)),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal([]byte{
				0x8B, 0x45, 0xF0,
				0x89, 0x45, 0xF8,
				0x66, 0x8B, 0x45, 0xF4,
				0x66, 0x89, 0x45, 0xFC,
			}))
		})

		It("should reject registers that need REX", func() {
			_, err := assemble(32, []mc.Inst{
				mc.New(mc.MovRRM, 4, gpr(target.RegR8, 4), frame32(-4, 4)),
			})
			Expect(codeOf(err)).To(Equal(errors.E0920))

			_, err = assemble(32, []mc.Inst{mc.New(mc.Push, 4, gpr(target.RegR9, 4))})
			Expect(codeOf(err)).To(Equal(errors.E0920))
		})
	})
})
