package target

import (
	"testing"

	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
)

// TestLookup 测试目标注册表
func TestLookup(t *testing.T) {
	for _, name := range []string{"x86", "x86_64", "i386", "amd64"} {
		tgt, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if tgt.Patterns().Len() == 0 {
			t.Errorf("%s has an empty match table", name)
		}
	}

	a, _ := Lookup("x86_64")
	b, _ := Lookup("amd64")
	if a != b {
		t.Error("aliases should return the same target value")
	}

	if _, err := Lookup("mips"); err == nil {
		t.Error("unknown architecture should fail")
	}
	if len(Names()) < 2 {
		t.Errorf("Names() = %v", Names())
	}
}

// TestFrameLocations 测试帧布局钩子
func TestFrameLocations(t *testing.T) {
	x86, _ := Lookup("x86")

	local := x86.LocalLocation(8, 4)
	if local.Base.ID != RegBP || local.Disp != -12 || local.Size != 4 {
		t.Errorf("local = %s", local)
	}
	arg := x86.IncomingArgLocation(4, 4)
	if arg.Base.ID != RegBP || arg.Disp != 12 {
		t.Errorf("incoming arg = %s, want [ebp + 12]", arg)
	}

	x64, _ := Lookup("x86_64")
	out := x64.OutgoingArgLocation(8, 8)
	if out.Base.ID != RegSP || out.Disp != 8 || out.Base.Size != 8 {
		t.Errorf("outgoing arg = %s, want [rsp + 8]", out)
	}
	if x64.StackAlign() != 16 || x86.StackAlign() != 4 {
		t.Error("unexpected stack alignment")
	}
}

// TestUnknownConvention 测试未知调用约定
func TestUnknownConvention(t *testing.T) {
	x64, _ := Lookup("x86_64")
	if _, err := x64.Convention("stdcall"); err == nil {
		t.Error("unknown convention should fail")
	}
	if c, err := x64.Convention(""); err != nil || c.Name != "sysv" {
		t.Errorf("empty name should select the default convention, got %v %v", c, err)
	}
}

// TestMoveSelection 测试移动指令的操作码选择
func TestMoveSelection(t *testing.T) {
	x64, _ := Lookup("x86_64")
	x86, _ := Lookup("x86")

	rax := ir.RegOp(GPR(RegAX, 8))
	slot := ir.MemOp(x64.LocalLocation(0, 8), ir.TypeInt64)
	slot32 := ir.MemOp(x86.LocalLocation(0, 8), ir.TypeInt64)
	xmm := ir.RegOp(XMM(1))
	dslot := ir.MemOp(x64.LocalLocation(8, 8), ir.TypeFloat)
	pair := ir.LocOp(ir.Composite{Lo: GPR(RegAX, 4), Hi: GPR(RegDX, 4)}, ir.TypeInt64)

	tests := []struct {
		name string
		tgt  Target
		dst  ir.Operand
		src  ir.Operand
		want mc.Op
	}{
		{"imm32 to reg", x64, rax, ir.Imm(5, ir.TypeInt64), mc.MovRMImm32},
		{"imm64 to reg", x64, rax, ir.Imm(1<<40, ir.TypeInt64), mc.MovRImm64},
		{"imm64 to mem", x64, slot, ir.Imm(1<<40, ir.TypeInt64), mc.MovMM},
		{"imm64 to mem on x86", x86, slot32, ir.Imm(1<<40, ir.TypeInt64), mc.MovRMImm32},
		{"symbol to reg", x64, rax, ir.Sym("f"), mc.MovRImmSym},
		{"reg to mem", x64, slot, rax, mc.MovRMR},
		{"mem to reg", x64, rax, slot, mc.MovRRM},
		{"mem to mem", x64, slot, slot, mc.MovMM},
		{"mem to xmm", x64, xmm, dslot, mc.MovsdRRM},
		{"xmm to mem", x64, dslot, xmm, mc.MovsdRMR},
		{"composite to mem", x86, slot32, pair, mc.MovRMR},
		{"mem to composite", x86, pair, slot32, mc.MovRRM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := tt.tgt.Move(tt.dst, tt.src)
			if err != nil {
				t.Fatalf("Move: %v", err)
			}
			if in.Op != tt.want {
				t.Errorf("got %s, want %s", in.Op, tt.want)
			}
		})
	}

	if _, err := x86.Move(ir.RegOp(GPR(RegAX, 4)), xmm); err == nil {
		t.Error("xmm to gpr move should be unsupported")
	}
	if _, err := x64.Move(ir.Imm(1, ir.TypeInt32), rax); err == nil {
		t.Error("immediate destination should be unsupported")
	}
}
