package codegen

import (
	"testing"

	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/mc"
	"github.com/tangzhangming/aotc/internal/target"
)

func mustTarget(t *testing.T, name string) target.Target {
	t.Helper()
	tgt, err := target.Lookup(name)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", name, err)
	}
	return tgt
}

// prepare 分配存储并展开伪操作
func prepare(t *testing.T, m *ir.Method, arch string) *Code {
	t.Helper()
	c, err := NewCode(m, mustTarget(t, arch), "")
	if err != nil {
		t.Fatalf("NewCode: %v", err)
	}
	if err := c.AllocateStorage(); err != nil {
		t.Fatalf("AllocateStorage: %v", err)
	}
	if err := c.Lower(); err != nil {
		t.Fatalf("Lower: %v", err)
	}
	return c
}

func ops(insts []mc.Inst) []mc.Op {
	out := make([]mc.Op, len(insts))
	for i, in := range insts {
		out[i] = in.Op
	}
	return out
}

func sameOps(got []mc.Inst, want ...mc.Op) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i].Op != want[i] {
			return false
		}
	}
	return true
}

// callMethod 调用 callee(args...) 并丢弃或保存结果
func callMethod(callee ir.Signature, args ...ir.Operand) *ir.Method {
	var locals []ir.Type
	if callee.ReturnsValue() {
		locals = append(locals, callee.Ret)
	}
	b := ir.NewBuilder("caller", ir.Signature{Ret: ir.T(ir.TypeVoid)}, locals...)
	b.StartBlock()
	b.Enter()
	var dst *ir.Operand
	if callee.ReturnsValue() {
		l := ir.Local(0, callee.Ret.Kind)
		dst = &l
	}
	b.Call("callee", &callee, dst, args...)
	b.Ret(nil)
	return b.Build()
}

// TestCallLoweringShape 测试调用展开的形状
func TestCallLoweringShape(t *testing.T) {
	twoInts := ir.Signature{Params: []ir.Type{ir.T(ir.TypeInt32), ir.T(ir.TypeInt32)}, Ret: ir.T(ir.TypeInt32)}

	// x86：参数全部在栈上，需要预留栈区
	c := prepare(t, callMethod(twoInts, ir.Imm(1, ir.TypeInt32), ir.Imm(2, ir.TypeInt32)), "x86")
	got := c.lowered[1]
	if !sameOps(got, mc.Precall, mc.SubRMImm32, mc.MovRMImm32, mc.MovRMImm32,
		mc.Call, mc.MovRMR, mc.AddRMImm32, mc.Postcall) {
		t.Fatalf("x86 call = %v", ops(got))
	}
	if got[1].Ops[1].Imm != 8 || got[6].Ops[1].Imm != 8 {
		t.Errorf("reserved %d / restored %d, want 8", got[1].Ops[1].Imm, got[6].Ops[1].Imm)
	}
	second, _ := got[3].Ops[0].Mem()
	if second.Base.ID != target.RegSP || second.Disp != 4 {
		t.Errorf("second argument at %s, want [esp + 4]", second)
	}
	if got[4].Ops[1].UD != ir.UDDef {
		t.Error("call should define the return register")
	}
	if r, _ := got[4].Ops[2].Reg(); r.Class != ir.RegContents || got[4].Ops[2].UD != ir.UDDef {
		t.Errorf("call should clobber memory contents, got %v", got[4])
	}

	// x86-64：寄存器参数，不预留栈区
	c = prepare(t, callMethod(twoInts, ir.Imm(1, ir.TypeInt32), ir.Imm(2, ir.TypeInt32)), "x86_64")
	got = c.lowered[1]
	if !sameOps(got, mc.Precall, mc.MovRMImm32, mc.MovRMImm32, mc.Call, mc.MovRMR, mc.Postcall) {
		t.Fatalf("x86_64 call = %v", ops(got))
	}
	if r, _ := got[1].Ops[0].Reg(); r.ID != target.RegDI || r.Size != 4 {
		t.Errorf("first argument in %s, want edi", r)
	}

	// 第七个整数参数落到栈上，预留区按 16 对齐
	seven := ir.Signature{Ret: ir.T(ir.TypeInt64)}
	var args []ir.Operand
	for i := 0; i < 7; i++ {
		seven.Params = append(seven.Params, ir.T(ir.TypeInt64))
		args = append(args, ir.Imm(int64(i), ir.TypeInt64))
	}
	c = prepare(t, callMethod(seven, args...), "x86_64")
	got = c.lowered[1]
	if len(got) != len(args)+6 {
		t.Fatalf("seven-argument call has %d instructions, want %d: %v", len(got), len(args)+6, ops(got))
	}
	if got[1].Op != mc.SubRMImm32 || got[1].Ops[1].Imm != 16 {
		t.Errorf("reservation = %v", got[1])
	}

	// 无返回值
	void := ir.Signature{Params: []ir.Type{ir.T(ir.TypeInt32)}, Ret: ir.T(ir.TypeVoid)}
	c = prepare(t, callMethod(void, ir.Imm(1, ir.TypeInt32)), "x86_64")
	got = c.lowered[1]
	if !sameOps(got, mc.Precall, mc.MovRMImm32, mc.Call, mc.Postcall) {
		t.Errorf("void call = %v", ops(got))
	}
}

// TestCallArgumentCount 测试参数个数与签名不一致
func TestCallArgumentCount(t *testing.T) {
	sig := ir.Signature{Params: []ir.Type{ir.T(ir.TypeInt32)}, Ret: ir.T(ir.TypeVoid)}
	m := callMethod(sig)
	c, _ := NewCode(m, mustTarget(t, "x86"), "")
	if err := c.AllocateStorage(); err != nil {
		t.Fatal(err)
	}
	err := c.Lower()
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("err = %v, want invalid input", err)
	}
}

// TestLowerRet 测试返回展开
func TestLowerRet(t *testing.T) {
	b := ir.NewBuilder("wide", ir.Signature{Ret: ir.T(ir.TypeInt64)}, ir.T(ir.TypeInt64))
	b.StartBlock()
	b.Enter()
	l0 := ir.Local(0, ir.TypeInt64)
	b.Ret(&l0)

	c := prepare(t, b.Build(), "x86")
	got := c.lowered[1]
	if !sameOps(got, mc.MovRRM, mc.RestoreCalleePreserves, mc.MovRMR, mc.Pop, mc.Ret) {
		t.Fatalf("ret = %v", ops(got))
	}
	if !got[0].Ops[0].IsComposite() || got[0].W != 8 {
		t.Errorf("int64 return should load EDX:EAX, got %v", got[0])
	}
	if len(got[4].Ops) != 1 || got[4].Ops[0].UD != ir.UDUse {
		t.Errorf("ret should use the return register: %v", got[4])
	}

	// 无返回值
	b = ir.NewBuilder("v", ir.Signature{Ret: ir.T(ir.TypeVoid)})
	b.StartBlock()
	b.Enter()
	b.Ret(nil)
	c = prepare(t, b.Build(), "x86_64")
	if got := c.lowered[1]; !sameOps(got, mc.RestoreCalleePreserves, mc.MovRMR, mc.Pop, mc.Ret) {
		t.Errorf("void ret = %v", ops(got))
	}
}

// TestFloatReturnOnX86 测试 x86 上没有浮点返回位置
func TestFloatReturnOnX86(t *testing.T) {
	b := ir.NewBuilder("f", ir.Signature{Ret: ir.T(ir.TypeFloat)}, ir.T(ir.TypeFloat))
	b.StartBlock()
	b.Enter()
	l0 := ir.Local(0, ir.TypeFloat)
	b.Ret(&l0)

	c, _ := NewCode(b.Build(), mustTarget(t, "x86"), "")
	if err := c.AllocateStorage(); err != nil {
		t.Fatal(err)
	}
	err := c.Lower()
	ce, ok := errors.As(err)
	if !ok || ce.Code != errors.E0901 {
		t.Errorf("err = %v, want E0901", err)
	}
	if ok && ce.Node != 1 {
		t.Errorf("error node = %d, want 1", ce.Node)
	}
}

// TestLowerEnter 测试入口展开与寄存器参数写回
func TestLowerEnter(t *testing.T) {
	sig := ir.Signature{Params: []ir.Type{ir.T(ir.TypeInt64), ir.T(ir.TypeFloat)}, Ret: ir.T(ir.TypeVoid)}
	b := ir.NewBuilder("entry", sig, ir.T(ir.TypeInt32))
	b.StartBlock()
	b.Enter()
	b.Ret(nil)

	c := prepare(t, b.Build(), "x86_64")
	// 局部变量 8 + 两个参数副本 16 = 24，按 16 取整
	if c.FrameSize != 32 {
		t.Errorf("frame = %d, want 32", c.FrameSize)
	}
	got := c.lowered[0]
	if !sameOps(got, mc.Push, mc.MovRMR, mc.SaveCalleePreserves, mc.SubRMImm32, mc.MovRMR, mc.MovsdRMR) {
		t.Fatalf("enter = %v", ops(got))
	}
	if got[3].Ops[1].Imm != 32 {
		t.Errorf("sub rsp = %d", got[3].Ops[1].Imm)
	}
	if r, _ := got[4].Ops[1].Reg(); r.ID != target.RegDI {
		t.Errorf("first spill from %s, want rdi", r)
	}

	// x86 上参数都在调用者栈区，没有写回
	c = prepare(t, b.Build(), "x86")
	if got := c.lowered[0]; !sameOps(got, mc.Push, mc.MovRMR, mc.SaveCalleePreserves, mc.SubRMImm32) {
		t.Errorf("x86 enter = %v", ops(got))
	}
	a0 := c.Operand(ir.Arg(0, ir.TypeInt64))
	if m, _ := a0.Mem(); m.Base.ID != target.RegBP || m.Disp != 8 {
		t.Errorf("a0 = %s, want [ebp + 8]", a0)
	}
	a1 := c.Operand(ir.Arg(1, ir.TypeFloat))
	if m, _ := a1.Mem(); m.Disp != 16 {
		t.Errorf("a1 = %s, want [ebp + 16]", a1)
	}
}

// convOf 构造单个转换节点的方法
func convOf(src, dst ir.Type, info ir.ConvInfo) *ir.Method {
	b := ir.NewBuilder("conv", ir.Signature{Ret: ir.T(ir.TypeVoid)}, src, dst)
	b.StartBlock()
	b.Conv(ir.Local(1, dst.Kind), ir.Local(0, src.Kind), info)
	return b.Build()
}

// TestLowerConv 测试数值转换
func TestLowerConv(t *testing.T) {
	i32, i64, f64 := ir.T(ir.TypeInt32), ir.T(ir.TypeInt64), ir.T(ir.TypeFloat)

	tests := []struct {
		name string
		arch string
		src  ir.Type
		dst  ir.Type
		info ir.ConvInfo
		want []mc.Op
	}{
		{"i4 to i8", "x86_64", i32, i64, ir.ConvInfo{DestSize: 8}, []mc.Op{mc.Movsxd, mc.MovRMR}},
		{"i4 to u8", "x86_64", i32, i64, ir.ConvInfo{DestSize: -8}, []mc.Op{mc.MovRRM, mc.MovRMR}},
		{"i8 to i4", "x86_64", i64, i32, ir.ConvInfo{DestSize: 4}, []mc.Op{mc.MovRRM, mc.MovRMR}},
		{"i4 to i1", "x86_64", i32, i32, ir.ConvInfo{DestSize: 1}, []mc.Op{mc.Movsxb, mc.MovRMR}},
		{"i4 to u2", "x86", i32, i32, ir.ConvInfo{DestSize: -2}, []mc.Op{mc.Movzxw, mc.MovRMR}},
		{"i4 to i8 on x86", "x86", i32, i64, ir.ConvInfo{DestSize: 8}, []mc.Op{mc.MovRRM, mc.Cdq, mc.MovRMR}},
		{"i4 to u8 on x86", "x86", i32, i64, ir.ConvInfo{DestSize: -8}, []mc.Op{mc.MovRRM, mc.XorRRM, mc.MovRMR}},
		{"i4 to r8", "x86", i32, f64, ir.ConvInfo{DestSize: 8}, []mc.Op{mc.Cvtsi2sd, mc.MovsdRMR}},
		{"r8 to i8", "x86_64", f64, i64, ir.ConvInfo{DestSize: 8}, []mc.Op{mc.Cvttsd2si, mc.MovRMR}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := prepare(t, convOf(tt.src, tt.dst, tt.info), tt.arch)
			if got := c.lowered[0]; !sameOps(got, tt.want...) {
				t.Errorf("got %v, want %v", ops(got), tt.want)
			}
		})
	}
}

// TestLowerConvErrors 测试不支持的转换
func TestLowerConvErrors(t *testing.T) {
	i32, i64, f64 := ir.T(ir.TypeInt32), ir.T(ir.TypeInt64), ir.T(ir.TypeFloat)

	tests := []struct {
		name string
		arch string
		src  ir.Type
		dst  ir.Type
		info ir.ConvInfo
	}{
		{"overflow", "x86_64", i64, i32, ir.ConvInfo{DestSize: 4, Overflow: true}},
		{"unsigned source", "x86_64", i32, i64, ir.ConvInfo{DestSize: 8, Unsigned: true}},
		{"bad size", "x86_64", i32, i32, ir.ConvInfo{DestSize: 3}},
		{"i8 to r8 on x86", "x86", i64, f64, ir.ConvInfo{DestSize: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := NewCode(convOf(tt.src, tt.dst, tt.info), mustTarget(t, tt.arch), "")
			if err := c.AllocateStorage(); err != nil {
				t.Fatal(err)
			}
			err := c.Lower()
			if ce, ok := errors.As(err); !ok || ce.Code != errors.E0903 {
				t.Errorf("err = %v, want E0903", err)
			}
		})
	}
}

// TestConvFoldsImmediate 测试立即数在编译期转换
func TestConvFoldsImmediate(t *testing.T) {
	b := ir.NewBuilder("fold", ir.Signature{Ret: ir.T(ir.TypeVoid)}, ir.T(ir.TypeInt32))
	b.StartBlock()
	b.Conv(ir.Local(0, ir.TypeInt32), ir.Imm(300, ir.TypeInt32), ir.ConvInfo{DestSize: 1})
	b.Conv(ir.Local(0, ir.TypeInt32), ir.Imm(-1, ir.TypeInt32), ir.ConvInfo{DestSize: -2})

	c := prepare(t, b.Build(), "x86_64")
	for i, want := range []int64{44, 0xFFFF} {
		got := c.lowered[i]
		if len(got) != 1 || got[0].Op != mc.MovRMImm32 || got[0].Ops[1].Imm != want {
			t.Errorf("conv %d = %v, want mov #%d", i, got, want)
		}
	}
}
