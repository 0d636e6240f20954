package loader

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
)

const demoUnit = `{
  "name": "demo",
  "methods": [
    {
      "name": "add1",
      "sig": {"params": ["int32"], "ret": "int32"},
      "blocks": [[
        {"op": "enter"},
        {"op": "add", "defs": ["t0:int32"], "uses": ["a0", "#1"]},
        {"op": "ret", "uses": ["t0"]}
      ]]
    },
    {
      "name": "loop",
      "sig": {"this": "object", "params": ["int64"]},
      "locals": ["int64", "value[12]"],
      "blocks": [
        [
          {"op": "enter"},
          {"op": "mov", "defs": ["l0"], "uses": ["#-1:int64"]},
          {"op": "br", "uses": ["b1"]}
        ],
        [
          {"op": "cmp", "uses": ["l0", "a1"]},
          {"op": "brif", "uses": ["cc:lt", "b1"]},
          {"op": "call", "sig": {"params": ["object"]}, "uses": ["@callee", "a0"]},
          {"op": "conv", "defs": ["t1:int32"], "uses": ["l0"], "conv": {"size": -2}},
          {"op": "ret"}
        ]
      ]
    }
  ]
}`

func TestParseUnit(t *testing.T) {
	u, err := Parse([]byte(demoUnit))
	if err != nil {
		t.Fatal(err)
	}
	if u.Name != "demo" || len(u.Methods) != 2 {
		t.Fatalf("unit = %s with %d methods", u.Name, len(u.Methods))
	}

	add := u.Methods[0]
	if len(add.Nodes) != 3 || add.Nodes[1].Op != ir.IR_ADD {
		t.Fatalf("add1:\n%s", ir.Print(add))
	}
	if a := add.Nodes[1].Uses[0]; a.Kind != ir.KindArg || a.Type != ir.TypeInt32 {
		t.Errorf("a0 = %+v", a)
	}
	// 未写类型的 t0 沿用首次声明
	if u := add.Nodes[2].Uses[0]; u.Kind != ir.KindTemp || u.Type != ir.TypeInt32 {
		t.Errorf("t0 = %+v", u)
	}

	loop := u.Methods[1]
	if !loop.Sig.HasThis || loop.Sig.ThisIsValue || loop.Sig.ReturnsValue() {
		t.Errorf("sig = %+v", loop.Sig)
	}
	if loop.Locals[1] != ir.ValueType(12) {
		t.Errorf("l1 = %s", loop.Locals[1])
	}
	if blocks := loop.Blocks(); len(blocks) != 2 || blocks[1][0] != 3 {
		t.Errorf("blocks = %v", blocks)
	}
	// a0 是接收者，a1 是声明的第一个参数
	if a1 := loop.Nodes[3].Uses[1]; a1.Type != ir.TypeInt64 {
		t.Errorf("a1 = %+v", a1)
	}
	if c := loop.Nodes[4].Uses[0]; c.Kind != ir.KindCond || c.Cond != ir.CondLt {
		t.Errorf("cc = %+v", c)
	}
	call := loop.Nodes[5]
	if call.Sig == nil || call.Uses[0].Sym != "callee" || call.Uses[1].Type != ir.TypeObject {
		t.Errorf("call = %s", call)
	}
	if loop.Nodes[6].Conv.DestSize != -2 {
		t.Errorf("conv = %+v", loop.Nodes[6].Conv)
	}
	if imm := loop.Nodes[1].Uses[0]; imm.Imm != -1 || imm.Type != ir.TypeInt64 {
		t.Errorf("imm = %+v", imm)
	}
}

func TestParseImmediates(t *testing.T) {
	p := &methodParser{m: &ir.Method{}, temps: map[int]ir.CoarseType{}}

	tests := []struct {
		in   string
		imm  int64
		kind ir.CoarseType
	}{
		{"#5", 5, ir.TypeInt32},
		{"#0x10:intptr", 16, ir.TypeIntPtr},
		{"#-2147483648", math.MinInt32, ir.TypeInt32},
		{"#1.5:float", int64(math.Float64bits(1.5)), ir.TypeFloat},
	}
	for _, tt := range tests {
		o, err := p.operand(tt.in)
		if err != nil {
			t.Errorf("%s: %v", tt.in, err)
			continue
		}
		if o.Kind != ir.KindImm || o.Imm != tt.imm || o.Type != tt.kind {
			t.Errorf("%s = %+v", tt.in, o)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		unit string
		want string
	}{
		{"json", `{"methods": [`, "malformed"},
		{"dup", `{"methods": [{"name": "f", "blocks": [[{"op": "ret"}]]}, {"name": "f"}]}`, "duplicate"},
		{"opcode", `{"methods": [{"name": "f", "blocks": [[{"op": "jump"}]]}]}`, "unknown opcode"},
		{"local", `{"methods": [{"name": "f", "blocks": [[{"op": "mov", "defs": ["l0"], "uses": ["#1"]}]]}]}`, "out of range"},
		{"temp", `{"methods": [{"name": "f", "blocks": [[{"op": "ret", "uses": ["t3"]}]]}]}`, "before its type"},
		{"imm", `{"methods": [{"name": "f", "blocks": [[{"op": "ret", "uses": ["#4294967296"]}]]}]}`, "does not fit"},
		{"empty", `{"methods": [{"name": "f", "blocks": [[]]}]}`, "empty"},
		{"type", `{"methods": [{"name": "f", "locals": ["int16"], "blocks": [[{"op": "ret"}]]}]}`, "unknown type"},
		{"call", `{"methods": [{"name": "f", "blocks": [[{"op": "call", "uses": ["@g"]}]]}]}`, "signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.unit))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
			if !errors.IsKind(err, errors.KindInvalidInput) {
				t.Errorf("err kind = %v", err)
			}
		})
	}
}

func TestParseErrorNode(t *testing.T) {
	unit := `{"methods": [{"name": "f", "blocks": [[{"op": "enter"}], [{"op": "ret", "uses": ["x1"]}]]}]}`
	_, err := Parse([]byte(unit))
	ce, ok := errors.As(err)
	if !ok || ce.Method != "f" || ce.Node != 1 {
		t.Errorf("err = %v", err)
	}
}

func TestLoadFileNamesUnit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample"+UnitFileExtension)
	unit := `{"methods": [{"name": "f", "blocks": [[{"op": "enter"}, {"op": "ret"}]]}]}`
	if err := os.WriteFile(path, []byte(unit), 0644); err != nil {
		t.Fatal(err)
	}
	u, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if u.Name != "sample" {
		t.Errorf("unit name = %q", u.Name)
	}
}
