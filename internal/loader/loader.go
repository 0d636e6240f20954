// Package loader 读取 JSON 格式的编译单元
//
// 单元格式：
//
//	{
//	  "name": "demo",
//	  "methods": [{
//	    "name": "add1",
//	    "sig": {"params": ["int32"], "ret": "int32"},
//	    "locals": ["int64", "value[12]"],
//	    "blocks": [[
//	      {"op": "enter"},
//	      {"op": "add", "defs": ["t0:int32"], "uses": ["a0", "#1"]},
//	      {"op": "ret", "uses": ["t0"]}
//	    ]]
//	  }]
//	}
//
// 操作数写法：l0 局部变量、a1 参数、t2:int64 临时值（首次出现时给出类型）、
// #5 / #-1:int64 / #1.5:float 立即数、@sym 符号、b3 块、cc:lt 条件码。
// 局部变量和参数的类型取自声明，也可以用 :type 覆盖。
package loader

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
)

// 常量定义
const (
	UnitFileExtension = ".ir.json" // 单元文件后缀
)

// Unit 一个编译单元
type Unit struct {
	Name    string
	Methods []*ir.Method
}

// ============================================================================
// JSON 结构
// ============================================================================

type unitJSON struct {
	Name    string       `json:"name"`
	Methods []methodJSON `json:"methods"`
}

type methodJSON struct {
	Name   string       `json:"name"`
	Sig    sigJSON      `json:"sig"`
	Locals []string     `json:"locals"`
	Blocks [][]nodeJSON `json:"blocks"`
}

type sigJSON struct {
	// This 接收者："" 无，"object" 引用类型，"value" 值类型
	This   string   `json:"this,omitempty"`
	Params []string `json:"params"`
	Ret    string   `json:"ret"`
}

type convJSON struct {
	Size     int  `json:"size"`
	Overflow bool `json:"ovf,omitempty"`
	Unsigned bool `json:"un,omitempty"`
}

type nodeJSON struct {
	Op   string    `json:"op"`
	Defs []string  `json:"defs,omitempty"`
	Uses []string  `json:"uses,omitempty"`
	Sig  *sigJSON  `json:"sig,omitempty"`
	Conv *convJSON `json:"conv,omitempty"`
}

// ============================================================================
// 读取
// ============================================================================

// LoadFile 从文件读取单元
func LoadFile(path string) (*Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open unit: %w", err)
	}
	defer f.Close()

	u, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if u.Name == "" {
		u.Name = strings.TrimSuffix(baseName(path), UnitFileExtension)
	}
	return u, nil
}

// Load 从 r 读取单元
func Load(r io.Reader) (*Unit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read unit: %w", err)
	}
	return Parse(data)
}

// Parse 解析单元 JSON
func Parse(data []byte) (*Unit, error) {
	var uj unitJSON
	if err := json.Unmarshal(data, &uj); err != nil {
		return nil, errors.InvalidInput("malformed unit JSON: %v", err)
	}

	u := &Unit{Name: uj.Name}
	seen := make(map[string]bool, len(uj.Methods))
	for _, mj := range uj.Methods {
		if mj.Name == "" {
			return nil, errors.InvalidInput("method without a name")
		}
		if seen[mj.Name] {
			return nil, errors.InvalidInput("duplicate method %q", mj.Name)
		}
		seen[mj.Name] = true

		m, err := buildMethod(&mj)
		if err != nil {
			return nil, err
		}
		u.Methods = append(u.Methods, m)
	}
	return u, nil
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ============================================================================
// 方法
// ============================================================================

// methodParser 单个方法的解析状态
type methodParser struct {
	m     *ir.Method
	args  []ir.Type
	temps map[int]ir.CoarseType
}

func buildMethod(mj *methodJSON) (*ir.Method, error) {
	sig, err := parseSig(mj.Sig)
	if err != nil {
		return nil, errors.InvalidInput("%v", err).InMethod(mj.Name)
	}
	locals := make([]ir.Type, len(mj.Locals))
	for i, s := range mj.Locals {
		if locals[i], err = ParseType(s); err != nil {
			return nil, errors.InvalidInput("local l%d: %v", i, err).InMethod(mj.Name)
		}
	}

	p := &methodParser{
		m:     &ir.Method{Name: mj.Name, Sig: sig, Locals: locals},
		args:  sig.ParamTypes(),
		temps: make(map[int]ir.CoarseType),
	}
	for b, block := range mj.Blocks {
		if len(block) == 0 {
			return nil, errors.InvalidInput("block b%d is empty", b).InMethod(mj.Name)
		}
		for i, nj := range block {
			idx := len(p.m.Nodes)
			n, err := p.node(&nj)
			if err != nil {
				return nil, errors.InvalidInput("%v", err).InMethod(mj.Name).AtNode(idx)
			}
			n.BlockStart = b > 0 && i == 0
			p.m.Nodes = append(p.m.Nodes, n)
		}
	}
	return p.m, nil
}

func parseSig(sj sigJSON) (ir.Signature, error) {
	var sig ir.Signature
	switch sj.This {
	case "":
	case "object":
		sig.HasThis = true
	case "value":
		sig.HasThis, sig.ThisIsValue = true, true
	default:
		return sig, fmt.Errorf("unknown receiver kind %q", sj.This)
	}
	for i, s := range sj.Params {
		t, err := ParseType(s)
		if err != nil {
			return sig, fmt.Errorf("param %d: %w", i, err)
		}
		sig.Params = append(sig.Params, t)
	}
	ret := sj.Ret
	if ret == "" {
		ret = "void"
	}
	t, err := ParseType(ret)
	if err != nil {
		return sig, fmt.Errorf("return: %w", err)
	}
	sig.Ret = t
	return sig, nil
}

// ParseType 解析声明类型：int32、float、value[12] 等
func ParseType(s string) (ir.Type, error) {
	if strings.HasPrefix(s, "value[") && strings.HasSuffix(s, "]") {
		n, err := strconv.Atoi(s[len("value[") : len(s)-1])
		if err != nil || n <= 0 {
			return ir.Type{}, fmt.Errorf("bad value type size in %q", s)
		}
		return ir.ValueType(n), nil
	}
	k, ok := ir.ParseCoarseType(s)
	if !ok || k == ir.TypeValue {
		return ir.Type{}, fmt.Errorf("unknown type %q", s)
	}
	return ir.T(k), nil
}

func (p *methodParser) node(nj *nodeJSON) (*ir.Node, error) {
	op, ok := ir.ParseOpcode(nj.Op)
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", nj.Op)
	}
	n := &ir.Node{Op: op}

	var err error
	if n.Defs, err = p.operands(nj.Defs); err != nil {
		return nil, err
	}
	if n.Uses, err = p.operands(nj.Uses); err != nil {
		return nil, err
	}

	switch op {
	case ir.IR_CALL:
		if nj.Sig == nil {
			return nil, fmt.Errorf("call without a callee signature")
		}
		sig, err := parseSig(*nj.Sig)
		if err != nil {
			return nil, fmt.Errorf("callee: %w", err)
		}
		n.Sig = &sig
	case ir.IR_CONV:
		if nj.Conv == nil {
			return nil, fmt.Errorf("conv without conversion info")
		}
		n.Conv = ir.ConvInfo{DestSize: nj.Conv.Size, Overflow: nj.Conv.Overflow, Unsigned: nj.Conv.Unsigned}
	}
	return n, nil
}

func (p *methodParser) operands(ss []string) ([]ir.Operand, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	out := make([]ir.Operand, len(ss))
	for i, s := range ss {
		o, err := p.operand(s)
		if err != nil {
			return nil, err
		}
		out[i] = o
	}
	return out, nil
}

// ============================================================================
// 操作数
// ============================================================================

func (p *methodParser) operand(s string) (ir.Operand, error) {
	if s == "" {
		return ir.Operand{}, fmt.Errorf("empty operand")
	}

	switch {
	case s[0] == '@':
		if len(s) == 1 {
			return ir.Operand{}, fmt.Errorf("empty symbol name")
		}
		return ir.Sym(s[1:]), nil
	case strings.HasPrefix(s, "cc:"):
		c, ok := ir.ParseCond(s[3:])
		if !ok {
			return ir.Operand{}, fmt.Errorf("unknown condition %q", s[3:])
		}
		return ir.CC(c), nil
	}

	body, typ, hasType := strings.Cut(s, ":")
	if body == "" {
		return ir.Operand{}, fmt.Errorf("bad operand %q", s)
	}
	var kind ir.CoarseType
	if hasType {
		k, ok := ir.ParseCoarseType(typ)
		if !ok || k == ir.TypeVoid {
			return ir.Operand{}, fmt.Errorf("bad operand type in %q", s)
		}
		kind = k
	}

	if body[0] == '#' {
		if !hasType {
			kind = ir.TypeInt32
		}
		return immediate(body[1:], kind)
	}

	idx, err := strconv.Atoi(body[1:])
	if err != nil || idx < 0 {
		return ir.Operand{}, fmt.Errorf("bad operand %q", s)
	}
	switch body[0] {
	case 'l':
		if idx >= len(p.m.Locals) {
			return ir.Operand{}, fmt.Errorf("local l%d out of range", idx)
		}
		if !hasType {
			kind = p.m.Locals[idx].Kind
		}
		return ir.Local(idx, kind), nil
	case 'a':
		if idx >= len(p.args) {
			return ir.Operand{}, fmt.Errorf("argument a%d out of range", idx)
		}
		if !hasType {
			kind = p.args[idx].Kind
		}
		return ir.Arg(idx, kind), nil
	case 't':
		prev, known := p.temps[idx]
		switch {
		case !hasType && !known:
			return ir.Operand{}, fmt.Errorf("temp t%d used before its type is given", idx)
		case !hasType:
			kind = prev
		case known && prev != kind:
			return ir.Operand{}, fmt.Errorf("temp t%d redeclared as %s, was %s", idx, kind, prev)
		}
		p.temps[idx] = kind
		return ir.Temp(idx, kind), nil
	case 'b':
		return ir.Block(idx), nil
	}
	return ir.Operand{}, fmt.Errorf("bad operand %q", s)
}

// immediate 解析立即数；float 立即数以 IEEE 754 位模式保存
func immediate(s string, kind ir.CoarseType) (ir.Operand, error) {
	if kind == ir.TypeFloat {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return ir.Operand{}, fmt.Errorf("bad float immediate %q", s)
		}
		return ir.Imm(int64(math.Float64bits(f)), kind), nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return ir.Operand{}, fmt.Errorf("bad immediate %q", s)
	}
	if kind == ir.TypeInt32 && (v < math.MinInt32 || v > math.MaxInt32) {
		return ir.Operand{}, fmt.Errorf("immediate %d does not fit int32", v)
	}
	return ir.Imm(v, kind), nil
}
