// Package config 读取与保存 aotc.toml 编译配置
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/tangzhangming/aotc/internal/object"
	"github.com/tangzhangming/aotc/internal/target"
)

// 常量定义
const (
	ConfigFileName = "aotc.toml" // 默认配置文件名
)

// 出错策略
const (
	OnErrorAbort = "abort" // 任一方法失败则放弃整个编译单元
	OnErrorSkip  = "skip"  // 跳过失败的方法，汇总错误
)

// 输出格式
const (
	FormatListing = "listing" // JSON 描述（含十六进制代码）
	FormatRaw     = "raw"     // 原始代码段字节
)

// Config 编译配置
type Config struct {
	Target  TargetConfig  `toml:"target"`
	Codegen CodegenConfig `toml:"codegen"`
	Output  OutputConfig  `toml:"output"`
	Log     LogConfig     `toml:"log"`
}

// TargetConfig 目标体系结构
type TargetConfig struct {
	// Arch x86、x86_64 或 host
	Arch string `toml:"arch"`
	// Convention 调用约定名，空串使用目标默认值
	Convention string `toml:"convention"`
}

// CodegenConfig 代码生成选项
type CodegenConfig struct {
	Peephole bool   `toml:"peephole"`
	OnError  string `toml:"on_error"`
	// Workers 并行编译的方法数，<= 1 时顺序编译
	Workers int `toml:"workers"`
}

// OutputConfig 输出选项
type OutputConfig struct {
	Format   string `toml:"format"`
	Compress string `toml:"compress"`
	Path     string `toml:"path"`
}

// LogConfig 日志选项
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Target: TargetConfig{Arch: "x86_64"},
		Codegen: CodegenConfig{
			Peephole: true,
			OnError:  OnErrorAbort,
			Workers:  1,
		},
		Output: OutputConfig{
			Format:   FormatListing,
			Compress: string(object.CompressNone),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load 从文件加载配置，缺省项取默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	if c.Target.Arch != "host" {
		tgt, err := target.Lookup(c.Target.Arch)
		if err != nil {
			return fmt.Errorf("target.arch: %w", err)
		}
		if _, err := tgt.Convention(c.Target.Convention); err != nil {
			return fmt.Errorf("target.convention: %w", err)
		}
	}
	switch c.Codegen.OnError {
	case OnErrorAbort, OnErrorSkip:
	default:
		return fmt.Errorf("codegen.on_error: unknown policy %q (want abort or skip)", c.Codegen.OnError)
	}
	if c.Codegen.Workers < 0 {
		return fmt.Errorf("codegen.workers: must not be negative, got %d", c.Codegen.Workers)
	}
	switch c.Output.Format {
	case FormatListing, FormatRaw:
	default:
		return fmt.Errorf("output.format: unknown format %q (want listing or raw)", c.Output.Format)
	}
	if _, err := object.ParseCompression(c.Output.Compress); err != nil {
		return fmt.Errorf("output.compress: %w", err)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	return nil
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	content := generateConfigWithComments(c)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateConfigWithComments 生成带注释的配置文件内容
func generateConfigWithComments(c *Config) string {
	var sb strings.Builder

	sb.WriteString("[target]\n")
	sb.WriteString("# 目标体系结构：x86、x86_64 或 host\n")
	sb.WriteString(fmt.Sprintf("arch = %q\n", c.Target.Arch))
	sb.WriteString("# 调用约定（留空使用目标默认值）\n")
	sb.WriteString(fmt.Sprintf("convention = %q\n\n", c.Target.Convention))

	sb.WriteString("[codegen]\n")
	sb.WriteString("# 是否运行窥孔优化\n")
	sb.WriteString(fmt.Sprintf("peephole = %t\n", c.Codegen.Peephole))
	sb.WriteString("# 方法编译失败时：abort 放弃整个单元，skip 跳过该方法\n")
	sb.WriteString(fmt.Sprintf("on_error = %q\n", c.Codegen.OnError))
	sb.WriteString("# 并行编译的方法数\n")
	sb.WriteString(fmt.Sprintf("workers = %d\n\n", c.Codegen.Workers))

	sb.WriteString("[output]\n")
	sb.WriteString("# listing（JSON）或 raw（代码段字节）\n")
	sb.WriteString(fmt.Sprintf("format = %q\n", c.Output.Format))
	sb.WriteString("# raw 输出的压缩方式：none、lz4 或 xz\n")
	sb.WriteString(fmt.Sprintf("compress = %q\n", c.Output.Compress))
	sb.WriteString("# 输出文件（留空写到标准输出）\n")
	sb.WriteString(fmt.Sprintf("path = %q\n\n", c.Output.Path))

	sb.WriteString("[log]\n")
	sb.WriteString("# debug、info、warn 或 error\n")
	sb.WriteString(fmt.Sprintf("level = %q\n", c.Log.Level))
	sb.WriteString(fmt.Sprintf("development = %t\n", c.Log.Development))

	return sb.String()
}
