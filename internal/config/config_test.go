package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	cfg := Default()
	cfg.Target.Arch = "x86"
	cfg.Target.Convention = "cdecl"
	cfg.Codegen.OnError = OnErrorSkip
	cfg.Codegen.Workers = 4
	cfg.Output.Format = FormatRaw
	cfg.Output.Compress = "lz4"
	cfg.Log.Level = "debug"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "# 方法编译失败时") {
		t.Error("saved config has no comments")
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *cfg {
		t.Errorf("loaded %+v, want %+v", got, cfg)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("[target]\narch = \"x86\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target.Arch != "x86" || !cfg.Codegen.Peephole || cfg.Codegen.OnError != OnErrorAbort {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"arch", func(c *Config) { c.Target.Arch = "arm64" }, "target.arch"},
		{"convention", func(c *Config) { c.Target.Convention = "stdcall" }, "target.convention"},
		{"host", func(c *Config) { c.Target.Arch = "host" }, ""},
		{"policy", func(c *Config) { c.Codegen.OnError = "retry" }, "codegen.on_error"},
		{"workers", func(c *Config) { c.Codegen.Workers = -1 }, "codegen.workers"},
		{"format", func(c *Config) { c.Output.Format = "elf" }, "output.format"},
		{"compress", func(c *Config) { c.Output.Compress = "gzip" }, "output.compress"},
		{"level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadBadFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file should fail")
	}

	path := filepath.Join(t.TempDir(), ConfigFileName)
	os.WriteFile(path, []byte("[codegen\n"), 0644)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("err = %v", err)
	}
}
