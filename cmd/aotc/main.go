package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/tebeka/atexit"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tangzhangming/aotc/internal/codegen"
	"github.com/tangzhangming/aotc/internal/config"
	"github.com/tangzhangming/aotc/internal/driver"
	"github.com/tangzhangming/aotc/internal/errors"
	"github.com/tangzhangming/aotc/internal/ir"
	"github.com/tangzhangming/aotc/internal/loader"
	"github.com/tangzhangming/aotc/internal/logging"
	"github.com/tangzhangming/aotc/internal/object"
	"github.com/tangzhangming/aotc/internal/target"
)

const version = "0.1.0"

var (
	configPath  = flag.String("config", "", "Config file (default: ./aotc.toml if present)")
	arch        = flag.String("arch", "", "Target architecture: x86, x86_64 or host")
	outPath     = flag.String("o", "", "Output file (default: stdout)")
	format      = flag.String("format", "", "Output format: listing or raw")
	compress    = flag.String("compress", "", "Raw output compression: none, lz4 or xz")
	onError     = flag.String("on-error", "", "Failure policy: abort or skip")
	workers     = flag.Int("workers", -1, "Methods compiled in parallel (0 = CPU count)")
	noPeephole  = flag.Bool("no-peephole", false, "Disable peephole simplification")
	dumpIR      = flag.Bool("dump-ir", false, "Print the IR of each method")
	dumpMC      = flag.Bool("dump-mc", false, "Print selected machine instructions")
	verbose     = flag.Bool("v", false, "Debug logging")
	noColor     = flag.Bool("no-color", false, "Disable colored diagnostics")
	writeConfig = flag.String("write-config", "", "Write a default config file and exit")
)

func usage() {
	fmt.Fprintf(os.Stderr, "aotc %s - x86 / x86-64 ahead-of-time code generator\n\n", version)
	fmt.Fprintln(os.Stderr, "Usage: aotc [options] <unit"+loader.UnitFileExtension+">")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Options:")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nTargets: %v\n", target.Names())
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if *noColor {
		errors.SetColorsEnabled(false)
	}

	if *writeConfig != "" {
		if err := config.Default().Save(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			atexit.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", *writeConfig)
		atexit.Exit(0)
	}

	if flag.NArg() < 1 {
		usage()
		atexit.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}
	atexit.Register(func() { _ = log.Sync() })

	reporter := errors.NewReporter()
	if err := run(cfg, flag.Arg(0), log, reporter); err != nil {
		reporter.Report(err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// loadConfig 读取配置文件并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	path := *configPath
	if path == "" {
		if _, err := os.Stat(config.ConfigFileName); err == nil {
			path = config.ConfigFileName
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if *arch != "" {
		cfg.Target.Arch = *arch
	}
	if *outPath != "" {
		cfg.Output.Path = *outPath
	}
	if *format != "" {
		cfg.Output.Format = *format
	}
	if *compress != "" {
		cfg.Output.Compress = *compress
	}
	if *onError != "" {
		cfg.Codegen.OnError = *onError
	}
	if *workers >= 0 {
		cfg.Codegen.Workers = *workers
	}
	if *noPeephole {
		cfg.Codegen.Peephole = false
	}
	if *verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	return cfg, cfg.Validate()
}

func run(cfg *config.Config, path string, log *zap.Logger, reporter *errors.Reporter) error {
	unit, err := loader.LoadFile(path)
	if err != nil {
		return err
	}
	unitID := uuid.New()
	log = log.With(zap.String("unit", unit.Name), zap.Stringer("id", unitID))

	tgt, err := target.Lookup(cfg.Target.Arch)
	if err != nil {
		return err
	}
	policy, err := driver.ParsePolicy(cfg.Codegen.OnError)
	if err != nil {
		return err
	}

	if *dumpIR {
		for _, m := range unit.Methods {
			fmt.Fprintln(os.Stderr, ir.Print(m))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	drv := driver.New(tgt, driver.Options{
		Codegen: codegen.Options{
			Convention: cfg.Target.Convention,
			Peephole:   cfg.Codegen.Peephole,
			Logger:     log,
		},
		Policy:  policy,
		Workers: cfg.Codegen.Workers,
		Logger:  log,
	})
	sec := object.NewSection(".text")
	rep, err := drv.Run(ctx, unit.Methods, sec)
	if err != nil {
		return err
	}
	for _, e := range multierr.Errors(rep.Skipped) {
		if ce, ok := errors.As(e); ok {
			reporter.ReportWarning(ce)
		}
	}

	if *dumpMC {
		for _, res := range rep.Results {
			fmt.Fprintf(os.Stderr, "%s:\n%s\n", res.Name, res.Listing())
		}
	}

	if err := writeOutput(cfg.Output, sec, unitID, tgt.Name()); err != nil {
		return err
	}

	stats := drv.Stats()
	fmt.Fprintf(os.Stderr, "%s: %d/%d methods, %s code, %d relocations (%s, build %.12s)\n",
		unit.Name,
		stats.Compiled.Load(), len(unit.Methods),
		units.HumanSize(float64(sec.Len())),
		len(sec.Relocs()),
		tgt.Name(),
		sec.BuildID())
	return nil
}

func writeOutput(out config.OutputConfig, sec *object.Section, unitID uuid.UUID, archName string) error {
	if out.Path == "" {
		return writeSection(os.Stdout, out, sec, unitID, archName)
	}
	f, err := os.Create(out.Path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := writeSection(f, out, sec, unitID, archName); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}

// writeSection 按输出格式写出代码段
func writeSection(w io.Writer, out config.OutputConfig, sec *object.Section, unitID uuid.UUID, archName string) error {
	switch out.Format {
	case config.FormatRaw:
		c, err := object.ParseCompression(out.Compress)
		if err != nil {
			return err
		}
		return object.WriteRaw(w, sec, c)
	default:
		_, err := object.NewListing(sec, unitID, archName).WriteTo(w)
		return err
	}
}
