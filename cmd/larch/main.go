// Command larch compiles Lisp-syntax source units into the host
// statement tree and prints the lowered form. It also hosts an
// interactive session that compiles one form at a time.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sergev/larch/compile"
	"github.com/sergev/larch/expand"
	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/reader"
)

// Version information (set at build time).
var version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("larch", pflag.ContinueOnError)
	fs.String("config", "", "config file (default: ./larch.yaml)")
	fs.BoolP("verbose", "v", false, "verbose output")
	fs.String("history", "", "session history file (default: ~/.larch_history)")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	cfgFile, _ := fs.GetString("config")
	cfg, err := loadConfig(cfgFile, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "larch: %v\n", err)
		return 1
	}
	setupLogging(cfg.Verbose)

	rest := fs.Args()
	if len(rest) == 0 {
		usage(fs)
		return 2
	}
	switch rest[0] {
	case "compile":
		return cmdCompile(cfg, rest[1:])
	case "repl":
		return cmdREPL(cfg)
	case "version":
		fmt.Printf("larch %s\n", version)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "larch: unknown command %q\n", rest[0])
		usage(fs)
		return 2
	}
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, `Usage: larch [flags] <command> [args]

Commands:
  compile [file]  compile a source unit and print the lowered tree
                  ("-" or no argument reads standard input)
  repl            interactive session
  version         print the version

Flags:`)
	fmt.Fprint(os.Stderr, fs.FlagUsages())
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}

func cmdCompile(cfg *config, args []string) int {
	path := "-"
	if len(args) > 0 {
		path = args[0]
	}
	src, name, err := readSource(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "larch: %v\n", err)
		return 1
	}

	forms, err := reader.ReadString(src, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "larch: %v\n", err)
		return 1
	}

	comp := compile.NewCompiler(expand.NewContext(unitName(name)), name)
	mod, err := comp.CompileModule(forms)
	if err != nil {
		report(err, cfg.Verbose)
		return 1
	}
	fmt.Println(hast.Dump(mod))
	return 0
}

func readSource(path string) (src, name string, err error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", err
		}
		return string(data), "<stdin>", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return string(data), path, nil
}

// unitName derives the module name passed to the expander from the
// source path.
func unitName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "-" || strings.HasPrefix(base, "<") {
		return "main"
	}
	return base
}

// report prints a compilation failure. Invariant violations are kept
// terse unless verbose output was requested.
func report(err error, verbose bool) {
	if compile.IsInternal(err) && !verbose {
		fmt.Fprintln(os.Stderr, "larch: internal compiler error (rerun with --verbose for detail)")
		return
	}
	fmt.Fprintf(os.Stderr, "larch: %v\n", err)
}
