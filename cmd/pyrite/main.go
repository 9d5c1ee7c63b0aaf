// pyrite CLI - runs compiled programs
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chazu/pyrite/codec"
	"github.com/chazu/pyrite/config"
	"github.com/chazu/pyrite/vm"
	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("pyrite.cmd")

func main() {
	configPath := flag.String("config", "", "Configuration file (default: nearest pyrite.toml)")
	verbosity := flag.Int("v", -1, "Log verbosity, overrides [log] verbosity")
	jitFlag := flag.String("jit", "", "Force the JIT on or off (true/false)")
	stats := flag.Bool("stats", false, "Print JIT statistics to stderr after the run")
	dis := flag.Bool("dis", false, "Disassemble the program instead of running it")
	output := flag.String("o", "", "Re-encode the program to this file instead of running it")
	format := flag.String("format", "cbor", "Encoding for -o: cbor or json")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pyrite [options] [program]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a compiled program (gzip JSON or CBOR). Without a program argument\n")
		fmt.Fprintf(os.Stderr, "the program is read from standard input.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  PYTHON_VM_JIT                     1/true/yes enables the JIT (default on)\n")
		fmt.Fprintf(os.Stderr, "  PYTHON_VM_JIT_BASELINE_THRESHOLD  entries before baseline compilation (default 1)\n")
		fmt.Fprintf(os.Stderr, "  PYTHON_VM_JIT_OPT_THRESHOLD       entries before optimizing compilation (default 20000)\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pyrite prog.pyc                  # Run a program\n")
		fmt.Fprintf(os.Stderr, "  pyrite -jit=false -stats prog.pyc  # Run without the JIT, print statistics\n")
		fmt.Fprintf(os.Stderr, "  pyrite -dis prog.pyc             # Disassemble\n")
		fmt.Fprintf(os.Stderr, "  pyrite -o prog.cbor prog.pyc     # Convert to CBOR\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if *verbosity >= 0 {
		cfg.Log.Verbosity = *verbosity
	}
	switch *jitFlag {
	case "":
	case "true", "on", "1":
		cfg.JIT.Enabled = true
	case "false", "off", "0":
		cfg.JIT.Enabled = false
	default:
		fmt.Fprintf(os.Stderr, "Error: -jit must be true or false, got %q\n", *jitFlag)
		os.Exit(2)
	}
	cfg.ConfigureLogging()
	if cfg.Path != "" {
		log.Infof("using configuration %s", cfg.Path)
	}

	bc, err := readProgram(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *dis:
		fmt.Print(vm.Disassemble(bc))
		return
	case *output != "":
		if err := writeProgram(*output, *format, bc); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	v, m := cfg.NewVM()
	_, runErr := v.Execute(bc)
	if *stats {
		fmt.Fprintf(os.Stderr, "jit %s\n", m.Stats())
	}
	if runErr != nil {
		var exc *vm.Exception
		if errors.As(runErr, &exc) {
			fmt.Fprintln(os.Stderr, exc.Error())
		} else {
			fmt.Fprintf(os.Stderr, "Fatal: %v\n", runErr)
		}
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	dir, err := os.Getwd()
	if err != nil {
		return config.Default(), nil
	}
	return config.FindAndLoad(dir)
}

// readProgram decodes the program named by args, or standard input when no
// argument is given and input is piped.
func readProgram(args []string) (*vm.ByteCode, error) {
	var r io.Reader
	switch len(args) {
	case 0:
		if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			flag.Usage()
			os.Exit(2)
		}
		r = os.Stdin
	case 1:
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	default:
		return nil, fmt.Errorf("expected one program, got %d arguments", len(args))
	}

	bc, format, err := codec.Decode(r)
	if err != nil {
		return nil, err
	}
	log.Debugf("loaded %s program", format)
	return bc, nil
}

func writeProgram(path, format string, bc *vm.ByteCode) error {
	var data []byte
	var err error
	switch format {
	case "cbor":
		data, err = codec.EncodeCBOR(bc)
	case "json":
		data, err = codec.MarshalJSON(bc)
	default:
		return fmt.Errorf("unknown format %q (want cbor or json)", format)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
