package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/pyrite/vm"
)

func sampleProgram() *vm.ByteCode {
	b := vm.NewBuilder("")
	b.LoadName("print").LoadConst(vm.Str("hi")).Call(1).Op(vm.OpPopTop).Return()
	return b.MustBuild()
}

func TestWriteAndReadProgram(t *testing.T) {
	for _, format := range []string{"cbor", "json"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prog."+format)
			if err := writeProgram(path, format, sampleProgram()); err != nil {
				t.Fatalf("writeProgram: %v", err)
			}
			bc, err := readProgram([]string{path})
			if err != nil {
				t.Fatalf("readProgram: %v", err)
			}
			if len(bc.Instructions) != len(sampleProgram().Instructions) {
				t.Errorf("read %d instructions, want %d", len(bc.Instructions), len(sampleProgram().Instructions))
			}
		})
	}
}

func TestWriteProgramUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog")
	if err := writeProgram(path, "yaml", sampleProgram()); err == nil {
		t.Error("writeProgram succeeded with unknown format")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file written despite error")
	}
}

func TestReadProgramArgs(t *testing.T) {
	if _, err := readProgram([]string{"a", "b"}); err == nil {
		t.Error("readProgram accepted two programs")
	}
	if _, err := readProgram([]string{filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("readProgram accepted a missing file")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	if err := os.WriteFile(path, []byte("[jit]\nenabled = false\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.JIT.Enabled {
		t.Error("jit enabled, want disabled from file")
	}
}
