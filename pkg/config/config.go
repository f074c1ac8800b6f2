// Package config holds the ambient sizing/cosmetics knobs a session
// host needs but the compiler and VM themselves have no opinion about:
// heap/stack sizing and REPL prompt text. Defaults mirror the
// original's fixed workspace constants; an optional YAML file lets a
// deployment retune them without a rebuild, the way db_compiler.c's
// callers would otherwise have had to edit and recompile
// db_config.h-equivalent `#define`s.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config sizes one REPL/program session's heap and stacks and supplies
// its prompt text.
type Config struct {
	// HeapSize is the byte size of the compacting arena backing every
	// String, Code, and vector object, matching db_compiler.c's
	// heap_space[4096].
	HeapSize int `yaml:"heap_size"`

	// MaxObjects bounds the number of live handles the heap's table can
	// hold at once, matching InitHeap's maxObjects argument (128).
	MaxObjects int `yaml:"max_objects"`

	// StackSize bounds both the value stack and the handle stack (each
	// sized independently to this many slots), scaled up from the
	// PIC16 target's tight single combined stack to a size convenient
	// on a modern host while keeping the same order of magnitude.
	StackSize int `yaml:"stack_size"`

	// Prompt and Continuation are the REPL's line-start and
	// block-continuation prompts.
	Prompt       string `yaml:"prompt"`
	Continuation string `yaml:"continuation"`
}

// Default returns the out-of-the-box configuration: db_compiler.c's
// HEAPSIZE/MAXOBJECTS constants, and a plain REPL prompt.
func Default() Config {
	return Config{
		HeapSize:     4096,
		MaxObjects:   128,
		StackSize:    256,
		Prompt:       "> ",
		Continuation: "_ ",
	}
}

// Load reads a YAML file at path and overlays it onto Default(); a
// missing file is not an error -- it just leaves the defaults in
// place, matching how cmd/picobasic is meant to run with zero
// configuration out of the box.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}
