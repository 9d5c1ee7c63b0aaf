// Package jit adds tiered execution on top of the reference interpreter.
//
// A Manager is installed on a VM as its frame executor. Every frame entry is
// counted; code that crosses the baseline threshold is handed to the
// baseline generator, and baseline-compiled code that crosses the optimizing
// threshold to the optimizing generator. Code that no generator compiles
// runs in the fast interpreter when every opcode is on its allow-list, and in
// the reference interpreter otherwise. All paths produce the same observable
// results.
package jit
