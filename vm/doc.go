// Package vm implements the pyrite virtual machine.
//
// This package contains:
//   - The closed set of runtime values (numeric tower, containers, functions, classes)
//   - Lexical scopes with global/nonlocal redirection
//   - The dual-store dictionary and the set built on it
//   - Bytecode, opcode metadata and per-call frames
//   - The reference interpreter, which defines the semantics every other
//     execution path must reproduce
//   - Builtin functions, builtin type methods and the exception hierarchy
//   - Resumable generators
//
// Frame entry goes through a FrameExecutor. A VM created with NewVM runs every
// frame in the reference interpreter; the jit package supplies an executor that
// routes frames to compiled closures or the fast interpreter.
package vm
