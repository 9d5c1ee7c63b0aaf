package vm

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: The pyrite Virtual Machine
// ---------------------------------------------------------------------------

// DefaultMaxDepth is the default call-depth limit.
const DefaultMaxDepth = 1000

// FrameExecutor runs a non-generator frame to completion. The jit package
// implements it to route frames through compiled closures and the fast
// interpreter.
type FrameExecutor interface {
	ExecuteFrame(vm *VM, frame *Frame) (Value, error)
}

// referenceExecutor runs every frame in the reference interpreter.
type referenceExecutor struct{}

func (referenceExecutor) ExecuteFrame(vm *VM, frame *Frame) (Value, error) {
	return vm.ExecuteFrameInterpreter(frame)
}

// VM executes bytecode. A VM is single-threaded: it must not be used from
// more than one goroutine at a time.
type VM struct {
	// ID identifies this VM instance in log output.
	ID string

	// Stdout receives the output of print.
	Stdout io.Writer

	// MaxDepth bounds nested calls; exceeding it raises RecursionError.
	MaxDepth int

	// Globals is the module scope of the most recent Execute.
	Globals *Scope

	builtins map[string]Value
	executor FrameExecutor
	depth    int
	log      commonlog.Logger
}

// NewVM creates a VM that runs every frame in the reference interpreter.
func NewVM() *VM {
	vm := &VM{
		ID:       uuid.NewString(),
		Stdout:   os.Stdout,
		MaxDepth: DefaultMaxDepth,
		executor: referenceExecutor{},
	}
	vm.log = commonlog.NewKeyValueLogger(commonlog.GetLogger("pyrite.vm"), "vm", vm.ID)
	vm.builtins = vm.makeBuiltins()
	return vm
}

// SetExecutor installs the frame executor. A nil executor restores the
// reference interpreter.
func (vm *VM) SetExecutor(e FrameExecutor) {
	if e == nil {
		e = referenceExecutor{}
	}
	vm.executor = e
}

// Executor returns the installed frame executor.
func (vm *VM) Executor() FrameExecutor { return vm.executor }

// Builtin returns the builtin bound to name, or nil.
func (vm *VM) Builtin(name string) Value { return vm.builtins[name] }

// Builtins returns the builtins table backing every root scope.
func (vm *VM) Builtins() map[string]Value { return vm.builtins }

// NewGlobals creates a fresh module scope backed by this VM's builtins.
func (vm *VM) NewGlobals() *Scope { return NewRootScope(vm.builtins) }

// Execute runs a module-level code block in a fresh module scope.
func (vm *VM) Execute(bc *ByteCode) (Value, error) {
	return vm.ExecuteIn(bc, vm.NewGlobals())
}

// ExecuteIn runs a code block in the given scope.
func (vm *VM) ExecuteIn(bc *ByteCode, scope *Scope) (Value, error) {
	if err := bc.Validate(); err != nil {
		return nil, err
	}
	vm.Globals = scope.Root()
	vm.log.Debugf("executing %s (%d instructions)", bc.displayName(), len(bc.Instructions))
	return vm.runFrame(NewFrame(bc, scope))
}

// runFrame executes a frame through the installed executor.
func (vm *VM) runFrame(f *Frame) (Value, error) {
	if err := vm.enter(); err != nil {
		return nil, err
	}
	defer vm.leave()
	return vm.executor.ExecuteFrame(vm, f)
}

func (vm *VM) enter() error {
	vm.depth++
	if vm.MaxDepth > 0 && vm.depth > vm.MaxDepth {
		vm.depth--
		return Raisef(RecursionErrorClass, "maximum recursion depth exceeded")
	}
	return nil
}

func (vm *VM) leave() { vm.depth-- }

// Depth returns the current call depth.
func (vm *VM) Depth() int { return vm.depth }
