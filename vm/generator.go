package vm

// ResumeState is the outcome of resuming a generator.
type ResumeState uint8

const (
	// Yielded means the generator suspended at a yield.
	Yielded ResumeState = iota
	// Returned means the generator body finished, with its return value.
	Returned
	// Exhausted means the generator had already finished before this resume.
	Exhausted
)

type generatorStatus uint8

const (
	genCreated generatorStatus = iota
	genSuspended
	genRunning
	genDone
)

// Generator is a suspended generator-function frame. It only moves forward:
// once finished it stays exhausted.
type Generator struct {
	fn     *Function
	frame  *Frame
	status generatorStatus
}

func (*Generator) TypeName() string { return "generator" }
func (*Generator) pyValue()         {}

func (g *Generator) name() string {
	if g.fn != nil {
		return g.fn.Name
	}
	return g.frame.Code.displayName()
}

// Resume continues the generator, delivering send as the value of the
// pending yield expression.
func (g *Generator) Resume(vm *VM, send Value) (Value, ResumeState, error) {
	switch g.status {
	case genDone:
		return None, Exhausted, nil
	case genRunning:
		return nil, Exhausted, Raisef(ValueErrorClass, "generator already executing")
	case genCreated:
		if send != nil && send != None {
			return nil, Exhausted, Raisef(TypeErrorClass, "can't send non-None value to a just-started generator")
		}
	case genSuspended:
		if send == nil {
			send = None
		}
		g.frame.Push(send)
	}

	g.status = genRunning
	if err := vm.enter(); err != nil {
		g.status = genDone
		return nil, Exhausted, err
	}
	v, err := vm.ExecuteFrameInterpreter(g.frame)
	vm.leave()
	if err != nil {
		g.status = genDone
		return nil, Exhausted, err
	}
	if g.frame.yielded {
		g.frame.yielded = false
		g.status = genSuspended
		return v, Yielded, nil
	}
	g.status = genDone
	return v, Returned, nil
}

// Next advances the generator as an iterator.
func (g *Generator) Next(vm *VM) (Value, bool, error) {
	v, state, err := g.Resume(vm, None)
	if err != nil {
		if IsStopIteration(err) {
			return nil, false, Raisef(RuntimeErrorClass, "generator raised StopIteration")
		}
		return nil, false, err
	}
	return v, state == Yielded, nil
}

// Send implements generator.send(v) and next(generator): it raises
// StopIteration once the generator finishes.
func (g *Generator) Send(vm *VM, v Value) (Value, error) {
	r, state, err := g.Resume(vm, v)
	if err != nil {
		return nil, err
	}
	if state != Yielded {
		if r == nil {
			r = None
		}
		return nil, &Exception{Class: StopIterationClass, Kind: StopIterationClass.Name, Payload: r}
	}
	return r, nil
}
