package vm

import (
	"strings"
)

// CallFunction calls fn with positional arguments.
func (vm *VM) CallFunction(fn Value, args []Value) (Value, error) {
	return vm.call(fn, args, nil)
}

// CallWithKeywords calls fn with positional and keyword arguments.
func (vm *VM) CallWithKeywords(fn Value, args []Value, kwargs *Dict) (Value, error) {
	return vm.call(fn, args, kwargs)
}

func (vm *VM) call(fn Value, args []Value, kwargs *Dict) (Value, error) {
	switch f := fn.(type) {
	case *Function:
		return vm.callUser(f, args, kwargs)
	case *Builtin:
		return f.Fn(vm, args, kwargs)
	case *BoundMethod:
		full := make([]Value, 0, len(args)+1)
		full = append(full, f.Self)
		full = append(full, args...)
		return vm.call(f.Fn, full, kwargs)
	case *Class:
		return vm.instantiate(f, args, kwargs)
	case *Instance:
		if m, ok := f.Class.Lookup("__call__"); ok {
			return vm.call(bindMember(f, m), args, kwargs)
		}
	}
	return nil, Raisef(TypeErrorClass, "'%s' object is not callable", fn.TypeName())
}

// callUser binds arguments into a fresh scope and runs the function body. A
// generator function returns a suspended generator without running its body.
func (vm *VM) callUser(fn *Function, args []Value, kwargs *Dict) (Value, error) {
	scope := NewScope(fn.Closure, fn.Code.Globals, fn.Code.Nonlocals)
	if err := bindArgs(fn, scope, args, kwargs); err != nil {
		return nil, err
	}
	frame := NewFrame(fn.Code, scope)
	if fn.IsGenerator {
		return &Generator{fn: fn, frame: frame}, nil
	}
	return vm.runFrame(frame)
}

// bindArgs binds call arguments to parameter names. A parameter spelled
// "*name" collects extra positional arguments and "**name" collects extra
// keyword arguments.
func bindArgs(fn *Function, scope *Scope, args []Value, kwargs *Dict) error {
	var positional []string
	var varargs, varkw string
	for _, p := range fn.Params {
		switch {
		case strings.HasPrefix(p, "**"):
			varkw = p[2:]
		case strings.HasPrefix(p, "*"):
			varargs = p[1:]
		default:
			positional = append(positional, p)
		}
	}

	bound := make(map[string]bool, len(positional))
	for i, a := range args {
		if i < len(positional) {
			scope.SetLocal(positional[i], a)
			bound[positional[i]] = true
		}
	}
	if len(args) > len(positional) {
		if varargs == "" {
			return Raisef(TypeErrorClass, "%s() takes %d positional arguments but %d were given", fn.Name, len(positional), len(args))
		}
		scope.SetLocal(varargs, NewTuple(append([]Value(nil), args[len(positional):]...)...))
	} else if varargs != "" {
		scope.SetLocal(varargs, NewTuple())
	}

	var extra *Dict
	if varkw != "" {
		extra = NewDict()
		scope.SetLocal(varkw, extra)
	}
	if kwargs != nil {
		var err error
		kwargs.Each(func(k, v Value) bool {
			name := string(k.(Str))
			isParam := false
			for _, p := range positional {
				if p == name {
					isParam = true
					break
				}
			}
			switch {
			case isParam && bound[name]:
				err = Raisef(TypeErrorClass, "%s() got multiple values for argument '%s'", fn.Name, name)
				return false
			case isParam:
				scope.SetLocal(name, v)
				bound[name] = true
			case extra != nil:
				extra.Set(k, v)
			default:
				err = Raisef(TypeErrorClass, "%s() got an unexpected keyword argument '%s'", fn.Name, name)
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
	}

	firstDefault := len(positional) - len(fn.Defaults)
	for i, p := range positional {
		if bound[p] {
			continue
		}
		if i >= firstDefault && firstDefault >= 0 {
			scope.SetLocal(p, fn.Defaults[i-firstDefault])
			continue
		}
		return Raisef(TypeErrorClass, "%s() missing required positional argument: '%s'", fn.Name, p)
	}
	return nil
}

// instantiate calls a class: exception classes build an *Exception, other
// classes an *Instance. __init__ runs with the new object as self.
func (vm *VM) instantiate(cls *Class, args []Value, kwargs *Dict) (Value, error) {
	var obj Value
	if cls.IsException {
		obj = newException(cls, args)
	} else {
		obj = NewInstance(cls)
	}
	init, ok := cls.Lookup("__init__")
	if !ok {
		if !cls.IsException && (len(args) > 0 || (kwargs != nil && kwargs.Len() > 0)) {
			return nil, Raisef(TypeErrorClass, "%s() takes no arguments", cls.Name)
		}
		return obj, nil
	}
	r, err := vm.call(bindMember(obj, init), args, kwargs)
	if err != nil {
		return nil, err
	}
	if r != None {
		return nil, Raisef(TypeErrorClass, "__init__() should return None, not '%s'", r.TypeName())
	}
	return obj, nil
}

// buildClass runs a class body in its own scope and collects the bindings it
// leaves behind as class attributes.
func (vm *VM) buildClass(outer *Scope, name string, body *ByteCode, bases []Value) (*Class, error) {
	baseClasses := make([]*Class, 0, len(bases))
	for _, b := range bases {
		c, ok := b.(*Class)
		if !ok {
			return nil, Raisef(TypeErrorClass, "bases must be types, not %s", b.TypeName())
		}
		baseClasses = append(baseClasses, c)
	}
	scope := NewScope(outer, body.Globals, body.Nonlocals)
	frame := NewFrame(body, scope)
	frame.classBody = true
	if _, err := vm.runFrame(frame); err != nil {
		return nil, err
	}
	attrs := make(map[string]Value, len(scope.values))
	for k, v := range scope.values {
		attrs[k] = v
	}
	return NewClass(name, baseClasses, attrs), nil
}
