package vm

// Scope is a lexical binding environment. Lookups walk the parent chain; the
// root scope falls back to the builtins table. The global and nonlocal
// declarations are fixed when the scope is created.
type Scope struct {
	values    map[string]Value
	parent    *Scope
	globals   map[string]struct{}
	nonlocals map[string]struct{}
	builtins  map[string]Value
	shape     uint64
}

// NewScope creates a child of parent with the given declarations.
func NewScope(parent *Scope, globals, nonlocals []string) *Scope {
	s := &Scope{values: make(map[string]Value), parent: parent}
	if len(globals) > 0 {
		s.globals = make(map[string]struct{}, len(globals))
		for _, n := range globals {
			s.globals[n] = struct{}{}
		}
	}
	if len(nonlocals) > 0 {
		s.nonlocals = make(map[string]struct{}, len(nonlocals))
		for _, n := range nonlocals {
			s.nonlocals[n] = struct{}{}
		}
	}
	return s
}

// NewRootScope creates a module-level scope backed by builtins.
func NewRootScope(builtins map[string]Value) *Scope {
	s := NewScope(nil, nil, nil)
	s.builtins = builtins
	return s
}

// Parent returns the enclosing scope, or nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Root returns the outermost scope.
func (s *Scope) Root() *Scope {
	r := s
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Shape changes whenever a name is added to or removed from this scope's own
// bindings. Rebinding an existing name leaves it unchanged.
func (s *Scope) Shape() uint64 { return s.shape }

// HasRedirects reports whether the scope declares any global or nonlocal name.
func (s *Scope) HasRedirects() bool {
	return len(s.globals) > 0 || len(s.nonlocals) > 0
}

// IsGlobal reports whether name is declared global in this scope.
func (s *Scope) IsGlobal(name string) bool {
	_, ok := s.globals[name]
	return ok
}

// IsNonlocal reports whether name is declared nonlocal in this scope.
func (s *Scope) IsNonlocal(name string) bool {
	_, ok := s.nonlocals[name]
	return ok
}

// Get resolves name through the scope chain and then the builtins.
func (s *Scope) Get(name string) (Value, error) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.values[name]; ok {
			return v, nil
		}
		if cur.parent == nil && cur.builtins != nil {
			if v, ok := cur.builtins[name]; ok {
				return v, nil
			}
		}
	}
	return nil, Raisef(NameErrorClass, "name '%s' is not defined", name)
}

// Local returns the binding of name in this scope only.
func (s *Scope) Local(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// HasLocal reports whether name is bound in this scope only.
func (s *Scope) HasLocal(name string) bool {
	_, ok := s.values[name]
	return ok
}

// SetLocal binds name in this scope, ignoring declarations.
func (s *Scope) SetLocal(name string, v Value) {
	if _, ok := s.values[name]; !ok {
		s.shape++
	}
	s.values[name] = v
}

// Set binds name. A global declaration writes to the root scope; a nonlocal
// declaration writes to the nearest enclosing scope that already binds name.
func (s *Scope) Set(name string, v Value) error {
	if s.parent != nil {
		if _, ok := s.globals[name]; ok {
			s.Root().SetLocal(name, v)
			return nil
		}
		if _, ok := s.nonlocals[name]; ok {
			owner := s.parent.find(name)
			if owner == nil {
				return Raisef(NameErrorClass, "no binding for nonlocal '%s' found", name)
			}
			owner.SetLocal(name, v)
			return nil
		}
	}
	s.SetLocal(name, v)
	return nil
}

// Delete unbinds name, following the same redirection as Set.
func (s *Scope) Delete(name string) error {
	target := s
	if s.parent != nil {
		if _, ok := s.globals[name]; ok {
			target = s.Root()
		} else if _, ok := s.nonlocals[name]; ok {
			target = s.parent.find(name)
		}
	}
	if target == nil || !target.HasLocal(name) {
		return Raisef(NameErrorClass, "name '%s' is not defined", name)
	}
	delete(target.values, name)
	target.shape++
	return nil
}

// find returns the nearest scope, starting at s, that binds name.
func (s *Scope) find(name string) *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.values[name]; ok {
			return cur
		}
	}
	return nil
}

// Names returns the names bound in this scope only.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.values))
	for n := range s.values {
		names = append(names, n)
	}
	return names
}
