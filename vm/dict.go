package vm

// ---------------------------------------------------------------------------
// Ordered store
// ---------------------------------------------------------------------------

type storeEntry[K comparable] struct {
	id    K
	key   Value
	value Value
	live  bool
}

// orderedStore maps ids to entries and remembers insertion order. Deleted
// entries leave a tombstone until enough accumulate to compact.
type orderedStore[K comparable] struct {
	index   map[K]int
	entries []storeEntry[K]
	dead    int
}

func (s *orderedStore[K]) lookup(id K) (*storeEntry[K], bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.entries[i], true
}

func (s *orderedStore[K]) set(id K, key, value Value) {
	if i, ok := s.index[id]; ok {
		s.entries[i].value = value
		return
	}
	if s.index == nil {
		s.index = make(map[K]int)
	}
	s.index[id] = len(s.entries)
	s.entries = append(s.entries, storeEntry[K]{id: id, key: key, value: value, live: true})
}

func (s *orderedStore[K]) remove(id K) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	delete(s.index, id)
	s.entries[i] = storeEntry[K]{}
	s.dead++
	if s.dead > 8 && s.dead*2 > len(s.entries) {
		s.compact()
	}
	return true
}

func (s *orderedStore[K]) compact() {
	live := make([]storeEntry[K], 0, len(s.index))
	for _, e := range s.entries {
		if e.live {
			s.index[e.id] = len(live)
			live = append(live, e)
		}
	}
	s.entries = live
	s.dead = 0
}

func (s *orderedStore[K]) each(fn func(key, value Value) bool) bool {
	for i := 0; i < len(s.entries); i++ {
		e := s.entries[i]
		if !e.live {
			continue
		}
		if !fn(e.key, e.value) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Dict
// ---------------------------------------------------------------------------

// Dict is a dual-store mapping. Numbers (bools normalize to 0 and 1, integral
// floats to their integer), strings and None are keyed by a normalized string
// id in the primitive store; every other value is keyed by identity in the
// object store. Iteration visits the primitive store first, each store in
// insertion order.
type Dict struct {
	primitive orderedStore[string]
	object    orderedStore[Value]
}

// NewDict returns an empty dict.
func NewDict() *Dict { return &Dict{} }

func (*Dict) TypeName() string { return "dict" }
func (*Dict) pyValue()         {}

// keyID returns the normalized primitive id of key, or false if key belongs
// in the object store.
func keyID(key Value) (string, bool) {
	switch k := key.(type) {
	case Bool, Int, *BigInt, Float:
		return "n:" + numericKey(k), true
	case Str:
		return "s:" + string(k), true
	case NoneType:
		return "none", true
	}
	return "", false
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.primitive.index) + len(d.object.index) }

// Set inserts or replaces the value for key. Replacing keeps the original key
// object and position.
func (d *Dict) Set(key, value Value) {
	if id, ok := keyID(key); ok {
		d.primitive.set(id, key, value)
		return
	}
	d.object.set(key, key, value)
}

// Get returns the value for key.
func (d *Dict) Get(key Value) (Value, bool) {
	if id, ok := keyID(key); ok {
		if e, found := d.primitive.lookup(id); found {
			return e.value, true
		}
		return nil, false
	}
	if e, found := d.object.lookup(key); found {
		return e.value, true
	}
	return nil, false
}

// Has reports whether key is present.
func (d *Dict) Has(key Value) bool {
	_, ok := d.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (d *Dict) Delete(key Value) bool {
	if id, ok := keyID(key); ok {
		return d.primitive.remove(id)
	}
	return d.object.remove(key)
}

// Each calls fn for every entry in iteration order until fn returns false.
func (d *Dict) Each(fn func(key, value Value) bool) {
	if d.primitive.each(fn) {
		d.object.each(fn)
	}
}

// Keys returns a snapshot of the keys in iteration order.
func (d *Dict) Keys() []Value {
	keys := make([]Value, 0, d.Len())
	d.Each(func(k, _ Value) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Values returns a snapshot of the values in iteration order.
func (d *Dict) Values() []Value {
	vals := make([]Value, 0, d.Len())
	d.Each(func(_, v Value) bool {
		vals = append(vals, v)
		return true
	})
	return vals
}

// Items returns a snapshot of (key, value) tuples in iteration order.
func (d *Dict) Items() []Value {
	items := make([]Value, 0, d.Len())
	d.Each(func(k, v Value) bool {
		items = append(items, NewTuple(k, v))
		return true
	})
	return items
}

// Copy returns a shallow copy.
func (d *Dict) Copy() *Dict {
	c := NewDict()
	d.Each(func(k, v Value) bool {
		c.Set(k, v)
		return true
	})
	return c
}

// ---------------------------------------------------------------------------
// Set
// ---------------------------------------------------------------------------

// Set is an unordered collection of distinct values, normalized the same way
// as dict keys.
type Set struct {
	d Dict
}

// NewSet returns a set holding items.
func NewSet(items ...Value) *Set {
	s := &Set{}
	for _, it := range items {
		s.Add(it)
	}
	return s
}

func (*Set) TypeName() string { return "set" }
func (*Set) pyValue()         {}

// Add inserts v.
func (s *Set) Add(v Value) { s.d.Set(v, None) }

// Has reports membership.
func (s *Set) Has(v Value) bool { return s.d.Has(v) }

// Remove deletes v and reports whether it was present.
func (s *Set) Remove(v Value) bool { return s.d.Delete(v) }

// Len returns the number of members.
func (s *Set) Len() int { return s.d.Len() }

// Members returns a snapshot of the members in iteration order.
func (s *Set) Members() []Value { return s.d.Keys() }

// Copy returns a shallow copy.
func (s *Set) Copy() *Set {
	c := &Set{}
	for _, m := range s.Members() {
		c.Add(m)
	}
	return c
}
