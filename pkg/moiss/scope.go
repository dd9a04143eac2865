package moiss

// Scope is a chain of binding frames. Blocks push a child frame on
// entry; lookups walk outward, declarations always bind in the
// innermost frame so an inner `let` shadows an outer one.
type Scope struct {
	bindings map[string]Value
	outer    *Scope
}

func NewScope() *Scope {
	return &Scope{bindings: make(map[string]Value)}
}

func NewEnclosedScope(outer *Scope) *Scope {
	return &Scope{bindings: make(map[string]Value), outer: outer}
}

// Get resolves a name, walking outward through enclosing frames.
func (s *Scope) Get(name string) (Value, bool) {
	for cur := s; cur != nil; cur = cur.outer {
		if v, ok := cur.bindings[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Declare binds a name in the innermost frame, shadowing any outer
// binding of the same name.
func (s *Scope) Declare(name string, val Value) {
	s.bindings[name] = val
}

// Assign rebinds an existing name in the frame where it was declared.
// Returns false when the name is not bound anywhere in the chain.
func (s *Scope) Assign(name string, val Value) bool {
	for cur := s; cur != nil; cur = cur.outer {
		if _, ok := cur.bindings[name]; ok {
			cur.bindings[name] = val
			return true
		}
	}
	return false
}
