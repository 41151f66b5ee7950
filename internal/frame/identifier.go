package frame

// Scope maps identifier names to slot offsets within one function's
// frame layout. It is created once per Function and shared by every
// activation of that function.
type Scope struct {
	byName map[string]*Identifier
	order  []*Identifier
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{byName: make(map[string]*Identifier)}
}

// Declare assigns the next free offset to name and returns its
// Identifier. Declaring the same name twice returns the original.
func (s *Scope) Declare(name string) *Identifier {
	if id, ok := s.byName[name]; ok {
		return id
	}
	id := &Identifier{Name: name, Offset: len(s.order), Scope: s}
	s.byName[name] = id
	s.order = append(s.order, id)
	return id
}

// Lookup returns the Identifier for name, if declared in this scope.
func (s *Scope) Lookup(name string) (*Identifier, bool) {
	id, ok := s.byName[name]
	return id, ok
}

// Size returns the number of identifiers declared in this scope, i.e.
// the minimum frame size needed to back it.
func (s *Scope) Size() int { return len(s.order) }

// Identifier is an opaque external handle with a unique name, an offset
// into its home frame, and the scope that declared it. Equality is by
// name.
type Identifier struct {
	Name   string
	Offset int
	Scope  *Scope
}

// Equal reports whether two identifiers share a name.
func (id *Identifier) Equal(other *Identifier) bool {
	if id == nil || other == nil {
		return id == other
	}
	return id.Name == other.Name
}
