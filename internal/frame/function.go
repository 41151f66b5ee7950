package frame

// Function is the owning function reference a Frame is activated from.
// It carries the Scope that resolves identifier-keyed slot accesses for
// activations of this function.
type Function struct {
	Name  string
	Scope *Scope
}

// NewFunction returns a Function with a fresh empty scope.
func NewFunction(name string) *Function {
	return &Function{Name: name, Scope: NewScope()}
}
