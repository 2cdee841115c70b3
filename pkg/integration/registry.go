package integration

// Registry is the fixed, ordered set of integrations a file's metadata
// can draw on. Order matters: data-key retrieval tries integrations in
// this order and stops at the first success, so a deterministic order
// is part of the contract, not an implementation detail.
type Registry struct {
	ordered []Integration
	byName  map[string]Integration
}

// NewRegistry builds a registry from the given integrations, preserving
// the order they're passed in.
func NewRegistry(integrations ...Integration) *Registry {
	r := &Registry{byName: make(map[string]Integration, len(integrations))}
	for _, i := range integrations {
		r.ordered = append(r.ordered, i)
		r.byName[i.Name()] = i
	}
	return r
}

// DefaultRegistry builds the standard age-then-AWS-KMS registry backed
// by the process environment.
func DefaultRegistry() *Registry {
	keys := OSEnvKeyProvider{}
	return NewRegistry(NewAge(keys), NewAWSKMS(keys))
}

// Ordered returns the registry's integrations in lookup order.
func (r *Registry) Ordered() []Integration { return r.ordered }

// ByName looks up an integration by its wire name.
func (r *Registry) ByName(name string) (Integration, bool) {
	i, ok := r.byName[name]
	return i, ok
}
