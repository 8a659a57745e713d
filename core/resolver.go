package core

// Resolution is the outcome of routing one requested model id.
type Resolution struct {
	Backend *BackendDescriptor
	// Model is the canonical model id: the alias target when an alias
	// matched, the requested id otherwise. This is what goes upstream.
	Model string
}

// Resolve routes a requested model id against one registry snapshot.
// First match wins: alias lookup (exactly one hop, alias targets are never
// re-resolved as aliases), then exact match against each backend's model
// set, then prefix match in registry insertion order.
func Resolve(reg *Registry, model string) (*Resolution, error) {
	requested := model
	if target, ok := reg.ModelAliases[model]; ok {
		model = target
	}

	for _, b := range reg.Backends {
		if b.HasModel(model) {
			return &Resolution{Backend: b, Model: model}, nil
		}
	}

	for _, b := range reg.Backends {
		if b.MatchesPrefix(model) {
			return &Resolution{Backend: b, Model: model}, nil
		}
	}

	return nil, NewUnknownModel(requested)
}
