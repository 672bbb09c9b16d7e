package difx

// registry maps keys to the single entry producing them. It is filled while
// the app is assembled and only read afterwards.
type registry struct {
	entries     []*providerEntry
	byKey       map[Key]*providerEntry
	invocations []*invocation
	decorators  []*decorator
}

func newRegistry() *registry {
	return &registry{byKey: make(map[Key]*providerEntry)}
}

// register records e under all of its keys. With override set, e takes over
// keys that already have a producer. A producer whose primary key is taken
// is dropped along with its remaining aliases, so primary keys stay unique.
func (r *registry) register(e *providerEntry, override bool) error {
	for _, k := range e.keys {
		if existing, ok := r.byKey[k]; ok && !override {
			return &DuplicateProviderError{Key: k, Provider: e.String(), Existing: existing.String()}
		}
	}

	dropped := make(map[*providerEntry]bool)
	for _, k := range e.keys {
		if existing, ok := r.byKey[k]; ok && existing.key() == k {
			dropped[existing] = true
		}
	}

	if len(dropped) > 0 {
		kept := r.entries[:0]
		for _, existing := range r.entries {
			if !dropped[existing] {
				kept = append(kept, existing)
				continue
			}
			for _, k := range existing.keys {
				if r.byKey[k] == existing {
					delete(r.byKey, k)
				}
			}
		}
		r.entries = kept
	}

	e.id = idOf(e.key())

	for _, k := range e.keys {
		r.byKey[k] = e
	}
	r.entries = append(r.entries, e)

	return nil
}

// lookup finds the producer of k. An unnamed interface key without a direct
// producer binds to the only entry whose type implements it.
func (r *registry) lookup(k Key) (*providerEntry, error) {
	if e, ok := r.byKey[k]; ok {
		return e, nil
	}

	if k.isInterface() {
		var candidates []*providerEntry
		for _, e := range r.entries {
			primary := e.key()
			if primary.name == k.name && primary.typ.Implements(k.typ) {
				candidates = append(candidates, e)
			}
		}

		switch len(candidates) {
		case 1:
			return candidates[0], nil
		case 0:
		default:
			keys := make([]Key, len(candidates))
			for i, c := range candidates {
				keys[i] = c.key()
			}

			return nil, &AmbiguousProviderError{Key: k, Candidates: keys}
		}
	}

	return nil, &UnresolvedDependencyError{Missing: k}
}
