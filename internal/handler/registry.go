package handler

// Factory constructs a handler instance. Construction may have side effects
// (acquiring credentials, opening clients); it runs once per queue per run.
type Factory func() (Handler, error)

// Registry maps queue names to handler factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a factory to a queue name, replacing any previous binding.
func (r *Registry) Register(queue string, factory Factory) {
	r.factories[queue] = factory
}

// Queues returns the registered queue names.
func (r *Registry) Queues() []string {
	names := make([]string, 0, len(r.factories))
	for q := range r.factories {
		names = append(names, q)
	}
	return names
}

// Resolve constructs exactly one handler per requested queue.
//
// Every queue name is checked against the existing set before any handler is
// constructed, so a single unknown queue fails the whole batch with no
// side effects. With requireValidator, a constructed handler lacking the
// Validate capability fails resolution for its queue.
func (r *Registry) Resolve(queueNames []string, existing map[string]struct{}, requireValidator bool) (map[string]Handler, error) {
	for _, q := range queueNames {
		if _, ok := existing[q]; !ok {
			return nil, &UnknownQueueError{Queue: q}
		}
		if _, ok := r.factories[q]; !ok {
			return nil, &UnregisteredQueueError{Queue: q}
		}
	}

	handlers := make(map[string]Handler, len(queueNames))
	for _, q := range queueNames {
		h, err := r.factories[q]()
		if err != nil {
			return nil, err
		}
		if requireValidator && !HasValidator(h) {
			return nil, &MissingValidatorError{Queue: q}
		}
		handlers[q] = h
	}
	return handlers, nil
}
