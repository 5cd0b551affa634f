package jobs

// Registry maps a job type tag to its handler. Adding a use case means one
// handler implementation and one Register call; the dispatcher never
// branches on job type itself.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a job type tag to a handler. Later registrations for the
// same tag replace earlier ones.
func (r *Registry) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

// Lookup returns the handler for a job type.
func (r *Registry) Lookup(jobType string) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}
