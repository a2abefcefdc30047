package task

// Registry maps IDs to Rx tasks for inbound routing.
// Entries are never removed.
type Registry struct {
	tasks map[ID]*Task
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[ID]*Task)}
}

// Register adds t under its ID. An existing entry is left intact and
// DuplicateTaskError is returned.
func (r *Registry) Register(t *Task) error {
	if _, exists := r.tasks[t.id]; exists {
		return &DuplicateTaskError{ID: t.id}
	}
	r.tasks[t.id] = t
	return nil
}

// Lookup returns the task registered with id, or nil.
func (r *Registry) Lookup(id ID) *Task {
	return r.tasks[id]
}

// IsRegistered tells if id has been registered.
func (r *Registry) IsRegistered(id ID) bool {
	_, ok := r.tasks[id]
	return ok
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	return len(r.tasks)
}
