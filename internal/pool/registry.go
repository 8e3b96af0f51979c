package pool

// callbackRegistry correlates in-flight tokens with the task they were
// dispatched for.
type callbackRegistry struct {
	tasks map[string]*Task
}

func newCallbackRegistry() callbackRegistry {
	return callbackRegistry{tasks: make(map[string]*Task)}
}

func (r *callbackRegistry) add(token string, t *Task) {
	r.tasks[token] = t
}

// take removes the entry for token. A second take for the same token finds
// nothing, which makes completion idempotent.
func (r *callbackRegistry) take(token string) (*Task, bool) {
	t, ok := r.tasks[token]
	if ok {
		delete(r.tasks, token)
	}
	return t, ok
}

func (r *callbackRegistry) has(token string) bool {
	_, ok := r.tasks[token]
	return ok
}

func (r *callbackRegistry) len() int {
	return len(r.tasks)
}

// drain removes every entry.
func (r *callbackRegistry) drain() []*Task {
	tasks := make([]*Task, 0, len(r.tasks))
	for token, t := range r.tasks {
		tasks = append(tasks, t)
		delete(r.tasks, token)
	}
	return tasks
}
