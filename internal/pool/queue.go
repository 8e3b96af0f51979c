package pool

// taskQueue holds tasks waiting for a worker in strict FIFO order.
type taskQueue struct {
	items []*Task
}

func (q *taskQueue) push(t *Task) {
	q.items = append(q.items, t)
}

// pop removes and returns the oldest task, or nil when the queue is empty.
func (q *taskQueue) pop() *Task {
	if len(q.items) == 0 {
		return nil
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t
}

func (q *taskQueue) len() int {
	return len(q.items)
}

// drain empties the queue and returns its tasks in order.
func (q *taskQueue) drain() []*Task {
	items := q.items
	q.items = nil
	return items
}
