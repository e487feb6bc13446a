package engine

// DeleteQueue collects release actions to run later. Resources are pushed in
// creation order; Flush runs the actions in reverse, so dependents are always
// released before the objects they reference.
//
// Two scopes exist: each frame slot owns a queue flushed once that slot's
// fence has been observed signaled, and the engine owns a process-wide queue
// flushed during shutdown after the device goes idle.
type DeleteQueue struct {
	deleters []func()
}

// Push appends a release action.
func (q *DeleteQueue) Push(deleter func()) {
	q.deleters = append(q.deleters, deleter)
}

// Flush runs all pending actions in reverse push order, then empties the
// queue.
func (q *DeleteQueue) Flush() {
	for i := len(q.deleters) - 1; i >= 0; i-- {
		q.deleters[i]()
	}
	q.deleters = q.deleters[:0]
}

// Len reports the number of pending actions.
func (q *DeleteQueue) Len() int {
	return len(q.deleters)
}
