package task

import "container/list"

// Queue is the FIFO of Tx tasks waiting for transmission.
// A task appears at most once, membership is tracked by ID.
type Queue struct {
	tasks   list.List
	members map[ID]*list.Element
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{members: make(map[ID]*list.Element)}
}

// Enqueue appends t unless it is already queued.
func (q *Queue) Enqueue(t *Task) bool {
	if _, ok := q.members[t.id]; ok {
		return false
	}
	q.members[t.id] = q.tasks.PushBack(t)
	return true
}

// Head returns the first task without removing it, or nil.
func (q *Queue) Head() *Task {
	if elm := q.tasks.Front(); elm != nil {
		return elm.Value.(*Task)
	}
	return nil
}

// PopHead removes and returns the first task, or nil.
func (q *Queue) PopHead() *Task {
	elm := q.tasks.Front()
	if elm == nil {
		return nil
	}
	t := q.tasks.Remove(elm).(*Task)
	delete(q.members, t.id)
	return t
}

// Remove drops t wherever it is in the queue.
func (q *Queue) Remove(t *Task) bool {
	elm, ok := q.members[t.id]
	if !ok {
		return false
	}
	q.tasks.Remove(elm)
	delete(q.members, t.id)
	return true
}

// Contains tells if t is queued.
func (q *Queue) Contains(t *Task) bool {
	_, ok := q.members[t.id]
	return ok
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return q.tasks.Len()
}

// Tasks returns a snapshot of queued tasks, head first.
func (q *Queue) Tasks() []*Task {
	tasks := make([]*Task, 0, q.tasks.Len())
	for elm := q.tasks.Front(); elm != nil; elm = elm.Next() {
		tasks = append(tasks, elm.Value.(*Task))
	}
	return tasks
}
