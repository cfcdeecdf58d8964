package engine

// Pusher is the side of the queue agents see.
type Pusher interface {
	Push(job Job)
}

// Queue is an unbounded FIFO of jobs. It is owned by one engine and is not
// safe for concurrent use.
type Queue struct {
	jobs []Job
}

func NewQueue() *Queue {
	return &Queue{jobs: make([]Job, 0, 16)}
}

// Push appends job. It never blocks and never fails.
func (q *Queue) Push(job Job) {
	if job == nil {
		return
	}
	q.jobs = append(q.jobs, job)
}

// DrainOne removes and returns the oldest job.
func (q *Queue) DrainOne() (Job, bool) {
	if len(q.jobs) == 0 {
		return nil, false
	}
	job := q.jobs[0]
	// Clear the slot so the backing array does not pin drained jobs.
	q.jobs[0] = nil
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return job, true
}

func (q *Queue) Len() int {
	return len(q.jobs)
}
