// Package scheduler runs timer-driven one-shot work, currently the monthly
// digest. It shares no mutable state with the intake machinery.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one piece of scheduled work. Run may re-enqueue a successor to
// make the job recurring.
type Job struct {
	ID    string
	Name  string
	RunAt time.Time
	Run   func(ctx context.Context) error
}

// Queue holds pending jobs until they come due.
type Queue struct {
	mu   sync.Mutex
	jobs []*Job
}

func NewQueue() *Queue {
	return &Queue{jobs: make([]*Job, 0)}
}

func (q *Queue) Enqueue(job *Job) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
}

// Dequeue removes and returns the first due job, or nil if none is due yet.
func (q *Queue) Dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for i, job := range q.jobs {
		if !job.RunAt.After(now) {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return job
		}
	}
	return nil
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Pending returns a copy of the queued jobs.
func (q *Queue) Pending() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// Runner polls a queue and executes due jobs until ctx is cancelled.
type Runner struct {
	Queue    *Queue
	Interval time.Duration
}

func NewRunner(q *Queue, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{Queue: q, Interval: interval}
}

func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				job := r.Queue.Dequeue()
				if job == nil {
					break
				}
				log.Printf("scheduler: running job %s (%s)", job.Name, job.ID)
				if err := job.Run(ctx); err != nil {
					log.Printf("scheduler: job %s failed: %v", job.Name, err)
				}
			}
		}
	}
}

// NextMonthlyRun returns 09:00 on the last day of now's month, or of the
// next month if that moment has already passed.
func NextMonthlyRun(now time.Time) time.Time {
	runAt := endOfMonthRun(now)
	if !runAt.After(now) {
		runAt = endOfMonthRun(time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location()))
	}
	return runAt
}

func endOfMonthRun(t time.Time) time.Time {
	lastDay := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 0, -1)
	return time.Date(lastDay.Year(), lastDay.Month(), lastDay.Day(), 9, 0, 0, 0, t.Location())
}
