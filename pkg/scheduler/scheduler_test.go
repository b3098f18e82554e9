package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDequeueOnlyDueJobs(t *testing.T) {
	q := NewQueue()
	q.Enqueue(&Job{Name: "later", RunAt: time.Now().Add(time.Hour)})
	q.Enqueue(&Job{Name: "due", RunAt: time.Now().Add(-time.Second)})

	job := q.Dequeue()
	require.NotNil(t, job)
	assert.Equal(t, "due", job.Name)
	assert.NotEmpty(t, job.ID)

	assert.Nil(t, q.Dequeue())
	assert.Equal(t, 1, q.Size())
	require.Len(t, q.Pending(), 1)
	assert.Equal(t, "later", q.Pending()[0].Name)
}

func TestRunnerExecutesDueJobs(t *testing.T) {
	q := NewQueue()
	done := make(chan string, 2)
	q.Enqueue(&Job{Name: "first", RunAt: time.Now(), Run: func(context.Context) error {
		done <- "first"
		return nil
	}})
	q.Enqueue(&Job{Name: "second", RunAt: time.Now(), Run: func(context.Context) error {
		done <- "second"
		return assert.AnError // failures are logged, not fatal
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewRunner(q, 10*time.Millisecond).Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job did not run")
		}
	}
	assert.Eventually(t, func() bool { return q.Size() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		NewRunner(q, 10*time.Millisecond).Run(ctx)
		close(stopped)
	}()
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestNextMonthlyRun(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "mid-month runs at the end of the same month",
			now:  time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.March, 31, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "february has a short last day",
			now:  time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2023, time.February, 28, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "leap february",
			now:  time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.February, 29, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "after the run moment rolls to next month",
			now:  time.Date(2024, time.March, 31, 10, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.April, 30, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "december rolls into january",
			now:  time.Date(2024, time.December, 31, 10, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.January, 31, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextMonthlyRun(tt.now))
		})
	}
}
