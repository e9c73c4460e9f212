package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs int32
	err  error
	ran  chan struct{}
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run() error {
	if atomic.AddInt32(&j.runs, 1) == 1 && j.ran != nil {
		close(j.ran)
	}
	return j.err
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestAddJob_EmptyScheduleDisables(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("", &countingJob{}))
	assert.Equal(t, 0, s.Len())
}

func TestAddJob_Descriptors(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 60s", &countingJob{}))
	require.NoError(t, s.AddJob("@daily", &countingJob{}))
	require.NoError(t, s.AddJob("0 */5 * * * *", &countingJob{}))
	assert.Equal(t, 3, s.Len())
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}

	assert.EqualError(t, s.RunNow(job), "boom")
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.runs))
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{ran: make(chan struct{})}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	select {
	case <-job.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not run")
	}
}
